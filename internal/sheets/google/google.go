package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"deplacements/internal/export"
	ports "deplacements/internal/sheets"
	"deplacements/internal/valuation"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Recap"); code prefixes year.
	recapBase string
}

// Ensure interface conformance
var _ ports.RecapWriter = (*Client)(nil)

// New creates a Sheets client writing recaps into spreadsheetID, on tabs
// named "<year> <recapBase>". Credentials come from the environment, see
// newSheetsService.
func New(ctx context.Context, spreadsheetID, recapBase string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	recapBase = strings.TrimSpace(recapBase)
	if recapBase == "" {
		recapBase = "Recap"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		recapBase:     recapBase,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// WriteMonthlyRecap appends one block (title, header, one line per user)
// below whatever the year's recap tab already holds. The tab is created on
// first use.
func (c *Client) WriteMonthlyRecap(ctx context.Context, year, month int, rows []valuation.RecapRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheetName := yearPrefixedName(c.recapBase, year)

	if err := c.ensureSheet(ctx, sheetName); err != nil {
		return "", err
	}

	// Find the next empty row by getting the sheet dimensions first
	rng := fmt.Sprintf("'%s'!A:A", sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", sheetName, err)
	}
	nextRow := len(resp.Values) + 1
	if nextRow > 1 {
		// Keep a blank line between month blocks.
		nextRow++
	}

	values := recapValues(year, month, rows)
	lastRow := nextRow + len(values) - 1
	dataRange := fmt.Sprintf("'%s'!A%d", sheetName, nextRow)

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to write recap in sheet %s: %w", sheetName, err)
	}

	ref := fmt.Sprintf("%s!A%d:%s%d", sheetName, nextRow, columnName(len(values[1])), lastRow)

	slog.InfoContext(ctx, "Recap written to Google Sheets",
		"sheet", sheetName,
		"year", year,
		"month", month,
		"rows", len(rows),
		"ref", ref)

	return ref, nil
}

func (c *Client) ensureSheet(ctx context.Context, sheetName string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == sheetName {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheetName}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheetName, err)
	}
	slog.InfoContext(ctx, "Recap sheet created", "sheet", sheetName)
	return nil
}

// recapValues lays out one month block. Travel type columns follow the
// order of the first row; every row carries the same travel types.
func recapValues(year, month int, rows []valuation.RecapRow) [][]any {
	header := []any{"Salarié"}
	if len(rows) > 0 {
		for _, tt := range rows[0].TravelTypes {
			header = append(header, tt.Name+" (jours)", tt.Name+" (€)")
		}
	}
	header = append(header, "Distance (km)", "Indemnités km", "Indemnités journalières", "Frais divers", "Total")

	out := make([][]any, 0, len(rows)+2)
	out = append(out, []any{export.MonthLabel(year, month)}, header)
	for _, r := range rows {
		line := []any{r.UserName}
		for _, tt := range r.TravelTypes {
			line = append(line, tt.Days, export.Round2(tt.Total))
		}
		line = append(line,
			export.Round2(r.TotalDistance),
			export.Round2(r.MileageTotal),
			export.Round2(r.AllowanceTotal),
			export.Round2(r.MiscTotal),
			export.Round2(r.GrandTotal))
		out = append(out, line)
	}
	return out
}

// columnName converts a 1-based column count to its A1 letter (1 -> A, 27 -> AA).
func columnName(n int) string {
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
