// Package export renders engine summaries for people: amounts rounded to
// cents and the per-user monthly PDF statement.
package export

import (
	"fmt"
	"io"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"

	"deplacements/internal/core"
	"deplacements/internal/valuation"
)

var monthNames = [12]string{
	"Janvier", "Février", "Mars", "Avril", "Mai", "Juin",
	"Juillet", "Août", "Septembre", "Octobre", "Novembre", "Décembre",
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// FormatAmount formats v with exactly two decimals and a euro sign.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + " €"
}

// MonthLabel returns "Mars 2024" for (2024, 2). Month is 0-based.
func MonthLabel(year, month int) string {
	if month < 0 || month > 11 {
		return fmt.Sprintf("%d/%d", month+1, year)
	}
	return fmt.Sprintf("%s %d", monthNames[month], year)
}

// Rounded returns a copy of s with every amount rounded to cents. Each line
// is rounded on its own, so the rounded GrandTotal may differ by a cent from
// the sum of the rounded lines.
func Rounded(s valuation.MonthlySummary) valuation.MonthlySummary {
	out := s
	out.TotalMisc = Round2(s.TotalMisc)
	out.GrandTotal = Round2(s.GrandTotal)

	out.MileageCosts = make(map[string]valuation.MileageGroup, len(s.MileageCosts))
	for label, g := range s.MileageCosts {
		g.Distance = Round2(g.Distance)
		g.Total = Round2(g.Total)
		out.MileageCosts[label] = g
	}
	out.DailyAllowances = make(map[float64]valuation.AllowanceGroup, len(s.DailyAllowances))
	for rate, g := range s.DailyAllowances {
		g.Total = Round2(g.Total)
		out.DailyAllowances[rate] = g
	}
	return out
}

// RenderPDF writes the monthly statement of one user to w.
func RenderPDF(w io.Writer, user core.User, s valuation.MonthlySummary) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Note de frais "+MonthLabel(s.Year, s.Month)), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr("NOTE DE FRAIS"))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, tr("Salarié : "+user.Name))
	pdf.Ln(7)
	pdf.Cell(0, 7, tr("Période : "+MonthLabel(s.Year, s.Month)))
	pdf.Ln(12)

	section(pdf, tr("Indemnités kilométriques"))
	for _, label := range s.MileageLabels() {
		g := s.MileageCosts[label]
		line(pdf, tr(fmt.Sprintf("%s (%s km)", label, decimal.NewFromFloat(g.Distance).StringFixed(2))), tr(FormatAmount(g.Total)))
	}
	if len(s.MileageCosts) == 0 {
		line(pdf, tr("Aucun trajet"), tr(FormatAmount(0)))
	}
	pdf.Ln(4)

	section(pdf, tr("Indemnités journalières"))
	for _, rate := range s.AllowanceRates() {
		g := s.DailyAllowances[rate]
		line(pdf, tr(fmt.Sprintf("%s : %d j x %s", g.Name, g.Count, FormatAmount(rate))), tr(FormatAmount(g.Total)))
	}
	if len(s.DailyAllowances) == 0 {
		line(pdf, tr("Aucune indemnité"), tr(FormatAmount(0)))
	}
	pdf.Ln(4)

	section(pdf, tr("Frais divers"))
	line(pdf, tr(fmt.Sprintf("%d dépense(s)", s.MiscCount)), tr(FormatAmount(s.TotalMisc)))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 13)
	line(pdf, tr("Total"), tr(FormatAmount(s.GrandTotal)))

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, title)
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
}

func line(pdf *gofpdf.Fpdf, label, amount string) {
	pdf.CellFormat(140, 6, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, amount, "", 1, "R", false, 0, "")
}
