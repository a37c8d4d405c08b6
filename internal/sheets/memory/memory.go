package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"deplacements/internal/core"
	ports "deplacements/internal/sheets"
	"deplacements/internal/valuation"
)

var _ ports.RecapWriter = (*Store)(nil)

// Store keeps the last recap written for each month. Used in local runs and
// tests when no spreadsheet is configured.
type Store struct {
	mu     sync.Mutex
	recaps map[string][]valuation.RecapRow
	writes int
}

func New() *Store {
	return &Store{recaps: make(map[string][]valuation.RecapRow)}
}

func key(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month+1)
}

// WriteMonthlyRecap replaces the stored recap for the month.
func (s *Store) WriteMonthlyRecap(_ context.Context, year, month int, rows []valuation.RecapRow) (string, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(year, month)
	s.recaps[k] = slices.Clone(rows)
	s.writes++
	return "mem:" + k, nil
}

// Recap returns the stored rows for the month, if any.
func (s *Store) Recap(year, month int) ([]valuation.RecapRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.recaps[key(year, month)]
	return slices.Clone(rows), ok
}

// Writes counts successful writes.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
