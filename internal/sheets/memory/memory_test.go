package memory

import (
	"context"
	"testing"

	"deplacements/internal/valuation"
)

func TestStoreWriteMonthlyRecap(t *testing.T) {
	s := New()
	ctx := context.Background()
	rows := []valuation.RecapRow{{UserID: 1, UserName: "Zoé", GrandTotal: 42}}

	ref, err := s.WriteMonthlyRecap(ctx, 2024, 2, rows)
	if err != nil {
		t.Fatalf("WriteMonthlyRecap: %v", err)
	}
	if ref != "mem:2024-03" {
		t.Fatalf("unexpected ref %q", ref)
	}

	rows[0].GrandTotal = 0
	got, ok := s.Recap(2024, 2)
	if !ok || len(got) != 1 || got[0].GrandTotal != 42 {
		t.Fatalf("stored recap should be a copy: %+v", got)
	}

	if _, err := s.WriteMonthlyRecap(ctx, 2024, 2, nil); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if got, _ := s.Recap(2024, 2); len(got) != 0 {
		t.Fatalf("second write should replace the month, got %+v", got)
	}
	if s.Writes() != 2 {
		t.Fatalf("expected 2 writes, got %d", s.Writes())
	}
}

func TestStoreRejectsInvalidMonth(t *testing.T) {
	if _, err := New().WriteMonthlyRecap(context.Background(), 2024, 12, nil); err == nil {
		t.Fatal("expected error for month 12")
	}
	if _, ok := New().Recap(2024, 0); ok {
		t.Fatal("empty store should have no recap")
	}
}
