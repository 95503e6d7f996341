package payroll

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTotals(t *testing.T) {
	lines := []InputLine{
		{ElementType: "earning", Units: decimal.NewFromInt(2)},
		{ElementType: "deduction", Units: decimal.NewFromInt(3)},
		{ElementType: "deduction", Units: decimal.RequireFromString("1.5")},
	}

	earnings, deductions := Totals(lines)
	if !earnings.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected earnings 2, got %s", earnings)
	}
	if !deductions.Equal(decimal.RequireFromString("4.5")) {
		t.Fatalf("expected deductions 4.5, got %s", deductions)
	}
}

func TestTotalsIgnoresUnknownTypes(t *testing.T) {
	lines := []InputLine{
		{ElementType: "bonus", Units: decimal.NewFromInt(100)},
		{ElementType: "deduction", Units: decimal.NewFromInt(1)},
	}
	earnings, deductions := Totals(lines)
	if !earnings.IsZero() {
		t.Fatalf("expected no earnings, got %s", earnings)
	}
	if !deductions.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected deductions 1, got %s", deductions)
	}
}
