package payroll

import "github.com/shopspring/decimal"

// Totals sums earnings and deductions over input lines. Lines of unknown
// type are ignored.
func Totals(lines []InputLine) (earnings, deductions decimal.Decimal) {
	for _, line := range lines {
		switch line.ElementType {
		case ElementTypeEarning:
			earnings = earnings.Add(line.Units)
		case ElementTypeDeduction:
			deductions = deductions.Add(line.Units)
		}
	}
	return earnings, deductions
}
