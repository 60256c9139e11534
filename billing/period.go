package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The (month, year) billing cycle
// =============================================================================

// Period identifies one monthly billing cycle. Expenses are recorded
// against a period and invoices are generated per period.
type Period struct {
	Month time.Month
	Year  int
}

// MinPeriodYear is the earliest year accepted for a billing period.
const MinPeriodYear = 2000

func NewPeriod(month time.Month, year int) Period {
	return Period{Month: month, Year: year}
}

// Validate rejects out-of-range months and years before any side effects.
func (p Period) Validate() error {
	if p.Month < time.January || p.Month > time.December {
		return fmt.Errorf("%w: month %d out of range [1,12]", ErrInvalidPeriod, int(p.Month))
	}
	if p.Year < MinPeriodYear {
		return fmt.Errorf("%w: year %d before %d", ErrInvalidPeriod, p.Year, MinPeriodYear)
	}
	return nil
}

// FirstDay returns the first calendar day of the period at UTC midnight.
// Due dates are computed from this anchor plus the configured grace days.
func (p Period) FirstDay() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Month: time.January, Year: p.Year + 1}
	}
	return Period{Month: p.Month + 1, Year: p.Year}
}

func (p Period) Previous() Period {
	if p.Month == time.January {
		return Period{Month: time.December, Year: p.Year - 1}
	}
	return Period{Month: p.Month - 1, Year: p.Year}
}

// PeriodOf returns the billing period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: t.Month(), Year: t.Year()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}
