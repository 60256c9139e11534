package billing

// =============================================================================
// CONFIG - Explicit engine configuration (no package-level mutable state)
// =============================================================================

// Config carries the tunables of the allocation engine. It is injected at
// construction so tests can vary grace period and category sets without
// touching globals.
type Config struct {
	// GraceDays is added to the first day of the billing period to compute
	// an invoice's due date.
	GraceDays int

	// Categories is the set of accepted expense categories. An empty
	// category on a recorded expense defaults to CategoryOther.
	Categories []ExpenseCategory
}

// DefaultConfig returns the standard configuration: a 10-day grace period
// and the built-in category set.
func DefaultConfig() Config {
	return Config{
		GraceDays: 10,
		Categories: []ExpenseCategory{
			CategoryMaintenance,
			CategoryUtilities,
			CategoryCleaning,
			CategorySecurity,
			CategoryInsurance,
			CategoryOther,
		},
	}
}

// ValidCategory reports whether c is in the configured set.
func (c Config) ValidCategory(cat ExpenseCategory) bool {
	for _, known := range c.Categories {
		if known == cat {
			return true
		}
	}
	return false
}
