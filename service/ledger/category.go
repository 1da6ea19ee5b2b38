package ledger

import "strings"

// Direction indicates which way value moved relative to the wallet the
// transaction was fetched for. The same on-chain event can appear twice,
// once per owned wallet, with opposite directions.
type Direction string

const (
	DirectionIn  Direction = "In"
	DirectionOut Direction = "Out"
)

// Category is the accounting classification of a transaction.
type Category string

const (
	CategoryIncome   Category = "INCOME"
	CategoryExpense  Category = "EXPENSE"
	CategoryTransfer Category = "TRANSFER"
	CategoryUnknown  Category = "UNKNOWN"
)

// Categories lists all valid categories in display order.
var Categories = []Category{CategoryIncome, CategoryExpense, CategoryTransfer, CategoryUnknown}

// ParseCategory parses a raw category string case-insensitively.
// This is the single validation point for category strings entering the
// system (manual overrides, API requests); everywhere else works with the
// closed Category type. Returns false for anything outside the four
// recognized values, including the empty string.
func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToUpper(strings.TrimSpace(s))) {
	case CategoryIncome:
		return CategoryIncome, true
	case CategoryExpense:
		return CategoryExpense, true
	case CategoryTransfer:
		return CategoryTransfer, true
	case CategoryUnknown:
		return CategoryUnknown, true
	}
	return "", false
}

// String returns the category as its canonical uppercase string.
func (c Category) String() string {
	return string(c)
}
