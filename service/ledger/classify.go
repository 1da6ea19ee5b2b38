package ledger

import "strings"

// Transaction is the minimal record the classifier needs: an identifier
// unique per on-chain transaction + direction pair, the direction relative
// to the wallet it was fetched for, and the two endpoint addresses.
type Transaction struct {
	ID          string
	Direction   Direction
	FromAddress string
	ToAddress   string
}

// OwnershipSet is a case-insensitive set of self-custodial wallet
// addresses. Only addresses the user holds keys for belong here; exchange
// wallets must never be added, since funds moving to an exchange are not
// internal transfers.
type OwnershipSet map[string]struct{}

// NewOwnershipSet builds an OwnershipSet from raw addresses, normalizing
// to lowercase once so membership tests during a batch are O(1). Empty
// strings are dropped so an empty-address transaction can never match.
func NewOwnershipSet(addresses []string) OwnershipSet {
	set := make(OwnershipSet, len(addresses))
	for _, addr := range addresses {
		if addr == "" {
			continue
		}
		set[strings.ToLower(addr)] = struct{}{}
	}
	return set
}

// Contains reports whether the address is in the set. The empty address is
// never a member.
func (s OwnershipSet) Contains(address string) bool {
	if address == "" {
		return false
	}
	_, ok := s[strings.ToLower(address)]
	return ok
}

// Classification is the result of classifying a single transaction.
// OverrideApplied is carried for audit and reporting; the totals
// calculation does not branch on it.
type Classification struct {
	Category        Category
	OverrideApplied bool
}

// ClassifiedTransaction pairs a transaction with its classification.
type ClassifiedTransaction struct {
	Transaction
	Classification
}

// Classify determines the accounting category for a single transaction.
// Rules, first match wins:
//
//  1. A valid manual override (case-insensitive) forces the category.
//     A malformed override string is ignored, not an error.
//  2. Both addresses owned → Transfer.
//  3. Direction In → Income.
//  4. Direction Out → Expense.
//  5. Otherwise → Unknown.
//
// Classify is a total function: it never fails, and unrecognized input
// degrades to Unknown.
func Classify(tx Transaction, owned OwnershipSet, override string) Classification {
	if cat, ok := ParseCategory(override); ok {
		return Classification{Category: cat, OverrideApplied: true}
	}

	if owned.Contains(tx.FromAddress) && owned.Contains(tx.ToAddress) {
		return Classification{Category: CategoryTransfer}
	}

	switch tx.Direction {
	case DirectionIn:
		return Classification{Category: CategoryIncome}
	case DirectionOut:
		return Classification{Category: CategoryExpense}
	}
	return Classification{Category: CategoryUnknown}
}

// ClassifyBatch classifies each transaction independently. Output order
// matches input order. The ownership addresses are normalized once up
// front; overrides are looked up by transaction ID, with a missing key
// equivalent to no override.
func ClassifyBatch(txs []Transaction, addresses []string, overrides map[string]string) []ClassifiedTransaction {
	owned := NewOwnershipSet(addresses)

	out := make([]ClassifiedTransaction, len(txs))
	for i, tx := range txs {
		out[i] = ClassifiedTransaction{
			Transaction:    tx,
			Classification: Classify(tx, owned, overrides[tx.ID]),
		}
	}
	return out
}

// ApplyOverrides re-applies only the override step to already-classified
// transactions. Records whose ID maps to a valid category get that
// category and OverrideApplied set; everything else passes through
// unchanged. The ownership and direction rules are not re-evaluated, so
// no ownership context is needed. Applying the same map twice yields the
// same result as applying it once.
func ApplyOverrides(txs []ClassifiedTransaction, overrides map[string]string) []ClassifiedTransaction {
	out := make([]ClassifiedTransaction, len(txs))
	for i, tx := range txs {
		if raw, ok := overrides[tx.ID]; ok {
			if cat, valid := ParseCategory(raw); valid {
				tx.Category = cat
				tx.OverrideApplied = true
			}
		}
		out[i] = tx
	}
	return out
}

// Stats summarizes a classification pass.
type Stats struct {
	Total         int `json:"total"`
	IncomeCount   int `json:"income_count"`
	ExpenseCount  int `json:"expense_count"`
	TransferCount int `json:"transfer_count"`
	UnknownCount  int `json:"unknown_count"`
	OverrideCount int `json:"override_count"`
}

// ComputeStats counts transactions per category and how many had a manual
// override applied.
func ComputeStats(txs []ClassifiedTransaction) Stats {
	stats := Stats{Total: len(txs)}
	for _, tx := range txs {
		switch tx.Category {
		case CategoryIncome:
			stats.IncomeCount++
		case CategoryExpense:
			stats.ExpenseCount++
		case CategoryTransfer:
			stats.TransferCount++
		default:
			stats.UnknownCount++
		}
		if tx.OverrideApplied {
			stats.OverrideCount++
		}
	}
	return stats
}
