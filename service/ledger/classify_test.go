package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Category
		ok    bool
	}{
		{name: "uppercase income", input: "INCOME", want: CategoryIncome, ok: true},
		{name: "lowercase expense", input: "expense", want: CategoryExpense, ok: true},
		{name: "mixed case transfer", input: "Transfer", want: CategoryTransfer, ok: true},
		{name: "unknown with whitespace", input: "  unknown ", want: CategoryUnknown, ok: true},
		{name: "empty string", input: "", ok: false},
		{name: "garbage", input: "refund", ok: false},
		{name: "close but wrong", input: "INCOMES", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCategory(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestClassify_IncomingNotOwned(t *testing.T) {
	// Single incoming transaction from an unowned counterparty is income.
	tx := Transaction{
		ID:          "0xabc",
		Direction:   DirectionIn,
		FromAddress: "0xclient",
		ToAddress:   "0xme",
	}
	owned := NewOwnershipSet([]string{"0xme"})

	result := Classify(tx, owned, "")

	assert.Equal(t, CategoryIncome, result.Category)
	assert.False(t, result.OverrideApplied)
}

func TestClassify_OutgoingNotOwned(t *testing.T) {
	tx := Transaction{
		ID:          "0xdef",
		Direction:   DirectionOut,
		FromAddress: "0xme",
		ToAddress:   "0xvendor",
	}
	owned := NewOwnershipSet([]string{"0xme"})

	result := Classify(tx, owned, "")

	assert.Equal(t, CategoryExpense, result.Category)
	assert.False(t, result.OverrideApplied)
}

func TestClassify_TransferBetweenOwnedWallets(t *testing.T) {
	// Case-insensitive address match: both endpoints owned → transfer,
	// regardless of direction.
	tx := Transaction{
		ID:          "0x123",
		Direction:   DirectionIn,
		FromAddress: "0xAAA",
		ToAddress:   "0xBBB",
	}
	owned := NewOwnershipSet([]string{"0xaaa", "0xbbb"})

	result := Classify(tx, owned, "")

	assert.Equal(t, CategoryTransfer, result.Category)
}

func TestClassify_OverrideBeatsRules(t *testing.T) {
	// A valid override wins over direction and ownership, and it is
	// accepted case-insensitively.
	tx := Transaction{
		ID:          "tx1",
		Direction:   DirectionIn,
		FromAddress: "0xaaa",
		ToAddress:   "0xbbb",
	}
	owned := NewOwnershipSet([]string{"0xaaa", "0xbbb"})

	result := Classify(tx, owned, "expense")

	assert.Equal(t, CategoryExpense, result.Category)
	assert.True(t, result.OverrideApplied)
}

func TestClassify_MalformedOverrideFallsThrough(t *testing.T) {
	tx := Transaction{
		ID:          "tx2",
		Direction:   DirectionIn,
		FromAddress: "0xclient",
		ToAddress:   "0xme",
	}
	owned := NewOwnershipSet([]string{"0xme"})

	result := Classify(tx, owned, "not-a-category")

	assert.Equal(t, CategoryIncome, result.Category)
	assert.False(t, result.OverrideApplied)
}

func TestClassify_UnrecognizedDirection(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
	}{
		{name: "empty direction", direction: ""},
		{name: "garbage direction", direction: "Sideways"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := Transaction{ID: "tx", Direction: tt.direction, FromAddress: "0xa", ToAddress: "0xb"}
			result := Classify(tx, NewOwnershipSet([]string{"0xme"}), "")
			assert.Equal(t, CategoryUnknown, result.Category)
		})
	}
}

func TestClassify_EmptyAddressesNeverTransfer(t *testing.T) {
	// An empty string must not match the ownership set, even if the set
	// was built from input containing empty strings.
	tx := Transaction{
		ID:          "tx3",
		Direction:   DirectionOut,
		FromAddress: "",
		ToAddress:   "",
	}
	owned := NewOwnershipSet([]string{"0xme", ""})

	result := Classify(tx, owned, "")

	assert.Equal(t, CategoryExpense, result.Category)
}

func TestClassifyBatch(t *testing.T) {
	txs := []Transaction{
		{ID: "tx1", Direction: DirectionIn, FromAddress: "0xclient", ToAddress: "0xMain"},
		{ID: "tx2", Direction: DirectionOut, FromAddress: "0xmain", ToAddress: "0xCOLD"},
		{ID: "tx3", Direction: DirectionOut, FromAddress: "0xmain", ToAddress: "0xvendor"},
		{ID: "tx4", Direction: "", FromAddress: "0xa", ToAddress: "0xb"},
	}
	overrides := map[string]string{
		"tx3": "transfer",
		"tx9": "income", // no matching transaction, must be ignored
	}

	results := ClassifyBatch(txs, []string{"0xMAIN", "0xcold"}, overrides)

	require.Len(t, results, 4)
	// Output order matches input order.
	assert.Equal(t, "tx1", results[0].ID)
	assert.Equal(t, CategoryIncome, results[0].Category)
	assert.Equal(t, CategoryTransfer, results[1].Category)
	assert.Equal(t, CategoryTransfer, results[2].Category)
	assert.True(t, results[2].OverrideApplied)
	assert.Equal(t, CategoryUnknown, results[3].Category)
}

func TestApplyOverrides(t *testing.T) {
	classified := []ClassifiedTransaction{
		{Transaction: Transaction{ID: "tx1"}, Classification: Classification{Category: CategoryIncome}},
		{Transaction: Transaction{ID: "tx2"}, Classification: Classification{Category: CategoryExpense}},
		{Transaction: Transaction{ID: "tx3"}, Classification: Classification{Category: CategoryUnknown}},
	}
	overrides := map[string]string{
		"tx1": "expense",
		"tx3": "bogus", // invalid value is treated as absent
	}

	patched := ApplyOverrides(classified, overrides)

	require.Len(t, patched, 3)
	assert.Equal(t, CategoryExpense, patched[0].Category)
	assert.True(t, patched[0].OverrideApplied)
	assert.Equal(t, CategoryExpense, patched[1].Category)
	assert.False(t, patched[1].OverrideApplied)
	assert.Equal(t, CategoryUnknown, patched[2].Category)
	assert.False(t, patched[2].OverrideApplied)

	// Idempotence: a second pass with the same map changes nothing.
	again := ApplyOverrides(patched, overrides)
	assert.Equal(t, patched, again)
}

func TestComputeStats(t *testing.T) {
	classified := []ClassifiedTransaction{
		{Classification: Classification{Category: CategoryIncome}},
		{Classification: Classification{Category: CategoryIncome, OverrideApplied: true}},
		{Classification: Classification{Category: CategoryExpense}},
		{Classification: Classification{Category: CategoryTransfer}},
		{Classification: Classification{Category: CategoryUnknown}},
	}

	stats := ComputeStats(classified)

	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.IncomeCount)
	assert.Equal(t, 1, stats.ExpenseCount)
	assert.Equal(t, 1, stats.TransferCount)
	assert.Equal(t, 1, stats.UnknownCount)
	assert.Equal(t, 1, stats.OverrideCount)
	assert.Equal(t, stats.Total, stats.IncomeCount+stats.ExpenseCount+stats.TransferCount+stats.UnknownCount)
}
