package ledger

import "github.com/shopspring/decimal"

// EnrichedTransaction is a classified transaction carrying historical fiat
// valuations. Monetary fields are nil when enrichment could not price the
// transaction; a nil value contributes zero to every total.
type EnrichedTransaction struct {
	Transaction
	Category  Category
	USDValue  *decimal.Decimal
	CADValue  *decimal.Decimal
	GasFeeUSD *decimal.Decimal
	GasFeeCAD *decimal.Decimal
}

// TotalsSummary is the aggregate financial report for a set of classified,
// fiat-valued transactions. It is derived state: recompute it from the
// transaction set rather than persisting it authoritatively.
//
// Field names and two-decimal rounding are a compatibility contract with
// the report emitters; do not change them without updating the CSV and
// XLSX writers.
type TotalsSummary struct {
	GrossRevenueUSD  decimal.Decimal `json:"gross_revenue_usd"`
	GrossRevenueCAD  decimal.Decimal `json:"gross_revenue_cad"`
	TotalExpensesUSD decimal.Decimal `json:"total_expenses_usd"`
	TotalExpensesCAD decimal.Decimal `json:"total_expenses_cad"`
	NetCashFlowUSD   decimal.Decimal `json:"net_cash_flow_usd"`
	NetCashFlowCAD   decimal.Decimal `json:"net_cash_flow_cad"`
	TotalGasFeesUSD  decimal.Decimal `json:"total_gas_fees_usd"`
	TotalGasFeesCAD  decimal.Decimal `json:"total_gas_fees_cad"`

	TransactionCount int `json:"transaction_count"`
	IncomeCount      int `json:"income_count"`
	ExpenseCount     int `json:"expense_count"`
	TransferCount    int `json:"transfer_count"`
	UnknownCount     int `json:"unknown_count"`
}

// ComputeTotals folds enriched transactions into a TotalsSummary.
//
// Income transactions add to gross revenue; Expense transactions add to
// total expenses and, separately, their gas fees to the gas-fee totals.
// Transfer and Unknown transactions are counted but contribute zero to
// every monetary accumulator. Net cash flow = revenue − expenses per
// currency, computed after the fold.
//
// All monetary outputs are rounded to two decimal places with banker's
// rounding (round-half-to-even), applied once at the output step, never
// on intermediate accumulators. Summation follows input order, so results
// are reproducible for identical input.
func ComputeTotals(txs []EnrichedTransaction) TotalsSummary {
	var (
		revenueUSD, revenueCAD   decimal.Decimal
		expensesUSD, expensesCAD decimal.Decimal
		gasUSD, gasCAD           decimal.Decimal
	)

	summary := TotalsSummary{TransactionCount: len(txs)}

	for _, tx := range txs {
		switch tx.Category {
		case CategoryIncome:
			summary.IncomeCount++
			revenueUSD = revenueUSD.Add(valueOrZero(tx.USDValue))
			revenueCAD = revenueCAD.Add(valueOrZero(tx.CADValue))
		case CategoryExpense:
			summary.ExpenseCount++
			expensesUSD = expensesUSD.Add(valueOrZero(tx.USDValue))
			expensesCAD = expensesCAD.Add(valueOrZero(tx.CADValue))
			gasUSD = gasUSD.Add(valueOrZero(tx.GasFeeUSD))
			gasCAD = gasCAD.Add(valueOrZero(tx.GasFeeCAD))
		case CategoryTransfer:
			summary.TransferCount++
		default:
			summary.UnknownCount++
		}
	}

	summary.GrossRevenueUSD = revenueUSD.RoundBank(2)
	summary.GrossRevenueCAD = revenueCAD.RoundBank(2)
	summary.TotalExpensesUSD = expensesUSD.RoundBank(2)
	summary.TotalExpensesCAD = expensesCAD.RoundBank(2)
	summary.NetCashFlowUSD = summary.GrossRevenueUSD.Sub(summary.TotalExpensesUSD)
	summary.NetCashFlowCAD = summary.GrossRevenueCAD.Sub(summary.TotalExpensesCAD)
	summary.TotalGasFeesUSD = gasUSD.RoundBank(2)
	summary.TotalGasFeesCAD = gasCAD.RoundBank(2)

	return summary
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
