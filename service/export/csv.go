package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/brojonat/chainledger/service/ledger"
)

// csvHeader is the fixed column layout of the CSV report.
var csvHeader = []string{
	"Transaction Hash", "Block Number", "Date", "Time",
	"From Address", "To Address", "Direction", "Transaction Type",
	"Network", "Token", "Amount (Crypto)", "USD Value", "CAD Value",
	"Gas Fee (Native)", "Gas Fee (USD)", "Gas Fee (CAD)",
	"Status", "Category", "Notes",
}

// WriteCSV writes the transaction rows followed by a summary section.
func WriteCSV(w io.Writer, rows []*Row, totals ledger.TotalsSummary) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.TxHash,
			fmt.Sprintf("%d", r.BlockNumber),
			r.BlockTime.UTC().Format("2006-01-02"),
			r.BlockTime.UTC().Format("15:04:05"),
			r.FromAddress,
			r.ToAddress,
			directionDisplay(r.Direction),
			string(r.TransactionType),
			r.Network,
			r.Asset,
			r.Amount.String(),
			moneyCell(r.USDValue),
			moneyCell(r.CADValue),
			r.TxFeeNative.String(),
			moneyCell(r.GasFeeUSD),
			moneyCell(r.GasFeeCAD),
			r.TxStatus,
			r.Category,
			r.Notes,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row %s: %w", r.TxHash, err)
		}
	}

	summary := [][]string{
		{},
		{"SUMMARY"},
		{"Total Transactions", fmt.Sprintf("%d", totals.TransactionCount)},
		{"Income Transactions", fmt.Sprintf("%d", totals.IncomeCount)},
		{"Expense Transactions", fmt.Sprintf("%d", totals.ExpenseCount)},
		{"Transfer Transactions", fmt.Sprintf("%d", totals.TransferCount)},
		{"Unknown Transactions", fmt.Sprintf("%d", totals.UnknownCount)},
		{},
		{"GROSS REVENUE (USD)", "$" + totals.GrossRevenueUSD.StringFixed(2)},
		{"GROSS REVENUE (CAD)", "$" + totals.GrossRevenueCAD.StringFixed(2)},
		{},
		{"TOTAL EXPENSES (USD)", "$" + totals.TotalExpensesUSD.StringFixed(2)},
		{"TOTAL EXPENSES (CAD)", "$" + totals.TotalExpensesCAD.StringFixed(2)},
		{},
		{"NET CASH FLOW (USD)", "$" + totals.NetCashFlowUSD.StringFixed(2)},
		{"NET CASH FLOW (CAD)", "$" + totals.NetCashFlowCAD.StringFixed(2)},
		{},
		{"Gas Fees (USD)", "$" + totals.TotalGasFeesUSD.StringFixed(2)},
		{"Gas Fees (CAD)", "$" + totals.TotalGasFeesCAD.StringFixed(2)},
	}
	for _, record := range summary {
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// moneyCell renders an optional fiat value with two decimal places.
// Unpriced rows show as empty rather than $0.00 so they are visibly
// distinct from genuinely zero-value transactions.
func moneyCell(d *decimal.Decimal) string {
	if d == nil || d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}
