package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/brojonat/chainledger/service/ledger"
)

// xlsxHeader is the fixed column layout of the Excel report.
var xlsxHeader = []string{
	"Transaction Hash", "Block #", "Date", "Time",
	"From Address", "To Address", "Direction", "Transaction Type",
	"Network", "Token", "Amount", "USD Value", "CAD Value",
	"Gas Fee", "Gas (USD)", "Gas (CAD)", "Status", "Category", "Notes",
}

var xlsxColumnWidths = []float64{
	20, 10, 12, 10, 20, 20, 12, 16, 10, 8,
	15, 12, 12, 12, 12, 12, 10, 15, 30,
}

const moneyFormat = `"$"#,##0.00`

// WriteXLSX writes a styled Excel workbook with the transaction rows and a
// summary section.
func WriteXLSX(w io.Writer, rows []*Row, totals ledger.TotalsSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Transactions"
	f.SetSheetName("Sheet1", sheet)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1a1a2e"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating bold style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: ptr(moneyFormat)})
	if err != nil {
		return fmt.Errorf("creating money style: %w", err)
	}
	revenueStyle, err := f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true},
		Fill:         excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"e8f5e9"}},
		CustomNumFmt: ptr(moneyFormat),
	})
	if err != nil {
		return fmt.Errorf("creating revenue style: %w", err)
	}
	expenseStyle, err := f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true},
		Fill:         excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"fce4ec"}},
		CustomNumFmt: ptr(moneyFormat),
	})
	if err != nil {
		return fmt.Errorf("creating expense style: %w", err)
	}
	netStyle, err := f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true},
		Fill:         excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"e3f2fd"}},
		CustomNumFmt: ptr(moneyFormat),
	})
	if err != nil {
		return fmt.Errorf("creating net style: %w", err)
	}

	// Header row
	for i, h := range xlsxHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}
	for i, width := range xlsxColumnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, width)
	}

	// Data rows
	for i, r := range rows {
		rowNum := i + 2
		values := []any{
			r.TxHash,
			r.BlockNumber,
			r.BlockTime.UTC().Format("2006-01-02"),
			r.BlockTime.UTC().Format("15:04:05"),
			r.FromAddress,
			r.ToAddress,
			directionDisplay(r.Direction),
			string(r.TransactionType),
			r.Network,
			r.Asset,
			r.Amount.InexactFloat64(),
			moneyValue(r.USDValue),
			moneyValue(r.CADValue),
			r.TxFeeNative.InexactFloat64(),
			moneyValue(r.GasFeeUSD),
			moneyValue(r.GasFeeCAD),
			r.TxStatus,
			r.Category,
			r.Notes,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowNum)
			f.SetCellValue(sheet, cell, v)
		}
		for _, col := range []int{12, 13, 15, 16} {
			cell, _ := excelize.CoordinatesToCellName(col, rowNum)
			f.SetCellStyle(sheet, cell, cell, moneyStyle)
		}
	}

	// Summary section
	row := len(rows) + 3
	setCell := func(r, c int, v any) string {
		cell, _ := excelize.CoordinatesToCellName(c, r)
		f.SetCellValue(sheet, cell, v)
		return cell
	}

	cell := setCell(row, 1, "SUMMARY")
	f.SetCellStyle(sheet, cell, cell, boldStyle)
	setCell(row+1, 1, "Total Transactions:")
	setCell(row+1, 2, totals.TransactionCount)
	setCell(row+2, 1, "Income:")
	setCell(row+2, 2, totals.IncomeCount)
	setCell(row+3, 1, "Expense:")
	setCell(row+3, 2, totals.ExpenseCount)
	setCell(row+4, 1, "Transfer:")
	setCell(row+4, 2, totals.TransferCount)
	setCell(row+5, 1, "Unknown:")
	setCell(row+5, 2, totals.UnknownCount)

	writeTotal := func(r int, label string, usd, cad float64, style int) {
		cell := setCell(r, 1, label+" (USD)")
		f.SetCellStyle(sheet, cell, cell, boldStyle)
		cell = setCell(r, 2, usd)
		f.SetCellStyle(sheet, cell, cell, style)
		cell = setCell(r+1, 1, label+" (CAD)")
		f.SetCellStyle(sheet, cell, cell, boldStyle)
		cell = setCell(r+1, 2, cad)
		f.SetCellStyle(sheet, cell, cell, style)
	}

	revRow := row + 7
	writeTotal(revRow, "GROSS REVENUE", totals.GrossRevenueUSD.InexactFloat64(), totals.GrossRevenueCAD.InexactFloat64(), revenueStyle)
	expRow := revRow + 3
	writeTotal(expRow, "TOTAL EXPENSES", totals.TotalExpensesUSD.InexactFloat64(), totals.TotalExpensesCAD.InexactFloat64(), expenseStyle)
	netRow := expRow + 3
	writeTotal(netRow, "NET CASH FLOW", totals.NetCashFlowUSD.InexactFloat64(), totals.NetCashFlowCAD.InexactFloat64(), netStyle)

	gasRow := netRow + 3
	setCell(gasRow, 1, "Gas Fees (USD)")
	cell = setCell(gasRow, 2, totals.TotalGasFeesUSD.InexactFloat64())
	f.SetCellStyle(sheet, cell, cell, moneyStyle)
	setCell(gasRow+1, 1, "Gas Fees (CAD)")
	cell = setCell(gasRow+1, 2, totals.TotalGasFeesCAD.InexactFloat64())
	f.SetCellStyle(sheet, cell, cell, moneyStyle)

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freezing header row: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func moneyValue(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}

func ptr[T any](v T) *T { return &v }
