package export

import (
	"github.com/shopspring/decimal"

	"github.com/brojonat/chainledger/service/fetch"
	"github.com/brojonat/chainledger/service/ledger"
)

// Row is a fetched transaction enriched with fiat values and its
// classification, ready to be written to a report.
type Row struct {
	fetch.LedgerRow

	TransactionType ledger.Category
	OverrideApplied bool

	USDValue  *decimal.Decimal
	CADValue  *decimal.Decimal
	GasFeeUSD *decimal.Decimal
	GasFeeCAD *decimal.Decimal
}

// directionDisplay maps wire directions to the report vocabulary.
func directionDisplay(d ledger.Direction) string {
	switch d {
	case ledger.DirectionIn:
		return "INCOMING"
	case ledger.DirectionOut:
		return "OUTGOING"
	default:
		return string(d)
	}
}

// enriched converts rows to the shape the totals calculator consumes.
func enriched(rows []*Row) []ledger.EnrichedTransaction {
	out := make([]ledger.EnrichedTransaction, len(rows))
	for i, r := range rows {
		out[i] = ledger.EnrichedTransaction{
			Transaction: r.Record(),
			Category:    r.TransactionType,
			USDValue:    r.USDValue,
			CADValue:    r.CADValue,
			GasFeeUSD:   r.GasFeeUSD,
			GasFeeCAD:   r.GasFeeCAD,
		}
	}
	return out
}
