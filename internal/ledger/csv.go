package ledger

import (
	"encoding/csv"
	"io"
	"time"
)

var csvHeader = []string{"timestamp", "kind", "symbol", "strategy", "outcome", "entry_price", "exit_price", "quantity", "quote_amount", "return_pct", "trade_id"}

// WriteCSV 按月度导出格式写出记录。
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.Timestamp.Format(time.RFC3339),
			string(e.Kind),
			e.Symbol,
			e.StrategyLabel,
			string(e.Outcome),
			e.EntryPrice.String(),
			e.ExitPrice.String(),
			e.Quantity.String(),
			e.QuoteAmount.String(),
			e.ReturnPct.StringFixed(4),
			e.TradeID,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// MonthRange 返回 t 所在自然月的 [start, end)。
func MonthRange(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}
