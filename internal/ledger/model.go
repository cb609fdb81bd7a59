package ledger

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// EntryModel maps to 'trade_ledger'. Decimal columns are stored as text to keep precision.
type EntryModel struct {
	ID            string          `gorm:"column:id;primaryKey;size:36"`
	TradeID       string          `gorm:"column:trade_id;index;size:36"`
	Timestamp     int64           `gorm:"column:timestamp;index"`
	Kind          string          `gorm:"column:kind;index;size:8"`
	Symbol        string          `gorm:"column:symbol;index;size:32"`
	EntryPrice    decimal.Decimal `gorm:"column:entry_price;type:text"`
	ExitPrice     decimal.Decimal `gorm:"column:exit_price;type:text"`
	Quantity      decimal.Decimal `gorm:"column:quantity;type:text"`
	QuoteAmount   decimal.Decimal `gorm:"column:quote_amount;type:text"`
	StrategyLabel string          `gorm:"column:strategy_label;index;size:64"`
	Outcome       string          `gorm:"column:outcome;size:16"`
	ReturnPct     decimal.Decimal `gorm:"column:return_pct;type:text"`
	Raw           datatypes.JSON  `gorm:"column:raw"`
}

func (EntryModel) TableName() string { return "trade_ledger" }
