package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store 基于 gorm + sqlite 实现 Ledger。
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewStoreFromDB(db)
}

func NewStoreFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&EntryModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append 写入一条记录，缺省 ID 与时间戳会自动补齐。
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.Kind != KindEntry && e.Kind != KindExit {
		return fmt.Errorf("invalid ledger kind %q", e.Kind)
	}
	if strings.TrimSpace(e.Symbol) == "" {
		return fmt.Errorf("ledger entry requires symbol")
	}
	m := toModel(e)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// StrategyStats 聚合全部离场记录，按 label 排序返回。
func (s *Store) StrategyStats(ctx context.Context) ([]StrategyStats, error) {
	exits, err := s.Exits(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	return Aggregate(exits), nil
}

// Recent 返回最近 n 条记录，新的在前。
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	var rows []EntryModel
	q := s.db.WithContext(ctx).Order("timestamp DESC").Order("id DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query recent ledger: %w", err)
	}
	return fromModels(rows), nil
}

// Exits 返回 since 之后的离场记录，按时间升序。
func (s *Store) Exits(ctx context.Context, since time.Time) ([]Entry, error) {
	var rows []EntryModel
	q := s.db.WithContext(ctx).Where("kind = ?", string(KindExit))
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since.UnixMilli())
	}
	if err := q.Order("timestamp ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query ledger exits: %w", err)
	}
	return fromModels(rows), nil
}

// Between 返回 [from, to) 区间内的全部记录，按时间升序。
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]Entry, error) {
	var rows []EntryModel
	err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", from.UnixMilli(), to.UnixMilli()).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query ledger range: %w", err)
	}
	return fromModels(rows), nil
}

// Aggregate 从离场记录计算每个策略的样本数、胜负与平均收益。
func Aggregate(exits []Entry) []StrategyStats {
	type acc struct {
		stats StrategyStats
		sum   decimal.Decimal
	}
	byLabel := make(map[string]*acc)
	for _, e := range exits {
		if e.Kind != KindExit {
			continue
		}
		a, ok := byLabel[e.StrategyLabel]
		if !ok {
			a = &acc{stats: StrategyStats{Label: e.StrategyLabel}}
			byLabel[e.StrategyLabel] = a
		}
		a.stats.Count++
		a.sum = a.sum.Add(e.ReturnPct)
		switch {
		case e.ReturnPct.IsPositive():
			a.stats.Wins++
		case e.ReturnPct.IsNegative():
			a.stats.Losses++
		}
		if e.Timestamp.After(a.stats.LastExitAt) {
			a.stats.LastExitAt = e.Timestamp
		}
	}
	out := make([]StrategyStats, 0, len(byLabel))
	for _, a := range byLabel {
		a.stats.MeanReturnPct = a.sum.Div(decimal.NewFromInt(int64(a.stats.Count)))
		out = append(out, a.stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func toModel(e Entry) EntryModel {
	raw := datatypes.JSON(e.Raw)
	if len(raw) > 0 && !json.Valid(raw) {
		quoted, _ := json.Marshal(string(e.Raw))
		raw = datatypes.JSON(quoted)
	}
	return EntryModel{
		ID:            e.ID,
		TradeID:       e.TradeID,
		Timestamp:     e.Timestamp.UnixMilli(),
		Kind:          string(e.Kind),
		Symbol:        e.Symbol,
		EntryPrice:    e.EntryPrice,
		ExitPrice:     e.ExitPrice,
		Quantity:      e.Quantity,
		QuoteAmount:   e.QuoteAmount,
		StrategyLabel: e.StrategyLabel,
		Outcome:       string(e.Outcome),
		ReturnPct:     e.ReturnPct,
		Raw:           raw,
	}
}

func fromModels(rows []EntryModel) []Entry {
	out := make([]Entry, 0, len(rows))
	for _, m := range rows {
		out = append(out, Entry{
			ID:            m.ID,
			TradeID:       m.TradeID,
			Timestamp:     time.UnixMilli(m.Timestamp),
			Kind:          Kind(m.Kind),
			Symbol:        m.Symbol,
			EntryPrice:    m.EntryPrice,
			ExitPrice:     m.ExitPrice,
			Quantity:      m.Quantity,
			QuoteAmount:   m.QuoteAmount,
			StrategyLabel: m.StrategyLabel,
			Outcome:       Outcome(m.Outcome),
			ReturnPct:     m.ReturnPct,
			Raw:           []byte(m.Raw),
		})
	}
	return out
}
