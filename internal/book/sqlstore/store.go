// Package sqlstore 用 sqlite 保存持仓快照，进程重启后据此恢复并与交易所余额对账。
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"spotguard/internal/book"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	symbol              TEXT PRIMARY KEY,
	trade_id            TEXT NOT NULL,
	entry_price         TEXT NOT NULL,
	quantity            TEXT NOT NULL,
	quote_spent         TEXT NOT NULL,
	strategy_label      TEXT NOT NULL,
	take_profit_pct     TEXT NOT NULL,
	stop_loss_pct       TEXT NOT NULL,
	high_water_price    TEXT NOT NULL,
	last_reevaluated_at INTEGER NOT NULL,
	reevaluation_count  INTEGER NOT NULL DEFAULT 0,
	exit_failures       INTEGER NOT NULL DEFAULT 0,
	created_at          INTEGER NOT NULL
);`

// Store 实现 book.Persister。
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库文件并建表。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("positions path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create positions table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save 以整表替换的方式写入快照。
func (s *Store) Save(ctx context.Context, positions []book.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear positions: %w", err)
	}
	for _, p := range positions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO positions (symbol, trade_id, entry_price, quantity, quote_spent, strategy_label,
				take_profit_pct, stop_loss_pct, high_water_price, last_reevaluated_at,
				reevaluation_count, exit_failures, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Symbol, p.TradeID, p.EntryPrice.String(), p.Quantity.String(), p.QuoteSpent.String(), p.StrategyLabel,
			p.TakeProfitPct.String(), p.StopLossPct.String(), p.HighWaterPrice.String(), millis(p.LastReevaluatedAt),
			p.ReevaluationCount, p.ExitFailures, millis(p.CreatedAt))
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert position %s: %w", p.Symbol, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Load(ctx context.Context) ([]book.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, trade_id, entry_price, quantity, quote_spent, strategy_label,
			take_profit_pct, stop_loss_pct, high_water_price, last_reevaluated_at,
			reevaluation_count, exit_failures, created_at
		FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []book.Position
	for rows.Next() {
		var (
			p                                    book.Position
			entry, qty, spent, tp, sl, highWater string
			reevaluatedAt, createdAt             int64
		)
		if err := rows.Scan(&p.Symbol, &p.TradeID, &entry, &qty, &spent, &p.StrategyLabel,
			&tp, &sl, &highWater, &reevaluatedAt, &p.ReevaluationCount, &p.ExitFailures, &createdAt); err != nil {
			return nil, err
		}
		fields := []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"entry_price", entry, &p.EntryPrice},
			{"quantity", qty, &p.Quantity},
			{"quote_spent", spent, &p.QuoteSpent},
			{"take_profit_pct", tp, &p.TakeProfitPct},
			{"stop_loss_pct", sl, &p.StopLossPct},
			{"high_water_price", highWater, &p.HighWaterPrice},
		}
		for _, f := range fields {
			v, err := decimal.NewFromString(f.raw)
			if err != nil {
				return nil, fmt.Errorf("position %s: bad %s %q: %w", p.Symbol, f.name, f.raw, err)
			}
			*f.dst = v
		}
		p.LastReevaluatedAt = fromMillis(reevaluatedAt)
		p.CreatedAt = fromMillis(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
