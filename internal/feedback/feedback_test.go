package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotguard/internal/ledger"
	"spotguard/internal/notify"
)

type fakeSource struct {
	stats     []ledger.StrategyStats
	exits     []ledger.Entry
	err       error
	statCalls int
}

func (f *fakeSource) StrategyStats(context.Context) ([]ledger.StrategyStats, error) {
	f.statCalls++
	return f.stats, f.err
}

func (f *fakeSource) Exits(_ context.Context, since time.Time) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range f.exits {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func stat(label string, count int, mean string) ledger.StrategyStats {
	return ledger.StrategyStats{Label: label, Count: count, MeanReturnPct: decimal.RequireFromString(mean)}
}

func TestPruneBlocksNegativeMean(t *testing.T) {
	src := &fakeSource{stats: []ledger.StrategyStats{
		stat("breakout_chase", 4, "-1.25"),
		stat("manual", 3, "2.5"),
		stat("flat", 2, "0"),
	}}
	bl := NewBlocklist()
	mem := &notify.Memory{}
	p := NewPruner(src, bl, mem, Config{})

	added := p.Prune(context.Background())
	assert.Equal(t, []string{"breakout_chase"}, added)
	assert.True(t, bl.IsBlocked("breakout_chase"))
	assert.False(t, bl.IsBlocked("manual"))
	assert.False(t, bl.IsBlocked("flat"))
	assert.Equal(t, 1, mem.Count("breakout_chase blocked"))
}

func TestPruneIsIdempotent(t *testing.T) {
	src := &fakeSource{stats: []ledger.StrategyStats{stat("a", 2, "-3"), stat("b", 1, "-0.1")}}
	bl := NewBlocklist()
	mem := &notify.Memory{}
	p := NewPruner(src, bl, mem, Config{})

	p.Prune(context.Background())
	first := bl.Labels()
	again := p.Prune(context.Background())

	assert.Empty(t, again)
	assert.Equal(t, first, bl.Labels())
	assert.Equal(t, []string{"a", "b"}, bl.Labels())
	assert.Len(t, mem.Snapshot(), 2)
}

func TestPruneRespectsMinSamples(t *testing.T) {
	src := &fakeSource{stats: []ledger.StrategyStats{stat("young", 2, "-5")}}
	bl := NewBlocklist()
	p := NewPruner(src, bl, nil, Config{MinSamples: 3})

	assert.Empty(t, p.Prune(context.Background()))
	assert.False(t, bl.IsBlocked("young"))
}

func TestPruneLedgerFailureIsNoop(t *testing.T) {
	src := &fakeSource{err: errors.New("no such file")}
	bl := NewBlocklist("existing")
	mem := &notify.Memory{}
	p := NewPruner(src, bl, mem, Config{})

	assert.NotPanics(t, func() { p.Prune(context.Background()) })
	assert.Equal(t, []string{"existing"}, bl.Labels())
	msgs := mem.Snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.LevelWarn, msgs[0].Level)
}

func TestNeverAutoUnblocks(t *testing.T) {
	src := &fakeSource{stats: []ledger.StrategyStats{stat("a", 5, "-1")}}
	bl := NewBlocklist()
	p := NewPruner(src, bl, nil, Config{})
	p.Prune(context.Background())

	src.stats = []ledger.StrategyStats{stat("a", 9, "4")}
	p.Prune(context.Background())
	assert.True(t, bl.IsBlocked("a"))
}

func TestUnblockOnlyCountsLaterExits(t *testing.T) {
	base := time.Unix(1700000000, 0)
	src := &fakeSource{
		stats: []ledger.StrategyStats{stat("a", 3, "-2")},
		exits: []ledger.Entry{
			{Kind: ledger.KindExit, StrategyLabel: "a", ReturnPct: decimal.NewFromInt(-6), Timestamp: base},
		},
	}
	bl := NewBlocklist()
	clock := base
	bl.now = func() time.Time { return clock }
	p := NewPruner(src, bl, nil, Config{})

	p.Prune(context.Background())
	require.True(t, bl.IsBlocked("a"))

	clock = base.Add(time.Hour)
	require.True(t, bl.Unblock("a"))
	assert.False(t, bl.Unblock("a"))

	p.Prune(context.Background())
	assert.False(t, bl.IsBlocked("a"))

	src.exits = append(src.exits, ledger.Entry{
		Kind: ledger.KindExit, StrategyLabel: "a", ReturnPct: decimal.NewFromInt(-1), Timestamp: base.Add(2 * time.Hour),
	})
	assert.Equal(t, []string{"a"}, p.Prune(context.Background()))
}

func TestBlocklistBasics(t *testing.T) {
	bl := NewBlocklist(" a ", "b", "")
	assert.Equal(t, []string{"a", "b"}, bl.Labels())
	assert.True(t, bl.IsBlocked("a"))
	assert.False(t, bl.Block("a"))
	assert.Equal(t, 2, bl.Len())
	_, ok := bl.UnblockedAt("a")
	assert.False(t, ok)
}
