package book

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	mu      sync.Mutex
	saved   [][]Position
	loaded  []Position
	loadErr error
	saveErr error
}

func (m *memPersister) Save(_ context.Context, positions []Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, positions)
	return m.saveErr
}

func (m *memPersister) Load(context.Context) ([]Position, error) {
	return m.loaded, m.loadErr
}

func (m *memPersister) last() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

func samplePosition(symbol string) Position {
	return Position{
		Symbol:         symbol,
		EntryPrice:     decimal.NewFromInt(100),
		Quantity:       decimal.NewFromInt(2),
		TakeProfitPct:  decimal.NewFromInt(5),
		StopLossPct:    decimal.NewFromInt(2),
		HighWaterPrice: decimal.NewFromInt(100),
		StrategyLabel:  "breakout_chase",
		CreatedAt:      time.Unix(1700000000, 0),
	}
}

func TestOpenRejectsDuplicateSymbol(t *testing.T) {
	b := New(nil)
	require.NoError(t, b.Open(samplePosition("btc/krw")))

	err := b.Open(samplePosition("BTC/KRW"))
	assert.True(t, errors.Is(err, ErrAlreadyOpen))
	assert.Equal(t, 1, b.Len())
	assert.True(t, b.Has("BTC/KRW"))
}

func TestOpenRequiresThresholds(t *testing.T) {
	b := New(nil)
	p := samplePosition("ETH/KRW")
	p.StopLossPct = decimal.Zero
	assert.Error(t, b.Open(p))
	assert.False(t, b.Has("ETH/KRW"))
}

func TestOpenLiftsHighWaterToEntry(t *testing.T) {
	b := New(nil)
	p := samplePosition("XRP/KRW")
	p.HighWaterPrice = decimal.NewFromInt(90)
	require.NoError(t, b.Open(p))

	got, ok := b.Get("XRP/KRW")
	require.True(t, ok)
	assert.True(t, got.HighWaterPrice.Equal(decimal.NewFromInt(100)))
}

func TestSnapshotIsCopy(t *testing.T) {
	b := New(nil)
	require.NoError(t, b.Open(samplePosition("SOL/KRW")))
	require.NoError(t, b.Open(samplePosition("ADA/KRW")))

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "ADA/KRW", snap[0].Symbol)
	snap[0].ReevaluationCount = 99

	got, _ := b.Get("ADA/KRW")
	assert.Equal(t, 0, got.ReevaluationCount)
}

func TestUpdateAndRemove(t *testing.T) {
	b := New(nil)
	require.NoError(t, b.Open(samplePosition("BTC/KRW")))

	updated, err := b.Update("BTC/KRW", func(p *Position) {
		p.HighWaterPrice = decimal.NewFromInt(110)
		p.ReevaluationCount++
	})
	require.NoError(t, err)
	assert.True(t, updated.HighWaterPrice.Equal(decimal.NewFromInt(110)))
	assert.Equal(t, 1, updated.ReevaluationCount)

	_, err = b.Update("DOGE/KRW", func(*Position) {})
	assert.True(t, errors.Is(err, ErrNotFound))

	removed, ok := b.Remove("BTC/KRW")
	require.True(t, ok)
	assert.Equal(t, 1, removed.ReevaluationCount)
	_, ok = b.Remove("BTC/KRW")
	assert.False(t, ok)
}

func TestPersistAfterEveryMutation(t *testing.T) {
	p := &memPersister{}
	b := New(p)

	require.NoError(t, b.Open(samplePosition("BTC/KRW")))
	assert.Len(t, p.last(), 1)

	_, err := b.Update("BTC/KRW", func(pos *Position) { pos.ExitFailures = 3 })
	require.NoError(t, err)
	assert.Equal(t, 3, p.last()[0].ExitFailures)

	b.Remove("BTC/KRW")
	assert.Empty(t, p.last())
	assert.Len(t, p.saved, 3)
}

func TestPersistFailureDoesNotRollBack(t *testing.T) {
	p := &memPersister{saveErr: errors.New("disk full")}
	b := New(p)
	require.NoError(t, b.Open(samplePosition("BTC/KRW")))
	assert.True(t, b.Has("BTC/KRW"))
}

func TestRestore(t *testing.T) {
	stale := samplePosition("eth/krw")
	stale.HighWaterPrice = decimal.NewFromInt(50)
	p := &memPersister{loaded: []Position{stale, {Symbol: " "}}}
	b := New(p)
	require.NoError(t, b.Open(samplePosition("BTC/KRW")))

	restored, err := b.Restore(context.Background())
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, "ETH/KRW", restored[0].Symbol)
	assert.True(t, restored[0].HighWaterPrice.Equal(decimal.NewFromInt(100)))
	assert.False(t, b.Has("BTC/KRW"))

	p.loadErr = errors.New("boom")
	_, err = b.Restore(context.Background())
	assert.Error(t, err)
}

func TestLockExcludesSameSymbol(t *testing.T) {
	b := New(nil)
	var inside int32
	var overlap int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := b.Lock("BTC/KRW")
			defer unlock()
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Zero(t, atomic.LoadInt32(&overlap))
	assert.Empty(t, b.locks.entries)
}

func TestLockDifferentSymbolsIndependent(t *testing.T) {
	b := New(nil)
	unlock := b.Lock("BTC/KRW")
	defer unlock()

	done := make(chan struct{})
	go func() {
		release := b.Lock("ETH/KRW")
		release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different symbol blocked")
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	b := New(nil)
	unlock := b.Lock("BTC/KRW")
	unlock()
	unlock()
	again := b.Lock("BTC/KRW")
	again()
}
