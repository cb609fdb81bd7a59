// Package book 持有所有未平仓位，是入场与生命周期共享的唯一可变状态。
//
// 读者只拿到拷贝出的快照；写入经由 Open/Update/Remove 串行化，
// 同一标的的"检查-下单-建仓"与"评估-平仓"由 Lock(symbol) 互斥。
package book

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"spotguard/internal/logger"
)

var (
	ErrAlreadyOpen = errors.New("position already open")
	ErrNotFound    = errors.New("position not found")
)

// Persister 在每次变更后接收完整快照，重启时提供恢复数据。
type Persister interface {
	Save(ctx context.Context, positions []Position) error
	Load(ctx context.Context) ([]Position, error)
}

type Book struct {
	mu        sync.RWMutex
	positions map[string]*Position

	locks     keyedMutex
	persister Persister
	saveMu    sync.Mutex
	timeout   time.Duration
}

func New(persister Persister) *Book {
	return &Book{
		positions: make(map[string]*Position),
		locks:     keyedMutex{entries: make(map[string]*lockEntry)},
		persister: persister,
		timeout:   5 * time.Second,
	}
}

// Lock 获取标的级互斥锁，返回的函数用于释放。
func (b *Book) Lock(symbol string) (unlock func()) {
	return b.locks.lock(key(symbol))
}

func (b *Book) Has(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.positions[key(symbol)]
	return ok
}

func (b *Book) Get(symbol string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[key(symbol)]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// Snapshot 返回按标的排序的持仓拷贝。
func (b *Book) Snapshot() []Position {
	b.mu.RLock()
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Open 登记新仓位；同一标的已有仓位时返回 ErrAlreadyOpen。
func (b *Book) Open(pos Position) error {
	k := key(pos.Symbol)
	if k == "" {
		return fmt.Errorf("position symbol cannot be empty")
	}
	if !pos.TakeProfitPct.IsPositive() || !pos.StopLossPct.IsPositive() {
		return fmt.Errorf("position %s requires positive take-profit and stop-loss", k)
	}
	pos.Symbol = k
	pos.normalize()

	b.mu.Lock()
	if _, ok := b.positions[k]; ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyOpen, k)
	}
	cp := pos
	b.positions[k] = &cp
	b.mu.Unlock()

	b.persist()
	return nil
}

// Update 在写锁内修改仓位并返回修改后的拷贝。
func (b *Book) Update(symbol string, fn func(*Position)) (Position, error) {
	k := key(symbol)
	b.mu.Lock()
	p, ok := b.positions[k]
	if !ok {
		b.mu.Unlock()
		return Position{}, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	cp := *p
	fn(&cp)
	cp.Symbol = k
	cp.normalize()
	*p = cp
	b.mu.Unlock()

	b.persist()
	return cp, nil
}

// Remove 删除仓位，返回被删除的拷贝。
func (b *Book) Remove(symbol string) (Position, bool) {
	k := key(symbol)
	b.mu.Lock()
	p, ok := b.positions[k]
	if ok {
		delete(b.positions, k)
	}
	b.mu.Unlock()
	if !ok {
		return Position{}, false
	}
	b.persist()
	return *p, true
}

// Restore 从持久层加载仓位，替换当前内容，不会回写。
func (b *Book) Restore(ctx context.Context) ([]Position, error) {
	if b.persister == nil {
		return nil, nil
	}
	loaded, err := b.persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	next := make(map[string]*Position, len(loaded))
	for _, p := range loaded {
		k := key(p.Symbol)
		if k == "" {
			continue
		}
		p.Symbol = k
		p.normalize()
		cp := p
		next[k] = &cp
	}
	b.mu.Lock()
	b.positions = next
	b.mu.Unlock()
	return b.Snapshot(), nil
}

func (b *Book) persist() {
	if b.persister == nil {
		return
	}
	// 串行保存，避免旧快照覆盖新快照
	b.saveMu.Lock()
	defer b.saveMu.Unlock()
	snap := b.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.persister.Save(ctx, snap); err != nil {
		logger.Warnf("book: persist %d positions failed: %v", len(snap), err)
	}
}

func key(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func (k *keyedMutex) lock(name string) func() {
	k.mu.Lock()
	e, ok := k.entries[name]
	if !ok {
		e = &lockEntry{}
		k.entries[name] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.entries, name)
			}
			k.mu.Unlock()
		})
	}
}
