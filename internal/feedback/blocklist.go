// Package feedback 根据账本的已实现收益屏蔽负期望策略。
package feedback

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Blocklist 是被屏蔽策略集合。入场只读，Pruner 与运维解封负责写入。
type Blocklist struct {
	mu        sync.RWMutex
	blocked   map[string]time.Time
	unblocked map[string]time.Time
	now       func() time.Time
}

func NewBlocklist(initial ...string) *Blocklist {
	b := &Blocklist{
		blocked:   make(map[string]time.Time),
		unblocked: make(map[string]time.Time),
		now:       time.Now,
	}
	for _, label := range initial {
		b.Block(label)
	}
	return b
}

func (b *Blocklist) IsBlocked(label string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blocked[normalize(label)]
	return ok
}

// Block 加入屏蔽集合，仅当此前未屏蔽时返回 true。
func (b *Blocklist) Block(label string) bool {
	label = normalize(label)
	if label == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blocked[label]; ok {
		return false
	}
	b.blocked[label] = b.now()
	return true
}

// Unblock 解除屏蔽并记录解封时间；此后 Pruner 只看解封之后的离场记录。
func (b *Blocklist) Unblock(label string) bool {
	label = normalize(label)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blocked[label]; !ok {
		return false
	}
	delete(b.blocked, label)
	b.unblocked[label] = b.now()
	return true
}

// UnblockedAt 返回最近一次解封时间。
func (b *Blocklist) UnblockedAt(label string) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	at, ok := b.unblocked[normalize(label)]
	return at, ok
}

// Labels 返回排序后的屏蔽列表。
func (b *Blocklist) Labels() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.blocked))
	for label := range b.blocked {
		out = append(out, label)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (b *Blocklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blocked)
}

func normalize(label string) string {
	return strings.TrimSpace(label)
}
