package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"spotguard/internal/logger"
)

// ErrOpen 表示熔断器处于打开状态，调用被直接拒绝。
var ErrOpen = errors.New("circuit breaker open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{StateClosed: "CLOSED", StateOpen: "OPEN", StateHalfOpen: "HALF-OPEN"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// CircuitBreaker 保护交易所与 LLM 调用：连续 threshold 次失败后打开，冷却期内拒绝调用，
// 冷却结束后放行一次探测，探测成功即恢复。
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu        sync.Mutex
	state     State
	streak    int
	openUntil time.Time
	probing   bool
	now       func() time.Time
	onChange  func(name string, from, to State)
}

func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		threshold: max(threshold, 1),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// SetStateChangeHandler 注册状态变化回调，回调在独立 goroutine 中执行。
func (cb *CircuitBreaker) SetStateChangeHandler(fn func(name string, from, to State)) {
	cb.mu.Lock()
	cb.onChange = fn
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	cb.mu.Lock()
	cb.now = now
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow 报告本次调用能否放行。半开状态同一时刻只放行一个探测。
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().After(cb.openUntil) {
		cb.setState(StateHalfOpen)
	}
	switch cb.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
	}
	return true
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.streak = 0
	cb.probing = false
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.streak++
	cb.probing = false
	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.streak >= cb.threshold) {
		cb.openUntil = cb.now().Add(cb.cooldown)
		cb.setState(StateOpen)
	}
}

// Do 在熔断器允许时执行 fn 并记录结果；ctx 取消不计为依赖失败。
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return ErrOpen
	}
	err := fn(ctx)
	switch {
	case err == nil:
		cb.RecordSuccess()
	case errors.Is(err, context.Canceled):
		cb.mu.Lock()
		cb.probing = false
		cb.mu.Unlock()
	default:
		cb.RecordFailure()
	}
	return err
}

// setState 需持有 mu。
func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if fn := cb.onChange; fn != nil {
		go fn(cb.name, from, to)
		return
	}
	logger.Warnf("circuit %s: %s -> %s (streak=%d/%d, cooldown=%s)",
		cb.name, from, to, cb.streak, cb.threshold, cb.cooldown)
}
