package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFixedTimeAfter(t *testing.T) {
	anchor := time.Unix(1000, 0)
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{anchor.Add(-time.Second), anchor},
		{anchor, anchor.Add(10 * time.Second)},
		{anchor.Add(3 * time.Second), anchor.Add(10 * time.Second)},
		{anchor.Add(10 * time.Second), anchor.Add(20 * time.Second)},
		// 执行超时后跳过错过的时间点
		{anchor.Add(47 * time.Second), anchor.Add(50 * time.Second)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, nextFixedTimeAfter(anchor, 10*time.Second, tc.now))
	}
}

func TestRunImmediatelyAndRepeats(t *testing.T) {
	var runs int32
	s := New(Task{
		Name:           "tick",
		Interval:       10 * time.Millisecond,
		RunImmediately: true,
		Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	got := atomic.LoadInt32(&runs)
	assert.GreaterOrEqual(t, got, int32(3))
	assert.LessOrEqual(t, got, int32(9))
}

func TestFailingTaskKeepsSchedule(t *testing.T) {
	var failing, healthy int32
	s := New(
		Task{Name: "failing", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
			atomic.AddInt32(&failing, 1)
			return errors.New("dependency down")
		}},
		Task{Name: "panicky", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
			panic("boom")
		}},
		Task{Name: "healthy", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
			atomic.AddInt32(&healthy, 1)
			return nil
		}},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	assert.Greater(t, atomic.LoadInt32(&failing), int32(1))
	assert.Greater(t, atomic.LoadInt32(&healthy), int32(1))
	// 失败不会立即重试
	assert.LessOrEqual(t, atomic.LoadInt32(&failing), int32(7))
}

func TestRunRejectsInvalidTask(t *testing.T) {
	err := New(Task{Name: "bad", Interval: 0, Run: func(context.Context) error { return nil }}).Run(context.Background())
	assert.Error(t, err)

	err = New(Task{Name: "nil", Interval: time.Second}).Run(context.Background())
	assert.Error(t, err)
}

func TestExecuteRecoversPanic(t *testing.T) {
	err := Execute(context.Background(), Task{Name: "once", Run: func(context.Context) error { panic("x") }})
	assert.Error(t, err)

	err = Execute(context.Background(), Task{Name: "once", Run: func(context.Context) error { return nil }})
	assert.NoError(t, err)
}

func TestTasks(t *testing.T) {
	s := New(Task{Name: "a"})
	s.Add(Task{Name: "b"})
	assert.Equal(t, []string{"a", "b"}, s.Tasks())
}
