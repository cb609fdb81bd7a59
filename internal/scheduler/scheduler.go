// Package scheduler 以固定间隔运行周期任务。
//
// 每个任务锚定在启动时刻，按 anchor + k*interval 的固定时间点执行；
// 某次执行超时只会跳过错过的时间点，不会连环补跑，也就不会对失败的依赖形成热循环。
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"spotguard/internal/logger"
	"spotguard/internal/metrics"
)

type Task struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool
	Run            func(ctx context.Context) error
}

type Scheduler struct {
	tasks []Task
	nowFn func() time.Time
}

func New(tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks, nowFn: time.Now}
}

func (s *Scheduler) Add(t Task) {
	s.tasks = append(s.tasks, t)
}

// Tasks returns the registered task names.
func (s *Scheduler) Tasks() []string {
	out := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Name)
	}
	return out
}

// Run 阻塞直到 ctx 取消。任务错误只记录，不会终止其他任务。
func (s *Scheduler) Run(ctx context.Context) error {
	for _, t := range s.tasks {
		if t.Run == nil {
			return fmt.Errorf("scheduler: task %q has no run func", t.Name)
		}
		if t.Interval <= 0 {
			return fmt.Errorf("scheduler: task %q invalid interval=%s", t.Name, t.Interval)
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		g.Go(func() error {
			s.loop(gctx, t)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	anchor := s.nowFn()
	logger.Infof("scheduler[%s]: started interval=%s run_immediately=%v", t.Name, t.Interval, t.RunImmediately)
	if t.RunImmediately {
		s.execute(ctx, t)
	}
	for {
		next := nextFixedTimeAfter(anchor, t.Interval, s.nowFn())
		if !s.waitUntil(ctx, next) {
			logger.Infof("scheduler[%s]: ctx done, exit", t.Name)
			return
		}
		s.execute(ctx, t)
	}
}

// Execute 立即执行一次任务，供 CLI 的一次性命令复用同样的保护逻辑。
func Execute(ctx context.Context, t Task) error {
	return (&Scheduler{nowFn: time.Now}).execute(ctx, t)
}

func (s *Scheduler) execute(ctx context.Context, t Task) (err error) {
	start := s.nowFn()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("scheduler[%s]: panic: %v\n%s", t.Name, r, debug.Stack())
			metrics.TaskRuns.WithLabelValues(t.Name, "panic").Inc()
			err = fmt.Errorf("task %s panic: %v", t.Name, r)
		}
		metrics.TaskDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())
	}()
	if err = t.Run(ctx); err != nil {
		logger.Warnf("scheduler[%s]: run failed: %v", t.Name, err)
		metrics.TaskRuns.WithLabelValues(t.Name, "error").Inc()
		return err
	}
	metrics.TaskRuns.WithLabelValues(t.Name, "ok").Inc()
	return nil
}

func (s *Scheduler) waitUntil(ctx context.Context, target time.Time) bool {
	wait := target.Sub(s.nowFn())
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextFixedTimeAfter(anchor time.Time, interval time.Duration, now time.Time) time.Time {
	if interval <= 0 {
		return now
	}
	delta := now.Sub(anchor)
	if delta < 0 {
		return anchor
	}
	k := delta / interval
	return anchor.Add((k + 1) * interval)
}
