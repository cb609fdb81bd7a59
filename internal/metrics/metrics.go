// Package metrics 暴露风控引擎的 Prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spotguard"

// AdmissionDecisions 按结果统计入场决策，reason 为 accepted 或拒绝原因。
var AdmissionDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "admission",
		Name:      "decisions_total",
		Help:      "Admission decisions by strategy and reason",
	},
	[]string{"strategy", "reason"},
)

var AdmissionLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "admission",
		Name:      "evaluate_seconds",
		Help:      "Time spent in one admission evaluation",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30},
	},
)

// Exits 按退出原因统计已确认的平仓。
var Exits = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "exits_total",
		Help:      "Confirmed exits by strategy and reason",
	},
	[]string{"strategy", "reason"},
)

var ExitFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "exit_failures_total",
		Help:      "Exit orders that did not confirm a fill",
	},
	[]string{"symbol"},
)

var Reevaluations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "reevaluations_total",
		Help:      "Advisory re-evaluations by result (updated, unchanged, no_signal)",
	},
	[]string{"result"},
)

var RealizedReturn = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "realized_return_pct",
		Help:      "Realized return percentage per closed position",
		Buckets:   []float64{-10, -5, -3, -2, -1, 0, 1, 2, 3, 5, 10},
	},
	[]string{"strategy"},
)

var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "book",
		Name:      "open_positions",
		Help:      "Number of positions currently managed",
	},
)

var BlockedStrategies = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "feedback",
		Name:      "blocked_strategies",
		Help:      "Number of strategy labels currently blocked",
	},
)

var ScanCandidates = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "candidates_total",
		Help:      "Breakout candidates forwarded to admission",
	},
)

// TaskRuns 统计调度任务执行次数，result 为 ok / error / panic。
var TaskRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "task_runs_total",
		Help:      "Scheduled task runs by task and result",
	},
	[]string{"task", "result"},
)

var TaskDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "task_duration_seconds",
		Help:      "Duration of scheduled task runs",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"task"},
)

// BreakerState 记录熔断器状态（0=closed, 1=open, 2=half-open）。
var BreakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "circuit",
		Name:      "state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	},
	[]string{"name"},
)

// ObserveSince 记录从 start 起经过的秒数。
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
