package apihttp

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"spotguard/internal/operator"
	"spotguard/internal/pkg/pct"
)

const (
	colorBackground  = "#060c1b"
	colorTextPrimary = "#eceff4"
	colorProfit      = "#34d399"
	colorLoss        = "#f87171"
	colorCount       = "#a78bfa"
)

// renderStrategyChart 按策略绘制平均收益与成交笔数，被屏蔽的策略在横轴上标注。
func renderStrategyChart(view operator.StrategiesView) ([]byte, error) {
	blocked := make(map[string]bool, len(view.Blocked))
	for _, label := range view.Blocked {
		blocked[label] = true
	}

	labels := make([]string, 0, len(view.Stats))
	returns := make([]opts.BarData, 0, len(view.Stats))
	counts := make([]opts.BarData, 0, len(view.Stats))
	for _, s := range view.Stats {
		name := s.Label
		if blocked[s.Label] {
			name += " (blocked)"
		}
		labels = append(labels, name)
		mean := pct.ToFloat(s.MeanReturnPct)
		color := colorProfit
		if mean < 0 {
			color = colorLoss
		}
		returns = append(returns, opts.BarData{Value: mean, ItemStyle: &opts.ItemStyle{Color: color}})
		counts = append(counts, opts.BarData{Value: s.Count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       "spotguard strategies",
			Theme:           types.ThemeWesteros,
			Width:           "1200px",
			Height:          "560px",
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      "Strategy performance",
			Subtitle:   fmt.Sprintf("%d strategies, %d blocked", len(view.Stats), len(view.Blocked)),
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
	)
	bar.SetXAxis(labels).
		AddSeries("mean return %", returns).
		AddSeries("trades", counts, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorCount}))

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		return nil, fmt.Errorf("render strategy chart: %w", err)
	}
	return buf.Bytes(), nil
}
