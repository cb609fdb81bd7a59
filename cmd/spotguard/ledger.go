package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"spotguard/internal/config"
	"spotguard/internal/feedback"
	"spotguard/internal/ledger"
	"spotguard/internal/notify"
)

func openLedger() (*config.Config, *ledger.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置失败: %w", err)
	}
	store, err := ledger.NewStore(cfg.Ledger.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Run one strategy pruning pass against the ledger and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			blocklist := feedback.NewBlocklist(cfg.Feedback.Blocked...)
			pruner := feedback.NewPruner(store, blocklist, notify.Nop{}, feedback.Config{MinSamples: cfg.Feedback.MinSamples})
			added := pruner.Prune(cmd.Context())
			out := cmd.OutOrStdout()
			if len(added) == 0 {
				fmt.Fprintln(out, "no new strategies blocked")
			} else {
				fmt.Fprintf(out, "newly blocked: %s\n", strings.Join(added, ", "))
			}
			fmt.Fprintf(out, "blocked: %s\n", listOrDash(blocklist.Labels()))
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print realised per-strategy statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.StrategyStats(cmd.Context())
			if err != nil {
				return err
			}
			return renderStats(cmd.OutOrStdout(), stats, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, yaml")
	return cmd
}

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and export the trade ledger",
	}

	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent ledger records",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	tail.Flags().IntVar(&limit, "limit", 20, "number of records")

	var month, from, to, outPath string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export ledger records as CSV (default: current month)",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := exportRange(month, from, to, time.Now())
			if err != nil {
				return err
			}
			_, store, err := openLedger()
			if err != nil {
				return err
			}
			defer store.Close()
			return exportCSV(cmd.Context(), store, start, end, outPath, cmd.OutOrStdout())
		},
	}
	export.Flags().StringVar(&month, "month", "", "calendar month YYYY-MM")
	export.Flags().StringVar(&from, "from", "", "start date YYYY-MM-DD (inclusive)")
	export.Flags().StringVar(&to, "to", "", "end date YYYY-MM-DD (exclusive)")
	export.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")

	cmd.AddCommand(tail, export)
	return cmd
}

// exportRange 解析导出区间：--from/--to 优先，其次 --month，默认 now 所在月。
func exportRange(month, from, to string, now time.Time) (time.Time, time.Time, error) {
	if from != "" || to != "" {
		if from == "" || to == "" {
			return time.Time{}, time.Time{}, fmt.Errorf("--from and --to must be used together")
		}
		start, err := time.ParseInLocation("2006-01-02", from, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q: %w", from, err)
		}
		end, err := time.ParseInLocation("2006-01-02", to, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q: %w", to, err)
		}
		if !end.After(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
		}
		return start, end, nil
	}
	if month != "" {
		t, err := time.ParseInLocation("2006-01", month, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --month %q: %w", month, err)
		}
		now = t
	}
	start, end := ledger.MonthRange(now)
	return start, end, nil
}

type rangeReader interface {
	Between(ctx context.Context, from, to time.Time) ([]ledger.Entry, error)
}

func exportCSV(ctx context.Context, src rangeReader, start, end time.Time, outPath string, stdout io.Writer) error {
	entries, err := src.Between(ctx, start, end)
	if err != nil {
		return err
	}
	w := stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := ledger.WriteCSV(w, entries); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if outPath != "" {
		fmt.Fprintf(stdout, "exported %d records (%s .. %s) to %s\n",
			len(entries), start.Format("2006-01-02"), end.Format("2006-01-02"), outPath)
	}
	return nil
}

func renderStats(w io.Writer, stats []ledger.StrategyStats, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(stats); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	if len(stats) == 0 {
		fmt.Fprintln(w, "no realised trades yet")
		return nil
	}
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Strategy", "Trades", "Wins", "Losses", "Mean %", "Last exit"}),
	)
	for _, s := range stats {
		last := "-"
		if !s.LastExitAt.IsZero() {
			last = s.LastExitAt.Local().Format("2006-01-02 15:04")
		}
		table.Append([]string{
			s.Label,
			fmt.Sprintf("%d", s.Count),
			fmt.Sprintf("%d", s.Wins),
			fmt.Sprintf("%d", s.Losses),
			s.MeanReturnPct.StringFixed(2),
			last,
		})
	}
	table.Render()
	return nil
}

func renderEntries(w io.Writer, entries []ledger.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "ledger is empty")
		return
	}
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Time", "Kind", "Symbol", "Strategy", "Outcome", "Entry", "Exit", "Return %"}),
	)
	for _, e := range entries {
		exit, ret := "-", "-"
		if e.Kind == ledger.KindExit {
			exit = e.ExitPrice.String()
			ret = e.ReturnPct.StringFixed(2)
		}
		table.Append([]string{
			e.Timestamp.Local().Format("01-02 15:04:05"),
			string(e.Kind),
			e.Symbol,
			e.StrategyLabel,
			string(e.Outcome),
			e.EntryPrice.String(),
			exit,
			ret,
		})
	}
	table.Render()
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
