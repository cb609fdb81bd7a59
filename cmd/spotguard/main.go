package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"spotguard/internal/app"
	"spotguard/internal/config"
	"spotguard/internal/logger"
)

var version = "dev"

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "spotguard",
		Short: "Position risk engine for spot crypto with LLM advisory",
		Long: `spotguard admits breakout entries through an LLM advisory gate, manages
open positions with take-profit, stop-loss and trailing exits, and prunes
strategies whose realised returns turn negative.

Examples:
  spotguard run --config configs/spotguard.yaml
  spotguard stats --format yaml
  spotguard ledger export --month 2026-09 --out trades.csv`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "config file path (env SPOTGUARD_CONFIG)")

	rootCmd.AddCommand(
		newRunCmd(),
		newPruneCmd(),
		newStatsCmd(),
		newLedgerCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("SPOTGUARD_CONFIG")); p != "" {
		return p
	}
	return "configs/spotguard.yaml"
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the engine: position monitor, scanner, pruner and operator surfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("读取配置失败: %w", err)
			}
			logFile, err := setupLogOutput(cfg.App.LogPath)
			if err != nil {
				return fmt.Errorf("初始化日志文件失败: %w", err)
			}
			if logFile != nil {
				defer logFile.Close()
			}
			logger.SetAdvisoryWriter(nil)
			if cfg.App.AdvisoryDump {
				f, err := setupAdvisoryLogOutput(cfg.App.AdvisoryLog)
				if err != nil {
					return fmt.Errorf("初始化建议日志失败: %w", err)
				}
				if f != nil {
					defer f.Close()
				}
			}
			logger.SetLevel(cfg.App.LogLevel)
			logger.Infof("✓ 配置加载成功（环境=%s，交易所=%s）", cfg.App.Env, cfg.Exchange.Venue)

			a, err := app.NewApp(cfg)
			if err != nil {
				return fmt.Errorf("初始化应用失败: %w", err)
			}
			defer a.Close()

			if err := config.Watch(cfgPath, a.ApplyConfig); err != nil {
				logger.Warnf("config watch disabled: %v", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := a.Run(ctx); err != nil {
				return fmt.Errorf("运行失败: %w", err)
			}
			logger.Infof("spotguard stopped")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "spotguard", version)
		},
	}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func setupAdvisoryLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetAdvisoryWriter(f)
	return f, nil
}
