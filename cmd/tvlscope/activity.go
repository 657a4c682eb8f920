package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tvlScope/internal/chain"
	"tvlScope/internal/config"
	"tvlScope/internal/indexer"
	"tvlScope/internal/storage"
)

func runActivity(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}

	addrFlag, _ := cmd.Flags().GetStringSlice("address")
	addresses, err := indexer.ParseAddresses(addrFlag)
	if err != nil {
		return err
	}
	topic0, err := indexer.ParseTopic0(cfg.ActivityTopic0)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	scanner := indexer.NewActivityScanner(indexer.ScanConfig{
		Mode:         cfg.ActivitySource,
		Addresses:    addresses,
		Topic0:       topic0,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Concurrency:  cfg.Concurrency,
	}, chainClient, nil, logger)

	logger.Info("activity start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("recent_blocks", cfg.RecentBlocks),
		zap.String("activity_source", string(cfg.ActivitySource)),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.String("out", cfg.Out),
	)

	events, err := scanner.FetchRecentActivity(ctx, cfg.RecentBlocks)
	if err != nil {
		return err
	}
	if err := storage.NewJsonlStorage(cfg.Out).PutActivityBatch(events); err != nil {
		return err
	}

	logger.Info("activity written",
		zap.Int("events", len(events)),
		zap.Uint64("window_end", scanner.WindowEnd()),
	)
	return nil
}
