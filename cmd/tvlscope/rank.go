package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tvlScope/internal/cache"
	"tvlScope/internal/chain"
	"tvlScope/internal/config"
	"tvlScope/internal/dex"
	"tvlScope/internal/indexer"
	"tvlScope/internal/model"
	"tvlScope/internal/observability"
	"tvlScope/internal/pipeline"
	"tvlScope/internal/report"
	"tvlScope/internal/storage"
	"tvlScope/internal/storage/clickhouse"
	"tvlScope/internal/storage/postgres"
)

func runRank(cmd *cobra.Command, _ []string) error {
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

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	head, err := chainClient.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}

	metrics := observability.NewMetrics("tvlscope")

	var pgStore *postgres.Store
	if cfg.PGDSN != "" {
		pgStore, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		if err := pgStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}

	var sinks storage.Multi
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if pgStore != nil {
		sinks = append(sinks, pgStore)
	}
	if cfg.ClickHouseDSN != "" {
		chStore, err := clickhouse.NewStore(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("connect clickhouse: %w", err)
		}
		defer chStore.Close()
		if err := chStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		sinks = append(sinks, chStore)
	}

	namespace := fmt.Sprintf("%s-%s", chainID.String(), strings.ToLower(cfg.Factory.Hex()))
	var stageCache cache.Cache
	switch cfg.CacheBackend {
	case config.CacheFile:
		stageCache = &cache.FileCache{Dir: filepath.Join(cfg.CacheDir, namespace)}
	case config.CachePostgres:
		stageCache = &cache.DBCache{Stages: pgStore, Namespace: namespace}
	default:
		stageCache = cache.Nop{}
	}

	source := dex.NewSource(dex.SourceConfig{
		Factory:          cfg.Factory,
		Concurrency:      cfg.Concurrency,
		DecimalsFallback: cfg.DecimalsFallback,
		BlockNumber:      new(big.Int).SetUint64(head),
	}, chainClient, logger)

	scanner := indexer.NewActivityScanner(indexer.ScanConfig{
		Mode:         cfg.ActivitySource,
		Topic0:       topic0,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Concurrency:  cfg.Concurrency,
		ToBlock:      head,
	}, chainClient, metrics, logger)

	runner := pipeline.NewRunner(pipeline.Config{
		ChainID:       chainID.Uint64(),
		BlockNumber:   head,
		Anchor:        cfg.Anchor,
		RecentBlocks:  cfg.RecentBlocks,
		NumberOfPairs: cfg.NumberOfPairs,
		GraphMode:     cfg.GraphMode,
		Refresh:       pipeline.Refresh(cfg.Refresh),
		Overrides:     cfg.TokenOverrides,
	}, source, scanner, stageCache, sinks, metrics, logger)

	logger.Info("rank start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("chain_id", chainID.Uint64()),
		zap.Uint64("block", head),
		zap.String("factory", cfg.Factory.Hex()),
		zap.String("anchor", cfg.Anchor.Hex()),
		zap.Uint64("recent_blocks", cfg.RecentBlocks),
		zap.String("graph_mode", string(cfg.GraphMode)),
		zap.String("activity_source", string(cfg.ActivitySource)),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Int("sinks", len(sinks)),
	)

	snap, runErr := runner.Run(ctx)
	if err := metrics.Push(ctx, cfg.Pushgateway, "tvlscope_rank"); err != nil {
		logger.Warn("push metrics failed", zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	if pgStore != nil {
		if err := pgStore.UpsertPairs(ctx, snap.ChainID, rankedPairs(snap.Pairs)); err != nil {
			logger.Warn("upsert pairs failed", zap.Error(err))
		}
	}

	return report.Render(cmd.OutOrStdout(), snap.Pairs, snap.AnchorSymbol)
}

func rankedPairs(ranked []model.RankedPair) []model.Pair {
	out := make([]model.Pair, 0, len(ranked))
	for _, p := range ranked {
		out = append(out, p.Pair)
	}
	return out
}
