package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tvlScope/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "tvlscope",
		Short:        "Rank Uniswap V2 pairs by value locked",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	rankCmd := &cobra.Command{
		Use:   "rank",
		Short: "Price active tokens against the anchor and rank pairs by TVL",
		RunE:  runRank,
	}

	addChainFlags(rankCmd)
	rankCmd.Flags().String("anchor", config.DefaultAnchor, "anchor token every price is quoted in")
	rankCmd.Flags().IntP("number-of-pairs", "n", 25, "number of pairs to display, 0 shows all")
	rankCmd.Flags().String("graph-mode", "hops", "shortest path weight (hops, activity)")
	rankCmd.Flags().Int("decimals-fallback", 18, "decimals used when decimals() fails, -1 marks them unknown")
	rankCmd.Flags().StringSlice("token-override", nil, "token metadata overrides (address=SYMBOL[:decimals])")
	rankCmd.Flags().String("cache-backend", config.CacheFile, "stage cache backend (file, postgres, none)")
	rankCmd.Flags().String("cache-dir", "./data", "stage cache directory")
	rankCmd.Flags().Bool("refresh-pairs", false, "refetch the factory pair list")
	rankCmd.Flags().Bool("refresh-blocks", false, "rescan recent activity")
	rankCmd.Flags().BoolP("refresh-pairs-info", "r", false, "refetch pair tokens and reserves")
	rankCmd.Flags().Bool("refresh-tokens-info", false, "refetch token symbols and decimals")
	rankCmd.Flags().BoolP("refresh-all", "R", false, "refetch every stage")
	rankCmd.Flags().String("out", "", "append the ranking to this JSONL file")
	rankCmd.Flags().String("pg-dsn", "", "Postgres DSN for snapshots and the postgres cache backend")
	rankCmd.Flags().String("clickhouse-dsn", "", "ClickHouse DSN for snapshot history")
	rankCmd.Flags().String("pushgateway", "", "Prometheus Pushgateway URL")

	root.AddCommand(rankCmd)

	activityCmd := &cobra.Command{
		Use:   "activity",
		Short: "Scan recent blocks and write contract activity as JSONL",
		RunE:  runActivity,
	}

	addChainFlags(activityCmd)
	activityCmd.Flags().StringSlice("address", nil, "only keep these emitters (comma-separated)")
	activityCmd.Flags().String("out", "./data/activity.jsonl", "output JSONL path")

	root.AddCommand(activityCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", config.DefaultRPC, "Ethereum RPC URL")
	cmd.Flags().String("factory", config.DefaultFactory, "Uniswap V2 factory address")
	cmd.Flags().Uint64P("recent-blocks", "b", 10000, "blocks of recent activity that make a pair active")
	cmd.Flags().String("activity-source", "logs", "how activity is read (logs, receipts)")
	cmd.Flags().StringSlice("activity-topic0", nil, "only count these events, by topic0 or pair event name")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per eth_getLogs batch")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Int("concurrency", 16, "parallel RPC calls")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
