package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tvlScope/internal/graph"
	"tvlScope/internal/indexer"
	"tvlScope/internal/model"
)

const (
	DefaultRPC     = "wss://eth.llamarpc.com"
	DefaultFactory = "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
	// DefaultAnchor is USDC on Ethereum mainnet.
	DefaultAnchor = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

// Cache backends.
const (
	CacheFile     = "file"
	CachePostgres = "postgres"
	CacheNone     = "none"
)

// Refresh selects which cached stages are refetched.
type Refresh struct {
	Pairs      bool
	Blocks     bool
	PairsInfo  bool
	TokensInfo bool
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL           string
	Factory          common.Address
	Anchor           common.Address
	RecentBlocks     uint64
	NumberOfPairs    int
	GraphMode        graph.Mode
	ActivitySource   indexer.ScanMode
	ActivityTopic0   []string
	BatchSize        uint64
	MaxRetries       int
	RetryBackoff     time.Duration
	Concurrency      int
	DecimalsFallback int
	TokenOverrides   map[common.Address]model.TokenOverride
	CacheBackend     string
	CacheDir         string
	Refresh          Refresh
	Out              string
	PGDSN            string
	ClickHouseDSN    string
	Pushgateway      string
	LogLevel         string
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("TVLSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", DefaultRPC)
	v.SetDefault("factory", DefaultFactory)
	v.SetDefault("anchor", DefaultAnchor)
	v.SetDefault("recent-blocks", uint64(10000))
	v.SetDefault("number-of-pairs", 25)
	v.SetDefault("graph-mode", string(graph.Hops))
	v.SetDefault("activity-source", string(indexer.ScanLogs))
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("concurrency", 16)
	v.SetDefault("decimals-fallback", 18)
	v.SetDefault("cache-backend", CacheFile)
	v.SetDefault("cache-dir", "./data")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if !common.IsHexAddress(v.GetString("factory")) {
		return Config{}, fmt.Errorf("invalid factory address %q", v.GetString("factory"))
	}
	if !common.IsHexAddress(v.GetString("anchor")) {
		return Config{}, fmt.Errorf("invalid anchor address %q", v.GetString("anchor"))
	}
	mode, err := graph.ParseMode(v.GetString("graph-mode"))
	if err != nil {
		return Config{}, err
	}
	source, err := indexer.ParseScanMode(v.GetString("activity-source"))
	if err != nil {
		return Config{}, err
	}
	overrides, err := loadOverrides(v)
	if err != nil {
		return Config{}, err
	}

	refreshAll := v.GetBool("refresh-all")
	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		Factory:          common.HexToAddress(v.GetString("factory")),
		Anchor:           common.HexToAddress(v.GetString("anchor")),
		RecentBlocks:     v.GetUint64("recent-blocks"),
		NumberOfPairs:    v.GetInt("number-of-pairs"),
		GraphMode:        mode,
		ActivitySource:   source,
		ActivityTopic0:   getStringSlice(v, "activity-topic0"),
		BatchSize:        v.GetUint64("batch-size"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		Concurrency:      v.GetInt("concurrency"),
		DecimalsFallback: v.GetInt("decimals-fallback"),
		TokenOverrides:   overrides,
		CacheBackend:     strings.ToLower(strings.TrimSpace(v.GetString("cache-backend"))),
		CacheDir:         v.GetString("cache-dir"),
		Refresh: Refresh{
			Pairs:      refreshAll || v.GetBool("refresh-pairs"),
			Blocks:     refreshAll || v.GetBool("refresh-blocks"),
			PairsInfo:  refreshAll || v.GetBool("refresh-pairs-info"),
			TokensInfo: refreshAll || v.GetBool("refresh-tokens-info"),
		},
		Out:           v.GetString("out"),
		PGDSN:         v.GetString("pg-dsn"),
		ClickHouseDSN: v.GetString("clickhouse-dsn"),
		Pushgateway:   v.GetString("pushgateway"),
		LogLevel:      v.GetString("log-level"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RecentBlocks == 0 {
		return fmt.Errorf("recent-blocks must be greater than zero")
	}
	if c.NumberOfPairs < 0 {
		return fmt.Errorf("number-of-pairs must not be negative")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch-size must be greater than zero")
	}
	if c.DecimalsFallback > 255 {
		return fmt.Errorf("decimals-fallback must be at most 255")
	}
	switch c.CacheBackend {
	case CacheFile, CacheNone:
	case CachePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("cache-backend postgres requires pg-dsn")
		}
	default:
		return fmt.Errorf("unknown cache-backend %q", c.CacheBackend)
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
