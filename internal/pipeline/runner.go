// Package pipeline runs one ranking: discover pairs, keep the active ones, price
// every token against the anchor and rank pairs by value locked.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tvlScope/internal/activity"
	"tvlScope/internal/aggregate"
	"tvlScope/internal/cache"
	"tvlScope/internal/graph"
	"tvlScope/internal/model"
	"tvlScope/internal/observability"
	"tvlScope/internal/pricing"
	"tvlScope/internal/storage"
)

// Stage names used as cache keys.
const (
	StagePairs      = "pairs"
	StagePairsInfo  = "active_pairs_info"
	StageTokensInfo = "active_tokens_info"
)

// StageActivePairs is keyed by window so runs with different windows never share it.
func StageActivePairs(window uint64) string {
	return fmt.Sprintf("active_pairs_%d", window)
}

// DexSource reads factory, pair and token state from the chain.
type DexSource interface {
	FetchFactoryPairs(ctx context.Context) ([]common.Address, error)
	FetchPairsInfo(ctx context.Context, pairs []common.Address) (map[common.Address]model.Pair, error)
	FetchTokensInfo(ctx context.Context, tokens []common.Address) (map[common.Address]model.Token, error)
}

// ActivitySource reports contract emissions in the last window blocks.
type ActivitySource interface {
	FetchRecentActivity(ctx context.Context, window uint64) ([]model.ActivityEvent, error)
}

// Refresh forces a stage to be refetched. Refetching a stage refetches every later one.
type Refresh struct {
	Pairs      bool
	Blocks     bool
	PairsInfo  bool
	TokensInfo bool
}

type Config struct {
	ChainID uint64
	// BlockNumber is the block every chain read is pinned to. The snapshot records the
	// block its reserves were read at, which is older when pair info comes from cache.
	BlockNumber   uint64
	Anchor        common.Address
	RecentBlocks  uint64
	NumberOfPairs int
	GraphMode     graph.Mode
	Refresh       Refresh
	Overrides     map[common.Address]model.TokenOverride
}

// Runner wires the chain sources to the pricing engine.
type Runner struct {
	cfg      Config
	dex      DexSource
	activity ActivitySource
	loader   cache.Loader
	sink     storage.Sink
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewRunner(cfg Config, dex DexSource, activitySource ActivitySource, c cache.Cache, sink storage.Sink, metrics *observability.Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GraphMode == "" {
		cfg.GraphMode = graph.Hops
	}
	return &Runner{
		cfg:      cfg,
		dex:      dex,
		activity: activitySource,
		loader:   cache.Loader{Cache: c, Metrics: metrics, Logger: logger},
		sink:     sink,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes every stage and returns the snapshot handed to the sink.
func (r *Runner) Run(ctx context.Context) (snap *model.Snapshot, err error) {
	defer func() { r.metrics.RunFinished(err) }()

	refresh := r.cfg.Refresh

	factoryPairs, fetched, err := cache.Stage(ctx, r.loader, StagePairs, refresh.Pairs, r.dex.FetchFactoryPairs)
	if err != nil {
		return nil, fmt.Errorf("fetch factory pairs: %w", err)
	}
	r.logger.Info("factory pairs", zap.Int("count", len(factoryPairs)))
	cascade := fetched

	window := r.cfg.RecentBlocks
	active, fetched, err := cache.Stage(ctx, r.loader, StageActivePairs(window), cascade || refresh.Blocks,
		func(ctx context.Context) ([]model.ActivePair, error) {
			events, err := r.activity.FetchRecentActivity(ctx, window)
			if err != nil {
				return nil, err
			}
			return activity.FilterActive(factoryPairs, events, r.logger), nil
		})
	if err != nil {
		return nil, fmt.Errorf("filter active pairs: %w", err)
	}
	cascade = cascade || fetched

	fetchPairs := func(ctx context.Context) (pairsInfo, error) {
		byAddr, err := r.dex.FetchPairsInfo(ctx, activity.Addresses(active))
		if err != nil {
			return pairsInfo{}, err
		}
		ordered, err := orderPairs(active, byAddr)
		if err != nil {
			return pairsInfo{}, err
		}
		return pairsInfo{Block: r.cfg.BlockNumber, Pairs: ordered}, nil
	}
	info, fetched, err := cache.Stage(ctx, r.loader, StagePairsInfo, cascade || refresh.PairsInfo, fetchPairs)
	if err == nil && !fetched && !samePairs(info.Pairs, active) {
		r.logger.Warn("cached pair info does not match active pairs, refetching")
		info, fetched, err = cache.Stage(ctx, r.loader, StagePairsInfo, true, fetchPairs)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch pairs info: %w", err)
	}
	cascade = cascade || fetched
	pairs := withActivity(info.Pairs, active)
	if !fetched && info.Block != r.cfg.BlockNumber {
		r.logger.Info("using cached reserves",
			zap.Uint64("reserves_block", info.Block),
			zap.Uint64("head", r.cfg.BlockNumber),
		)
	}

	fetchTokens := func(ctx context.Context) (map[common.Address]model.Token, error) {
		return r.dex.FetchTokensInfo(ctx, tokensOf(pairs))
	}
	tokens, fetched, err := cache.Stage(ctx, r.loader, StageTokensInfo, cascade || refresh.TokensInfo, fetchTokens)
	if err == nil && !fetched && !coversTokens(tokens, pairs) {
		r.logger.Warn("cached token info does not cover active pairs, refetching")
		tokens, fetched, err = cache.Stage(ctx, r.loader, StageTokensInfo, true, fetchTokens)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch tokens info: %w", err)
	}
	if fetched {
		symbols, decimals := degradedTokens(tokens)
		r.metrics.FetchFailedN("symbol", symbols)
		r.metrics.FetchFailedN("decimals", decimals)
	}
	tokens = model.ApplyOverrides(tokens, r.cfg.Overrides)
	r.logger.Info("tokens ready", zap.Int("count", len(tokens)))

	start := time.Now()
	g, err := graph.Build(pairs, r.cfg.GraphMode)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	r.metrics.ObserveStage("graph", start)
	r.logger.Info("liquidity graph built",
		zap.String("mode", string(g.Mode())),
		zap.Int("vertices", g.VertexCount()),
		zap.Int("edges", g.EdgeCount()),
		zap.Int("components", g.ComponentCount()),
	)

	start = time.Now()
	res, err := pricing.Resolve(g, r.cfg.Anchor, pairs, tokens, r.logger)
	if err != nil {
		return nil, fmt.Errorf("resolve prices: %w", err)
	}
	r.metrics.ObserveStage("prices", start)

	start = time.Now()
	tvl, err := aggregate.ComputeTVL(pairs, res.Prices, tokens, r.logger)
	if err != nil {
		return nil, fmt.Errorf("compute tvl: %w", err)
	}
	ranked := aggregate.Rank(tvl.Pairs, r.cfg.NumberOfPairs)
	r.metrics.ObserveStage("tvl", start)

	snap = &model.Snapshot{
		GeneratedAt:  r.now().UTC(),
		ChainID:      r.cfg.ChainID,
		BlockNumber:  info.Block,
		Anchor:       r.cfg.Anchor,
		AnchorSymbol: tokens[r.cfg.Anchor].Symbol.String(),
		Mode:         string(g.Mode()),
		Pairs:        ranked,
		Prices:       priceList(res, tokens),
	}

	if r.metrics != nil {
		r.metrics.ActivePairs.Set(float64(len(active)))
		r.metrics.GraphVertices.Set(float64(g.VertexCount()))
		r.metrics.GraphEdges.Set(float64(g.EdgeCount()))
		r.metrics.PricedTokens.Set(float64(len(res.Prices)))
		r.metrics.DegeneratePaths.Set(float64(res.Degenerate))
		r.metrics.SanitizedTVL.Set(float64(tvl.Sanitized))
		if len(ranked) > 0 {
			r.metrics.TopTVL.Set(ranked[0].Value)
		}
	}

	if r.sink != nil {
		if err := r.sink.PutSnapshot(ctx, *snap); err != nil {
			return nil, fmt.Errorf("store snapshot: %w", err)
		}
	}

	r.logger.Info("ranking complete",
		zap.Int("ranked", len(ranked)),
		zap.Int("valued", len(tvl.Pairs)),
		zap.Int("excluded", tvl.Excluded),
	)
	return snap, nil
}

// pairsInfo is the cached pair state together with the block its reserves were read at.
type pairsInfo struct {
	Block uint64       `json:"block"`
	Pairs []model.Pair `json:"pairs"`
}

// orderPairs lists pairs in active order. Every active pair must have info.
func orderPairs(active []model.ActivePair, info map[common.Address]model.Pair) ([]model.Pair, error) {
	out := make([]model.Pair, 0, len(active))
	for _, a := range active {
		pair, ok := info[a.Address]
		if !ok {
			return nil, fmt.Errorf("no info for pair %s", a.Address.Hex())
		}
		out = append(out, pair)
	}
	return out, nil
}

func samePairs(pairs []model.Pair, active []model.ActivePair) bool {
	if len(pairs) != len(active) {
		return false
	}
	for i := range pairs {
		if pairs[i].Address != active[i].Address {
			return false
		}
	}
	return true
}

func coversTokens(tokens map[common.Address]model.Token, pairs []model.Pair) bool {
	for _, pair := range pairs {
		if _, ok := tokens[pair.Token0]; !ok {
			return false
		}
		if _, ok := tokens[pair.Token1]; !ok {
			return false
		}
	}
	return true
}

// degradedTokens counts tokens whose symbol or decimals call failed.
func degradedTokens(tokens map[common.Address]model.Token) (symbols, decimals int) {
	for _, token := range tokens {
		if token.Symbol.Status == model.StatusUnavailable {
			symbols++
		}
		if token.Decimals.Status == model.StatusDefaulted || token.Decimals.Status == model.StatusUnavailable {
			decimals++
		}
	}
	return symbols, decimals
}

func withActivity(pairs []model.Pair, active []model.ActivePair) []model.Pair {
	counts := make(map[common.Address]uint64, len(active))
	for _, a := range active {
		counts[a.Address] = a.Count
	}
	out := make([]model.Pair, len(pairs))
	for i, pair := range pairs {
		pair.Activity = counts[pair.Address]
		out[i] = pair
	}
	return out
}

// tokensOf returns the distinct tokens of pairs in first-seen order.
func tokensOf(pairs []model.Pair) []common.Address {
	seen := make(map[common.Address]struct{}, len(pairs)*2)
	out := make([]common.Address, 0, len(pairs)*2)
	for _, pair := range pairs {
		for _, t := range [2]common.Address{pair.Token0, pair.Token1} {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// priceList flattens prices sorted by hop count, then address.
func priceList(res *pricing.Resolution, tokens map[common.Address]model.Token) []model.TokenPrice {
	out := make([]model.TokenPrice, 0, len(res.Prices))
	for addr, price := range res.Prices {
		symbol := model.BadSymbol
		if token, ok := tokens[addr]; ok {
			symbol = token.Symbol.String()
		}
		out = append(out, model.TokenPrice{Token: addr, Symbol: symbol, Price: price, Hops: res.Hops[addr]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hops != out[j].Hops {
			return out[i].Hops < out[j].Hops
		}
		return out[i].Token.Cmp(out[j].Token) < 0
	})
	return out
}
