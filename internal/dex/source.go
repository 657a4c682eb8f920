package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tvlScope/internal/model"
)

// SourceConfig controls on-chain metadata reads.
type SourceConfig struct {
	Factory     common.Address
	Concurrency int
	// DecimalsFallback is used when decimals() fails. StrictDecimals disables it.
	DecimalsFallback int
	// BlockNumber pins every read to one block. Nil reads latest.
	BlockNumber *big.Int
}

// Source reads Uniswap V2 factory, pair and token state through eth_call.
type Source struct {
	cfg    SourceConfig
	caller Caller
	logger *zap.Logger
}

func NewSource(cfg SourceConfig, caller Caller, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{cfg: cfg, caller: caller, logger: logger}
}

func (s *Source) concurrency() int {
	if s.cfg.Concurrency <= 0 {
		return 1
	}
	return s.cfg.Concurrency
}

// FetchFactoryPairs enumerates allPairs(0..allPairsLength-1) in factory order.
func (s *Source) FetchFactoryPairs(ctx context.Context) ([]common.Address, error) {
	if s.caller == nil {
		return nil, fmt.Errorf("caller is nil")
	}
	parsed, err := V2FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}

	values, err := call(ctx, s.caller, s.cfg.Factory, parsed, "allPairsLength", s.cfg.BlockNumber)
	if err != nil {
		return nil, err
	}
	length, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("allPairsLength: %w", err)
	}
	if !length.IsInt64() {
		return nil, fmt.Errorf("allPairsLength out of range: %s", length)
	}
	total := int(length.Int64())

	s.logger.Info("enumerate factory pairs", zap.String("factory", s.cfg.Factory.Hex()), zap.Int("pairs", total))

	out := make([]common.Address, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i := 0; i < total; i++ {
		i := i
		g.Go(func() error {
			values, err := call(gctx, s.caller, s.cfg.Factory, parsed, "allPairs", s.cfg.BlockNumber, big.NewInt(int64(i)))
			if err != nil {
				return fmt.Errorf("allPairs(%d): %w", i, err)
			}
			addr, err := asAddress(values[0])
			if err != nil {
				return fmt.Errorf("allPairs(%d): %w", i, err)
			}
			out[i] = addr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchPairsInfo reads token0, token1 and reserves for each pair. Any failure is fatal.
func (s *Source) FetchPairsInfo(ctx context.Context, pairs []common.Address) (map[common.Address]model.Pair, error) {
	if s.caller == nil {
		return nil, fmt.Errorf("caller is nil")
	}
	parsed, err := V2PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}

	out := make(map[common.Address]model.Pair, len(pairs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for _, addr := range pairs {
		addr := addr
		g.Go(func() error {
			pair, err := s.fetchPair(gctx, parsed, addr)
			if err != nil {
				return fmt.Errorf("pair %s: %w", addr.Hex(), err)
			}
			mu.Lock()
			out[addr] = pair
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("pairs info fetched", zap.Int("pairs", len(out)))
	return out, nil
}

func (s *Source) fetchPair(ctx context.Context, parsed abi.ABI, addr common.Address) (model.Pair, error) {
	pair := model.Pair{Address: addr}

	values, err := call(ctx, s.caller, addr, parsed, "token0", s.cfg.BlockNumber)
	if err != nil {
		return pair, err
	}
	if pair.Token0, err = asAddress(values[0]); err != nil {
		return pair, fmt.Errorf("token0: %w", err)
	}

	values, err = call(ctx, s.caller, addr, parsed, "token1", s.cfg.BlockNumber)
	if err != nil {
		return pair, err
	}
	if pair.Token1, err = asAddress(values[0]); err != nil {
		return pair, fmt.Errorf("token1: %w", err)
	}

	values, err = call(ctx, s.caller, addr, parsed, "getReserves", s.cfg.BlockNumber)
	if err != nil {
		return pair, err
	}
	if len(values) < 2 {
		return pair, fmt.Errorf("getReserves returned %d values", len(values))
	}
	if pair.Reserve0, err = asBigInt(values[0]); err != nil {
		return pair, fmt.Errorf("reserve0: %w", err)
	}
	if pair.Reserve1, err = asBigInt(values[1]); err != nil {
		return pair, fmt.Errorf("reserve1: %w", err)
	}

	return pair, nil
}
