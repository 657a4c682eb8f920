package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tvlScope/internal/model"
	"tvlScope/internal/observability"
)

// ErrActivityUnavailable is returned when no part of the activity window could be read.
var ErrActivityUnavailable = errors.New("recent activity unavailable")

// ScanMode selects how emitters are discovered.
type ScanMode string

const (
	// ScanLogs uses eth_getLogs over block batches.
	ScanLogs ScanMode = "logs"
	// ScanReceipts walks every block and transaction receipt.
	ScanReceipts ScanMode = "receipts"
)

// ParseScanMode maps a config value to a ScanMode. Empty means ScanLogs.
func ParseScanMode(value string) (ScanMode, error) {
	switch ScanMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ScanLogs:
		return ScanLogs, nil
	case ScanReceipts:
		return ScanReceipts, nil
	default:
		return "", fmt.Errorf("unknown activity source %q", value)
	}
}

// ChainReader is the subset of chain access the scanner needs.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ScanConfig holds runtime settings for the activity scanner.
type ScanConfig struct {
	Mode         ScanMode
	Addresses    []common.Address
	Topic0       []common.Hash
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Concurrency  int
	// ToBlock ends the window. Zero means the latest block.
	ToBlock uint64
}

// ActivityScanner collects the contracts that emitted logs in the last N blocks.
type ActivityScanner struct {
	cfg     ScanConfig
	chain   ChainReader
	metrics *observability.Metrics
	logger  *zap.Logger
	seen    map[string]struct{}
	// last window read, for snapshot metadata
	lastTo uint64
}

// NewActivityScanner builds a scanner. metrics may be nil.
func NewActivityScanner(cfg ScanConfig, chainReader ChainReader, metrics *observability.Metrics, logger *zap.Logger) *ActivityScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = ScanLogs
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &ActivityScanner{
		cfg:     cfg,
		chain:   chainReader,
		metrics: metrics,
		logger:  logger,
		seen:    make(map[string]struct{}),
	}
}

// WindowEnd returns the last block of the most recent scan.
func (s *ActivityScanner) WindowEnd() uint64 { return s.lastTo }

// FetchRecentActivity returns one event per log emitted in the last window blocks.
// Individual batch, block or receipt failures are logged and skipped. If nothing in
// the window could be read the error wraps ErrActivityUnavailable.
func (s *ActivityScanner) FetchRecentActivity(ctx context.Context, window uint64) ([]model.ActivityEvent, error) {
	if s.chain == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if window == 0 {
		return nil, fmt.Errorf("activity window must be greater than zero")
	}

	to := s.cfg.ToBlock
	if to == 0 {
		var latest uint64
		err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			latest, err = s.chain.LatestBlockNumber(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: get latest block: %v", ErrActivityUnavailable, err)
		}
		to = latest
	}
	blocks, err := RecentRange(to, window)
	if err != nil {
		return nil, err
	}
	from := blocks.From
	s.lastTo = to
	s.seen = make(map[string]struct{})

	s.logger.Info("scan recent activity",
		zap.String("mode", string(s.cfg.Mode)),
		zap.Uint64("from", from),
		zap.Uint64("to", to),
	)

	switch s.cfg.Mode {
	case ScanLogs:
		return s.scanLogs(ctx, from, to)
	case ScanReceipts:
		return s.scanReceipts(ctx, from, to)
	default:
		return nil, fmt.Errorf("unknown activity source %q", s.cfg.Mode)
	}
}

func (s *ActivityScanner) scanLogs(ctx context.Context, from, to uint64) ([]model.ActivityEvent, error) {
	batchSize := s.cfg.BatchSize
	if batchSize == 0 {
		batchSize = 2000
	}
	ranges, err := SplitRange(from, to, batchSize)
	if err != nil {
		return nil, err
	}

	events := make([]model.ActivityEvent, 0)
	failed := 0
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		logs, err := s.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			s.metrics.FetchFailed("logs")
			s.logger.Warn("skip log batch", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
			continue
		}

		events = append(events, s.eventsFromLogs(logs)...)
		s.logger.Debug("batch complete", zap.Int("logs", len(logs)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	if failed == len(ranges) {
		return nil, fmt.Errorf("%w: all %d log batches failed", ErrActivityUnavailable, failed)
	}

	s.logger.Info("activity scanned", zap.Int("events", len(events)), zap.Int("failed_batches", failed))
	return events, nil
}

func (s *ActivityScanner) scanReceipts(ctx context.Context, from, to uint64) ([]model.ActivityEvent, error) {
	perBlock := make([][]model.ActivityEvent, to-from+1)
	var (
		mu           sync.Mutex
		blocksFailed int
		txRead       int
		txFailed     int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for number := from; number <= to; number++ {
		number := number
		g.Go(func() error {
			events, readTx, failedTx, err := s.blockActivity(gctx, number)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.metrics.FetchFailed("block")
				s.logger.Warn("skip block", zap.Uint64("block_number", number), zap.Error(err))
				mu.Lock()
				blocksFailed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			perBlock[number-from] = events
			txRead += readTx
			txFailed += failedTx
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := int(to - from + 1)
	if blocksFailed == total {
		return nil, fmt.Errorf("%w: all %d blocks failed", ErrActivityUnavailable, total)
	}
	if txRead == 0 && txFailed > 0 {
		return nil, fmt.Errorf("%w: all %d receipts failed", ErrActivityUnavailable, txFailed)
	}

	events := make([]model.ActivityEvent, 0)
	for _, blockEvents := range perBlock {
		events = append(events, blockEvents...)
	}

	s.logger.Info("activity scanned",
		zap.Int("events", len(events)),
		zap.Int("failed_blocks", blocksFailed),
		zap.Int("failed_receipts", txFailed),
	)
	return events, nil
}

// blockActivity returns the log emitters of one block and the number of receipts read and skipped.
func (s *ActivityScanner) blockActivity(ctx context.Context, number uint64) ([]model.ActivityEvent, int, int, error) {
	var block *types.Block
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		block, err = s.chain.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return nil, 0, 0, err
	}

	events := make([]model.ActivityEvent, 0)
	read, failed := 0, 0
	for _, tx := range block.Transactions() {
		var receipt *types.Receipt
		err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			receipt, err = s.chain.TransactionReceipt(ctx, tx.Hash())
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, read, failed, ctx.Err()
			}
			failed++
			s.metrics.FetchFailed("receipt")
			s.logger.Warn("skip receipt", zap.String("tx_hash", tx.Hash().Hex()), zap.Uint64("block_number", number), zap.Error(err))
			continue
		}
		read++
		for _, log := range receipt.Logs {
			if log == nil || !s.wanted(*log) {
				continue
			}
			events = append(events, model.ActivityEvent{
				Emitter:     log.Address,
				BlockNumber: number,
				TxHash:      tx.Hash(),
			})
		}
	}
	return events, read, failed, nil
}

func (s *ActivityScanner) eventsFromLogs(logs []types.Log) []model.ActivityEvent {
	events := make([]model.ActivityEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed || s.isDuplicate(log) {
			continue
		}
		events = append(events, model.ActivityEvent{
			Emitter:     log.Address,
			BlockNumber: log.BlockNumber,
			TxHash:      log.TxHash,
		})
	}
	return events
}

// wanted applies the address and topic0 filters that eth_getLogs applies server side.
func (s *ActivityScanner) wanted(log types.Log) bool {
	if len(s.cfg.Addresses) > 0 && !containsAddress(s.cfg.Addresses, log.Address) {
		return false
	}
	if len(s.cfg.Topic0) > 0 {
		if len(log.Topics) == 0 || !containsHash(s.cfg.Topic0, log.Topics[0]) {
			return false
		}
	}
	return true
}

func (s *ActivityScanner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = s.chain.FilterLogs(ctx, fromBlock, toBlock, s.cfg.Addresses, s.cfg.Topic0)
		if err != nil {
			s.logger.Debug("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (s *ActivityScanner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	return false
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, item := range list {
		if item == addr {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, hash common.Hash) bool {
	for _, item := range list {
		if item == hash {
			return true
		}
	}
	return false
}
