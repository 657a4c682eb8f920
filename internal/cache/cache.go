// Package cache persists intermediate pipeline stages so reruns can skip chain reads.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"tvlScope/internal/observability"
)

// Cache persists one opaque blob per stage name.
type Cache interface {
	Load(ctx context.Context, stage string) ([]byte, bool, error)
	Store(ctx context.Context, stage string, blob []byte) error
}

// Nop never hits and discards writes.
type Nop struct{}

func (Nop) Load(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Nop) Store(context.Context, string, []byte) error { return nil }

// Loader wires a Cache to metrics and logging.
type Loader struct {
	Cache   Cache
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// Stage returns the cached value for stage unless refresh is set or the entry is
// missing or unreadable, in which case fetch runs and its result is stored.
// Cache read and write errors are logged and never returned. The bool result
// reports whether fetch ran.
func Stage[T any](ctx context.Context, l Loader, stage string, refresh bool, fetch func(context.Context) (T, error)) (T, bool, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := l.Cache
	if c == nil {
		c = Nop{}
	}

	start := time.Now()
	defer l.Metrics.ObserveStage(stage, start)

	if !refresh {
		blob, ok, err := c.Load(ctx, stage)
		switch {
		case err != nil:
			l.Metrics.CacheResult(stage, "error")
			logger.Warn("cache load failed, refetching", zap.String("stage", stage), zap.Error(err))
		case ok:
			var value T
			if err := json.Unmarshal(blob, &value); err != nil {
				l.Metrics.CacheResult(stage, "error")
				logger.Warn("cache entry unreadable, refetching", zap.String("stage", stage), zap.Error(err))
				break
			}
			l.Metrics.CacheResult(stage, "hit")
			logger.Info("stage loaded from cache", zap.String("stage", stage))
			return value, false, nil
		default:
			l.Metrics.CacheResult(stage, "miss")
		}
	} else {
		l.Metrics.CacheResult(stage, "refresh")
	}

	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, true, err
	}

	blob, err := json.Marshal(value)
	if err != nil {
		logger.Warn("cache encode failed", zap.String("stage", stage), zap.Error(err))
		return value, true, nil
	}
	if err := c.Store(ctx, stage, blob); err != nil {
		logger.Warn("cache store failed", zap.String("stage", stage), zap.Error(err))
	}
	return value, true, nil
}
