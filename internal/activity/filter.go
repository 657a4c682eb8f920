// Package activity selects the factory pairs that emitted events in the recent window.
package activity

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tvlScope/internal/model"
)

// FilterActive returns the candidates that appear as an emitter in events, in candidate
// order and without duplicates. Count is the total number of emissions seen for the pair.
func FilterActive(candidates []common.Address, events []model.ActivityEvent, logger *zap.Logger) []model.ActivePair {
	if logger == nil {
		logger = zap.NewNop()
	}

	counts := make(map[common.Address]uint64, len(events))
	for _, ev := range events {
		counts[ev.Emitter] += ev.Occurrences()
	}

	out := make([]model.ActivePair, 0)
	seen := make(map[common.Address]struct{}, len(candidates))
	duplicates := 0
	for _, addr := range candidates {
		if _, ok := seen[addr]; ok {
			duplicates++
			continue
		}
		seen[addr] = struct{}{}

		count, ok := counts[addr]
		if !ok {
			continue
		}
		out = append(out, model.ActivePair{Address: addr, Count: count})
	}

	if duplicates > 0 {
		logger.Debug("duplicate candidate pairs ignored", zap.Int("duplicates", duplicates))
	}
	logger.Info("active pairs selected",
		zap.Int("candidates", len(candidates)),
		zap.Int("emitters", len(counts)),
		zap.Int("active", len(out)),
	)

	return out
}

// Addresses returns the pair addresses of active in order.
func Addresses(active []model.ActivePair) []common.Address {
	out := make([]common.Address, 0, len(active))
	for _, p := range active {
		out = append(out, p.Address)
	}
	return out
}
