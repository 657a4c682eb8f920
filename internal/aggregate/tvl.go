// Package aggregate computes anchor-denominated pair TVL and ranks pairs by it.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tvlScope/internal/model"
)

// Result is the output of ComputeTVL.
type Result struct {
	Pairs []model.PairTVL
	// Excluded counts pairs outside the anchor component.
	Excluded int
	// Sanitized counts non-finite values replaced by zero.
	Sanitized int
}

// ComputeTVL values every pair whose token0 is priced. Input order is preserved.
func ComputeTVL(pairs []model.Pair, prices model.PriceRecord, tokens map[common.Address]model.Token, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	res := &Result{Pairs: make([]model.PairTVL, 0, len(pairs))}
	for _, pair := range pairs {
		price0, ok := prices[pair.Token0]
		if !ok {
			res.Excluded++
			continue
		}
		price1, ok := prices[pair.Token1]
		if !ok {
			return nil, fmt.Errorf("pair %s: token1 %s has no price but token0 does", pair.Address.Hex(), pair.Token1.Hex())
		}

		dec0, err := knownDecimals(tokens, pair.Token0)
		if err != nil {
			return nil, fmt.Errorf("pair %s: %w", pair.Address.Hex(), err)
		}
		dec1, err := knownDecimals(tokens, pair.Token1)
		if err != nil {
			return nil, fmt.Errorf("pair %s: %w", pair.Address.Hex(), err)
		}

		label := pair.Label(tokens)
		value := price0*wholeUnits(pair.Reserve0, dec0) + price1*wholeUnits(pair.Reserve1, dec1)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			logger.Warn("non-finite tvl, using zero",
				zap.String("pair", pair.Address.Hex()),
				zap.String("label", label),
				zap.Float64("value", value),
				zap.String("reserve0", formatTokenAmount(pair.Reserve0, dec0)),
				zap.String("reserve1", formatTokenAmount(pair.Reserve1, dec1)),
			)
			value = 0
			res.Sanitized++
		}

		res.Pairs = append(res.Pairs, model.PairTVL{Pair: pair, Label: label, Value: value})
	}

	logger.Info("tvl computed",
		zap.Int("pairs", len(res.Pairs)),
		zap.Int("excluded", res.Excluded),
		zap.Int("sanitized", res.Sanitized),
	)
	return res, nil
}

// Rank orders tvls by value descending, keeping input order among equal values, and
// returns the first n. n <= 0 returns every pair.
func Rank(tvls []model.PairTVL, n int) []model.RankedPair {
	sorted := make([]model.PairTVL, len(tvls))
	copy(sorted, tvls)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}

	out := make([]model.RankedPair, 0, len(sorted))
	for i, tvl := range sorted {
		out = append(out, model.RankedPair{
			Rank:  i + 1,
			Label: tvl.Label,
			Value: tvl.Value,
			Pair:  tvl.Pair,
		})
	}
	return out
}

func knownDecimals(tokens map[common.Address]model.Token, addr common.Address) (uint8, error) {
	token, ok := tokens[addr]
	if !ok || !token.Decimals.Known() {
		return 0, fmt.Errorf("%w: %s", model.ErrUnknownDecimals, addr.Hex())
	}
	return token.Decimals.Value, nil
}
