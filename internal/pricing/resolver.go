// Package pricing derives anchor-denominated token prices from pair reserves.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tvlScope/internal/graph"
	"tvlScope/internal/model"
)

var (
	// ErrAnchorNotFound is returned when the anchor token is not a vertex of the graph.
	ErrAnchorNotFound = errors.New("anchor token not in liquidity graph")
	// ErrUnknownDecimals is returned when a token on a price path has no usable decimals.
	ErrUnknownDecimals = model.ErrUnknownDecimals
)

// Resolution is the output of Resolve.
type Resolution struct {
	Prices model.PriceRecord
	// Hops is the path length used for each priced token.
	Hops map[common.Address]int
	// Degenerate counts tokens priced 0 because a hop could not be evaluated.
	Degenerate int
}

// Resolve prices every token connected to anchor. pairs must be the slice the graph
// was built from, so that edge i is pairs[i]. Tokens outside the anchor's component
// get no entry.
func Resolve(g *graph.Graph, anchor common.Address, pairs []model.Pair, tokens map[common.Address]model.Token, logger *zap.Logger) (*Resolution, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if len(pairs) != g.EdgeCount() {
		return nil, fmt.Errorf("pair count %d does not match graph edges %d", len(pairs), g.EdgeCount())
	}

	source, ok := g.Vertex(anchor)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAnchorNotFound, anchor.Hex())
	}

	tree := g.ShortestPaths(source)
	res := &Resolution{
		Prices: make(model.PriceRecord),
		Hops:   make(map[common.Address]int),
	}

	for v := 0; v < g.VertexCount(); v++ {
		path, ok := tree.PathTo(v)
		if !ok {
			continue
		}
		token := g.Token(v)
		price, degenerate, err := priceAlong(g, path, pairs, tokens, logger)
		if err != nil {
			return nil, fmt.Errorf("price %s: %w", token.Hex(), err)
		}
		if degenerate {
			res.Degenerate++
		}
		res.Prices[token] = price
		res.Hops[token] = len(path.Edges)
	}

	logger.Info("prices resolved",
		zap.String("anchor", anchor.Hex()),
		zap.Int("component_size", g.ComponentSize(tree.Source())),
		zap.Int("priced", len(res.Prices)),
		zap.Int("unreachable", g.VertexCount()-len(res.Prices)),
		zap.Int("degenerate", res.Degenerate),
	)

	return res, nil
}

// priceAlong composes the exchange rates along path starting from 1 anchor unit.
func priceAlong(g *graph.Graph, path graph.Path, pairs []model.Pair, tokens map[common.Address]model.Token, logger *zap.Logger) (float64, bool, error) {
	price := 1.0
	for i, id := range path.Edges {
		pair := pairs[id]
		cur := g.Token(path.Vertices[i])
		next := g.Token(path.Vertices[i+1])

		curReserve, nextReserve := pair.Reserve0, pair.Reserve1
		if cur != pair.Token0 {
			curReserve, nextReserve = pair.Reserve1, pair.Reserve0
		}

		if isZero(nextReserve) {
			if isZero(curReserve) {
				logger.Warn("degenerate pair on price path: both reserves are zero",
					zap.String("pair", pair.Address.Hex()),
					zap.String("token", g.Token(path.Vertices[len(path.Vertices)-1]).Hex()),
				)
			} else {
				logger.Warn("degenerate pair on price path: reserve of next token is zero",
					zap.String("pair", pair.Address.Hex()),
					zap.String("next", next.Hex()),
					zap.String("token", g.Token(path.Vertices[len(path.Vertices)-1]).Hex()),
				)
			}
			return 0, true, nil
		}

		curDec, err := decimalsOf(tokens, cur)
		if err != nil {
			return 0, false, err
		}
		nextDec, err := decimalsOf(tokens, next)
		if err != nil {
			return 0, false, err
		}
		price *= hopRate(curReserve, nextReserve, curDec, nextDec)
		if math.IsNaN(price) || math.IsInf(price, 0) {
			logger.Warn("non-finite price on path, using zero",
				zap.String("pair", pair.Address.Hex()),
				zap.String("token", g.Token(path.Vertices[len(path.Vertices)-1]).Hex()),
			)
			return 0, true, nil
		}
	}
	return price, false, nil
}

// hopRate returns (cur/next) * 10^(nextDec-curDec) as a float.
func hopRate(curReserve, nextReserve *big.Int, curDec, nextDec uint8) float64 {
	num := new(big.Int).Mul(reserveOrZero(curReserve), pow10(nextDec))
	den := new(big.Int).Mul(nextReserve, pow10(curDec))
	rate, _ := new(big.Rat).SetFrac(num, den).Float64()
	return rate
}

func decimalsOf(tokens map[common.Address]model.Token, addr common.Address) (uint8, error) {
	token, ok := tokens[addr]
	if !ok || !token.Decimals.Known() {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDecimals, addr.Hex())
	}
	return token.Decimals.Value, nil
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

func reserveOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
