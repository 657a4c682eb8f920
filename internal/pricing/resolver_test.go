package pricing

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tvlScope/internal/graph"
	"tvlScope/internal/model"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	wbtc = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	lone = common.HexToAddress("0x1111111111111111111111111111111111111111")
	also = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func amount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func token(addr common.Address, sym string, dec uint8) model.Token {
	return model.Token{Address: addr, Symbol: model.FetchedSymbol(sym), Decimals: model.FetchedDecimals(dec)}
}

func tokenTable(list ...model.Token) map[common.Address]model.Token {
	out := make(map[common.Address]model.Token, len(list))
	for _, t := range list {
		out[t.Address] = t
	}
	return out
}

func pairOf(n int64, t0, t1 common.Address, r0, r1 string) model.Pair {
	return model.Pair{
		Address:  common.BigToAddress(big.NewInt(0xbeef00 + n)),
		Token0:   t0,
		Token1:   t1,
		Reserve0: amount(r0),
		Reserve1: amount(r1),
		Activity: 1,
	}
}

func resolve(t *testing.T, pairs []model.Pair, tokens map[common.Address]model.Token) (*Resolution, *observer.ObservedLogs) {
	t.Helper()
	g, err := graph.Build(pairs, graph.Hops)
	require.NoError(t, err)
	core, logs := observer.New(zapcore.WarnLevel)
	res, err := Resolve(g, usdc, pairs, tokens, zap.New(core))
	require.NoError(t, err)
	return res, logs
}

func TestResolveComposesPath(t *testing.T) {
	pairs := []model.Pair{
		// 2,000,000 USDC against 1,000 WETH: 2000 USDC per WETH.
		pairOf(0, usdc, weth, "2000000000000", "1000000000000000000000"),
		// 5 WBTC against 100 WETH: 20 WETH per WBTC.
		pairOf(1, wbtc, weth, "500000000", "100000000000000000000"),
	}
	tokens := tokenTable(token(usdc, "USDC", 6), token(weth, "WETH", 18), token(wbtc, "WBTC", 8))

	res, logs := resolve(t, pairs, tokens)

	assert.Equal(t, 1.0, res.Prices[usdc])
	assert.InDelta(t, 2000.0, res.Prices[weth], 1e-9)
	assert.InDelta(t, 40000.0, res.Prices[wbtc], 1e-6)
	assert.Equal(t, 0, res.Hops[usdc])
	assert.Equal(t, 2, res.Hops[wbtc])
	assert.Zero(t, res.Degenerate)
	assert.Zero(t, logs.Len())
}

func TestResolveEqualDecimalsUnitFactor(t *testing.T) {
	pairs := []model.Pair{pairOf(0, dai, usdc, "1000", "1000")}
	tokens := tokenTable(token(usdc, "USDC", 6), token(dai, "DAI", 6))

	res, _ := resolve(t, pairs, tokens)
	assert.Equal(t, 1.0, res.Prices[dai])
}

func TestResolveDegeneratePool(t *testing.T) {
	pairs := []model.Pair{
		pairOf(0, usdc, weth, "0", "0"),
		pairOf(1, weth, wbtc, "100", "100"),
	}
	tokens := tokenTable(token(usdc, "USDC", 6), token(weth, "WETH", 18), token(wbtc, "WBTC", 8))

	res, logs := resolve(t, pairs, tokens)

	assert.Equal(t, 0.0, res.Prices[weth])
	assert.Equal(t, 0.0, res.Prices[wbtc])
	assert.Equal(t, 2, res.Degenerate)
	require.Equal(t, 2, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "both reserves are zero")
}

func TestResolveOneSidedDegeneracy(t *testing.T) {
	pairs := []model.Pair{pairOf(0, usdc, weth, "5000000", "0")}
	tokens := tokenTable(token(usdc, "USDC", 6), token(weth, "WETH", 18))

	res, logs := resolve(t, pairs, tokens)

	price, ok := res.Prices[weth]
	require.True(t, ok)
	assert.Equal(t, 0.0, price)
	require.Equal(t, 1, logs.FilterMessageSnippet("reserve of next token is zero").Len())
	assert.Equal(t, pairs[0].Address.Hex(), logs.All()[0].ContextMap()["pair"])
}

func TestResolveOrientsByPairTokenOrder(t *testing.T) {
	// token0 is WETH, so the anchor reserve sits in slot 1.
	pairs := []model.Pair{pairOf(0, weth, usdc, "1000000000000000000", "3000000000")}
	tokens := tokenTable(token(usdc, "USDC", 6), token(weth, "WETH", 18))

	res, _ := resolve(t, pairs, tokens)
	assert.InDelta(t, 3000.0, res.Prices[weth], 1e-9)
}

func TestResolveOmitsUnreachable(t *testing.T) {
	pairs := []model.Pair{
		pairOf(0, usdc, weth, "1", "1"),
		pairOf(1, lone, also, "1", "1"),
	}
	tokens := tokenTable(token(usdc, "USDC", 6), token(weth, "WETH", 6), token(lone, "L", 6), token(also, "A", 6))

	res, logs := resolve(t, pairs, tokens)

	assert.Len(t, res.Prices, 2)
	_, ok := res.Prices[lone]
	assert.False(t, ok)
	_, ok = res.Prices[also]
	assert.False(t, ok)
	assert.Zero(t, logs.Len())
}

func TestResolveNonFiniteBecomesZero(t *testing.T) {
	huge := "1" + strings.Repeat("0", 400)
	pairs := []model.Pair{pairOf(0, usdc, weth, huge, "1")}
	tokens := tokenTable(token(usdc, "USDC", 0), token(weth, "WETH", 0))

	res, logs := resolve(t, pairs, tokens)
	assert.Equal(t, 0.0, res.Prices[weth])
	assert.Equal(t, 1, res.Degenerate)
	assert.Equal(t, 1, logs.FilterMessageSnippet("non-finite").Len())
}

func TestResolveAnchorMissing(t *testing.T) {
	pairs := []model.Pair{pairOf(0, weth, wbtc, "1", "1")}
	g, err := graph.Build(pairs, graph.Hops)
	require.NoError(t, err)

	_, err = Resolve(g, usdc, pairs, nil, nil)
	require.ErrorIs(t, err, ErrAnchorNotFound)
	assert.Contains(t, err.Error(), usdc.Hex())
}

func TestResolveUnknownDecimals(t *testing.T) {
	pairs := []model.Pair{pairOf(0, usdc, weth, "1", "1")}
	tokens := tokenTable(token(usdc, "USDC", 6))
	tokens[weth] = model.Token{Address: weth, Symbol: model.FetchedSymbol("WETH"), Decimals: model.Decimals{Status: model.StatusUnavailable}}

	g, err := graph.Build(pairs, graph.Hops)
	require.NoError(t, err)
	_, err = Resolve(g, usdc, pairs, tokens, nil)
	require.ErrorIs(t, err, ErrUnknownDecimals)
}

func TestResolveDefaultedDecimalsAreUsable(t *testing.T) {
	pairs := []model.Pair{pairOf(0, usdc, weth, "2000000", "1000000000000000000")}
	tokens := tokenTable(token(usdc, "USDC", 6))
	tokens[weth] = model.Token{Address: weth, Symbol: model.UnavailableSymbol(), Decimals: model.Decimals{Value: 18, Status: model.StatusDefaulted}}

	res, _ := resolve(t, pairs, tokens)
	assert.InDelta(t, 2.0, res.Prices[weth], 1e-12)
}

func TestResolveDegenerateHopUnknownDecimals(t *testing.T) {
	pairs := []model.Pair{pairOf(0, usdc, weth, "1000", "0")}
	tokens := tokenTable(token(usdc, "USDC", 6))
	tokens[weth] = model.Token{Address: weth, Symbol: model.FetchedSymbol("WETH"), Decimals: model.Decimals{Status: model.StatusUnavailable}}

	res, logs := resolve(t, pairs, tokens)
	price, ok := res.Prices[weth]
	require.True(t, ok)
	assert.Zero(t, price)
	assert.Equal(t, 1, res.Degenerate)
	assert.Equal(t, 1, logs.FilterMessage("degenerate pair on price path: reserve of next token is zero").Len())
}

func TestResolveLogsAnchorComponent(t *testing.T) {
	pairs := []model.Pair{
		pairOf(0, usdc, weth, "1", "1"),
		pairOf(1, lone, also, "1", "1"),
	}
	tokens := tokenTable(token(usdc, "USDC", 6), token(weth, "WETH", 6), token(lone, "L", 6), token(also, "A", 6))
	g, err := graph.Build(pairs, graph.Hops)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	_, err = Resolve(g, usdc, pairs, tokens, zap.New(core))
	require.NoError(t, err)

	entries := logs.FilterMessage("prices resolved").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["component_size"])
	assert.Equal(t, int64(2), entries[0].ContextMap()["unreachable"])
}
