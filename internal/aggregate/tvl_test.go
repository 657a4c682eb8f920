package aggregate

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tvlScope/internal/model"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	lone = common.HexToAddress("0x1111111111111111111111111111111111111111")
	also = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func tokens() map[common.Address]model.Token {
	return map[common.Address]model.Token{
		usdc: {Address: usdc, Symbol: model.FetchedSymbol("USDC"), Decimals: model.FetchedDecimals(6)},
		weth: {Address: weth, Symbol: model.FetchedSymbol("WETH"), Decimals: model.FetchedDecimals(18)},
		lone: {Address: lone, Symbol: model.UnavailableSymbol(), Decimals: model.Decimals{Value: 18, Status: model.StatusDefaulted}},
		also: {Address: also, Symbol: model.FetchedSymbol("ALSO"), Decimals: model.FetchedDecimals(18)},
	}
}

func mustInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func TestComputeTVL(t *testing.T) {
	pairs := []model.Pair{
		{
			Address:  common.HexToAddress("0x01"),
			Token0:   usdc,
			Token1:   weth,
			Reserve0: mustInt("2000000000000"),          // 2,000,000 USDC
			Reserve1: mustInt("1000000000000000000000"), // 1,000 WETH
		},
		{
			Address:  common.HexToAddress("0x02"),
			Token0:   lone,
			Token1:   also,
			Reserve0: mustInt("1"),
			Reserve1: mustInt("1"),
		},
	}
	prices := model.PriceRecord{usdc: 1, weth: 2000}

	res, err := ComputeTVL(pairs, prices, tokens(), zap.NewNop())
	require.NoError(t, err)

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "USDC-WETH", res.Pairs[0].Label)
	assert.InDelta(t, 4_000_000.0, res.Pairs[0].Value, 1e-6)
	assert.Equal(t, 1, res.Excluded)
	assert.Zero(t, res.Sanitized)
}

func TestComputeTVLSanitizesInfinity(t *testing.T) {
	pairs := []model.Pair{{
		Address:  common.HexToAddress("0x03"),
		Token0:   usdc,
		Token1:   weth,
		Reserve0: mustInt("1000000000"),
		Reserve1: mustInt("2000000000000000000"),
	}}
	prices := model.PriceRecord{usdc: 1, weth: math.MaxFloat64}

	core, logs := observer.New(zapcore.WarnLevel)
	res, err := ComputeTVL(pairs, prices, tokens(), zap.New(core))
	require.NoError(t, err)

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, 0.0, res.Pairs[0].Value)
	assert.Equal(t, 1, res.Sanitized)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "USDC-WETH", entry.ContextMap()["label"])
	assert.True(t, math.IsInf(entry.ContextMap()["value"].(float64), 1))
}

func TestComputeTVLSanitizesNaN(t *testing.T) {
	pairs := []model.Pair{{
		Address:  common.HexToAddress("0x04"),
		Token0:   usdc,
		Token1:   weth,
		Reserve0: big.NewInt(0),
		Reserve1: big.NewInt(1),
	}}
	prices := model.PriceRecord{usdc: math.Inf(1), weth: math.Inf(-1)}

	res, err := ComputeTVL(pairs, prices, tokens(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Pairs[0].Value)
	assert.Equal(t, 1, res.Sanitized)
}

func TestComputeTVLUnknownDecimals(t *testing.T) {
	table := tokens()
	table[weth] = model.Token{Address: weth, Symbol: model.FetchedSymbol("WETH"), Decimals: model.Decimals{Status: model.StatusUnavailable}}
	pairs := []model.Pair{{Address: common.HexToAddress("0x05"), Token0: usdc, Token1: weth, Reserve0: big.NewInt(1), Reserve1: big.NewInt(1)}}

	_, err := ComputeTVL(pairs, model.PriceRecord{usdc: 1, weth: 1}, table, nil)
	require.ErrorIs(t, err, model.ErrUnknownDecimals)
}

func TestRankStable(t *testing.T) {
	p1 := model.PairTVL{Label: "P1", Value: 100}
	p2 := model.PairTVL{Label: "P2", Value: 100}
	p3 := model.PairTVL{Label: "P3", Value: 50}

	got := Rank([]model.PairTVL{p3, p1, p2}, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "P1", got[0].Label)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "P2", got[1].Label)
	assert.Equal(t, 2, got[1].Rank)
}

func TestRankAll(t *testing.T) {
	tvls := []model.PairTVL{{Label: "a", Value: 1}, {Label: "b", Value: 3}, {Label: "c", Value: 2}}

	got := Rank(tvls, 0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{got[0].Label, got[1].Label, got[2].Label})

	assert.Len(t, Rank(tvls, 10), 3)
	assert.Equal(t, "a", tvls[0].Label)
}

func TestFormatTokenAmount(t *testing.T) {
	assert.Equal(t, "1.500000", formatTokenAmount(big.NewInt(1_500_000), 6))
	assert.Equal(t, "-0.05", formatTokenAmount(big.NewInt(-5), 2))
	assert.Equal(t, "42", formatTokenAmount(big.NewInt(42), 0))
	assert.Equal(t, "0", formatTokenAmount(nil, 18))
}
