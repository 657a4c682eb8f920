package dex

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tvlScope/internal/model"
)

var errReverted = errors.New("execution reverted")

type fakeCaller struct {
	mu        sync.Mutex
	responses map[common.Address]map[string][]byte
	calls     int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: make(map[common.Address]map[string][]byte)}
}

func (f *fakeCaller) on(t *testing.T, to common.Address, parsed abi.ABI, method string, args []interface{}, outputs ...interface{}) {
	t.Helper()
	input, err := parsed.Pack(method, args...)
	require.NoError(t, err)
	output, err := parsed.Methods[method].Outputs.Pack(outputs...)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.responses[to] == nil {
		f.responses[to] = make(map[string][]byte)
	}
	f.responses[to][string(input)] = output
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	resp, ok := f.responses[*msg.To][string(msg.Data)]
	if !ok {
		return nil, errReverted
	}
	return resp, nil
}

var (
	factory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	usdc    = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	mkr     = common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2")
	broken  = common.HexToAddress("0x0Ba45A8b5d5575935B8158a88C631E9F9C95a2e5")
	pairA   = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	pairB   = common.HexToAddress("0xC2aDdA861F89bBB333c90c492cB837741916A225")
)

func TestFetchFactoryPairs(t *testing.T) {
	parsed, err := V2FactoryABI()
	require.NoError(t, err)

	caller := newFakeCaller()
	caller.on(t, factory, parsed, "allPairsLength", nil, big.NewInt(2))
	caller.on(t, factory, parsed, "allPairs", []interface{}{big.NewInt(0)}, pairA)
	caller.on(t, factory, parsed, "allPairs", []interface{}{big.NewInt(1)}, pairB)

	src := NewSource(SourceConfig{Factory: factory, Concurrency: 4}, caller, zap.NewNop())
	got, err := src.FetchFactoryPairs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{pairA, pairB}, got)
}

func TestFetchFactoryPairsFailure(t *testing.T) {
	parsed, err := V2FactoryABI()
	require.NoError(t, err)

	caller := newFakeCaller()
	caller.on(t, factory, parsed, "allPairsLength", nil, big.NewInt(2))
	caller.on(t, factory, parsed, "allPairs", []interface{}{big.NewInt(0)}, pairA)

	src := NewSource(SourceConfig{Factory: factory}, caller, nil)
	_, err = src.FetchFactoryPairs(context.Background())
	require.ErrorIs(t, err, errReverted)
	assert.Contains(t, err.Error(), "allPairs(1)")
}

func TestFetchPairsInfo(t *testing.T) {
	parsed, err := V2PairABI()
	require.NoError(t, err)

	caller := newFakeCaller()
	caller.on(t, pairA, parsed, "token0", nil, usdc)
	caller.on(t, pairA, parsed, "token1", nil, weth)
	caller.on(t, pairA, parsed, "getReserves", nil, big.NewInt(5_000_000), big.NewInt(2_000), uint32(1700000000))

	src := NewSource(SourceConfig{Concurrency: 2}, caller, nil)
	got, err := src.FetchPairsInfo(context.Background(), []common.Address{pairA})
	require.NoError(t, err)

	require.Contains(t, got, pairA)
	p := got[pairA]
	assert.Equal(t, usdc, p.Token0)
	assert.Equal(t, weth, p.Token1)
	assert.Equal(t, int64(5_000_000), p.Reserve0.Int64())
	assert.Equal(t, int64(2_000), p.Reserve1.Int64())

	_, err = src.FetchPairsInfo(context.Background(), []common.Address{pairA, pairB})
	require.Error(t, err)
	assert.Contains(t, err.Error(), pairB.Hex())
}

func TestFetchTokensInfo(t *testing.T) {
	erc20, err := ERC20ABI()
	require.NoError(t, err)
	legacy, err := ERC20Bytes32ABI()
	require.NoError(t, err)

	caller := newFakeCaller()
	caller.on(t, usdc, erc20, "symbol", nil, "USDC")
	caller.on(t, usdc, erc20, "decimals", nil, uint8(6))

	var mkrSymbol [32]byte
	copy(mkrSymbol[:], "MKR")
	caller.on(t, mkr, legacy, "symbol", nil, mkrSymbol)
	caller.on(t, mkr, erc20, "decimals", nil, uint8(18))

	core, logs := observer.New(zapcore.WarnLevel)
	src := NewSource(SourceConfig{Concurrency: 3, DecimalsFallback: 18}, caller, zap.New(core))
	got, err := src.FetchTokensInfo(context.Background(), []common.Address{usdc, mkr, broken})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, model.FetchedSymbol("USDC"), got[usdc].Symbol)
	assert.Equal(t, model.FetchedDecimals(6), got[usdc].Decimals)

	assert.Equal(t, "MKR", got[mkr].Symbol.String())
	assert.Equal(t, model.StatusFetched, got[mkr].Symbol.Status)

	assert.Equal(t, model.BadSymbol, got[broken].Symbol.String())
	assert.Equal(t, model.Decimals{Value: 18, Status: model.StatusDefaulted}, got[broken].Decimals)
	assert.Equal(t, 2, logs.Len())
}

func TestFetchTokensInfoStrictDecimals(t *testing.T) {
	src := NewSource(SourceConfig{DecimalsFallback: StrictDecimals}, newFakeCaller(), nil)
	got, err := src.FetchTokensInfo(context.Background(), []common.Address{broken})
	require.NoError(t, err)
	assert.False(t, got[broken].Decimals.Known())
	assert.Equal(t, model.StatusUnavailable, got[broken].Symbol.Status)
}

func TestPairEventTopic(t *testing.T) {
	swap, err := PairEventTopic("swap")
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822"), swap)

	syncTopic, err := PairEventTopic("Sync")
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1"), syncTopic)

	_, err = PairEventTopic("Flash")
	assert.Error(t, err)
}
