package model

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolStringSentinel(t *testing.T) {
	assert.Equal(t, "WETH", FetchedSymbol("WETH").String())
	assert.Equal(t, BadSymbol, UnavailableSymbol().String())
	assert.Equal(t, BadSymbol, Symbol{Value: "junk", Status: StatusUnavailable}.String())
}

func TestApplyOverrides(t *testing.T) {
	mkr := common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2")
	trb := common.HexToAddress("0x0Ba45A8b5d5575935B8158a88C631E9F9C95a2e5")
	absent := common.HexToAddress("0x89d24A6b4CcB1B6fAA2625fE562bDD9a23260359")

	tokens := map[common.Address]Token{
		mkr: {Address: mkr, Symbol: UnavailableSymbol(), Decimals: FetchedDecimals(18)},
		trb: {Address: trb, Symbol: FetchedSymbol("TRB"), Decimals: Decimals{Value: 18, Status: StatusDefaulted}},
	}
	mkrSym := "MKR"
	trbDec := uint8(18)
	sai := "SAI"
	overrides := map[common.Address]TokenOverride{
		mkr:    {Symbol: &mkrSym},
		trb:    {Decimals: &trbDec},
		absent: {Symbol: &sai},
	}

	got := ApplyOverrides(tokens, overrides)

	require.Len(t, got, 2)
	assert.Equal(t, Symbol{Value: "MKR", Status: StatusOverridden}, got[mkr].Symbol)
	assert.Equal(t, StatusFetched, got[mkr].Decimals.Status)
	assert.Equal(t, Decimals{Value: 18, Status: StatusOverridden}, got[trb].Decimals)
	assert.Equal(t, "TRB", got[trb].Symbol.String())

	// input is untouched
	assert.Equal(t, StatusUnavailable, tokens[mkr].Symbol.Status)
}

func TestPairLabel(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	tokens := map[common.Address]Token{a: {Address: a, Symbol: FetchedSymbol("USDC")}}

	p := Pair{Token0: a, Token1: b}
	assert.Equal(t, "USDC-"+BadSymbol, p.Label(tokens))
}

func TestPairJSONKeepsReserves(t *testing.T) {
	reserve, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	p := Pair{
		Address:  common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"),
		Token0:   common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Token1:   common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Reserve0: reserve,
		Reserve1: big.NewInt(7),
		Activity: 3,
	}

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded Pair
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, p.Address, decoded.Address)
	assert.Equal(t, 0, p.Reserve0.Cmp(decoded.Reserve0))
	assert.Equal(t, 0, p.Reserve1.Cmp(decoded.Reserve1))
	assert.Equal(t, uint64(3), decoded.Activity)
}

func TestActivityEventOccurrences(t *testing.T) {
	assert.Equal(t, uint64(1), ActivityEvent{}.Occurrences())
	assert.Equal(t, uint64(4), ActivityEvent{Count: 4}.Occurrences())
}
