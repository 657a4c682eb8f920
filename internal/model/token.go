package model

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownDecimals is returned when a token without usable decimals is used in arithmetic.
var ErrUnknownDecimals = errors.New("token decimals unknown")

// BadSymbol is rendered for tokens whose symbol could not be read.
const BadSymbol = "__BAD_SYMBOL__"

// FieldStatus records where a token field value came from.
type FieldStatus uint8

const (
	StatusFetched FieldStatus = iota
	StatusDefaulted
	StatusOverridden
	StatusUnavailable
)

func (s FieldStatus) String() string {
	switch s {
	case StatusFetched:
		return "fetched"
	case StatusDefaulted:
		return "defaulted"
	case StatusOverridden:
		return "overridden"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Symbol is a token symbol together with its provenance.
type Symbol struct {
	Value  string      `json:"value"`
	Status FieldStatus `json:"status"`
}

// String returns the symbol text, or BadSymbol when it is unavailable.
func (s Symbol) String() string {
	if s.Status == StatusUnavailable {
		return BadSymbol
	}
	return s.Value
}

// Decimals is a token's decimals value together with its provenance.
type Decimals struct {
	Value  uint8       `json:"value"`
	Status FieldStatus `json:"status"`
}

// Known reports whether the value may be used in arithmetic.
func (d Decimals) Known() bool {
	return d.Status != StatusUnavailable
}

// FetchedSymbol returns a symbol read from chain.
func FetchedSymbol(value string) Symbol {
	return Symbol{Value: value, Status: StatusFetched}
}

// UnavailableSymbol returns the sentinel symbol.
func UnavailableSymbol() Symbol {
	return Symbol{Value: BadSymbol, Status: StatusUnavailable}
}

// FetchedDecimals returns decimals read from chain.
func FetchedDecimals(value uint8) Decimals {
	return Decimals{Value: value, Status: StatusFetched}
}

// Token is ERC20 metadata for a graph vertex.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   Symbol         `json:"symbol"`
	Decimals Decimals       `json:"decimals"`
}

// TokenOverride replaces fetched metadata for a known token. Nil fields are left untouched.
type TokenOverride struct {
	Symbol   *string `json:"symbol,omitempty" mapstructure:"symbol"`
	Decimals *uint8  `json:"decimals,omitempty" mapstructure:"decimals"`
}

// ApplyOverrides returns a copy of tokens with overrides applied.
// Overrides for addresses absent from tokens are ignored.
func ApplyOverrides(tokens map[common.Address]Token, overrides map[common.Address]TokenOverride) map[common.Address]Token {
	out := make(map[common.Address]Token, len(tokens))
	for addr, token := range tokens {
		ov, ok := overrides[addr]
		if ok {
			if ov.Symbol != nil {
				token.Symbol = Symbol{Value: *ov.Symbol, Status: StatusOverridden}
			}
			if ov.Decimals != nil {
				token.Decimals = Decimals{Value: *ov.Decimals, Status: StatusOverridden}
			}
		}
		out[addr] = token
	}
	return out
}
