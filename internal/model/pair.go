package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pair is a constant-product pool holding reserves of two tokens.
type Pair struct {
	Address  common.Address `json:"address"`
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
	// Activity is the number of events the pair emitted in the recent window.
	Activity uint64 `json:"activity"`
}

// Label renders "SYM0-SYM1" using the supplied token table.
func (p Pair) Label(tokens map[common.Address]Token) string {
	return symbolOf(tokens, p.Token0) + "-" + symbolOf(tokens, p.Token1)
}

func symbolOf(tokens map[common.Address]Token, addr common.Address) string {
	token, ok := tokens[addr]
	if !ok {
		return BadSymbol
	}
	return token.Symbol.String()
}

// ActivityEvent is one contract emission observed in the recent window.
type ActivityEvent struct {
	Emitter     common.Address `json:"emitter"`
	Count       uint64         `json:"count,omitempty"`
	BlockNumber uint64         `json:"block_number"`
	TxHash      common.Hash    `json:"tx_hash"`
}

// Occurrences returns how many emissions the event stands for.
func (e ActivityEvent) Occurrences() uint64 {
	if e.Count == 0 {
		return 1
	}
	return e.Count
}

// ActivePair is a factory pair seen emitting events in the window.
type ActivePair struct {
	Address common.Address `json:"address"`
	Count   uint64         `json:"count"`
}
