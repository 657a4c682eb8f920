package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PriceRecord maps a token to its price in whole anchor units per whole token.
type PriceRecord map[common.Address]float64

// PairTVL is the anchor-denominated value locked in one pair.
type PairTVL struct {
	Pair  Pair    `json:"pair"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// RankedPair is a PairTVL with its 1-based rank.
type RankedPair struct {
	Rank  int     `json:"rank"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Pair  Pair    `json:"pair"`
}

// TokenPrice is a flattened price entry for sinks.
type TokenPrice struct {
	Token  common.Address `json:"token"`
	Symbol string         `json:"symbol"`
	Price  float64        `json:"price"`
	Hops   int            `json:"hops"`
}

// Snapshot is the result of one ranking run.
type Snapshot struct {
	GeneratedAt  time.Time      `json:"generated_at"`
	ChainID      uint64         `json:"chain_id"`
	BlockNumber  uint64         `json:"block_number"`
	Anchor       common.Address `json:"anchor"`
	AnchorSymbol string         `json:"anchor_symbol"`
	Mode         string         `json:"mode"`
	Pairs        []RankedPair   `json:"pairs"`
	Prices       []TokenPrice   `json:"prices"`
}
