// Package graph builds the undirected token/pair liquidity graph.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"tvlScope/internal/model"
)

var (
	// ErrZeroActivity is returned when an activity-weighted edge would have infinite weight.
	ErrZeroActivity = errors.New("pair has zero activity")
	// ErrDuplicatePair is returned when the same pair address is supplied twice.
	ErrDuplicatePair = errors.New("duplicate pair")
)

// Mode selects how edge weights are derived.
type Mode string

const (
	// Hops weights every edge 1, so shortest paths minimise the hop count.
	Hops Mode = "hops"
	// InverseActivity weights an edge 1/activity, preferring busier pairs.
	InverseActivity Mode = "activity"
)

// ParseMode maps a config string to a Mode. Empty means Hops.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", Hops:
		return Hops, nil
	case InverseActivity:
		return InverseActivity, nil
	default:
		return "", fmt.Errorf("unknown graph mode %q", value)
	}
}

// Edge is one pair. From is the vertex of token0 and To the vertex of token1.
type Edge struct {
	Pair   common.Address
	From   int
	To     int
	Weight float64
}

// Other returns the endpoint of e opposite to v.
func (e Edge) Other(v int) int {
	if e.From == v {
		return e.To
	}
	return e.From
}

// Graph is an immutable multigraph of tokens connected by pairs.
type Graph struct {
	mode      Mode
	tokens    []common.Address
	index     map[common.Address]int
	edges     []Edge
	adjacency [][]int
	component []int
}

// Build creates the graph for pairs. Vertices are numbered in order of first appearance
// (token0 before token1) and edge i corresponds to pairs[i].
func Build(pairs []model.Pair, mode Mode) (*Graph, error) {
	if mode == "" {
		mode = Hops
	}
	if mode != Hops && mode != InverseActivity {
		return nil, fmt.Errorf("unknown graph mode %q", mode)
	}

	g := &Graph{
		mode:  mode,
		index: make(map[common.Address]int),
		edges: make([]Edge, 0, len(pairs)),
	}

	seen := make(map[common.Address]struct{}, len(pairs))
	for _, pair := range pairs {
		if _, ok := seen[pair.Address]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePair, pair.Address.Hex())
		}
		seen[pair.Address] = struct{}{}

		weight := 1.0
		if mode == InverseActivity {
			if pair.Activity == 0 {
				return nil, fmt.Errorf("%w: %s", ErrZeroActivity, pair.Address.Hex())
			}
			weight = 1 / float64(pair.Activity)
		}

		from := g.addVertex(pair.Token0)
		to := g.addVertex(pair.Token1)
		id := len(g.edges)
		g.edges = append(g.edges, Edge{Pair: pair.Address, From: from, To: to, Weight: weight})
		g.adjacency[from] = append(g.adjacency[from], id)
		if to != from {
			g.adjacency[to] = append(g.adjacency[to], id)
		}
	}

	g.labelComponents()
	return g, nil
}

func (g *Graph) addVertex(addr common.Address) int {
	if v, ok := g.index[addr]; ok {
		return v
	}
	v := len(g.tokens)
	g.index[addr] = v
	g.tokens = append(g.tokens, addr)
	g.adjacency = append(g.adjacency, nil)
	return v
}

func (g *Graph) labelComponents() {
	g.component = make([]int, len(g.tokens))
	for i := range g.component {
		g.component[i] = -1
	}

	next := 0
	stack := make([]int, 0)
	for start := range g.tokens {
		if g.component[start] >= 0 {
			continue
		}
		g.component[start] = next
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, id := range g.adjacency[v] {
				u := g.edges[id].Other(v)
				if g.component[u] < 0 {
					g.component[u] = next
					stack = append(stack, u)
				}
			}
		}
		next++
	}
}

// Mode returns the weighting mode the graph was built with.
func (g *Graph) Mode() Mode { return g.mode }

// VertexCount returns the number of distinct tokens.
func (g *Graph) VertexCount() int { return len(g.tokens) }

// EdgeCount returns the number of pairs.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Vertex returns the vertex index of a token.
func (g *Graph) Vertex(addr common.Address) (int, bool) {
	v, ok := g.index[addr]
	return v, ok
}

// Token returns the token address of vertex v.
func (g *Graph) Token(v int) common.Address { return g.tokens[v] }

// Edge returns edge i.
func (g *Graph) Edge(i int) Edge { return g.edges[i] }

// ComponentCount returns the number of connected components.
func (g *Graph) ComponentCount() int {
	count := 0
	for _, c := range g.component {
		if c+1 > count {
			count = c + 1
		}
	}
	return count
}

// ComponentSize returns the number of vertices sharing v's component.
func (g *Graph) ComponentSize(v int) int {
	size := 0
	for _, c := range g.component {
		if c == g.component[v] {
			size++
		}
	}
	return size
}
