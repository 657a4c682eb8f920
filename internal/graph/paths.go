package graph

import (
	"container/heap"
	"math"
)

// Path is a walk from the tree source. Vertices has one more entry than Edges.
type Path struct {
	Edges    []int
	Vertices []int
}

// Tree holds one shortest path from a source to every reachable vertex.
//
// Among equal-weight paths the one whose edge index sequence is lexicographically
// smallest wins, so results do not depend on map or heap ordering.
type Tree struct {
	g      *Graph
	source int
	dist   []float64
	paths  [][]int
	done   []bool
}

// ShortestPaths runs Dijkstra from source. Weights are positive in every mode.
func (g *Graph) ShortestPaths(source int) *Tree {
	n := len(g.tokens)
	t := &Tree{
		g:      g,
		source: source,
		dist:   make([]float64, n),
		paths:  make([][]int, n),
		done:   make([]bool, n),
	}
	for i := range t.dist {
		t.dist[i] = math.Inf(1)
	}
	t.dist[source] = 0
	t.paths[source] = []int{}

	q := &queue{{vertex: source}}
	for q.Len() > 0 {
		item := heap.Pop(q).(queueItem)
		v := item.vertex
		if t.done[v] {
			continue
		}
		t.done[v] = true

		for _, id := range g.adjacency[v] {
			e := g.edges[id]
			u := e.Other(v)
			if t.done[u] {
				continue
			}
			nd := t.dist[v] + e.Weight
			improved := nd < t.dist[u]
			if !improved && (nd > t.dist[u] || !lexLess(t.paths[v], id, t.paths[u])) {
				continue
			}
			t.dist[u] = nd
			p := make([]int, len(t.paths[v])+1)
			copy(p, t.paths[v])
			p[len(p)-1] = id
			t.paths[u] = p
			if improved {
				heap.Push(q, queueItem{vertex: u, dist: nd})
			}
		}
	}

	return t
}

// lexLess reports whether prefix+[last] sorts before other.
func lexLess(prefix []int, last int, other []int) bool {
	for i := 0; i <= len(prefix); i++ {
		if i >= len(other) {
			return false
		}
		cur := last
		if i < len(prefix) {
			cur = prefix[i]
		}
		if cur != other[i] {
			return cur < other[i]
		}
	}
	return len(prefix)+1 < len(other)
}

// Source returns the tree root.
func (t *Tree) Source() int { return t.source }

// Reachable reports whether v is connected to the source.
func (t *Tree) Reachable(v int) bool { return t.done[v] }

// Distance returns the summed weight to v, +Inf when unreachable.
func (t *Tree) Distance(v int) float64 { return t.dist[v] }

// PathTo returns the chosen path from the source to v.
func (t *Tree) PathTo(v int) (Path, bool) {
	if !t.done[v] {
		return Path{}, false
	}
	edges := t.paths[v]
	vertices := make([]int, 0, len(edges)+1)
	cur := t.source
	vertices = append(vertices, cur)
	for _, id := range edges {
		cur = t.g.edges[id].Other(cur)
		vertices = append(vertices, cur)
	}
	return Path{Edges: append([]int(nil), edges...), Vertices: vertices}, true
}

type queueItem struct {
	vertex int
	dist   float64
}

type queue []queueItem

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].vertex < q[j].vertex
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(queueItem)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
