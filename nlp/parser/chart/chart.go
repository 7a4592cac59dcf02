// Package chart holds the items of an agenda-driven parse: an arena of edges
// and hooks addressed by index, the interner mapping signatures to records,
// indices over committed items and the priority agenda.
package chart

import (
	"fmt"

	nlp "factored/nlp/types"
)

type Status byte

const (
	UNSEEN Status = iota
	ON_AGENDA
	COMMITTED
)

func (s Status) String() string {
	switch s {
	case ON_AGENDA:
		return "OnAgenda"
	case COMMITTED:
		return "Committed"
	default:
		return "Unseen"
	}
}

type Kind byte

const (
	EDGE Kind = iota
	HOOK
)

// Item addresses an edge or a hook in the arena
type Item struct {
	Kind  Kind
	Index int
}

// Side of a span a triple is recorded at
type Side byte

const (
	START Side = iota
	END
)

// EdgeKey is the signature of a constituent headed by (Head, Tag)
type EdgeKey struct {
	Start, End, State, Head, Tag int
}

// HookKey is the signature of a dependent over [Start, End) already attached
// to head (Head, Tag) through a rule State -> ... SubState. A RIGHT hook
// waits for its SubState sibling starting at End, a LEFT hook for one ending
// at Start.
type HookKey struct {
	Start, End, State, SubState, Head, Tag int
	Dir                                    nlp.Direction
}

func (k HookKey) Boundary() int {
	if k.Dir == nlp.RIGHT {
		return k.End
	}
	return k.Start
}

// Edge back pointers: a leaf has none, a unary edge has BackEdge only and a
// binary edge has the hook and the edge that completed it.
type Edge struct {
	EdgeKey
	Inside, Outside    float64
	BackEdge, BackHook int
	Status             Status
	heapIndex          int
}

type Hook struct {
	HookKey
	Inside, Outside float64
	BackEdge        int
	Status          Status
	heapIndex       int
}

func (e *Edge) String() string {
	return fmt.Sprintf("Edge[%d,%d) %d head %d/%d in %.4f out %.4f", e.Start, e.End, e.State, e.Head, e.Tag, e.Inside, e.Outside)
}

func (h *Hook) String() string {
	return fmt.Sprintf("Hook%v[%d,%d) %d->%d head %d/%d in %.4f out %.4f", h.Dir, h.Start, h.End, h.State, h.SubState, h.Head, h.Tag, h.Inside, h.Outside)
}

type corner struct {
	boundary, state, head, tag int
}

type waitKey struct {
	boundary, head, tag, subState int
	dir                           nlp.Direction
}

// HeadTag is a head position with its tag
type HeadTag struct {
	Head, Tag int
}

type tripleKey struct {
	side               Side
	boundary, head, tag int
}

type Chart struct {
	Edges []Edge
	Hooks []Hook

	edgeIndex map[EdgeKey]int
	hookIndex map[HookKey]int

	byStart, byEnd map[corner][]int
	waiting        map[waitKey][]int
	realByStart    [][]int
	realByEnd      [][]int
	triples        map[tripleKey]bool
	tripleLists    [2][][]HeadTag
}

func NewChart() *Chart {
	return &Chart{
		edgeIndex: make(map[EdgeKey]int),
		hookIndex: make(map[HookKey]int),
		byStart:   make(map[corner][]int),
		byEnd:     make(map[corner][]int),
		waiting:   make(map[waitKey][]int),
		triples:   make(map[tripleKey]bool),
	}
}

// Reset drops every item and prepares the indices for length boundaries
// 0..length
func (c *Chart) Reset(length int) {
	c.Edges = c.Edges[:0]
	c.Hooks = c.Hooks[:0]
	clear(c.edgeIndex)
	clear(c.hookIndex)
	clear(c.byStart)
	clear(c.byEnd)
	clear(c.waiting)
	clear(c.triples)
	c.realByStart = resetLists(c.realByStart, length+1)
	c.realByEnd = resetLists(c.realByEnd, length+1)
	for side := range c.tripleLists {
		lists := c.tripleLists[side]
		if cap(lists) < length+1 {
			lists = make([][]HeadTag, length+1)
		}
		lists = lists[:length+1]
		for i := range lists {
			lists[i] = lists[i][:0]
		}
		c.tripleLists[side] = lists
	}
}

func resetLists(lists [][]int, size int) [][]int {
	if cap(lists) < size {
		lists = make([][]int, size)
	}
	lists = lists[:size]
	for i := range lists {
		lists[i] = lists[i][:0]
	}
	return lists
}

// Size is the number of items built so far
func (c *Chart) Size() int {
	return len(c.Edges) + len(c.Hooks)
}

// InternEdge returns the record for key, creating an unseen one scored -inf
// on first sight
func (c *Chart) InternEdge(key EdgeKey) (int, bool) {
	if idx, exists := c.edgeIndex[key]; exists {
		return idx, false
	}
	idx := c.NewEdge(key)
	c.edgeIndex[key] = idx
	return idx, true
}

// NewEdge creates a record that is never shared with other derivations
func (c *Chart) NewEdge(key EdgeKey) int {
	c.Edges = append(c.Edges, Edge{
		EdgeKey:   key,
		Inside:    negInf,
		Outside:   negInf,
		BackEdge:  -1,
		BackHook:  -1,
		heapIndex: -1,
	})
	return len(c.Edges) - 1
}

func (c *Chart) InternHook(key HookKey) (int, bool) {
	if idx, exists := c.hookIndex[key]; exists {
		return idx, false
	}
	idx := c.NewHook(key)
	c.hookIndex[key] = idx
	return idx, true
}

func (c *Chart) NewHook(key HookKey) int {
	c.Hooks = append(c.Hooks, Hook{
		HookKey:   key,
		Inside:    negInf,
		Outside:   negInf,
		BackEdge:  -1,
		heapIndex: -1,
	})
	return len(c.Hooks) - 1
}

func (c *Chart) Edge(idx int) *Edge {
	return &c.Edges[idx]
}

func (c *Chart) Hook(idx int) *Hook {
	return &c.Hooks[idx]
}

// Score is inside plus outside of an item
func (c *Chart) Score(item Item) float64 {
	if item.Kind == EDGE {
		e := &c.Edges[item.Index]
		return e.Inside + e.Outside
	}
	h := &c.Hooks[item.Index]
	return h.Inside + h.Outside
}

func (c *Chart) Status(item Item) Status {
	if item.Kind == EDGE {
		return c.Edges[item.Index].Status
	}
	return c.Hooks[item.Index].Status
}

func (c *Chart) setStatus(item Item, status Status) {
	if item.Kind == EDGE {
		c.Edges[item.Index].Status = status
	} else {
		c.Hooks[item.Index].Status = status
	}
}

func (c *Chart) heapIndex(item Item) *int {
	if item.Kind == EDGE {
		return &c.Edges[item.Index].heapIndex
	}
	return &c.Hooks[item.Index].heapIndex
}

// CommitEdge finalizes an edge and makes it available to hooks
func (c *Chart) CommitEdge(idx int) {
	e := &c.Edges[idx]
	e.Status = COMMITTED
	start := corner{e.Start, e.State, e.Head, e.Tag}
	end := corner{e.End, e.State, e.Head, e.Tag}
	c.byStart[start] = append(c.byStart[start], idx)
	c.byEnd[end] = append(c.byEnd[end], idx)
}

// EdgesStarting lists committed edges over [start, ...) with the given
// state and head
func (c *Chart) EdgesStarting(start, state, head, tag int) []int {
	return c.byStart[corner{start, state, head, tag}]
}

func (c *Chart) EdgesEnding(end, state, head, tag int) []int {
	return c.byEnd[corner{end, state, head, tag}]
}

// CommitHook finalizes a hook and makes it available to sibling edges
func (c *Chart) CommitHook(idx int) {
	h := &c.Hooks[idx]
	h.Status = COMMITTED
	key := waitKey{h.Boundary(), h.Head, h.Tag, h.SubState, h.Dir}
	c.waiting[key] = append(c.waiting[key], idx)
}

// Waiting lists committed hooks of dir waiting at boundary for a SubState
// sibling headed by (head, tag)
func (c *Chart) Waiting(boundary int, dir nlp.Direction, head, tag, subState int) []int {
	return c.waiting[waitKey{boundary, head, tag, subState, dir}]
}

// AddReal records a committed edge that may act as a dependent
func (c *Chart) AddReal(idx int) {
	e := &c.Edges[idx]
	c.realByStart[e.Start] = append(c.realByStart[e.Start], idx)
	c.realByEnd[e.End] = append(c.realByEnd[e.End], idx)
}

func (c *Chart) RealStarting(start int) []int {
	return c.realByStart[start]
}

func (c *Chart) RealEnding(end int) []int {
	return c.realByEnd[end]
}

// AddTriple records that some committed edge headed by (head, tag) has the
// given side at boundary; it reports whether the triple is new
func (c *Chart) AddTriple(side Side, boundary, head, tag int) bool {
	key := tripleKey{side, boundary, head, tag}
	if c.triples[key] {
		return false
	}
	c.triples[key] = true
	c.tripleLists[side][boundary] = append(c.tripleLists[side][boundary], HeadTag{head, tag})
	return true
}

// Triples lists in first-seen order the heads recorded at boundary
func (c *Chart) Triples(side Side, boundary int) []HeadTag {
	return c.tripleLists[side][boundary]
}
