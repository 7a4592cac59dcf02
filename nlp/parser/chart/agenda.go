package chart

import (
	"math"

	"factored/alg/rlheap"
)

var negInf = math.Inf(-1)

// Agenda is a max-heap of items on inside plus outside score. Equal scores
// pop edges before hooks, then in creation order.
type Agenda struct {
	chart *Chart
	items []Item
}

func NewAgenda(c *Chart) *Agenda {
	return &Agenda{chart: c}
}

func (a *Agenda) Len() int {
	return len(a.items)
}

func (a *Agenda) Less(i, j int) bool {
	x, y := a.items[i], a.items[j]
	sx, sy := a.chart.Score(x), a.chart.Score(y)
	if sx != sy {
		return sx > sy
	}
	if x.Kind != y.Kind {
		return x.Kind == EDGE
	}
	return x.Index < y.Index
}

func (a *Agenda) Swap(i, j int) {
	a.items[i], a.items[j] = a.items[j], a.items[i]
	*a.chart.heapIndex(a.items[i]) = i
	*a.chart.heapIndex(a.items[j]) = j
}

func (a *Agenda) Push(x interface{}) {
	item := x.(Item)
	*a.chart.heapIndex(item) = len(a.items)
	a.items = append(a.items, item)
}

func (a *Agenda) Pop() interface{} {
	last := len(a.items) - 1
	item := a.items[last]
	a.items = a.items[:last]
	*a.chart.heapIndex(item) = -1
	return item
}

// Add queues an item or, when it is already queued, restores the heap after
// its score improved
func (a *Agenda) Add(item Item) {
	if a.chart.Status(item) == ON_AGENDA {
		rlheap.Fix(a, *a.chart.heapIndex(item))
		return
	}
	a.chart.setStatus(item, ON_AGENDA)
	rlheap.Push(a, item)
}

// Next removes the best item
func (a *Agenda) Next() Item {
	return rlheap.Pop(a).(Item)
}

// Peek is the score of the best item, -inf when empty
func (a *Agenda) Peek() float64 {
	if len(a.items) == 0 {
		return negInf
	}
	return a.chart.Score(a.items[0])
}

func (a *Agenda) Reset() {
	a.items = a.items[:0]
}
