package util

import (
	"fmt"
	"sync"
)

// Index enumerates string symbols (states, tags, words) as dense ints.
// All methods are safe for concurrent use; once frozen the index is
// read-only. The exported fields are not guarded and must only be read
// directly when no Add can run.
type Index struct {
	mu     sync.RWMutex
	Enum   map[string]int
	Values []string
	Frozen bool
}

// Add returns the value's index, appending it if new. Adding a new value
// to a frozen index panics.
func (e *Index) Add(value string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if enum, exists := e.Enum[value]; exists {
		return enum, false
	}
	if e.Frozen {
		panic("Cannot add value to frozen index: " + value)
	}
	enum := len(e.Values)
	e.Enum[value] = enum
	e.Values = append(e.Values, value)
	return enum, true
}

func (e *Index) IndexOf(value string) (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	enum, exists := e.Enum[value]
	return enum, exists
}

// MustIndexOf panics on unknown values; meant for grammar construction
// where an unknown symbol is a programming error.
func (e *Index) MustIndexOf(value string) int {
	enum, exists := e.IndexOf(value)
	if !exists {
		panic("Unknown value requested: " + value)
	}
	return enum
}

func (e *Index) ValueOf(index int) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if index < 0 || len(e.Values) <= index {
		panic("Unknown index requested: " + fmt.Sprintf("%v of %v", index, len(e.Values)))
	}
	return e.Values[index]
}

func (e *Index) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.Values)
}

func (e *Index) IsFrozen() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Frozen
}

func (e *Index) Freeze() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Frozen = true
}

func NewIndex(capacity int) *Index {
	return &Index{
		Enum:   make(map[string]int, capacity),
		Values: make([]string, 0, capacity),
	}
}
