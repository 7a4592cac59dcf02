package util

import (
	"log"
	"math"
	"runtime"
)

var NegInf = math.Inf(-1)

func Max(a, b int) int {
	if a < b {
		return b
	}
	return a
}

func Min(a, b int) int {
	if a > b {
		return b
	}
	return a
}

// Better reports whether candidate improves on current by more than a
// relative tolerance of tol.
func Better(candidate, current, tol float64) bool {
	if math.IsInf(current, -1) {
		return !math.IsInf(candidate, -1)
	}
	return candidate-current > tol*math.Max(1, math.Abs(current))
}

// ApproxEqual compares two log scores with a relative tolerance; two -Inf
// scores are equal.
func ApproxEqual(a, b, tol float64) bool {
	if math.IsInf(a, -1) || math.IsInf(b, -1) {
		return math.IsInf(a, -1) && math.IsInf(b, -1)
	}
	return math.Abs(a-b) <= tol*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// EnsureFloats returns a slice of length size, reusing buf when it is
// large enough, with every entry set to fill.
func EnsureFloats(buf []float64, size int, fill float64) []float64 {
	if cap(buf) < size {
		buf = make([]float64, size)
	} else {
		buf = buf[:size]
	}
	for i := range buf {
		buf[i] = fill
	}
	return buf
}

func EnsureInts(buf []int, size int, fill int) []int {
	if cap(buf) < size {
		buf = make([]int, size)
	} else {
		buf = buf[:size]
	}
	for i := range buf {
		buf[i] = fill
	}
	return buf
}

func LogMemory() {
	s := &runtime.MemStats{}
	runtime.ReadMemStats(s)
	log.Println("*** Memory Info ***")
	log.Println("Bytes Allocated InUse:\t", s.Alloc)
	log.Println("Heap Allocated InUse:\t", s.HeapAlloc)
	log.Println("Heap Objects:\t\t", s.HeapObjects)
	log.Println("*** ***")
}
