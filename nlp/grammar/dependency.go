package grammar

import (
	nlp "factored/nlp/types"
	"factored/util"
)

// ANY_DISTANCE matches every distance bin in table entries
const ANY_DISTANCE = -1

// Distance bin upper bounds: 0, 1, 2-4, 5+
var DEFAULT_DISTANCES = []int{0, 1, 4}

type attachKey struct {
	head, arg int
	dir       nlp.Direction
	dist      int
}

type wordAttachKey struct {
	headWord, head, argWord, arg int
	dir                          nlp.Direction
	dist                         int
}

type stopKey struct {
	bin  int
	dir  nlp.Direction
	dist int
}

// TableDependencyGrammar looks up attach and stop scores by tag bin,
// direction and distance bin, with optional word-specific attach entries.
// Lookups fall back from exact entries to ANY_DISTANCE entries, then to
// wildcard-tag entries, then to the defaults. Tag bins must be declared
// before entries that use them.
type TableDependencyGrammar struct {
	DefaultAttach, DefaultStop float64

	indices   *Indices
	bins      map[int]int
	distances []int
	attach    map[attachKey]float64
	words     map[wordAttachKey]float64
	stop      map[stopKey]float64
}

var _ DependencyGrammar = &TableDependencyGrammar{}

func NewTableDependencyGrammar(indices *Indices) *TableDependencyGrammar {
	return &TableDependencyGrammar{
		DefaultAttach: util.NegInf,
		DefaultStop:   0,
		indices:       indices,
		bins:          make(map[int]int),
		distances:     DEFAULT_DISTANCES,
		attach:        make(map[attachKey]float64),
		words:         make(map[wordAttachKey]float64),
		stop:          make(map[stopKey]float64),
	}
}

// Bin puts tag in the same bin as another tag
func (d *TableDependencyGrammar) Bin(tag, as string) *TableDependencyGrammar {
	d.bins[d.indices.Tags.MustIndexOf(tag)] = d.TagBin(d.indices.Tags.MustIndexOf(as))
	return d
}

// Distances sets the distance bin upper bounds; they must be ascending
func (d *TableDependencyGrammar) Distances(thresholds ...int) *TableDependencyGrammar {
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			panic("Distance thresholds must be ascending")
		}
	}
	d.distances = thresholds
	return d
}

func (d *TableDependencyGrammar) binOf(tag string) int {
	return d.TagBin(d.indices.Tags.MustIndexOf(tag))
}

func (d *TableDependencyGrammar) Attach(head, arg string, dir nlp.Direction, distBin int, score float64) *TableDependencyGrammar {
	d.attach[attachKey{d.binOf(head), d.binOf(arg), dir, distBin}] = score
	return d
}

func (d *TableDependencyGrammar) AttachWords(headWord, head, argWord, arg string, dir nlp.Direction, distBin int, score float64) *TableDependencyGrammar {
	hw, _ := d.indices.Words.Add(headWord)
	aw, _ := d.indices.Words.Add(argWord)
	d.words[wordAttachKey{hw, d.binOf(head), aw, d.binOf(arg), dir, distBin}] = score
	return d
}

func (d *TableDependencyGrammar) Stop(tag string, dir nlp.Direction, distBin int, score float64) *TableDependencyGrammar {
	d.stop[stopKey{d.binOf(tag), dir, distBin}] = score
	return d
}

func (d *TableDependencyGrammar) NumTagBins() int {
	return d.indices.Tags.Len()
}

func (d *TableDependencyGrammar) TagBin(tag int) int {
	if bin, exists := d.bins[tag]; exists {
		return bin
	}
	return tag
}

func (d *TableDependencyGrammar) NumDistanceBins() int {
	return len(d.distances) + 1
}

func (d *TableDependencyGrammar) DistanceBin(distance int) int {
	for i, threshold := range d.distances {
		if distance <= threshold {
			return i
		}
	}
	return len(d.distances)
}

func (d *TableDependencyGrammar) AttachScore(headWord, headBin, argWord, argBin int, dir nlp.Direction, distBin int) float64 {
	if len(d.words) > 0 {
		for _, dist := range [2]int{distBin, ANY_DISTANCE} {
			if score, exists := d.words[wordAttachKey{headWord, headBin, argWord, argBin, dir, dist}]; exists {
				return score
			}
		}
	}
	for _, head := range [2]int{headBin, WILDCARD_TAG_ID} {
		for _, arg := range [2]int{argBin, WILDCARD_TAG_ID} {
			for _, dist := range [2]int{distBin, ANY_DISTANCE} {
				if score, exists := d.attach[attachKey{head, arg, dir, dist}]; exists {
					return score
				}
			}
		}
	}
	return d.DefaultAttach
}

func (d *TableDependencyGrammar) StopScore(word, bin int, dir nlp.Direction, distBin int) float64 {
	for _, b := range [2]int{bin, WILDCARD_TAG_ID} {
		for _, dist := range [2]int{distBin, ANY_DISTANCE} {
			if score, exists := d.stop[stopKey{b, dir, dist}]; exists {
				return score
			}
		}
	}
	return d.DefaultStop
}
