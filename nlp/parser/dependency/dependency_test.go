package dependency

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"factored/nlp/grammar"
	"factored/nlp/grammar/grammartest"
	"factored/nlp/parser"
	nlp "factored/nlp/types"
	"factored/util"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParser(model *grammar.Model) *Parser {
	return &Parser{Dependencies: model.Dependencies, Lexicon: model.Lexicon, MaxLength: 20}
}

type item struct {
	start, end, head, tag int
}

// exhaustive scores every projective head assignment and tagging; items
// maps each (extent, head, tag) to the best tree in which the head's
// partial structure covers that extent at some point of its construction
type exhaustive struct {
	best  float64
	items map[item]float64
}

func enumerate(model *grammar.Model, sentence []int) *exhaustive {
	deps := model.Dependencies
	words := append(append([]int{}, sentence...), grammar.BOUNDARY_WORD_ID)
	n := len(words)
	boundary := n - 1
	result := &exhaustive{best: util.NegInf, items: make(map[item]float64)}

	heads := make([]int, boundary)
	tags := make([]int, n)
	tags[boundary] = grammar.BOUNDARY_TAG_ID
	lo, hi, size := make([]int, n), make([]int, n), make([]int, n)

	score := func() float64 {
		for i := 0; i < n; i++ {
			lo[i], hi[i], size[i] = i, i, 0
		}
		for i := 0; i < n; i++ {
			node := i
			for steps := 0; ; steps++ {
				if steps > n {
					return util.NegInf
				}
				lo[node], hi[node] = util.Min(lo[node], i), util.Max(hi[node], i)
				size[node]++
				if node == boundary {
					break
				}
				node = heads[node]
			}
		}
		for i := 0; i < n; i++ {
			if hi[i]-lo[i]+1 != size[i] {
				return util.NegInf
			}
		}
		total := 0.0
		for i := 0; i < boundary; i++ {
			h := heads[i]
			dir, dist := nlp.LEFT, h-(hi[i]+1)
			if i > h {
				dir, dist = nlp.RIGHT, lo[i]-h-1
			}
			hb, ab := deps.TagBin(tags[h]), deps.TagBin(tags[i])
			total += deps.AttachScore(words[h], hb, words[i], ab, dir, deps.DistanceBin(dist))
			total += deps.StopScore(words[i], ab, nlp.LEFT, deps.DistanceBin(i-lo[i]))
			total += deps.StopScore(words[i], ab, nlp.RIGHT, deps.DistanceBin(hi[i]-i))
		}
		return total
	}
	record := func() {
		total := score()
		if math.IsInf(total, -1) {
			return
		}
		result.best = math.Max(result.best, total)
		for i := 0; i < n; i++ {
			// every extent the head passes through while taking its
			// dependents outward on each side
			starts, ends := []int{i}, []int{i + 1}
			for a := 0; a < boundary; a++ {
				if heads[a] != i {
					continue
				}
				if a < i {
					starts = append(starts, lo[a])
				} else {
					ends = append(ends, hi[a]+1)
				}
			}
			for _, s := range starts {
				for _, e := range ends {
					key := item{s, e, i, tags[i]}
					if old, exists := result.items[key]; !exists || total > old {
						result.items[key] = total
					}
				}
			}
		}
	}

	var tagAt func(pos int)
	tagAt = func(pos int) {
		if pos == boundary {
			record()
			return
		}
		for _, ts := range model.Lexicon.PossibleTags(words[pos], pos) {
			tags[pos] = ts.Tag
			tagAt(pos + 1)
		}
	}
	var headAt func(pos int)
	headAt = func(pos int) {
		if pos == boundary {
			tagAt(0)
			return
		}
		for h := 0; h < n; h++ {
			if h != pos {
				heads[pos] = h
				headAt(pos + 1)
			}
		}
	}
	headAt(0)
	return result
}

func TestDogBarks(t *testing.T) {
	model := grammartest.DogBarks(false)
	p := newParser(model)
	require.NoError(t, p.Parse(context.Background(), model.Indices.WordIDs([]string{"dog", "barks"})))
	require.True(t, p.HasParse())

	tags := model.Indices.Tags
	n, v := tags.MustIndexOf("N"), tags.MustIndexOf("V")
	// the boundary may take both words directly
	assert.InDelta(t, 0, p.BestScore(), 1e-12)
	assert.InDelta(t, -0.2, p.IScore(0, 2, 1, v), 1e-12)
	assert.InDelta(t, 0, p.OScore(0, 2, 1, v), 1e-12)
	assert.InDelta(t, -5, p.IScore(0, 2, 0, n), 1e-12)
	assert.InDelta(t, -0.2, p.AttachScore(1, v, 0, n, 0), 1e-12)
	assert.InDelta(t, 0, p.StopScore(1, v, 0, 2), 1e-12)
	assert.True(t, math.IsInf(p.IScore(0, 2, 1, n), -1))

	assert.True(t, p.IPossibleL(0, 1, v))
	assert.True(t, p.IPossibleR(2, 1, v))
	assert.False(t, p.IPossibleR(3, 1, v))
	assert.True(t, p.OPossibleL(0, 1, v))
	assert.True(t, p.OPossibleR(2, 0, n))
	assert.False(t, p.OPossibleL(0, 1, n))
}

func TestAgainstEnumeration(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for trial := 0; trial < 30; trial++ {
		model := grammartest.Random(r)
		sentence := grammartest.Sentence(r, 1+r.Intn(4))
		words := model.Indices.WordIDs(sentence)
		p := newParser(model)
		require.NoError(t, p.Parse(context.Background(), words))
		expected := enumerate(model, words)
		require.True(t, p.HasParse(), "trial %d", trial)
		assert.InDelta(t, expected.best, p.BestScore(), 1e-9, "trial %d", trial)

		n := len(words) + 1
		tagCount := model.Indices.Tags.Len()
		for s := 0; s < n; s++ {
			for e := s + 1; e <= n; e++ {
				for h := s; h < e; h++ {
					if h == n-1 && s > 0 {
						// the boundary always ends with the whole sentence
						continue
					}
					for tag := 0; tag < tagCount; tag++ {
						total := p.IScore(s, e, h, tag) + p.OScore(s, e, h, tag)
						want, exists := expected.items[item{s, e, h, tag}]
						if !exists {
							assert.True(t, math.IsInf(total, -1), "trial %d item %d %d %d %d", trial, s, e, h, tag)
							continue
						}
						assert.InDelta(t, want, total, 1e-9, "trial %d item %d %d %d %d", trial, s, e, h, tag)
						assert.True(t, p.OPossibleL(s, h, tag))
						assert.True(t, p.OPossibleR(e, h, tag))
						assert.True(t, p.IPossibleL(s, h, tag))
						assert.True(t, p.IPossibleR(e, h, tag))
					}
				}
			}
		}

		// every word heads some structure of the best parse
		for h := 0; h < n; h++ {
			covered := util.NegInf
			for s := 0; s <= h; s++ {
				for e := h + 1; e <= n; e++ {
					for tag := 0; tag < tagCount; tag++ {
						covered = math.Max(covered, p.IScore(s, e, h, tag)+p.OScore(s, e, h, tag))
					}
				}
			}
			assert.InDelta(t, expected.best, covered, 1e-9, "trial %d head %d", trial, h)
		}

		require.NoError(t, p.Parse(context.Background(), words))
		assert.InDelta(t, expected.best, p.BestScore(), 1e-9, "trial %d", trial)
	}
}

func TestNoParse(t *testing.T) {
	model := grammartest.Flip(true)
	deps := model.Dependencies
	p := &Parser{Dependencies: blocked{deps}, Lexicon: model.Lexicon}
	require.NoError(t, p.Parse(context.Background(), model.Indices.WordIDs([]string{"x", "y"})))
	assert.False(t, p.HasParse())
}

// blocked forbids every attachment
type blocked struct {
	*grammar.TableDependencyGrammar
}

func (blocked) AttachScore(int, int, int, int, nlp.Direction, int) float64 {
	return util.NegInf
}

func TestLimits(t *testing.T) {
	model := grammartest.DogBarks(false)
	p := newParser(model)
	p.MaxLength = 1
	err := p.Parse(context.Background(), model.Indices.WordIDs([]string{"dog", "barks"}))
	assert.True(t, errors.Is(err, parser.ErrLengthExceeded))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.MaxLength = 0
	err = p.Parse(ctx, model.Indices.WordIDs([]string{"dog", "barks"}))
	assert.True(t, errors.Is(err, parser.ErrCancelled))
}
