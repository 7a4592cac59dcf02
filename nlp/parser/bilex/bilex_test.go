package bilex

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"factored/nlp/grammar"
	"factored/nlp/grammar/grammartest"
	"factored/nlp/parser"
	"factored/nlp/parser/chart"
	nlp "factored/nlp/types"
	"factored/util"
	"factored/util/conf"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lexicalized CKY over (start, end, state, head, tag), scoring exactly what
// the search scores; it returns the best inside score of every edge
func reference(model *grammar.Model, sentence []string) func(key chart.EdgeKey) float64 {
	g := model.Grammar
	deps := model.Dependencies
	words := append(model.Indices.WordIDs(sentence), grammar.BOUNDARY_WORD_ID)
	n := len(words)
	boundary := n - 1
	states, tags := g.NumStates(), model.Indices.Tags.Len()
	type cell = []float64
	idx := func(state, head, tag int) int { return (state*n+head)*tags + tag }
	chartCells := make([][]cell, n+1)
	for i := range chartCells {
		chartCells[i] = make([]cell, n+1)
		for j := range chartCells[i] {
			chartCells[i][j] = util.EnsureFloats(nil, states*n*tags, util.NegInf)
		}
	}
	attach := func(h, ht, a, at int, dir nlp.Direction, dist int) float64 {
		return deps.AttachScore(words[h], deps.TagBin(ht), words[a], deps.TagBin(at), dir, deps.DistanceBin(dist))
	}
	stops := func(a, at, s, e int) float64 {
		bin := deps.TagBin(at)
		return deps.StopScore(words[a], bin, nlp.LEFT, deps.DistanceBin(a-s)) +
			deps.StopScore(words[a], bin, nlp.RIGHT, deps.DistanceBin(e-a-1))
	}
	unaries := func(c cell, s, e int) {
		for changed := true; changed; {
			changed = false
			for parent := 0; parent < states; parent++ {
				for child := 0; child < states; child++ {
					score := g.UnaryScore(parent, child)
					if math.IsInf(score, -1) {
						continue
					}
					for h := s; h < e; h++ {
						for t := 0; t < tags; t++ {
							if tot := c[idx(child, h, t)] + score; tot > c[idx(parent, h, t)]+1e-12 {
								c[idx(parent, h, t)] = tot
								changed = true
							}
						}
					}
				}
			}
		}
	}
	for pos := 0; pos < n; pos++ {
		for _, ts := range model.Lexicon.PossibleTags(words[pos], pos) {
			chartCells[pos][pos+1][idx(g.TagState(ts.Tag), pos, ts.Tag)] = ts.Score
		}
		unaries(chartCells[pos][pos+1], pos, pos+1)
	}
	for width := 2; width <= n; width++ {
		for s := 0; s+width <= n; s++ {
			e := s + width
			c := chartCells[s][e]
			for m := s + 1; m < e; m++ {
				left, right := chartCells[s][m], chartCells[m][e]
				for a := 0; a < states; a++ {
					for _, rule := range g.RulesByLeftChild(a) {
						for lh := s; lh < m; lh++ {
							for lt := 0; lt < tags; lt++ {
								ls := left[idx(a, lh, lt)]
								if math.IsInf(ls, -1) {
									continue
								}
								for rh := m; rh < e; rh++ {
									for rt := 0; rt < tags; rt++ {
										rs := right[idx(rule.Right, rh, rt)]
										if math.IsInf(rs, -1) {
											continue
										}
										base := ls + rs + rule.Score
										// right child heads, left child depends
										if !g.IsSynthetic(a) && lh != boundary {
											tot := base + attach(rh, rt, lh, lt, nlp.LEFT, rh-m) + stops(lh, lt, s, m)
											if tot > c[idx(rule.Parent, rh, rt)] {
												c[idx(rule.Parent, rh, rt)] = tot
											}
										}
										if !g.IsSynthetic(rule.Right) && rh != boundary {
											tot := base + attach(lh, lt, rh, rt, nlp.RIGHT, m-lh-1) + stops(rh, rt, m, e)
											if tot > c[idx(rule.Parent, lh, lt)] {
												c[idx(rule.Parent, lh, lt)] = tot
											}
										}
									}
								}
							}
						}
					}
				}
			}
			unaries(c, s, e)
		}
	}
	return func(key chart.EdgeKey) float64 {
		return chartCells[key.Start][key.End][idx(key.State, key.Head, key.Tag)]
	}
}

// rescore recomputes the score of a derivation tree from the model tables
func rescore(t *testing.T, model *grammar.Model, words []int, node *nlp.Tree) float64 {
	g := model.Grammar
	deps := model.Dependencies
	state, ok := g.State(node.Label)
	require.True(t, ok, node.Label)
	if node.IsPreterminal() {
		return model.Lexicon.Score(words[node.Start], model.Indices.Tags.MustIndexOf(node.Tag), node.Start)
	}
	if len(node.Children) == 1 {
		child := node.Children[0]
		childState, _ := g.State(child.Label)
		return g.UnaryScore(state, childState) + rescore(t, model, words, child)
	}
	require.Len(t, node.Children, 2)
	left, right := node.Children[0], node.Children[1]
	ls, _ := g.State(left.Label)
	rs, _ := g.State(right.Label)
	score := g.BinaryScore(state, ls, rs) + rescore(t, model, words, left) + rescore(t, model, words, right)

	dependent, dir, dist := left, nlp.LEFT, node.Head-left.End
	if left.Head == node.Head {
		dependent, dir, dist = right, nlp.RIGHT, right.Start-node.Head-1
	}
	headTag := model.Indices.Tags.MustIndexOf(lexicalTag(node))
	argTag := model.Indices.Tags.MustIndexOf(lexicalTag(dependent))
	hb, ab := deps.TagBin(headTag), deps.TagBin(argTag)
	a := dependent.Head
	score += deps.AttachScore(words[node.Head], hb, words[a], ab, dir, deps.DistanceBin(dist))
	score += deps.StopScore(words[a], ab, nlp.LEFT, deps.DistanceBin(a-dependent.Start))
	score += deps.StopScore(words[a], ab, nlp.RIGHT, deps.DistanceBin(dependent.End-a-1))
	return score
}

// lexicalTag finds the tag of the node's head word
func lexicalTag(node *nlp.Tree) string {
	tag := ""
	node.Walk(func(n *nlp.Tree) bool {
		if n.IsPreterminal() && n.Head == node.Head {
			tag = n.Tag
			return false
		}
		return tag == ""
	})
	return tag
}

func committedGoal(p *Parser) int {
	for i := range p.chart.Edges {
		if e := p.chart.Edge(i); e.State == p.goal && e.Status == chart.COMMITTED {
			return i
		}
	}
	return -1
}

func TestDogBarks(t *testing.T) {
	tokens := []string{"dog", "barks"}
	p := NewParser(grammartest.DogBarks(false))
	result, err := p.Parse(context.Background(), tokens)
	require.NoError(t, err)
	assert.InDelta(t, -1.3, result.Score, 1e-12)
	assert.Equal(t, "(S (NP (N dog)) (VP (V barks)))", result.Tree.String())
	assert.Equal(t, 1, result.Tree.Head)
	assert.Equal(t, []int{1, -1}, result.Dependencies)
	assert.True(t, result.Items > 0)

	p = NewParser(grammartest.DogBarks(true))
	result, err = p.Parse(context.Background(), tokens)
	require.NoError(t, err)
	assert.InDelta(t, -1.3, result.Score, 1e-12)
	assert.Equal(t, 0, result.Tree.Head)
	assert.Equal(t, []int{-1, 0}, result.Dependencies)
}

func TestDependenciesChooseBracketing(t *testing.T) {
	tokens := []string{"x", "y", "z"}
	p := NewParser(grammartest.Flip(true))
	result, err := p.Parse(context.Background(), tokens)
	require.NoError(t, err)
	assert.InDelta(t, -2.2, result.Score, 1e-12)
	assert.Equal(t, "(S (P (X x) (Y y)) (Z z))", result.Tree.String())
	assert.Equal(t, []int{2, 0, -1}, result.Dependencies)

	p = NewParser(grammartest.Flip(false))
	result, err = p.Parse(context.Background(), tokens)
	require.NoError(t, err)
	assert.InDelta(t, -2.2, result.Score, 1e-12)
	assert.Equal(t, "(S (X x) (Q (Y y) (Z z)))", result.Tree.String())
	assert.Equal(t, []int{-1, 2, 0}, result.Dependencies)
}

func TestAgainstReference(t *testing.T) {
	r := rand.New(rand.NewSource(17))
	parsed := 0
	for trial := 0; trial < 40; trial++ {
		model := grammartest.Random(r)
		sentence := grammartest.Sentence(r, 1+r.Intn(4))
		inside := reference(model, sentence)
		n := len(sentence) + 1
		expected := inside(chart.EdgeKey{Start: 0, End: n, State: model.Grammar.Goal(), Head: n - 1, Tag: grammar.BOUNDARY_TAG_ID})

		p := NewParser(model)
		result, err := p.Parse(context.Background(), sentence)
		if math.IsInf(expected, -1) {
			assert.True(t, errors.Is(err, parser.ErrNoParse), "trial %d: %v", trial, err)
			continue
		}
		parsed++
		require.NoError(t, err, "trial %d %s", trial, strings.Join(sentence, " "))
		assert.InDelta(t, expected, result.Score, 1e-7, "trial %d", trial)
		assert.Equal(t, sentence, result.Tree.Yield())
		assert.Equal(t, "S", result.Tree.Label)

		// the derivation scores what the search claims, and no item on it
		// was overestimated
		goal := committedGoal(p)
		require.True(t, goal >= 0)
		words := append(model.Indices.WordIDs(sentence), grammar.BOUNDARY_WORD_ID)
		top := p.chart.Hook(p.chart.Edge(goal).BackHook).BackEdge
		derivation := p.tree(top)
		deps := model.Dependencies
		head := derivation.Head
		headBin := deps.TagBin(model.Indices.Tags.MustIndexOf(lexicalTag(derivation)))
		boundaryBin := deps.TagBin(grammar.BOUNDARY_TAG_ID)
		total := rescore(t, model, words, derivation) +
			deps.AttachScore(grammar.BOUNDARY_WORD_ID, boundaryBin, words[head], headBin, nlp.LEFT, deps.DistanceBin(0)) +
			deps.StopScore(words[head], headBin, nlp.LEFT, deps.DistanceBin(head)) +
			deps.StopScore(words[head], headBin, nlp.RIGHT, deps.DistanceBin(len(sentence)-head-1))
		assert.InDelta(t, result.Score, total, 1e-9, "trial %d", trial)
		checkAdmissible(t, p, goal, result.Score)

		// committed edges are never improved on later
		for i := range p.chart.Edges {
			if e := p.chart.Edge(i); e.Status == chart.COMMITTED {
				assert.InDelta(t, inside(e.EdgeKey), e.Inside, 1e-7, "trial %d %v", trial, e)
			}
		}
	}
	assert.True(t, parsed > 10, "too few parseable trials: %d", parsed)
}

func checkAdmissible(t *testing.T, p *Parser, idx int, best float64) {
	e := p.chart.Edge(idx)
	assert.True(t, e.Inside+e.Outside >= best-1e-7, "%v", e)
	if e.BackHook >= 0 {
		hook := p.chart.Hook(e.BackHook)
		assert.True(t, hook.Inside+hook.Outside >= best-1e-7, "%v", hook)
		checkAdmissible(t, p, hook.BackEdge, best)
	}
	if e.BackEdge >= 0 {
		checkAdmissible(t, p, e.BackEdge, best)
	}
}

func TestDeterminism(t *testing.T) {
	r := rand.New(rand.NewSource(23))
	model := grammartest.Random(r)
	shared := NewParser(model)
	for trial := 0; trial < 10; trial++ {
		sentence := grammartest.Sentence(r, 2+r.Intn(3))
		first, err := shared.Parse(context.Background(), sentence)
		if err != nil {
			continue
		}
		again, err := NewParser(model).Parse(context.Background(), sentence)
		require.NoError(t, err)
		assert.Equal(t, first.Tree.String(), again.Tree.String())
		assert.Equal(t, first.Score, again.Score)
		assert.Equal(t, first.Items, again.Items)
		assert.Equal(t, first.Dependencies, again.Dependencies)
	}
}

func TestKGood(t *testing.T) {
	tokens := []string{"x", "y", "z"}
	p := NewParser(grammartest.Flip(true))
	results, err := p.ParseKGood(context.Background(), tokens, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.InDelta(t, -2.2, results[0].Score, 1e-12)
	roots := map[int]bool{}
	for i, result := range results {
		if i > 0 {
			assert.True(t, result.Score <= results[i-1].Score)
		}
		for word, head := range result.Dependencies {
			if head == -1 {
				roots[word] = true
			}
		}
	}
	assert.Len(t, roots, 3)

	best, err := p.Parse(context.Background(), tokens)
	require.NoError(t, err)
	assert.Equal(t, results[0].Tree.String(), best.Tree.String())

	_, err = p.ParseKGood(context.Background(), tokens, 0)
	assert.Error(t, err)
}

func TestSingleWord(t *testing.T) {
	indices := grammar.NewIndices()
	lex := grammar.NewTableLexicon(indices).Add("w", "T", -1).Add("w", "U", -0.5)
	g, err := grammar.NewBuilder(indices, "S").Unary("S", "T", 0).Unary("S", "U", -2).Build()
	require.NoError(t, err)
	deps := grammar.NewTableDependencyGrammar(indices)
	deps.DefaultAttach = 0
	indices.Freeze()
	model := &grammar.Model{Indices: indices, Grammar: g, Lexicon: lex, Dependencies: deps}

	result, err := NewParser(model).Parse(context.Background(), []string{"w"})
	require.NoError(t, err)
	assert.InDelta(t, -1, result.Score, 1e-12)
	assert.Equal(t, "(S (T w))", result.Tree.String())
	assert.Equal(t, []int{-1}, result.Dependencies)
}

func TestFailures(t *testing.T) {
	model := grammartest.DogBarks(false)
	p := NewParser(model)

	_, err := p.Parse(context.Background(), nil)
	assert.True(t, errors.Is(err, parser.ErrEmptySentence))
	assert.True(t, errors.Is(err, parser.ErrNoParse))

	_, err = p.Parse(context.Background(), []string{"barks", "dog"})
	assert.True(t, errors.Is(err, parser.ErrNoParse))

	long := make([]string, conf.DEFAULT_MAX_LENGTH+1)
	for i := range long {
		long[i] = "dog"
	}
	_, err = p.Parse(context.Background(), long)
	assert.True(t, errors.Is(err, parser.ErrLengthExceeded))

	p.MaxLength = 1
	_, err = p.Parse(context.Background(), []string{"dog", "barks"})
	assert.True(t, errors.Is(err, parser.ErrLengthExceeded))
	p.MaxLength = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Parse(ctx, []string{"dog", "barks"})
	assert.True(t, errors.Is(err, parser.ErrCancelled))

	// the parser is usable after failures
	result, err := p.Parse(context.Background(), []string{"dog", "barks"})
	require.NoError(t, err)
	assert.InDelta(t, -1.3, result.Score, 1e-12)
}

func TestWorkLimit(t *testing.T) {
	p := NewParser(grammartest.Dense(8))
	p.MaxItems = 300
	sentence := make([]string, 50)
	for i := range sentence {
		sentence[i] = "w"
	}
	_, err := p.Parse(context.Background(), sentence)
	assert.True(t, errors.Is(err, parser.ErrWorkLimitExceeded))
	assert.False(t, errors.Is(err, parser.ErrNoParse))
}

func TestConcurrentParsers(t *testing.T) {
	r := rand.New(rand.NewSource(29))
	model := grammartest.Random(r)
	sentences := make([][]string, 24)
	for i := range sentences {
		sentences[i] = grammartest.Sentence(r, 1+r.Intn(4))
	}
	type outcome struct {
		tree  string
		score float64
		err   error
	}
	parseAll := func(p *Parser, indices []int, out []outcome) {
		for _, i := range indices {
			result, err := p.Parse(context.Background(), sentences[i])
			if err != nil {
				out[i] = outcome{err: err}
				continue
			}
			out[i] = outcome{tree: result.Tree.String(), score: result.Score}
		}
	}
	sequential := make([]outcome, len(sentences))
	all := make([]int, len(sentences))
	for i := range all {
		all[i] = i
	}
	parseAll(NewParser(model), all, sequential)

	parallel := make([]outcome, len(sentences))
	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		var mine []int
		for i := worker; i < len(sentences); i += 4 {
			mine = append(mine, i)
		}
		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()
			parseAll(NewParser(model), indices, parallel)
		}(mine)
	}
	wg.Wait()
	for i := range sentences {
		assert.Equal(t, sequential[i].tree, parallel[i].tree)
		assert.Equal(t, sequential[i].score, parallel[i].score)
		assert.Equal(t, sequential[i].err == nil, parallel[i].err == nil)
	}
}

// merging P and Q of Flip into one coarse state keeps every fine rule
// score, so the coarse outside scores bound the fine ones
func TestCoarseProjection(t *testing.T) {
	tokens := []string{"x", "y", "z"}
	for _, leftPair := range []bool{true, false} {
		model := grammartest.Flip(leftPair)
		indices := grammar.NewIndices()
		indices.Tags, indices.Words = model.Indices.Tags, model.Indices.Words
		coarse, err := grammar.NewBuilder(indices, "S").
			Binary("S", "C", "Z", -1).
			Binary("C", "X", "Y", -1).
			Binary("S", "X", "C", -1).
			Binary("C", "Y", "Z", -1).
			Build()
		require.NoError(t, err)

		merged := map[string]string{"P": "C", "Q": "C"}
		project := make([]int, model.Grammar.NumStates())
		for state := range project {
			name := model.Grammar.StateName(state)
			if to, ok := merged[name]; ok {
				name = to
			}
			coarseState, ok := coarse.State(name)
			require.True(t, ok, name)
			project[state] = coarseState
		}
		assert.NotEqual(t, coarse.NumStates(), model.Grammar.NumStates())

		expected, err := NewParser(model).Parse(context.Background(), tokens)
		require.NoError(t, err)
		p := NewParser(model)
		p.Coarse = coarse
		p.Project = func(state int) int { return project[state] }
		result, err := p.Parse(context.Background(), tokens)
		require.NoError(t, err)
		assert.InDelta(t, expected.Score, result.Score, 1e-12)
		assert.Equal(t, expected.Tree.String(), result.Tree.String())
		assert.Equal(t, expected.Dependencies, result.Dependencies)
		assert.InDelta(t, -2.0, p.pcfg.BestScore(), 1e-12)
	}
}

// no item's inside score ever drops during a search, and committed items
// are never rescored
func TestInsideScoresOnlyImprove(t *testing.T) {
	r := rand.New(rand.NewSource(31))
	checked := 0
	for trial := 0; trial < 20; trial++ {
		model := grammartest.Random(r)
		sentence := grammartest.Sentence(r, 1+r.Intn(4))
		p := NewParser(model)
		if err := p.prepare(context.Background(), sentence, 1); err != nil {
			continue
		}
		checked++
		var (
			edges, hooks             []float64
			edgesFinal, hooksFinal   []bool
			dropped, rescored, goals int
		)
		for p.agenda.Len() > 0 && goals == 0 {
			item := p.agenda.Next()
			if math.IsInf(p.chart.Score(item), -1) {
				break
			}
			if p.pop(item) {
				goals++
			}
			for i, e := range p.chart.Edges {
				if i < len(edges) {
					if e.Inside < edges[i] {
						dropped++
					}
					if edgesFinal[i] && e.Inside != edges[i] {
						rescored++
					}
				}
			}
			for i, h := range p.chart.Hooks {
				if i < len(hooks) {
					if h.Inside < hooks[i] {
						dropped++
					}
					if hooksFinal[i] && h.Inside != hooks[i] {
						rescored++
					}
				}
			}
			edges, edgesFinal = edges[:0], edgesFinal[:0]
			for _, e := range p.chart.Edges {
				edges = append(edges, e.Inside)
				edgesFinal = append(edgesFinal, e.Status == chart.COMMITTED)
			}
			hooks, hooksFinal = hooks[:0], hooksFinal[:0]
			for _, h := range p.chart.Hooks {
				hooks = append(hooks, h.Inside)
				hooksFinal = append(hooksFinal, h.Status == chart.COMMITTED)
			}
		}
		assert.Zero(t, dropped, "trial %d", trial)
		assert.Zero(t, rescored, "trial %d", trial)
	}
	assert.True(t, checked > 2, "too few parseable trials: %d", checked)
}
