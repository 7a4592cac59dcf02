// Package pcfg is an exhaustive CYK parser over a binarized PCFG. Besides
// the Viterbi parse it exposes inside and outside scores and the
// reachability predicates used to prune the factored search.
package pcfg

import (
	"context"
	"log"
	"math"
	"regexp"

	"factored/nlp/grammar"
	"factored/nlp/parser"
	nlp "factored/nlp/types"
	"factored/util"

	"github.com/bits-and-blooms/bitset"
)

const DEFAULT_STEP = 10.0

// back pointer markers stored in place of a split point
const (
	UNARY = -1
	LEAF  = -2
)

// Constraint restricts the parse over the window [Start, End): no
// constituent may cross it, and a constituent exactly covering it must
// have a state name matching Pattern.
type Constraint struct {
	Start, End int
	Pattern    *regexp.Regexp
}

func (c Constraint) crosses(start, end int) bool {
	return (start < c.Start && c.Start < end && end < c.End) ||
		(c.Start < start && start < c.End && c.End < end)
}

type Parser struct {
	Grammar             grammar.Tables
	Lexicon             grammar.Lexicon
	MaxLength           int
	LengthNormalization bool
	IterativeDeepening  bool
	Step                float64
	Constraints         []Constraint
	Log                 bool

	length, numStates, numTags int
	words                      []int
	floor                      float64
	hasParse                   bool

	iScore, oScore []float64
	wordsInSpan    []int
	backSplit      []int
	backLeft       []int
	backRight      []int
	leafScores     []float64
	scratch        []float64

	narrowRExtent, wideRExtent []int
	narrowLExtent, wideLExtent []int

	iPossibleL, iPossibleR, oPossibleL, oPossibleR *bitset.BitSet
}

func (p *Parser) cell(start, end int) int {
	return (start*(p.length+1) + end) * p.numStates
}

// Parse fills the chart for words (the boundary is appended internally).
// A sentence without a parse is not an error; see HasParse.
func (p *Parser) Parse(ctx context.Context, words []int) error {
	if err := parser.CheckLength(len(words), p.MaxLength); err != nil {
		return err
	}
	p.init(words)
	if p.IterativeDeepening {
		step := p.Step
		if step <= 0 {
			step = DEFAULT_STEP
		}
		for floor := -step; ; floor -= step {
			p.floor = floor
			pruned, err := p.inside(ctx)
			if err != nil {
				return err
			}
			if !math.IsInf(p.BestScore(), -1) || !pruned {
				break
			}
			if p.Log {
				log.Printf("No parse above %v, deepening", floor)
			}
		}
	} else {
		p.floor = util.NegInf
		if _, err := p.inside(ctx); err != nil {
			return err
		}
	}
	p.hasParse = !math.IsInf(p.BestScore(), -1)
	if !p.hasParse {
		if p.Log {
			log.Println("No PCFG parse for sentence of length", len(words))
		}
		return nil
	}
	if err := p.outside(ctx); err != nil {
		return err
	}
	p.setPredicates()
	return nil
}

func (p *Parser) init(words []int) {
	p.length = len(words) + 1
	p.numStates = p.Grammar.NumStates()
	p.numTags = p.Grammar.NumTags()
	p.words = append(append(p.words[:0], words...), grammar.BOUNDARY_WORD_ID)
	p.hasParse = false

	n, s := p.length, p.numStates
	size := (n + 1) * (n + 1) * s
	p.iScore = util.EnsureFloats(p.iScore, size, util.NegInf)
	p.oScore = util.EnsureFloats(p.oScore, size, util.NegInf)
	p.wordsInSpan = util.EnsureInts(p.wordsInSpan, size, 0)
	p.backSplit = util.EnsureInts(p.backSplit, size, 0)
	p.backLeft = util.EnsureInts(p.backLeft, size, 0)
	p.backRight = util.EnsureInts(p.backRight, size, 0)
	p.leafScores = util.EnsureFloats(p.leafScores, n*p.numTags, util.NegInf)
	p.scratch = util.EnsureFloats(p.scratch, s, util.NegInf)

	bits := uint((n + 1) * s)
	p.iPossibleL = ensureBits(p.iPossibleL, bits)
	p.iPossibleR = ensureBits(p.iPossibleR, bits)
	p.oPossibleL = ensureBits(p.oPossibleL, bits)
	p.oPossibleR = ensureBits(p.oPossibleR, bits)
}

func ensureBits(b *bitset.BitSet, size uint) *bitset.BitSet {
	if b == nil || b.Len() < size {
		return bitset.New(size)
	}
	return b.ClearAll()
}

func (p *Parser) tags(pos int) []grammar.TagScore {
	if pos == p.length-1 {
		return []grammar.TagScore{{Tag: grammar.BOUNDARY_TAG_ID, Score: 0}}
	}
	return p.Lexicon.PossibleTags(p.words[pos], pos)
}

// spanWords counts the terminal words in a span; the boundary is not one
func (p *Parser) spanWords(start, end int) int {
	if end == p.length {
		return end - start - 1
	}
	return end - start
}

func (p *Parser) better(idx int, score float64, words int) bool {
	current := p.iScore[idx]
	if math.IsInf(current, -1) {
		return !math.IsInf(score, -1)
	}
	if p.LengthNormalization {
		return score/float64(util.Max(words, 1)) > current/float64(util.Max(p.wordsInSpan[idx], 1))
	}
	return score > current
}

func (p *Parser) set(idx int, score float64, words, split, left, right int) {
	p.iScore[idx] = score
	p.wordsInSpan[idx] = words
	p.backSplit[idx] = split
	p.backLeft[idx] = left
	p.backRight[idx] = right
}

func (p *Parser) inside(ctx context.Context) (bool, error) {
	n, s := p.length, p.numStates
	for i := range p.iScore {
		p.iScore[i] = util.NegInf
	}
	p.narrowRExtent = util.EnsureInts(p.narrowRExtent, (n+1)*s, n+1)
	p.wideRExtent = util.EnsureInts(p.wideRExtent, (n+1)*s, -1)
	p.narrowLExtent = util.EnsureInts(p.narrowLExtent, (n+1)*s, -1)
	p.wideLExtent = util.EnsureInts(p.wideLExtent, (n+1)*s, n+1)

	pruned := false
	for pos := 0; pos < n; pos++ {
		base := p.cell(pos, pos+1)
		words := p.spanWords(pos, pos+1)
		for _, ts := range p.tags(pos) {
			p.leafScores[pos*p.numTags+ts.Tag] = ts.Score
			state := p.Grammar.TagState(ts.Tag)
			if p.better(base+state, ts.Score, words) {
				p.set(base+state, ts.Score, words, LEAF, ts.Tag, -1)
			}
		}
		p.closeUnary(pos, pos+1)
		pruned = p.prune(pos, pos+1) || pruned
		p.updateExtents(pos, pos+1)
	}
	for diff := 2; diff <= n; diff++ {
		if err := parser.Cancelled(ctx); err != nil {
			return pruned, err
		}
		for start := 0; start+diff <= n; start++ {
			end := start + diff
			if p.crossesConstraint(start, end) {
				continue
			}
			p.binaries(start, end)
			p.closeUnary(start, end)
			pruned = p.prune(start, end) || pruned
			p.updateExtents(start, end)
		}
	}
	return pruned, nil
}

func (p *Parser) binaries(start, end int) {
	s := p.numStates
	base := p.cell(start, end)
	words := p.spanWords(start, end)
	for left := 0; left < s; left++ {
		narrowR := p.narrowRExtent[start*s+left]
		if narrowR >= end {
			continue
		}
		wideR := p.wideRExtent[start*s+left]
		for _, rule := range p.Grammar.RulesByLeftChild(left) {
			lo := util.Max(narrowR, p.wideLExtent[end*s+rule.Right])
			hi := util.Min(wideR, p.narrowLExtent[end*s+rule.Right])
			if lo > hi {
				continue
			}
			best, bestSplit := util.NegInf, -1
			for split := lo; split <= hi; split++ {
				ls := p.iScore[p.cell(start, split)+left]
				if math.IsInf(ls, -1) {
					continue
				}
				rs := p.iScore[p.cell(split, end)+rule.Right]
				if math.IsInf(rs, -1) {
					continue
				}
				if ls+rs > best {
					best, bestSplit = ls+rs, split
				}
			}
			if bestSplit < 0 {
				continue
			}
			if tot := best + rule.Score; p.better(base+rule.Parent, tot, words) {
				p.set(base+rule.Parent, tot, words, bestSplit, left, rule.Right)
			}
		}
	}
}

// closeUnary applies the unary closure to the scores the cell had before
// any unary rule fired.
func (p *Parser) closeUnary(start, end int) {
	base := p.cell(start, end)
	words := p.spanWords(start, end)
	copy(p.scratch, p.iScore[base:base+p.numStates])
	for child, score := range p.scratch {
		if math.IsInf(score, -1) {
			continue
		}
		for _, rule := range p.Grammar.UnaryClosureByChild(child) {
			if tot := score + rule.Score; p.better(base+rule.Parent, tot, words) {
				p.set(base+rule.Parent, tot, words, UNARY, child, -1)
			}
		}
	}
}

func (p *Parser) crossesConstraint(start, end int) bool {
	for _, c := range p.Constraints {
		if c.crosses(start, end) {
			return true
		}
	}
	return false
}

// prune drops states below the deepening floor and states a constraint
// window does not admit; it reports whether the floor removed anything.
func (p *Parser) prune(start, end int) bool {
	var window *regexp.Regexp
	for _, c := range p.Constraints {
		if c.Start == start && c.End == end && c.Pattern != nil {
			window = c.Pattern
		}
	}
	base := p.cell(start, end)
	pruned := false
	for state := 0; state < p.numStates; state++ {
		score := p.iScore[base+state]
		if math.IsInf(score, -1) {
			continue
		}
		if window != nil && !window.MatchString(p.Grammar.StateName(state)) {
			p.iScore[base+state] = util.NegInf
			continue
		}
		if score < p.floor {
			p.iScore[base+state] = util.NegInf
			pruned = true
		}
	}
	return pruned
}

func (p *Parser) updateExtents(start, end int) {
	s := p.numStates
	base := p.cell(start, end)
	for state := 0; state < s; state++ {
		if math.IsInf(p.iScore[base+state], -1) {
			continue
		}
		if end < p.narrowRExtent[start*s+state] {
			p.narrowRExtent[start*s+state] = end
		}
		if end > p.wideRExtent[start*s+state] {
			p.wideRExtent[start*s+state] = end
		}
		if start > p.narrowLExtent[end*s+state] {
			p.narrowLExtent[end*s+state] = start
		}
		if start < p.wideLExtent[end*s+state] {
			p.wideLExtent[end*s+state] = start
		}
	}
}

func (p *Parser) outside(ctx context.Context) error {
	n, s := p.length, p.numStates
	for i := range p.oScore {
		p.oScore[i] = util.NegInf
	}
	p.oScore[p.cell(0, n)+p.Grammar.Goal()] = 0
	for diff := n; diff >= 1; diff-- {
		if err := parser.Cancelled(ctx); err != nil {
			return err
		}
		for start := 0; start+diff <= n; start++ {
			end := start + diff
			base := p.cell(start, end)
			copy(p.scratch, p.oScore[base:base+s])
			for parent, score := range p.scratch {
				if math.IsInf(score, -1) {
					continue
				}
				for _, rule := range p.Grammar.UnaryClosureByParent(parent) {
					if math.IsInf(p.iScore[base+rule.Child], -1) {
						continue
					}
					if tot := score + rule.Score; tot > p.oScore[base+rule.Child] {
						p.oScore[base+rule.Child] = tot
					}
				}
			}
			for split := start + 1; split < end; split++ {
				lbase, rbase := p.cell(start, split), p.cell(split, end)
				for right := 0; right < s; right++ {
					rs := p.iScore[rbase+right]
					if math.IsInf(rs, -1) {
						continue
					}
					for _, rule := range p.Grammar.RulesByRightChild(right) {
						out := p.oScore[base+rule.Parent]
						if math.IsInf(out, -1) {
							continue
						}
						ls := p.iScore[lbase+rule.Left]
						if math.IsInf(ls, -1) {
							continue
						}
						if tot := out + rule.Score + rs; tot > p.oScore[lbase+rule.Left] {
							p.oScore[lbase+rule.Left] = tot
						}
						if tot := out + rule.Score + ls; tot > p.oScore[rbase+right] {
							p.oScore[rbase+right] = tot
						}
					}
				}
			}
		}
	}
	return nil
}

func (p *Parser) setPredicates() {
	n, s := p.length, p.numStates
	for start := 0; start < n; start++ {
		for end := start + 1; end <= n; end++ {
			base := p.cell(start, end)
			for state := 0; state < s; state++ {
				if math.IsInf(p.iScore[base+state], -1) {
					continue
				}
				p.iPossibleL.Set(uint(state*(n+1) + start))
				p.iPossibleR.Set(uint(state*(n+1) + end))
				if !math.IsInf(p.oScore[base+state], -1) {
					p.oPossibleL.Set(uint(state*(n+1) + start))
					p.oPossibleR.Set(uint(state*(n+1) + end))
				}
			}
		}
	}
}

func (p *Parser) HasParse() bool {
	return p.hasParse
}

// Length is the number of positions parsed, the boundary included
func (p *Parser) Length() int {
	return p.length
}

func (p *Parser) BestScore() float64 {
	return p.iScore[p.cell(0, p.length)+p.Grammar.Goal()]
}

func (p *Parser) IScore(start, end, state int) float64 {
	return p.iScore[p.cell(start, end)+state]
}

func (p *Parser) OScore(start, end, state int) float64 {
	return p.oScore[p.cell(start, end)+state]
}

func (p *Parser) LeafScore(pos, tag int) float64 {
	return p.leafScores[pos*p.numTags+tag]
}

// IPossibleL reports whether some constituent of state starts at boundary
func (p *Parser) IPossibleL(state, boundary int) bool {
	return p.iPossibleL.Test(uint(state*(p.length+1) + boundary))
}

// IPossibleR reports whether some constituent of state ends at boundary
func (p *Parser) IPossibleR(state, boundary int) bool {
	return p.iPossibleR.Test(uint(state*(p.length+1) + boundary))
}

// OPossibleL reports whether a constituent of state starting at boundary
// occurs in some complete parse
func (p *Parser) OPossibleL(state, boundary int) bool {
	return p.oPossibleL.Test(uint(state*(p.length+1) + boundary))
}

func (p *Parser) OPossibleR(state, boundary int) bool {
	return p.oPossibleR.Test(uint(state*(p.length+1) + boundary))
}

// BestTree rebuilds the Viterbi parse below the goal, without the boundary.
// Interior nodes carry no head.
func (p *Parser) BestTree(tokens []string) *nlp.Tree {
	if !p.hasParse {
		return nil
	}
	goal := p.cell(0, p.length) + p.Grammar.Goal()
	split, left := p.backSplit[goal], p.backLeft[goal]
	return p.build(tokens, 0, split, left)
}

func (p *Parser) build(tokens []string, start, end, state int) *nlp.Tree {
	idx := p.cell(start, end) + state
	node := &nlp.Tree{
		Label: p.Grammar.StateName(state),
		Start: start,
		End:   end,
		Head:  -1,
	}
	switch split := p.backSplit[idx]; split {
	case LEAF:
		node.Head = start
		node.Tag = p.Grammar.TagName(p.backLeft[idx])
		word := ""
		if start < len(tokens) {
			word = tokens[start]
		}
		node.Children = []*nlp.Tree{{Word: word, Start: start, End: end, Head: start}}
	case UNARY:
		child := p.backLeft[idx]
		current := node
		for _, rule := range p.Grammar.UnaryClosureByParent(state) {
			if rule.Child != child {
				continue
			}
			for _, mid := range rule.Path {
				next := &nlp.Tree{Label: p.Grammar.StateName(mid), Start: start, End: end, Head: -1}
				current.Children = []*nlp.Tree{next}
				current = next
			}
			break
		}
		current.Children = []*nlp.Tree{p.build(tokens, start, end, child)}
	default:
		node.Children = []*nlp.Tree{
			p.build(tokens, start, split, p.backLeft[idx]),
			p.build(tokens, split, end, p.backRight[idx]),
		}
	}
	return node
}
