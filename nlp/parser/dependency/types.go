// Package dependency is an exhaustive chart parser for projective
// head-outward dependency structures with stop events. It computes exact
// inside and outside scores for every (span, head, tag bin) and the
// possibility predicates used to prune the factored search.
package dependency

import (
	"context"
	"log"
	"math"

	"factored/nlp/grammar"
	"factored/nlp/parser"
	nlp "factored/nlp/types"
	"factored/util"

	"github.com/bits-and-blooms/bitset"
)

// Parser scores structures over the sentence plus a final boundary word,
// which heads everything through left attachments and never stops. Arrays
// are kept between sentences.
type Parser struct {
	Dependencies grammar.DependencyGrammar
	Lexicon      grammar.Lexicon
	MaxLength    int
	Log          bool

	length, numBins, numDists int
	boundaryBin               int
	words                     []int
	bins                      [][]int
	distBin                   []int
	hasParse                  bool

	// headScore[dist][h][hb][a][ab], headStop[h][b][corner]
	headScore, headStop []float64
	// iScoreH[h][b][c]: left half starting at c for c <= h, right half
	// ending at c for c > h
	iScoreH []float64
	// oScore[s][e][h][b]: best completion once h's unfinished structure
	// covers exactly [s, e)
	oScore []float64
	// attL[h][b][s'][s]: best single left attachment covering [s', s);
	// attR[h][b][e']: the same on the right for the current e
	attL, attR []float64
	// govL[s][g][gb] = max_r R(g,r) + oScore[s][r][g];
	// govR[e][g][gb] = max_l L(g,l) + oScore[l][e][g]
	govL, govR []float64

	iPossibleL, iPossibleR, oPossibleL, oPossibleR *bitset.BitSet
}

func (p *Parser) half(h, b, c int) int {
	return (h*p.numBins+b)*(p.length+1) + c
}

func (p *Parser) attach(dist, h, hb, a, ab int) int {
	n, t := p.length, p.numBins
	return (((dist*n+h)*t+hb)*n+a)*t + ab
}

func (p *Parser) outIdx(s, e, h, b int) int {
	n, t := p.length, p.numBins
	return ((s*(n+1)+e)*n+h)*t + b
}

func (p *Parser) attLIdx(h, b, from, to int) int {
	return p.half(h, b, from)*(p.length+1) + to
}

func (p *Parser) gov(boundary, g, gb int) int {
	return (boundary*p.length+g)*p.numBins + gb
}

func (p *Parser) bit(boundary, h, b int) uint {
	return uint((boundary*p.length+h)*p.numBins + b)
}

func (p *Parser) Parse(ctx context.Context, words []int) error {
	if err := parser.CheckLength(len(words), p.MaxLength); err != nil {
		return err
	}
	p.init(words)
	p.precompute()
	if err := p.inside(ctx); err != nil {
		return err
	}
	p.hasParse = !math.IsInf(p.BestScore(), -1)
	if !p.hasParse {
		if p.Log {
			log.Println("No dependency parse for sentence of length", len(words))
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
	deps := p.Dependencies
	p.length = len(words) + 1
	p.numBins = deps.NumTagBins()
	p.numDists = deps.NumDistanceBins()
	p.boundaryBin = deps.TagBin(grammar.BOUNDARY_TAG_ID)
	p.words = append(append(p.words[:0], words...), grammar.BOUNDARY_WORD_ID)
	p.hasParse = false

	n, t := p.length, p.numBins
	if cap(p.bins) < n {
		p.bins = make([][]int, n)
	}
	p.bins = p.bins[:n]
	for pos := 0; pos < n; pos++ {
		bins := p.bins[pos][:0]
		if pos == n-1 {
			bins = append(bins, p.boundaryBin)
		} else {
			for _, ts := range p.Lexicon.PossibleTags(p.words[pos], pos) {
				bin := deps.TagBin(ts.Tag)
				seen := false
				for _, other := range bins {
					seen = seen || other == bin
				}
				if !seen {
					bins = append(bins, bin)
				}
			}
		}
		p.bins[pos] = bins
	}
	p.distBin = util.EnsureInts(p.distBin, n+1, 0)
	for dist := range p.distBin {
		p.distBin[dist] = deps.DistanceBin(dist)
	}

	p.headScore = util.EnsureFloats(p.headScore, p.numDists*n*t*n*t, util.NegInf)
	p.headStop = util.EnsureFloats(p.headStop, n*t*(n+1), util.NegInf)
	p.iScoreH = util.EnsureFloats(p.iScoreH, n*t*(n+1), util.NegInf)
	p.oScore = util.EnsureFloats(p.oScore, (n+1)*(n+1)*n*t, util.NegInf)
	p.attL = util.EnsureFloats(p.attL, n*t*(n+1)*(n+1), util.NegInf)
	p.attR = util.EnsureFloats(p.attR, n*t*(n+1), util.NegInf)
	p.govL = util.EnsureFloats(p.govL, (n+1)*n*t, util.NegInf)
	p.govR = util.EnsureFloats(p.govR, (n+1)*n*t, util.NegInf)

	bits := uint((n + 1) * n * t)
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

func (p *Parser) precompute() {
	deps := p.Dependencies
	n := p.length
	boundary := n - 1
	for h := 0; h < n; h++ {
		for _, hb := range p.bins[h] {
			for a := 0; a < boundary; a++ {
				if a == h {
					continue
				}
				dir := nlp.RIGHT
				if a < h {
					dir = nlp.LEFT
				}
				for _, ab := range p.bins[a] {
					for dist := 0; dist < p.numDists; dist++ {
						p.headScore[p.attach(dist, h, hb, a, ab)] = deps.AttachScore(p.words[h], hb, p.words[a], ab, dir, dist)
					}
				}
			}
			for c := 0; c <= n; c++ {
				switch {
				case h == boundary:
					p.headStop[p.half(h, hb, c)] = 0
				case c <= h:
					p.headStop[p.half(h, hb, c)] = deps.StopScore(p.words[h], hb, nlp.LEFT, p.distBin[h-c])
				default:
					p.headStop[p.half(h, hb, c)] = deps.StopScore(p.words[h], hb, nlp.RIGHT, p.distBin[c-h-1])
				}
			}
		}
	}
}

// complete scores a's finished subtree over [s, e), stops included
func (p *Parser) complete(s, e, a, ab int) float64 {
	return p.iScoreH[p.half(a, ab, s)] + p.iScoreH[p.half(a, ab, e)] +
		p.headStop[p.half(a, ab, s)] + p.headStop[p.half(a, ab, e)]
}

func (p *Parser) inside(ctx context.Context) error {
	n := p.length
	boundary := n - 1
	for h := 0; h < n; h++ {
		for _, b := range p.bins[h] {
			p.iScoreH[p.half(h, b, h)] = 0
			p.iScoreH[p.half(h, b, h+1)] = 0
		}
	}
	for width := 2; width <= n; width++ {
		if err := parser.Cancelled(ctx); err != nil {
			return err
		}
		for h := 0; h < n; h++ {
			if e := h + width; e <= n && h != boundary {
				for _, b := range p.bins[h] {
					best := util.NegInf
					for m := h + 1; m < e; m++ {
						base := p.iScoreH[p.half(h, b, m)]
						if math.IsInf(base, -1) {
							continue
						}
						dist := p.distBin[m-h-1]
						for a := m; a < e && a < boundary; a++ {
							for _, ab := range p.bins[a] {
								if tot := base + p.headScore[p.attach(dist, h, b, a, ab)] + p.complete(m, e, a, ab); tot > best {
									best = tot
								}
							}
						}
					}
					p.iScoreH[p.half(h, b, e)] = best
				}
			}
			if s := h + 1 - width; s >= 0 {
				for _, b := range p.bins[h] {
					best := util.NegInf
					for m := s + 1; m <= h; m++ {
						base := p.iScoreH[p.half(h, b, m)]
						if math.IsInf(base, -1) {
							continue
						}
						dist := p.distBin[h-m]
						for a := s; a < m; a++ {
							for _, ab := range p.bins[a] {
								if tot := base + p.headScore[p.attach(dist, h, b, a, ab)] + p.complete(s, m, a, ab); tot > best {
									best = tot
								}
							}
						}
					}
					p.iScoreH[p.half(h, b, s)] = best
				}
			}
		}
	}
	return nil
}

func (p *Parser) outside(ctx context.Context) error {
	n := p.length
	boundary := n - 1
	for i := range p.oScore {
		p.oScore[i] = util.NegInf
	}
	for i := range p.govL {
		p.govL[i] = util.NegInf
		p.govR[i] = util.NegInf
	}

	// single left attachments, indexed by the covered span
	for h := 0; h < n; h++ {
		for _, b := range p.bins[h] {
			for to := 1; to <= h; to++ {
				dist := p.distBin[h-to]
				for from := 0; from < to; from++ {
					best := util.NegInf
					for a := from; a < to; a++ {
						for _, ab := range p.bins[a] {
							if tot := p.headScore[p.attach(dist, h, b, a, ab)] + p.complete(from, to, a, ab); tot > best {
								best = tot
							}
						}
					}
					p.attL[p.attLIdx(h, b, from, to)] = best
				}
			}
		}
	}

	for e := n; e >= 1; e-- {
		if err := parser.Cancelled(ctx); err != nil {
			return err
		}
		// single right attachments starting at e
		for h := 0; h < e && h < boundary; h++ {
			for _, b := range p.bins[h] {
				dist := p.distBin[e-h-1]
				for to := e + 1; to <= n; to++ {
					best := util.NegInf
					for a := e; a < to && a < boundary; a++ {
						for _, ab := range p.bins[a] {
							if tot := p.headScore[p.attach(dist, h, b, a, ab)] + p.complete(e, to, a, ab); tot > best {
								best = tot
							}
						}
					}
					p.attR[p.half(h, b, to)] = best
				}
			}
		}
		for s := 0; s < e; s++ {
			for h := s; h < e; h++ {
				for _, b := range p.bins[h] {
					best := util.NegInf
					if h == boundary && s == 0 {
						best = 0
					}
					for to := e + 1; to <= n; to++ {
						if out := p.oScore[p.outIdx(s, to, h, b)]; !math.IsInf(out, -1) {
							best = math.Max(best, out+p.attR[p.half(h, b, to)])
						}
					}
					for from := 0; from < s; from++ {
						if out := p.oScore[p.outIdx(from, e, h, b)]; !math.IsInf(out, -1) {
							best = math.Max(best, out+p.attL[p.attLIdx(h, b, from, s)])
						}
					}
					if h != boundary {
						stops := p.headStop[p.half(h, b, s)] + p.headStop[p.half(h, b, e)]
						best = math.Max(best, stops+p.governed(s, e, h, b))
					}
					p.oScore[p.outIdx(s, e, h, b)] = best
					if math.IsInf(best, -1) {
						continue
					}
					if right := p.iScoreH[p.half(h, b, e)]; !math.IsInf(right, -1) {
						idx := p.gov(s, h, b)
						p.govL[idx] = math.Max(p.govL[idx], right+best)
					}
					if left := p.iScoreH[p.half(h, b, s)]; !math.IsInf(left, -1) {
						idx := p.gov(e, h, b)
						p.govR[idx] = math.Max(p.govR[idx], left+best)
					}
				}
			}
		}
	}
	return nil
}

// governed is the best completion of h's finished subtree over [s, e):
// attachment to a governor plus everything outside the governor.
func (p *Parser) governed(s, e, h, hb int) float64 {
	n := p.length
	best := util.NegInf
	for g := e; g < n; g++ {
		dist := p.distBin[g-e]
		for _, gb := range p.bins[g] {
			left := p.iScoreH[p.half(g, gb, e)]
			rest := p.govL[p.gov(s, g, gb)]
			if math.IsInf(left, -1) || math.IsInf(rest, -1) {
				continue
			}
			best = math.Max(best, left+p.headScore[p.attach(dist, g, gb, h, hb)]+rest)
		}
	}
	for g := 0; g < s; g++ {
		dist := p.distBin[s-g-1]
		for _, gb := range p.bins[g] {
			right := p.iScoreH[p.half(g, gb, s)]
			rest := p.govR[p.gov(e, g, gb)]
			if math.IsInf(right, -1) || math.IsInf(rest, -1) {
				continue
			}
			best = math.Max(best, right+p.headScore[p.attach(dist, g, gb, h, hb)]+rest)
		}
	}
	return best
}

func (p *Parser) setPredicates() {
	n := p.length
	for h := 0; h < n; h++ {
		for _, b := range p.bins[h] {
			for c := 0; c <= n; c++ {
				if math.IsInf(p.iScoreH[p.half(h, b, c)], -1) {
					continue
				}
				if c <= h {
					p.iPossibleL.Set(p.bit(c, h, b))
				} else {
					p.iPossibleR.Set(p.bit(c, h, b))
				}
			}
			for s := 0; s <= h; s++ {
				for e := h + 1; e <= n; e++ {
					total := p.iScoreH[p.half(h, b, s)] + p.iScoreH[p.half(h, b, e)] + p.oScore[p.outIdx(s, e, h, b)]
					if !math.IsInf(total, -1) {
						p.oPossibleL.Set(p.bit(s, h, b))
						p.oPossibleR.Set(p.bit(e, h, b))
					}
				}
			}
		}
	}
}

func (p *Parser) HasParse() bool {
	return p.hasParse
}

func (p *Parser) BestScore() float64 {
	boundary := p.length - 1
	return p.iScoreH[p.half(boundary, p.boundaryBin, 0)] + p.iScoreH[p.half(boundary, p.boundaryBin, p.length)]
}

func (p *Parser) possible(h, bin int) bool {
	for _, b := range p.bins[h] {
		if b == bin {
			return true
		}
	}
	return false
}

// IScore is the best structure headed by (h, tag) covering exactly
// [start, end), without h's stops.
func (p *Parser) IScore(start, end, h, tag int) float64 {
	b := p.Dependencies.TagBin(tag)
	if start > h || h >= end || !p.possible(h, b) {
		return util.NegInf
	}
	return p.iScoreH[p.half(h, b, start)] + p.iScoreH[p.half(h, b, end)]
}

// OScore is the best completion of the structure IScore describes
func (p *Parser) OScore(start, end, h, tag int) float64 {
	b := p.Dependencies.TagBin(tag)
	if start > h || h >= end || !p.possible(h, b) {
		return util.NegInf
	}
	return p.oScore[p.outIdx(start, end, h, b)]
}

// AttachScore scores arg attaching to head when the head's extent on that
// side reaches distance words away from it.
func (p *Parser) AttachScore(head, headTag, arg, argTag, distance int) float64 {
	hb, ab := p.Dependencies.TagBin(headTag), p.Dependencies.TagBin(argTag)
	if !p.possible(head, hb) || !p.possible(arg, ab) {
		return util.NegInf
	}
	return p.headScore[p.attach(p.distBin[distance], head, hb, arg, ab)]
}

// StopScore sums both stop events of h with final extent [start, end)
func (p *Parser) StopScore(h, tag, start, end int) float64 {
	b := p.Dependencies.TagBin(tag)
	if !p.possible(h, b) {
		return util.NegInf
	}
	return p.headStop[p.half(h, b, start)] + p.headStop[p.half(h, b, end)]
}

// IPossibleL reports whether (h, tag) can have a left half starting at boundary
func (p *Parser) IPossibleL(boundary, h, tag int) bool {
	return p.iPossibleL.Test(p.bit(boundary, h, p.Dependencies.TagBin(tag)))
}

// IPossibleR reports whether (h, tag) can have a right half ending at boundary
func (p *Parser) IPossibleR(boundary, h, tag int) bool {
	return p.iPossibleR.Test(p.bit(boundary, h, p.Dependencies.TagBin(tag)))
}

// OPossibleL reports whether a structure of (h, tag) starting at boundary
// is part of some complete parse
func (p *Parser) OPossibleL(boundary, h, tag int) bool {
	return p.oPossibleL.Test(p.bit(boundary, h, p.Dependencies.TagBin(tag)))
}

func (p *Parser) OPossibleR(boundary, h, tag int) bool {
	return p.oPossibleR.Test(p.bit(boundary, h, p.Dependencies.TagBin(tag)))
}
