package bilex

import (
	"math"

	"factored/nlp/grammar"
	"factored/nlp/parser"
	"factored/nlp/parser/chart"
	nlp "factored/nlp/types"
	"factored/util"
)

func (p *Parser) seed() {
	for pos := 0; pos < p.length; pos++ {
		word := grammar.BOUNDARY_WORD_ID
		if pos < p.boundary {
			word = p.words[pos]
		}
		for _, ts := range p.Lexicon.PossibleTags(word, pos) {
			key := chart.EdgeKey{Start: pos, End: pos + 1, State: p.Grammar.TagState(ts.Tag), Head: pos, Tag: ts.Tag}
			p.relaxEdge(key, p.pcfg.LeafScore(pos, ts.Tag), -1, -1)
		}
	}
}

func (p *Parser) edgeOutside(key chart.EdgeKey) float64 {
	return p.pcfg.OScore(key.Start, key.End, p.Project(key.State)) +
		p.deps.OScore(key.Start, key.End, key.Head, key.Tag)
}

// hookOutside bounds everything a hook still needs: the sibling that
// completes it, scored by both inside models, and the outside of the
// completed edge. The sibling's extent on the far side is free.
func (p *Parser) hookOutside(key chart.HookKey) float64 {
	parent, sibling := p.Project(key.State), p.Project(key.SubState)
	h, t := key.Head, key.Tag
	best := util.NegInf
	if key.Dir == nlp.RIGHT {
		for end := h + 1; end <= p.length; end++ {
			score := p.pcfg.OScore(key.Start, end, parent) + p.pcfg.IScore(key.End, end, sibling) +
				p.deps.IScore(key.End, end, h, t) + p.deps.OScore(key.Start, end, h, t)
			if score > best {
				best = score
			}
		}
		return best
	}
	for start := 0; start <= h; start++ {
		score := p.pcfg.OScore(start, key.End, parent) + p.pcfg.IScore(start, key.Start, sibling) +
			p.deps.IScore(start, key.Start, h, t) + p.deps.OScore(start, key.End, h, t)
		if score > best {
			best = score
		}
	}
	return best
}

func (p *Parser) relaxEdge(key chart.EdgeKey, inside float64, backEdge, backHook int) {
	var (
		idx     int
		created = true
	)
	if p.kGood && key.State == p.goal {
		idx = p.chart.NewEdge(key)
	} else {
		idx, created = p.chart.InternEdge(key)
	}
	if created {
		p.chart.Edge(idx).Outside = p.edgeOutside(key)
	}
	e := p.chart.Edge(idx)
	if e.Status == chart.COMMITTED || !util.Better(inside, e.Inside, parser.Tolerance) {
		return
	}
	e.Inside, e.BackEdge, e.BackHook = inside, backEdge, backHook
	if math.IsInf(e.Outside, -1) {
		return
	}
	p.agenda.Add(chart.Item{Kind: chart.EDGE, Index: idx})
}

func (p *Parser) relaxHook(key chart.HookKey, inside float64, backEdge int) {
	var (
		idx     int
		created = true
	)
	if p.kGood && key.State == p.goal {
		idx = p.chart.NewHook(key)
	} else {
		idx, created = p.chart.InternHook(key)
	}
	if created {
		p.chart.Hook(idx).Outside = p.hookOutside(key)
	}
	h := p.chart.Hook(idx)
	if h.Status == chart.COMMITTED || !util.Better(inside, h.Inside, parser.Tolerance) {
		return
	}
	h.Inside, h.BackEdge = inside, backEdge
	if math.IsInf(h.Outside, -1) {
		return
	}
	p.agenda.Add(chart.Item{Kind: chart.HOOK, Index: idx})
}

func (p *Parser) processEdge(idx int) {
	p.chart.CommitEdge(idx)
	e := *p.chart.Edge(idx)

	for _, hook := range p.chart.Waiting(e.Start, nlp.RIGHT, e.Head, e.Tag, e.State) {
		p.combine(hook, idx)
	}
	for _, hook := range p.chart.Waiting(e.End, nlp.LEFT, e.Head, e.Tag, e.State) {
		p.combine(hook, idx)
	}
	for _, rule := range p.Grammar.UnaryClosureByChild(e.State) {
		key := chart.EdgeKey{Start: e.Start, End: e.End, State: rule.Parent, Head: e.Head, Tag: e.Tag}
		p.relaxEdge(key, e.Inside+rule.Score, idx, -1)
	}

	// a head seen at a new boundary can take dependents already built
	// on the other side of it
	if p.chart.AddTriple(chart.START, e.Start, e.Head, e.Tag) {
		for _, dep := range p.chart.RealEnding(e.Start) {
			p.preHooks(dep, e.Head, e.Tag)
		}
	}
	if p.chart.AddTriple(chart.END, e.End, e.Head, e.Tag) {
		for _, dep := range p.chart.RealStarting(e.End) {
			p.postHooks(dep, e.Head, e.Tag)
		}
	}
	if p.Grammar.IsSynthetic(e.State) || e.Head == p.boundary {
		return
	}
	p.chart.AddReal(idx)
	for _, ht := range p.chart.Triples(chart.START, e.End) {
		p.preHooks(idx, ht.Head, ht.Tag)
	}
	for _, ht := range p.chart.Triples(chart.END, e.Start) {
		p.postHooks(idx, ht.Head, ht.Tag)
	}
}

// preHooks attaches a finished edge as the left child of binary rules whose
// right child is headed by (h, t)
func (p *Parser) preHooks(depIdx, h, t int) {
	dep := *p.chart.Edge(depIdx)
	s, e := dep.Start, dep.End
	if !p.deps.IPossibleL(e, h, t) || !p.deps.OPossibleL(s, h, t) {
		return
	}
	base := dep.Inside + p.deps.AttachScore(h, t, dep.Head, dep.Tag, h-e) + p.deps.StopScore(dep.Head, dep.Tag, s, e)
	if math.IsInf(base, -1) {
		return
	}
	for _, rule := range p.Grammar.RulesByLeftChild(dep.State) {
		if (rule.Right == p.endState) != (h == p.boundary) {
			continue
		}
		if !p.pcfg.OPossibleL(p.Project(rule.Parent), s) || !p.pcfg.IPossibleL(p.Project(rule.Right), e) {
			continue
		}
		key := chart.HookKey{Start: s, End: e, State: rule.Parent, SubState: rule.Right, Head: h, Tag: t, Dir: nlp.RIGHT}
		p.relaxHook(key, base+rule.Score, depIdx)
	}
}

// postHooks attaches a finished edge as the right child of binary rules
// whose left child is headed by (h, t)
func (p *Parser) postHooks(depIdx, h, t int) {
	dep := *p.chart.Edge(depIdx)
	s, e := dep.Start, dep.End
	if !p.deps.IPossibleR(s, h, t) || !p.deps.OPossibleR(e, h, t) {
		return
	}
	base := dep.Inside + p.deps.AttachScore(h, t, dep.Head, dep.Tag, s-h-1) + p.deps.StopScore(dep.Head, dep.Tag, s, e)
	if math.IsInf(base, -1) {
		return
	}
	for _, rule := range p.Grammar.RulesByRightChild(dep.State) {
		if !p.pcfg.OPossibleR(p.Project(rule.Parent), e) || !p.pcfg.IPossibleR(p.Project(rule.Left), s) {
			continue
		}
		key := chart.HookKey{Start: s, End: e, State: rule.Parent, SubState: rule.Left, Head: h, Tag: t, Dir: nlp.LEFT}
		p.relaxHook(key, base+rule.Score, depIdx)
	}
}

func (p *Parser) processHook(idx int) {
	p.chart.CommitHook(idx)
	hook := *p.chart.Hook(idx)
	var siblings []int
	if hook.Dir == nlp.RIGHT {
		siblings = p.chart.EdgesStarting(hook.End, hook.SubState, hook.Head, hook.Tag)
	} else {
		siblings = p.chart.EdgesEnding(hook.Start, hook.SubState, hook.Head, hook.Tag)
	}
	for _, sibling := range siblings {
		p.combine(idx, sibling)
	}
}

func (p *Parser) combine(hookIdx, edgeIdx int) {
	hook, e := p.chart.Hook(hookIdx), p.chart.Edge(edgeIdx)
	key := chart.EdgeKey{Start: hook.Start, End: e.End, State: hook.State, Head: hook.Head, Tag: hook.Tag}
	if hook.Dir == nlp.LEFT {
		key.Start, key.End = e.Start, hook.End
	}
	p.relaxEdge(key, hook.Inside+e.Inside, edgeIdx, hookIdx)
}
