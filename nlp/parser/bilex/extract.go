package bilex

import (
	"factored/nlp/parser"
	nlp "factored/nlp/types"
)

func (p *Parser) result(goal int) *parser.Result {
	root := p.chart.Edge(goal)
	// the goal's left child spans the sentence, its right child is the boundary
	top := p.chart.Hook(root.BackHook).BackEdge
	tree := p.tree(top).Debinarize(func(label string) bool {
		return p.synthetic[label]
	})
	heads := make([]int, p.boundary)
	for _, arc := range nlp.HeadArcs(tree, p.boundary) {
		heads[arc.Modifier] = arc.Head
	}
	return &parser.Result{
		Tree:         tree,
		Score:        root.Inside,
		Dependencies: heads,
		Items:        p.chart.Size(),
	}
}

func (p *Parser) tree(idx int) *nlp.Tree {
	e := p.chart.Edge(idx)
	node := &nlp.Tree{
		Label: p.Grammar.StateName(e.State),
		Start: e.Start,
		End:   e.End,
		Head:  e.Head,
	}
	switch {
	case e.BackHook >= 0:
		hook := p.chart.Hook(e.BackHook)
		dependent, sibling := p.tree(hook.BackEdge), p.tree(e.BackEdge)
		if hook.Dir == nlp.RIGHT {
			node.Children = []*nlp.Tree{dependent, sibling}
		} else {
			node.Children = []*nlp.Tree{sibling, dependent}
		}
	case e.BackEdge >= 0:
		child := p.chart.Edge(e.BackEdge).State
		current := node
		for _, rule := range p.Grammar.UnaryClosureByParent(e.State) {
			if rule.Child != child {
				continue
			}
			for _, mid := range rule.Path {
				next := &nlp.Tree{Label: p.Grammar.StateName(mid), Start: e.Start, End: e.End, Head: e.Head}
				current.Children = []*nlp.Tree{next}
				current = next
			}
			break
		}
		current.Children = []*nlp.Tree{p.tree(e.BackEdge)}
	default:
		node.Tag = p.Grammar.TagName(e.Tag)
		node.Children = []*nlp.Tree{{Word: p.tokens[e.Start], Start: e.Start, End: e.End, Head: e.Start}}
	}
	return node
}
