package types

import (
	"fmt"
	"strings"
)

// Arc is a head-dependent pair of sentence positions. A Head of -1 marks
// the dependent of the sentence boundary (the root word).
type Arc struct {
	Head, Modifier int
}

func (a Arc) GetHead() int     { return a.Head }
func (a Arc) GetModifier() int { return a.Modifier }

func (a Arc) String() string {
	return fmt.Sprintf("%d->%d", a.Head, a.Modifier)
}

// HeadArcs reads the dependencies implied by a headed tree: for every node,
// the head of each non-head child depends on the node's head. Positions at
// or beyond boundary are reported as -1.
func HeadArcs(t *Tree, boundary int) []Arc {
	heads := make([]int, boundary)
	for i := range heads {
		heads[i] = -1
	}
	t.Walk(func(node *Tree) bool {
		for _, child := range node.Children {
			if child.Head != node.Head && child.Head < boundary {
				if node.Head < boundary {
					heads[child.Head] = node.Head
				} else {
					heads[child.Head] = -1
				}
			}
		}
		return true
	})
	arcs := make([]Arc, boundary)
	for i, h := range heads {
		arcs[i] = Arc{h, i}
	}
	return arcs
}

func ArcsString(arcs []Arc) string {
	parts := make([]string, len(arcs))
	for i, a := range arcs {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}
