package types

import (
	"fmt"
	"strings"
)

// Tree is a headed constituency tree over sentence positions. Leaves carry
// the word; every node records the position of its lexical head.
type Tree struct {
	Label    string
	Word     string
	Start    int
	End      int
	Head     int
	Tag      string
	Children []*Tree
}

func (t *Tree) IsLeaf() bool {
	return len(t.Children) == 0
}

// IsPreterminal holds for a node whose only child is a leaf
func (t *Tree) IsPreterminal() bool {
	return len(t.Children) == 1 && t.Children[0].IsLeaf()
}

func (t *Tree) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Tree) write(b *strings.Builder) {
	if t.IsLeaf() {
		b.WriteString(t.Word)
		return
	}
	b.WriteString("(")
	b.WriteString(t.Label)
	for _, child := range t.Children {
		b.WriteString(" ")
		child.write(b)
	}
	b.WriteString(")")
}

// Pretty prints the tree indented, one node per line
func (t *Tree) Pretty() string {
	return t.repr(0)
}

func (t *Tree) repr(level int) string {
	prefix := strings.Repeat(" ", level*2)
	if level != 0 {
		prefix = "\n" + prefix
	}
	if t.IsLeaf() {
		return prefix + t.Word
	}
	childrenReprs := make([]string, len(t.Children))
	for i, child := range t.Children {
		childrenReprs[i] = child.repr(level + 1)
	}
	return fmt.Sprintf("%s(%s %s)", prefix, t.Label, strings.Join(childrenReprs, " "))
}

// Yield returns the words under t from left to right
func (t *Tree) Yield() []string {
	if t.IsLeaf() {
		return []string{t.Word}
	}
	var words []string
	for _, child := range t.Children {
		words = append(words, child.Yield()...)
	}
	return words
}

// Walk visits nodes in pre-order until visit returns false
func (t *Tree) Walk(visit func(*Tree) bool) {
	if !visit(t) {
		return
	}
	for _, child := range t.Children {
		child.Walk(visit)
	}
}

// Debinarize splices out every non-leaf node for which synthetic returns
// true, attaching its children to the nearest non-synthetic ancestor.
func (t *Tree) Debinarize(synthetic func(label string) bool) *Tree {
	if t.IsLeaf() {
		return t
	}
	node := *t
	node.Children = nil
	for _, child := range t.Children {
		node.Children = append(node.Children, child.spliced(synthetic)...)
	}
	return &node
}

func (t *Tree) spliced(synthetic func(label string) bool) []*Tree {
	if t.IsLeaf() {
		return []*Tree{t}
	}
	d := t.Debinarize(synthetic)
	if synthetic(t.Label) {
		return d.Children
	}
	return []*Tree{d}
}
