package grammar

import (
	"log"
	"math"
	"sort"

	nlp "factored/nlp/types"
	"factored/util"

	"github.com/pkg/errors"
)

// Grammar is an immutable binarized PCFG. Every tag has a preterminal
// state of the same name, and the goal rule ROOT -> start boundary is
// always present.
type Grammar struct {
	indices   *Indices
	start     int
	synthetic []bool
	tagStates []int

	byLeft, byRight                 [][]BinaryRule
	closureByChild, closureByParent [][]UnaryRule

	binary map[[3]int]float64
	unary  map[[2]int]float64
}

var _ Tables = &Grammar{}

func (g *Grammar) NumStates() int { return len(g.synthetic) }
func (g *Grammar) StateName(state int) string { return g.indices.States.ValueOf(state) }
func (g *Grammar) NumTags() int { return len(g.tagStates) }
func (g *Grammar) TagName(tag int) string { return g.indices.Tags.ValueOf(tag) }
func (g *Grammar) Goal() int { return GOAL_STATE }
func (g *Grammar) Start() int { return g.start }
func (g *Grammar) IsSynthetic(state int) bool { return g.synthetic[state] }
func (g *Grammar) TagState(tag int) int { return g.tagStates[tag] }
func (g *Grammar) Indices() *Indices { return g.indices }
func (g *Grammar) BoundaryState() int { return g.tagStates[BOUNDARY_TAG_ID] }
func (g *Grammar) State(name string) (int, bool) { return g.indices.States.IndexOf(name) }

func (g *Grammar) RulesByLeftChild(state int) []BinaryRule {
	return g.byLeft[state]
}

func (g *Grammar) RulesByRightChild(state int) []BinaryRule {
	return g.byRight[state]
}

func (g *Grammar) UnaryClosureByChild(state int) []UnaryRule {
	return g.closureByChild[state]
}

func (g *Grammar) UnaryClosureByParent(state int) []UnaryRule {
	return g.closureByParent[state]
}

// BinaryScore is the score of a single binary rule, -Inf if absent
func (g *Grammar) BinaryScore(parent, left, right int) float64 {
	if score, exists := g.binary[[3]int{parent, left, right}]; exists {
		return score
	}
	return util.NegInf
}

// UnaryScore is the score of a single (not closed) unary rule, -Inf if absent
func (g *Grammar) UnaryScore(parent, child int) float64 {
	if score, exists := g.unary[[2]int{parent, child}]; exists {
		return score
	}
	return util.NegInf
}

// Closure finds the closure entry for a parent/child pair
func (g *Grammar) Closure(parent, child int) (UnaryRule, bool) {
	for _, rule := range g.closureByChild[child] {
		if rule.Parent == parent {
			return rule, true
		}
	}
	return UnaryRule{}, false
}

type namedRule struct {
	parent, left, right string
	score               float64
}

// Builder collects named rules and compiles them into a Grammar
type Builder struct {
	Indices *Indices
	Log     bool

	start     string
	synthetic map[string]bool
	binaries  []namedRule
	unaries   []namedRule
}

func NewBuilder(indices *Indices, start string) *Builder {
	return &Builder{
		Indices:   indices,
		start:     start,
		synthetic: make(map[string]bool),
	}
}

// Synthetic marks binarization states
func (b *Builder) Synthetic(names ...string) *Builder {
	for _, name := range names {
		b.synthetic[name] = true
	}
	return b
}

func (b *Builder) Binary(parent, left, right string, score float64) *Builder {
	b.binaries = append(b.binaries, namedRule{parent, left, right, score})
	return b
}

func (b *Builder) Unary(parent, child string, score float64) *Builder {
	b.unaries = append(b.unaries, namedRule{parent: parent, left: child, score: score})
	return b
}

func (b *Builder) check(name string) error {
	switch {
	case name == "":
		return errors.New("empty state name")
	case name == GOAL_STATE_NAME:
		return errors.Errorf("state %s is reserved for the goal", name)
	case name == nlp.BOUNDARY_TAG:
		return errors.Errorf("state %s is reserved for the sentence boundary", name)
	}
	return nil
}

// Build freezes the state and tag indices and compiles the rule tables
func (b *Builder) Build() (*Grammar, error) {
	if err := b.check(b.start); err != nil {
		return nil, errors.Wrap(err, "start state")
	}
	if b.synthetic[b.start] {
		return nil, errors.Errorf("start state %s cannot be synthetic", b.start)
	}
	states := b.Indices.States
	start, _ := states.Add(b.start)
	for _, rule := range b.binaries {
		for _, name := range []string{rule.parent, rule.left, rule.right} {
			if err := b.check(name); err != nil {
				return nil, errors.Wrapf(err, "binary rule %s -> %s %s", rule.parent, rule.left, rule.right)
			}
			states.Add(name)
		}
	}
	for _, rule := range b.unaries {
		for _, name := range []string{rule.parent, rule.left} {
			if err := b.check(name); err != nil {
				return nil, errors.Wrapf(err, "unary rule %s -> %s", rule.parent, rule.left)
			}
			states.Add(name)
		}
	}
	synthetic := make([]string, 0, len(b.synthetic))
	for name := range b.synthetic {
		synthetic = append(synthetic, name)
	}
	sort.Strings(synthetic)
	for _, name := range synthetic {
		states.Add(name)
	}
	b.Indices.Tags.Freeze()
	tagStates := make([]int, b.Indices.Tags.Len())
	for tag := range tagStates {
		tagStates[tag], _ = states.Add(b.Indices.Tags.ValueOf(tag))
	}
	states.Freeze()

	numStates := states.Len()
	g := &Grammar{
		indices:         b.Indices,
		start:           start,
		synthetic:       make([]bool, numStates),
		tagStates:       tagStates,
		byLeft:          make([][]BinaryRule, numStates),
		byRight:         make([][]BinaryRule, numStates),
		closureByChild:  make([][]UnaryRule, numStates),
		closureByParent: make([][]UnaryRule, numStates),
		binary:          make(map[[3]int]float64, len(b.binaries)+1),
		unary:           make(map[[2]int]float64, len(b.unaries)),
	}
	for _, name := range synthetic {
		g.synthetic[states.MustIndexOf(name)] = true
	}

	var binaryKeys [][3]int
	addBinary := func(key [3]int, score float64) {
		if current, exists := g.binary[key]; !exists {
			binaryKeys = append(binaryKeys, key)
			g.binary[key] = score
		} else if score > current {
			g.binary[key] = score
		}
	}
	addBinary([3]int{GOAL_STATE, start, g.BoundaryState()}, 0)
	for _, rule := range b.binaries {
		key := [3]int{states.MustIndexOf(rule.parent), states.MustIndexOf(rule.left), states.MustIndexOf(rule.right)}
		if g.synthetic[key[1]] && g.synthetic[key[2]] && b.Log {
			log.Printf("Binary rule %s -> %s %s has no non-synthetic child and cannot attach a dependent", rule.parent, rule.left, rule.right)
		}
		addBinary(key, rule.score)
	}
	for _, key := range binaryKeys {
		rule := BinaryRule{Parent: key[0], Left: key[1], Right: key[2], Score: g.binary[key]}
		g.byLeft[rule.Left] = append(g.byLeft[rule.Left], rule)
		g.byRight[rule.Right] = append(g.byRight[rule.Right], rule)
	}

	var unaryKeys [][2]int
	for _, rule := range b.unaries {
		key := [2]int{states.MustIndexOf(rule.parent), states.MustIndexOf(rule.left)}
		if key[0] == key[1] {
			if rule.score > 0 {
				return nil, errors.Errorf("unary rule %s -> %s has positive score %v", rule.parent, rule.left, rule.score)
			}
			continue
		}
		if current, exists := g.unary[key]; !exists {
			unaryKeys = append(unaryKeys, key)
			g.unary[key] = rule.score
		} else if rule.score > current {
			g.unary[key] = rule.score
		}
	}
	if err := g.close(unaryKeys); err != nil {
		return nil, err
	}
	if b.Log {
		log.Printf("Grammar: %d states, %d binary rules, %d unary rules", numStates, len(binaryKeys), len(unaryKeys))
	}
	return g, nil
}

// close computes the best unary chain between every pair of states with
// Floyd-Warshall over the max-sum semiring.
func (g *Grammar) close(keys [][2]int) error {
	position := make(map[int]int)
	var members []int
	for _, key := range keys {
		for _, state := range key {
			if _, exists := position[state]; !exists {
				position[state] = -1
				members = append(members, state)
			}
		}
	}
	sort.Ints(members)
	for i, state := range members {
		position[state] = i
	}
	m := len(members)
	best := util.EnsureFloats(nil, m*m, util.NegInf)
	via := util.EnsureInts(nil, m*m, -1)
	for _, key := range keys {
		best[position[key[0]]*m+position[key[1]]] = g.unary[key]
	}
	for k := 0; k < m; k++ {
		for i := 0; i < m; i++ {
			ik := best[i*m+k]
			if math.IsInf(ik, -1) {
				continue
			}
			for j := 0; j < m; j++ {
				kj := best[k*m+j]
				if math.IsInf(kj, -1) {
					continue
				}
				if ik+kj > best[i*m+j] {
					best[i*m+j] = ik + kj
					via[i*m+j] = k
				}
			}
		}
	}
	for i := 0; i < m; i++ {
		if best[i*m+i] > 0 {
			return errors.Errorf("positive unary cycle through state %s", g.StateName(members[i]))
		}
	}
	var path func(i, j int) []int
	path = func(i, j int) []int {
		k := via[i*m+j]
		if k < 0 {
			return nil
		}
		inner := append(path(i, k), members[k])
		return append(inner, path(k, j)...)
	}
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			if i == j || math.IsInf(best[i*m+j], -1) {
				continue
			}
			rule := UnaryRule{
				Parent: members[i],
				Child:  members[j],
				Score:  best[i*m+j],
				Path:   path(i, j),
			}
			g.closureByChild[rule.Child] = append(g.closureByChild[rule.Child], rule)
			g.closureByParent[rule.Parent] = append(g.closureByParent[rule.Parent], rule)
		}
	}
	return nil
}
