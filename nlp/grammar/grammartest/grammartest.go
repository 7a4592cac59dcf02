// Package grammartest builds small models for parser tests.
package grammartest

import (
	"fmt"
	"math/rand"

	"factored/nlp/grammar"
	nlp "factored/nlp/types"
)

func mustBuild(b *grammar.Builder) *grammar.Grammar {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

func finish(indices *grammar.Indices, g *grammar.Grammar, lex *grammar.TableLexicon, deps *grammar.TableDependencyGrammar) *grammar.Model {
	indices.Freeze()
	return &grammar.Model{Indices: indices, Grammar: g, Lexicon: lex, Dependencies: deps}
}

// DogBarks: S -> NP VP (-0.1), NP -> N, VP -> V, dog/N and barks/V at
// -0.5. V heading N costs -0.2 and N heading V costs -5; reversed swaps
// the two.
func DogBarks(reversed bool) *grammar.Model {
	indices := grammar.NewIndices()
	lex := grammar.NewTableLexicon(indices).
		Add("dog", "N", -0.5).
		Add("barks", "V", -0.5)
	g := mustBuild(grammar.NewBuilder(indices, "S").
		Binary("S", "NP", "VP", -0.1).
		Unary("NP", "N", 0).
		Unary("VP", "V", 0))
	vn, nv := -0.2, -5.0
	if reversed {
		vn, nv = nv, vn
	}
	deps := grammar.NewTableDependencyGrammar(indices).
		Attach("V", "N", nlp.LEFT, grammar.ANY_DISTANCE, vn).
		Attach("N", "V", nlp.RIGHT, grammar.ANY_DISTANCE, nv).
		Attach(nlp.BOUNDARY_TAG, nlp.WILDCARD_TAG, nlp.LEFT, grammar.ANY_DISTANCE, 0)
	return finish(indices, g, lex, deps)
}

// Flip is ambiguous between (S (P x y) z) and (S x (Q y z)) under the PCFG
// alone. With leftPair the dependencies favor x heading y and z heading x;
// otherwise z heading y and x heading z.
func Flip(leftPair bool) *grammar.Model {
	indices := grammar.NewIndices()
	lex := grammar.NewTableLexicon(indices).
		Add("x", "X", 0).
		Add("y", "Y", 0).
		Add("z", "Z", 0)
	g := mustBuild(grammar.NewBuilder(indices, "S").
		Binary("S", "P", "Z", -1).
		Binary("P", "X", "Y", -1).
		Binary("S", "X", "Q", -1).
		Binary("Q", "Y", "Z", -1))
	deps := grammar.NewTableDependencyGrammar(indices)
	deps.DefaultAttach = -5
	deps.Attach(nlp.BOUNDARY_TAG, nlp.WILDCARD_TAG, nlp.LEFT, grammar.ANY_DISTANCE, 0)
	if leftPair {
		deps.Attach("X", "Y", nlp.RIGHT, grammar.ANY_DISTANCE, -0.1).
			Attach("Z", "X", nlp.LEFT, grammar.ANY_DISTANCE, -0.1)
	} else {
		deps.Attach("Z", "Y", nlp.LEFT, grammar.ANY_DISTANCE, -0.1).
			Attach("X", "Z", nlp.RIGHT, grammar.ANY_DISTANCE, -0.1)
	}
	return finish(indices, g, lex, deps)
}

// Dense has states fully connected by binary and unary rules, all with the
// same score, over a single tag and word "w".
func Dense(states int) *grammar.Model {
	indices := grammar.NewIndices()
	lex := grammar.NewTableLexicon(indices).Add("w", "T", -0.1)
	names := make([]string, states)
	for i := range names {
		names[i] = fmt.Sprintf("A%d", i)
	}
	b := grammar.NewBuilder(indices, names[0])
	for _, parent := range names {
		b.Unary(parent, "T", -0.1)
		for _, left := range names {
			if left != parent {
				b.Unary(parent, left, -0.1)
			}
			for _, right := range names {
				b.Binary(parent, left, right, -0.1)
			}
		}
	}
	g := mustBuild(b)
	deps := grammar.NewTableDependencyGrammar(indices)
	deps.DefaultAttach = -0.1
	return finish(indices, g, lex, deps)
}

// Words of the random models
var Words = []string{"a", "b", "c"}

// Random builds a small model with synthetic states, unary chains and
// random dependency tables. All scores are negative.
func Random(r *rand.Rand) *grammar.Model {
	cost := func() float64 { return -0.1 - 2*r.Float64() }
	indices := grammar.NewIndices()
	tags := []string{"T", "U"}
	for _, tag := range tags {
		indices.Tags.Add(tag)
	}
	lex := grammar.NewTableLexicon(indices)
	for _, word := range Words {
		first := r.Intn(len(tags))
		lex.Add(word, tags[first], cost())
		if r.Intn(2) == 0 {
			lex.Add(word, tags[1-first], cost())
		}
	}
	parents := []string{"S", "A", "B", "@A"}
	children := []string{"A", "B", "@A", "T", "U"}
	b := grammar.NewBuilder(indices, "S").Synthetic("@A")
	b.Binary("S", "A", "B", cost()).Binary("A", "T", "@A", cost()).Binary("@A", "U", "B", cost())
	for _, parent := range parents {
		for _, left := range children {
			for _, right := range children {
				if r.Float64() < 0.2 {
					b.Binary(parent, left, right, cost())
				}
			}
		}
	}
	b.Unary("A", "T", cost()).Unary("B", "U", cost())
	for _, pair := range [][2]string{{"S", "A"}, {"S", "B"}, {"A", "B"}, {"B", "A"}, {"B", "T"}, {"A", "U"}} {
		if r.Intn(2) == 0 {
			b.Unary(pair[0], pair[1], cost())
		}
	}
	g := mustBuild(b)

	deps := grammar.NewTableDependencyGrammar(indices).Distances(0, 1)
	heads := append([]string{nlp.BOUNDARY_TAG}, tags...)
	for _, head := range heads {
		for _, arg := range tags {
			for _, dir := range []nlp.Direction{nlp.LEFT, nlp.RIGHT} {
				if head == nlp.BOUNDARY_TAG && dir == nlp.RIGHT {
					continue
				}
				for bin := 0; bin < deps.NumDistanceBins(); bin++ {
					deps.Attach(head, arg, dir, bin, cost())
				}
			}
		}
	}
	for _, tag := range tags {
		for _, dir := range []nlp.Direction{nlp.LEFT, nlp.RIGHT} {
			for bin := 0; bin < deps.NumDistanceBins(); bin++ {
				deps.Stop(tag, dir, bin, cost()/2)
			}
		}
	}
	if r.Intn(3) == 0 {
		deps.AttachWords(Words[0], tags[0], Words[1], tags[1], nlp.RIGHT, grammar.ANY_DISTANCE, -0.05)
	}
	return finish(indices, g, lex, deps)
}

// Sentence draws length words from Words
func Sentence(r *rand.Rand, length int) []string {
	sentence := make([]string, length)
	for i := range sentence {
		sentence[i] = Words[r.Intn(len(Words))]
	}
	return sentence
}
