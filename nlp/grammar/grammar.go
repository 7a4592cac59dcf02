// Package grammar holds the scoring oracles consumed by the chart parsers:
// binarized rule tables with their unary closure, a lexicon and a bilexical
// dependency model, plus in-memory table implementations of each.
package grammar

import (
	nlp "factored/nlp/types"
	"factored/util"
)

// Sentinel symbols occupy fixed positions in every Indices.
const (
	GOAL_STATE = 0

	BOUNDARY_WORD_ID = 0
	UNKNOWN_WORD_ID  = 1

	BOUNDARY_TAG_ID = 0
	WILDCARD_TAG_ID = 1

	GOAL_STATE_NAME = "ROOT"
)

type BinaryRule struct {
	Parent, Left, Right int
	Score               float64
}

// UnaryRule is an entry of the unary closure: the best chain from Parent
// down to Child. Path lists the intermediate states top-down, excluding
// both ends.
type UnaryRule struct {
	Parent, Child int
	Score         float64
	Path          []int
}

type TagScore struct {
	Tag   int
	Score float64
}

// Tables is the read-only view of a binarized PCFG used by the parsers.
type Tables interface {
	NumStates() int
	StateName(state int) string
	NumTags() int
	TagName(tag int) string
	Goal() int
	Start() int
	IsSynthetic(state int) bool
	TagState(tag int) int
	RulesByLeftChild(state int) []BinaryRule
	RulesByRightChild(state int) []BinaryRule
	UnaryClosureByChild(state int) []UnaryRule
	UnaryClosureByParent(state int) []UnaryRule
}

type Lexicon interface {
	PossibleTags(word, loc int) []TagScore
	Score(word, tag, loc int) float64
}

// DependencyGrammar scores head-outward attachments and stop events. Tags
// are only seen through their bins.
type DependencyGrammar interface {
	NumTagBins() int
	TagBin(tag int) int
	NumDistanceBins() int
	DistanceBin(distance int) int
	AttachScore(headWord, headBin, argWord, argBin int, dir nlp.Direction, distBin int) float64
	StopScore(word, bin int, dir nlp.Direction, distBin int) float64
}

// Indices enumerates the symbols of one model
type Indices struct {
	States, Tags, Words *util.Index
}

func NewIndices() *Indices {
	indices := &Indices{
		States: util.NewIndex(64),
		Tags:   util.NewIndex(64),
		Words:  util.NewIndex(1024),
	}
	indices.States.Add(GOAL_STATE_NAME)
	indices.Words.Add(nlp.BOUNDARY_WORD)
	indices.Words.Add(nlp.UNKNOWN_WORD)
	indices.Tags.Add(nlp.BOUNDARY_TAG)
	indices.Tags.Add(nlp.WILDCARD_TAG)
	return indices
}

// WordIDs maps tokens to word indices, unknown tokens to UNKNOWN_WORD_ID
func (i *Indices) WordIDs(words []string) []int {
	ids := make([]int, len(words))
	for j, word := range words {
		id, exists := i.Words.IndexOf(word)
		if !exists {
			id = UNKNOWN_WORD_ID
		}
		ids[j] = id
	}
	return ids
}

func (i *Indices) Freeze() {
	i.States.Freeze()
	i.Tags.Freeze()
	i.Words.Freeze()
}

// Identity is the default state projection
func Identity(state int) int {
	return state
}
