package grammar

import (
	"sort"

	"factored/util"
)

// TableLexicon scores (word, tag) pairs from a fixed table. The boundary
// word always takes the boundary tag at no cost; words without entries
// (including *UNK* unless it is given one) have no tags.
type TableLexicon struct {
	indices *Indices
	entries map[int][]TagScore
}

var _ Lexicon = &TableLexicon{}

func NewTableLexicon(indices *Indices) *TableLexicon {
	return &TableLexicon{
		indices: indices,
		entries: make(map[int][]TagScore),
	}
}

// Add registers the word and tag in the indices; a repeated pair keeps
// the higher score.
func (l *TableLexicon) Add(word, tag string, score float64) *TableLexicon {
	w, _ := l.indices.Words.Add(word)
	t, _ := l.indices.Tags.Add(tag)
	tags := l.entries[w]
	for i, entry := range tags {
		if entry.Tag == t {
			if score > entry.Score {
				tags[i].Score = score
			}
			return l
		}
	}
	tags = append(tags, TagScore{t, score})
	sort.Slice(tags, func(i, j int) bool { return tags[i].Tag < tags[j].Tag })
	l.entries[w] = tags
	return l
}

func (l *TableLexicon) PossibleTags(word, loc int) []TagScore {
	if word == BOUNDARY_WORD_ID {
		return []TagScore{{BOUNDARY_TAG_ID, 0}}
	}
	return l.entries[word]
}

func (l *TableLexicon) Score(word, tag, loc int) float64 {
	for _, entry := range l.PossibleTags(word, loc) {
		if entry.Tag == tag {
			return entry.Score
		}
	}
	return util.NegInf
}
