package grammar

import (
	"io"
	"os"

	nlp "factored/nlp/types"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DEFAULT_START = "S"

// Model bundles the three oracles over one set of indices
type Model struct {
	Indices      *Indices
	Grammar      *Grammar
	Lexicon      *TableLexicon
	Dependencies *TableDependencyGrammar
}

type modelFile struct {
	Start     string   `yaml:"start"`
	Synthetic []string `yaml:"synthetic"`
	Binary    []struct {
		Parent string  `yaml:"parent"`
		Left   string  `yaml:"left"`
		Right  string  `yaml:"right"`
		Score  float64 `yaml:"score"`
	} `yaml:"binary"`
	Unary []struct {
		Parent string  `yaml:"parent"`
		Child  string  `yaml:"child"`
		Score  float64 `yaml:"score"`
	} `yaml:"unary"`
	Lexicon []struct {
		Word  string  `yaml:"word"`
		Tag   string  `yaml:"tag"`
		Score float64 `yaml:"score"`
	} `yaml:"lexicon"`
	Dependencies struct {
		Distances     []int             `yaml:"distances"`
		DefaultAttach *float64          `yaml:"default attach"`
		DefaultStop   *float64          `yaml:"default stop"`
		Bins          map[string]string `yaml:"bins"`
		Attach        []struct {
			Head  string  `yaml:"head"`
			Arg   string  `yaml:"arg"`
			Dir   string  `yaml:"dir"`
			Bin   *int    `yaml:"bin"`
			Score float64 `yaml:"score"`
		} `yaml:"attach"`
		Words []struct {
			HeadWord string  `yaml:"head word"`
			Head     string  `yaml:"head"`
			ArgWord  string  `yaml:"arg word"`
			Arg      string  `yaml:"arg"`
			Dir      string  `yaml:"dir"`
			Bin      *int    `yaml:"bin"`
			Score    float64 `yaml:"score"`
		} `yaml:"words"`
		Stop []struct {
			Tag   string  `yaml:"tag"`
			Dir   string  `yaml:"dir"`
			Bin   *int    `yaml:"bin"`
			Score float64 `yaml:"score"`
		} `yaml:"stop"`
	} `yaml:"dependencies"`
}

func parseDirection(dir string) (nlp.Direction, error) {
	switch dir {
	case "left", "l":
		return nlp.LEFT, nil
	case "right", "r":
		return nlp.RIGHT, nil
	}
	return nlp.LEFT, errors.Errorf("unknown direction %q", dir)
}

func distanceBin(bin *int) int {
	if bin == nil {
		return ANY_DISTANCE
	}
	return *bin
}

// LoadModel reads a grammar, lexicon and dependency model from YAML. All
// indices are frozen on return.
func LoadModel(reader io.Reader) (*Model, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "reading model")
	}
	file := &modelFile{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, errors.Wrap(err, "parsing model")
	}
	return file.build()
}

func LoadModelFile(filename string) (*Model, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening model %s", filename)
	}
	defer f.Close()
	model, err := LoadModel(f)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", filename)
	}
	return model, nil
}

func (file *modelFile) build() (*Model, error) {
	indices := NewIndices()
	model := &Model{Indices: indices, Lexicon: NewTableLexicon(indices)}

	for _, entry := range file.Lexicon {
		if entry.Word == "" || entry.Tag == "" {
			return nil, errors.Errorf("lexicon entry with empty word or tag: %q/%q", entry.Word, entry.Tag)
		}
		if entry.Tag == nlp.BOUNDARY_TAG || entry.Tag == nlp.WILDCARD_TAG || entry.Word == nlp.BOUNDARY_WORD {
			return nil, errors.Errorf("lexicon entry %s/%s uses a reserved symbol", entry.Word, entry.Tag)
		}
		model.Lexicon.Add(entry.Word, entry.Tag, entry.Score)
	}

	start := file.Start
	if start == "" {
		start = DEFAULT_START
	}
	builder := NewBuilder(indices, start).Synthetic(file.Synthetic...)
	for _, rule := range file.Binary {
		builder.Binary(rule.Parent, rule.Left, rule.Right, rule.Score)
	}
	for _, rule := range file.Unary {
		builder.Unary(rule.Parent, rule.Child, rule.Score)
	}
	g, err := builder.Build()
	if err != nil {
		return nil, errors.Wrap(err, "grammar")
	}
	model.Grammar = g

	deps := NewTableDependencyGrammar(indices)
	model.Dependencies = deps
	section := file.Dependencies
	knownTag := func(tags ...string) error {
		for _, tag := range tags {
			if _, exists := indices.Tags.IndexOf(tag); !exists {
				return errors.Errorf("unknown tag %q", tag)
			}
		}
		return nil
	}
	if len(section.Distances) > 0 {
		for i := 1; i < len(section.Distances); i++ {
			if section.Distances[i] <= section.Distances[i-1] {
				return nil, errors.Errorf("distances must be ascending: %v", section.Distances)
			}
		}
		deps.Distances(section.Distances...)
	}
	if section.DefaultAttach != nil {
		deps.DefaultAttach = *section.DefaultAttach
	}
	if section.DefaultStop != nil {
		deps.DefaultStop = *section.DefaultStop
	}
	for tag, as := range section.Bins {
		if err := knownTag(tag, as); err != nil {
			return nil, errors.Wrap(err, "dependency bins")
		}
		if _, chained := section.Bins[as]; chained {
			return nil, errors.Errorf("dependency bin %s -> %s is itself binned", tag, as)
		}
	}
	for tag, as := range section.Bins {
		deps.Bin(tag, as)
	}
	for _, entry := range section.Attach {
		dir, err := parseDirection(entry.Dir)
		if err == nil {
			err = knownTag(entry.Head, entry.Arg)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "attach %s <- %s", entry.Head, entry.Arg)
		}
		deps.Attach(entry.Head, entry.Arg, dir, distanceBin(entry.Bin), entry.Score)
	}
	for _, entry := range section.Words {
		dir, err := parseDirection(entry.Dir)
		if err == nil {
			err = knownTag(entry.Head, entry.Arg)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "attach %s/%s <- %s/%s", entry.HeadWord, entry.Head, entry.ArgWord, entry.Arg)
		}
		deps.AttachWords(entry.HeadWord, entry.Head, entry.ArgWord, entry.Arg, dir, distanceBin(entry.Bin), entry.Score)
	}
	for _, entry := range section.Stop {
		dir, err := parseDirection(entry.Dir)
		if err == nil {
			err = knownTag(entry.Tag)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "stop %s", entry.Tag)
		}
		deps.Stop(entry.Tag, dir, distanceBin(entry.Bin), entry.Score)
	}
	indices.Freeze()
	return model, nil
}
