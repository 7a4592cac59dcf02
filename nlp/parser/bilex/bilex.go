// Package bilex finds the best lexicalized parse under the sum of a PCFG
// score and a bilexical dependency score. It runs an A* search over headed
// constituents whose heuristic is the sum of the exact outside scores of the
// two factor models, computed first by the pcfg and dependency chart
// parsers. The heuristic is consistent, so the first goal popped is optimal.
package bilex

import (
	"context"
	"log"
	"math"

	"factored/nlp/grammar"
	"factored/nlp/parser"
	"factored/nlp/parser/chart"
	"factored/nlp/parser/dependency"
	"factored/nlp/parser/pcfg"
	"factored/util/conf"

	"github.com/pkg/errors"
)

// cancellation is checked every CHECK_EVERY pops
const CHECK_EVERY = 256

// Parser is not safe for concurrent use; the model it reads is, so parallel
// parsing uses one Parser per goroutine over a shared Model.
type Parser struct {
	Indices      *grammar.Indices
	Grammar      grammar.Tables
	Lexicon      grammar.Lexicon
	Dependencies grammar.DependencyGrammar

	// Coarse is the grammar of the PCFG heuristic, Project maps Grammar
	// states to its states. They default to Grammar and the identity.
	Coarse  grammar.Tables
	Project func(state int) int

	// MaxLength bounds the words of a sentence; non-positive is unbounded
	MaxLength int
	// MaxItems bounds the number of items built; non-positive is unbounded
	MaxItems int
	Log      bool

	pcfg   *pcfg.Parser
	deps   *dependency.Parser
	chart  *chart.Chart
	agenda *chart.Agenda

	tokens    []string
	words     []int
	length    int
	boundary  int
	goal      int
	endState  int
	kGood     bool
	synthetic map[string]bool
}

func NewParser(model *grammar.Model) *Parser {
	return &Parser{
		Indices:      model.Indices,
		Grammar:      model.Grammar,
		Lexicon:      model.Lexicon,
		Dependencies: model.Dependencies,
		MaxLength:    conf.DEFAULT_MAX_LENGTH,
	}
}

// Parse returns the best parse of words
func (p *Parser) Parse(ctx context.Context, words []string) (*parser.Result, error) {
	results, err := p.parse(ctx, words, 1)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// ParseKGood returns up to k parses in order of score. Goal candidates are
// distinct records but edges below the goal are still shared, so parses that
// differ only under the goal's child are not enumerated.
func (p *Parser) ParseKGood(ctx context.Context, words []string, k int) ([]*parser.Result, error) {
	if k < 1 {
		return nil, errors.Errorf("k must be positive, got %d", k)
	}
	return p.parse(ctx, words, k)
}

func (p *Parser) init() {
	if p.Coarse == nil {
		p.Coarse = p.Grammar
	}
	if p.Project == nil {
		p.Project = grammar.Identity
	}
	if p.pcfg == nil {
		p.pcfg = &pcfg.Parser{Grammar: p.Coarse, Lexicon: p.Lexicon, Log: p.Log}
		p.deps = &dependency.Parser{Dependencies: p.Dependencies, Lexicon: p.Lexicon, Log: p.Log}
		p.chart = chart.NewChart()
		p.agenda = chart.NewAgenda(p.chart)
	}
	if p.synthetic == nil {
		p.synthetic = make(map[string]bool)
		for state := 0; state < p.Grammar.NumStates(); state++ {
			if p.Grammar.IsSynthetic(state) {
				p.synthetic[p.Grammar.StateName(state)] = true
			}
		}
	}
	p.goal = p.Grammar.Goal()
	p.endState = p.Grammar.TagState(grammar.BOUNDARY_TAG_ID)
}

func (p *Parser) parse(ctx context.Context, tokens []string, k int) ([]*parser.Result, error) {
	if err := p.prepare(ctx, tokens, k); err != nil {
		return nil, err
	}
	goals, err := p.search(ctx, k)
	if err != nil {
		return nil, err
	}
	results := make([]*parser.Result, len(goals))
	for i, goal := range goals {
		results[i] = p.result(goal)
	}
	return results, nil
}

// prepare runs both heuristic parsers and seeds the agenda with the leaves
func (p *Parser) prepare(ctx context.Context, tokens []string, k int) error {
	if len(tokens) == 0 {
		return parser.ErrEmptySentence
	}
	if err := parser.CheckLength(len(tokens), p.MaxLength); err != nil {
		return err
	}
	p.init()
	p.tokens = tokens
	p.words = p.Indices.WordIDs(tokens)
	p.length = len(tokens) + 1
	p.boundary = len(tokens)
	p.kGood = k > 1

	if err := p.pcfg.Parse(ctx, p.words); err != nil {
		return err
	}
	if !p.pcfg.HasParse() {
		return errors.Wrap(parser.ErrNoParse, "pcfg")
	}
	if err := p.deps.Parse(ctx, p.words); err != nil {
		return err
	}
	if !p.deps.HasParse() {
		return errors.Wrap(parser.ErrNoParse, "dependencies")
	}
	if p.Log {
		log.Printf("PCFG best %.4f, dependency best %.4f", p.pcfg.BestScore(), p.deps.BestScore())
	}
	p.chart.Reset(p.length)
	p.agenda.Reset()
	p.seed()
	return nil
}

func (p *Parser) search(ctx context.Context, k int) ([]int, error) {
	var (
		goals     []int
		pops      int
		workLimit bool
	)
	for p.agenda.Len() > 0 && len(goals) < k {
		pops++
		if pops%CHECK_EVERY == 0 {
			if err := parser.Cancelled(ctx); err != nil {
				return nil, err
			}
		}
		if p.MaxItems > 0 && p.chart.Size() > p.MaxItems {
			workLimit = true
			break
		}
		item := p.agenda.Next()
		if math.IsInf(p.chart.Score(item), -1) {
			break
		}
		if p.pop(item) {
			goals = append(goals, item.Index)
		}
	}
	if p.Log {
		log.Printf("%d pops, %d items, %d goals", pops, p.chart.Size(), len(goals))
	}
	if len(goals) > 0 {
		return goals, nil
	}
	if workLimit {
		if p.Log {
			log.Println("Work limit exceeded after", p.chart.Size(), "items")
		}
		return nil, errors.Wrapf(parser.ErrWorkLimitExceeded, "%d items", p.chart.Size())
	}
	if p.Log {
		log.Println("No consistent parse found")
	}
	return nil, parser.ErrNoParse
}

// pop commits an item taken off the agenda and reports whether it is a goal
func (p *Parser) pop(item chart.Item) bool {
	if item.Kind == chart.HOOK {
		p.processHook(item.Index)
		return false
	}
	if p.chart.Edge(item.Index).State == p.goal {
		p.chart.Edge(item.Index).Status = chart.COMMITTED
		return true
	}
	p.processEdge(item.Index)
	return false
}
