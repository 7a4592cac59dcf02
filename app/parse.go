package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"factored/nlp/grammar"
	"factored/nlp/parser"
	"factored/nlp/parser/bilex"
	nlp "factored/nlp/types"
	"factored/util"
	"factored/util/conf"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
	"github.com/pkg/errors"
)

func ParseCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       ParseSentences,
		UsageLine: "parse <file options> [arguments]",
		Short:     "parses sentences with a factored PCFG and dependency model",
		Long: `
parses sentences with a factored PCFG and dependency model, printing the
bracketed tree and score of each parse

	$ ./factored parse -m <model yaml> -in <sentences> [-c <conf yaml>] [-k <parses>] [options]

`,
		Flag: *flag.NewFlagSet("parse", flag.ExitOnError),
	}
	cmd.Flag.StringVar(&modelFile, "m", "", "Model File (YAML)")
	cmd.Flag.StringVar(&input, "in", "", "Input File, one tokenized sentence per line")
	cmd.Flag.StringVar(&confFile, "c", "", "Optional - Parser Configuration File (YAML)")
	cmd.Flag.IntVar(&kGood, "k", 0, "Parses per sentence (overrides configuration)")
	cmd.Flag.IntVar(&maxItems, "maxitems", 0, "Max items built per sentence (overrides configuration)")
	cmd.Flag.IntVar(&maxLength, "maxlen", 0, "Max sentence length (overrides configuration)")
	cmd.Flag.IntVar(&workers, "p", 1, "Sentences parsed concurrently")
	cmd.Flag.BoolVar(&logging, "log", false, "Log parser progress")
	return cmd
}

type outcome struct {
	results []*parser.Result
	err     error
}

func ParseSentences(cmd *commander.Command, args []string) error {
	if err := VerifyFlags(cmd, []string{"m", "in"}); err != nil {
		return err
	}
	c, err := configure()
	if err != nil {
		return err
	}
	checksum, err := util.Checksum(modelFile)
	if err != nil {
		return err
	}
	log.Println("Reading model from", modelFile, "MD5", checksum)
	model, err := grammar.LoadModelFile(modelFile)
	if err != nil {
		return err
	}
	log.Println("Model has", model.Grammar.NumStates(), "states,", model.Grammar.NumTags(), "tags and", model.Indices.Words.Len(), "words")
	sentences, err := ReadSentencesFile(input)
	if err != nil {
		return err
	}
	log.Println("Parsing", len(sentences), "sentences")
	start := time.Now()
	outcomes := parseAll(model, c, sentences, workers)
	failed := writeOutcomes(output, outcomes, c.K)
	log.Println("Parsed", len(sentences), "sentences in", time.Since(start), "with", failed, "failures")
	if c.Log {
		util.LogMemory()
	}
	return nil
}

// parseAll parses with one parser per worker over the shared model,
// keeping the input order
func parseAll(model *grammar.Model, c *conf.Conf, sentences []nlp.BasicSentence, workers int) []outcome {
	outcomes := make([]outcome, len(sentences))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < util.Max(workers, 1); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := bilex.NewParser(model)
			p.MaxLength, p.MaxItems, p.Log = c.MaxLength, c.MaxItems, c.Log
			for i := range jobs {
				results, err := p.ParseKGood(context.Background(), sentences[i].Tokens(), c.K)
				if err != nil {
					log.Println("Sentence", i, err)
				}
				outcomes[i] = outcome{results, err}
			}
		}()
	}
	for i := range sentences {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

// writeOutcomes prints a tree and score per parse and a comment line per
// failure; with k > 1 every sentence's block ends with a blank line
func writeOutcomes(out io.Writer, outcomes []outcome, k int) int {
	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			reason := "no parse"
			switch {
			case errors.Is(o.err, parser.ErrWorkLimitExceeded):
				reason = "work limit exceeded"
			case errors.Is(o.err, parser.ErrLengthExceeded):
				reason = "too long"
			}
			fmt.Fprintf(out, "# %s\n", reason)
		}
		for _, result := range o.results {
			fmt.Fprintf(out, "%s\t%.6f\n", result.Tree, result.Score)
		}
		if k > 1 {
			fmt.Fprintln(out)
		}
	}
	return failed
}
