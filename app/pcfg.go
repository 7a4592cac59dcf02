package app

import (
	"context"
	"fmt"
	"log"

	"factored/nlp/grammar"
	"factored/nlp/parser/pcfg"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

func PCFGCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       PCFGParse,
		UsageLine: "pcfg <file options> [arguments]",
		Short:     "parses sentences with the PCFG of a model alone",
		Long: `
parses sentences with the PCFG of a model alone, ignoring its dependency
grammar, and prints the Viterbi tree and score of each sentence

	$ ./factored pcfg -m <model yaml> -in <sentences> [-c <conf yaml>] [options]

`,
		Flag: *flag.NewFlagSet("pcfg", flag.ExitOnError),
	}
	cmd.Flag.StringVar(&modelFile, "m", "", "Model File (YAML)")
	cmd.Flag.StringVar(&input, "in", "", "Input File, one tokenized sentence per line")
	cmd.Flag.StringVar(&confFile, "c", "", "Optional - Parser Configuration File (YAML)")
	cmd.Flag.IntVar(&maxLength, "maxlen", 0, "Max sentence length (overrides configuration)")
	cmd.Flag.BoolVar(&logging, "log", false, "Log parser progress")
	return cmd
}

func PCFGParse(cmd *commander.Command, args []string) error {
	if err := VerifyFlags(cmd, []string{"m", "in"}); err != nil {
		return err
	}
	c, err := configure()
	if err != nil {
		return err
	}
	model, err := grammar.LoadModelFile(modelFile)
	if err != nil {
		return err
	}
	sentences, err := ReadSentencesFile(input)
	if err != nil {
		return err
	}
	p := &pcfg.Parser{
		Grammar:             model.Grammar,
		Lexicon:             model.Lexicon,
		MaxLength:           c.MaxLength,
		IterativeDeepening:  c.IterativeDeepening,
		Step:                c.Step,
		LengthNormalization: c.LengthNormalization,
		Log:                 c.Log,
	}
	failed := 0
	for i, sent := range sentences {
		tokens := sent.Tokens()
		if err := p.Parse(context.Background(), model.Indices.WordIDs(tokens)); err != nil {
			log.Println("Sentence", i, err)
			fmt.Fprintln(output, "# too long")
			failed++
			continue
		}
		if !p.HasParse() {
			fmt.Fprintln(output, "# no parse")
			failed++
			continue
		}
		tree := p.BestTree(tokens).Debinarize(func(label string) bool {
			state, ok := model.Grammar.State(label)
			return ok && model.Grammar.IsSynthetic(state)
		})
		fmt.Fprintf(output, "%s\t%.6f\n", tree, p.BestScore())
	}
	log.Println("Parsed", len(sentences), "sentences with", failed, "failures")
	return nil
}
