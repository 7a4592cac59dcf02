package app

import (
	"bufio"
	"io"
	"log"
	"os"

	nlp "factored/nlp/types"
	"factored/util/conf"

	"github.com/gonuts/commander"
	"github.com/pkg/errors"
)

var (
	// file names
	modelFile string
	input     string
	confFile  string

	// overrides of the configuration file
	kGood, maxItems, maxLength int
	logging                    bool

	workers int

	output io.Writer = os.Stdout
)

func VerifyExists(filename string) bool {
	_, err := os.Stat(filename)
	if err != nil {
		log.Println("Error accessing file", filename)
		log.Println(err)
		return false
	}
	return true
}

func VerifyFlags(cmd *commander.Command, required []string) error {
	for _, flag := range required {
		f := cmd.Flag.Lookup(flag)
		if f == nil || f.Value.String() == "" {
			log.Printf("Required flag %s not set", flag)
			cmd.Usage()
			return errors.Errorf("required flag -%s not set", flag)
		}
	}
	return nil
}

// configure reads the configuration file, if any, and applies the
// command line overrides
func configure() (*conf.Conf, error) {
	c := conf.Default()
	if confFile != "" {
		if !VerifyExists(confFile) {
			return nil, errors.Errorf("configuration %s not found", confFile)
		}
		var err error
		if c, err = conf.ReadFile(confFile); err != nil {
			return nil, err
		}
	}
	if kGood > 0 {
		c.K = kGood
	}
	if maxItems > 0 {
		c.MaxItems = maxItems
	}
	if maxLength > 0 {
		c.MaxLength = maxLength
	}
	if logging {
		c.Log = true
	}
	return c, c.Validate()
}

// ReadSentences reads one whitespace tokenized sentence per line, skipping
// blank lines
func ReadSentences(reader io.Reader) ([]nlp.BasicSentence, error) {
	var sentences []nlp.BasicSentence
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if sent := nlp.Tokenize(scanner.Text()); len(sent) > 0 {
			sentences = append(sentences, sent)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading sentences")
	}
	return sentences, nil
}

func ReadSentencesFile(filename string) ([]nlp.BasicSentence, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", filename)
	}
	defer file.Close()
	return ReadSentences(file)
}
