package conf

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DEFAULT_MAX_LENGTH = 60
	DEFAULT_MAX_ITEMS  = 200000
	DEFAULT_K          = 1
	DEFAULT_STEP       = 10.0
)

// Conf holds the parser settings read from a YAML file. Zero values are
// replaced by defaults in Read.
type Conf struct {
	MaxLength           int     `yaml:"max length"`
	MaxItems            int     `yaml:"max items"`
	K                   int     `yaml:"k"`
	IterativeDeepening  bool    `yaml:"iterative deepening"`
	Step                float64 `yaml:"deepening step"`
	LengthNormalization bool    `yaml:"length normalization"`
	Log                 bool    `yaml:"log"`
}

func Default() *Conf {
	c := &Conf{}
	c.fill()
	return c
}

func (c *Conf) fill() {
	if c.MaxLength == 0 {
		c.MaxLength = DEFAULT_MAX_LENGTH
	}
	if c.MaxItems == 0 {
		c.MaxItems = DEFAULT_MAX_ITEMS
	}
	if c.K == 0 {
		c.K = DEFAULT_K
	}
	if c.Step == 0 {
		c.Step = DEFAULT_STEP
	}
}

func (c *Conf) Validate() error {
	switch {
	case c.MaxLength < 1:
		return errors.Errorf("max length must be positive, got %d", c.MaxLength)
	case c.MaxItems < 1:
		return errors.Errorf("max items must be positive, got %d", c.MaxItems)
	case c.K < 1:
		return errors.Errorf("k must be positive, got %d", c.K)
	case c.Step <= 0:
		return errors.Errorf("deepening step must be positive, got %v", c.Step)
	}
	return nil
}

func Read(reader io.Reader) (*Conf, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "reading configuration")
	}
	c := &Conf{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "parsing configuration")
	}
	c.fill()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func ReadFile(filename string) (*Conf, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening configuration %s", filename)
	}
	defer file.Close()

	c, err := Read(file)
	if err != nil {
		return nil, errors.Wrapf(err, "configuration %s", filename)
	}
	return c, nil
}
