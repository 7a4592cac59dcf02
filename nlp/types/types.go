package types

import (
	"strings"
)

const (
	BOUNDARY_WORD = ".$."
	BOUNDARY_TAG  = ".$$."
	UNKNOWN_WORD  = "*UNK*"
	WILDCARD_TAG  = "*"
)

type Token string

type BasicSentence []Token

func (b BasicSentence) Tokens() []string {
	retval := make([]string, len(b))
	for i, val := range b {
		retval[i] = string(val)
	}
	return retval
}

// Tokenize splits on whitespace
func Tokenize(line string) BasicSentence {
	fields := strings.Fields(line)
	retval := make(BasicSentence, len(fields))
	for i, f := range fields {
		retval[i] = Token(f)
	}
	return retval
}

// Direction of a dependent relative to its head, or of a hook's open side.
type Direction byte

const (
	LEFT Direction = iota
	RIGHT
)

func (d Direction) String() string {
	if d == LEFT {
		return "left"
	}
	return "right"
}

// Reverse returns the opposite direction
func (d Direction) Reverse() Direction {
	if d == LEFT {
		return RIGHT
	}
	return LEFT
}
