// Package parser holds what the chart parsers share: the failure values
// they return and the result of a successful parse.
package parser

import (
	"context"

	nlp "factored/nlp/types"

	"github.com/pkg/errors"
)

var (
	ErrNoParse           = errors.New("no consistent parse")
	ErrLengthExceeded    = errors.New("sentence length exceeds maximum")
	ErrWorkLimitExceeded = errors.New("work limit exceeded")
	ErrCancelled         = errors.New("parse cancelled")
	ErrEmptySentence     = errors.Wrap(ErrNoParse, "empty sentence")
)

// Tolerance is the relative tolerance for strict score improvements
const Tolerance = 1e-10

// Result is one parse of a sentence. Dependencies holds the head position
// of each word, -1 for the word attached to the sentence boundary.
type Result struct {
	Tree         *nlp.Tree
	Score        float64
	Dependencies []int
	Items        int
}

// CheckLength fails with ErrLengthExceeded for sentences over max words;
// a non-positive max disables the check.
func CheckLength(length, max int) error {
	if max > 0 && length > max {
		return errors.Wrapf(ErrLengthExceeded, "%d words, maximum %d", length, max)
	}
	return nil
}

// Cancelled maps a done context to ErrCancelled
func Cancelled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return errors.Wrap(ErrCancelled, ctx.Err().Error())
	default:
		return nil
	}
}
