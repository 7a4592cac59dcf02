package grammartest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomModels(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		var tags []string
		require.NotPanics(t, func() {
			model := Random(r)
			for tag := 0; tag < model.Indices.Tags.Len(); tag++ {
				tags = append(tags, model.Indices.Tags.ValueOf(tag))
			}
		}, "trial %d", trial)
		assert.Subset(t, tags, []string{"T", "U"}, "trial %d", trial)
	}
}
