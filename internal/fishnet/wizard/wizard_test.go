package wizard

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAcceptsDefaultsAndKey(t *testing.T) {
	// Engine dir, cores, threads, memory, advanced, key — blank lines take
	// every default; the key is required, so the sixth blank line is rejected
	// and the key is asked again.
	in := strings.NewReader("\n\n\n\n\n\nabc123\n")
	var out bytes.Buffer

	c, err := Run(context.Background(), IO{In: in, Out: &out}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestRunRetriesOnInvalidCores(t *testing.T) {
	in := strings.NewReader("\n0\nauto\n\n\n\n\nabc123\n")
	var out bytes.Buffer

	c, err := Run(context.Background(), IO{In: in, Out: &out}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Contains(t, out.String(), "need at least one core")
}

func TestRunAdvancedSetsUCIVariantOption(t *testing.T) {
	// Engine dir, cores, threads, memory, advanced (yes), endpoint, fixed
	// backoff, variant, key.
	in := strings.NewReader("\n\n\n\nyes\n\nno\ncrazyhouse\nabc123\n")
	var out bytes.Buffer

	c, err := Run(context.Background(), IO{In: in, Out: &out}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "crazyhouse", c.EngineOptions()["UCI_Variant"])
}

func TestRunAdvancedRejectsUnsupportedVariant(t *testing.T) {
	in := strings.NewReader("\n\n\n\nyes\n\nno\nnotavariant\nstandard\nabc123\n")
	var out bytes.Buffer

	c, err := Run(context.Background(), IO{In: in, Out: &out}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Contains(t, out.String(), "unsupported variant")
	assert.Equal(t, "standard", c.EngineOptions()["UCI_Variant"])
}
