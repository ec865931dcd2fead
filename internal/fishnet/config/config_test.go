package config

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCoresAutoAndAll(t *testing.T) {
	auto, err := ValidateCores("auto")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, auto, 1)

	all, err := ValidateCores("all")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, all, auto)
}

func TestValidateCoresRejectsOutOfRange(t *testing.T) {
	_, err := ValidateCores("0")
	require.Error(t, err)

	_, err = ValidateCores(fmt.Sprintf("%d", 1<<20))
	require.Error(t, err)

	_, err = ValidateCores("nope")
	require.Error(t, err)
}

func TestValidateThreadsDefaultsAndClamps(t *testing.T) {
	threads, err := ValidateThreads("auto", 8)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreads, threads)

	threads, err = ValidateThreads("auto", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, threads)

	_, err = ValidateThreads("100", 2)
	require.Error(t, err)
}

func TestValidateMemoryBounds(t *testing.T) {
	_, err := ValidateMemory("1", 4, 2)
	require.Error(t, err)

	_, err = ValidateMemory(fmt.Sprintf("%d", HashMax*100), 4, 2)
	require.Error(t, err)

	m, err := ValidateMemory(fmt.Sprintf("%d", HashDefault*2), 4, 2)
	require.NoError(t, err)
	assert.Equal(t, HashDefault*2, m)
}

func TestValidateEndpointNormalizes(t *testing.T) {
	assert.Equal(t, DefaultEndpoint, ValidateEndpoint(""))
	assert.Equal(t, "https://example.com/", ValidateEndpoint("https://example.com"))
	assert.Equal(t, "https://example.com/", ValidateEndpoint("https://example.com/"))
}

func TestValidateKeyShapeAndForceSuffix(t *testing.T) {
	_, err := ValidateKey(context.Background(), "", nil)
	require.Error(t, err)

	_, err = ValidateKey(context.Background(), "not-alnum!!", nil)
	require.Error(t, err)

	key, err := ValidateKey(context.Background(), "abc123", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)
}

type fakeValidator struct {
	err error
}

func (f fakeValidator) ValidateKey(ctx context.Context, key string) error { return f.err }

func TestValidateKeyNetworkValidationSkippedWithBangSuffix(t *testing.T) {
	v := fakeValidator{err: fmt.Errorf("boom")}

	_, err := ValidateKey(context.Background(), "abc123!", v)
	require.NoError(t, err)

	_, err = ValidateKey(context.Background(), "abc123", v)
	require.Error(t, err)
}

func TestNNUENetsReadsSection(t *testing.T) {
	c := &Config{}
	assert.Empty(t, c.NNUENets())

	c.file = nil
	c.Set("Cores", "2") // forces file creation via Set, same as the wizard would
	c.file.Section("NNUE").Key("nn").SetValue("https://example.com/nn-big.nnue")
	c.file.Section("NNUE").Key("makruk").SetValue("https://example.com/makruk-small.nnue")

	nets := c.NNUENets()
	assert.Equal(t, "https://example.com/nn-big.nnue", nets["nn"])
	assert.Equal(t, "https://example.com/makruk-small.nnue", nets["makruk"])
}

func TestResolveAppliesOverridesAndFileDefaults(t *testing.T) {
	c := &Config{}
	c.Set("Cores", "2")
	c.Set("Memory", "auto")
	c.SetEngineOption("Threads", "2")

	resolved, err := Resolve(context.Background(), c, Resolved{Key: "abc123"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, resolved.Cores)
	assert.Equal(t, DefaultEndpoint, resolved.Endpoint)
	assert.Equal(t, "2", resolved.EngineOptions["Threads"])
}
