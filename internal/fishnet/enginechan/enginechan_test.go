package enginechan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cat echoes stdin to stdout line for line, standing in for an engine
// subprocess without depending on one being installed in the test environment.
func TestSpawnSendRecvKill(t *testing.T) {
	c, err := Spawn(context.Background(), []string{"cat"}, "")
	require.NoError(t, err)
	defer c.Kill(context.Background())

	require.NoError(t, c.Send("hello"))
	line, err := c.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hello", line)
}

func TestRecvAfterKillReportsEngineDied(t *testing.T) {
	c, err := Spawn(context.Background(), []string{"cat"}, "")
	require.NoError(t, err)

	c.Kill(context.Background())

	_, err = c.Recv()
	assert.ErrorIs(t, err, ErrEngineDied)
}

func TestSpawnEmptyCommand(t *testing.T) {
	_, err := Spawn(context.Background(), nil, "")
	assert.Error(t, err)
}
