package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/lichess-org/fishnet-go/internal/fishnet/enginechan"
	"github.com/lichess-org/fishnet-go/internal/fishnet/job"
	"github.com/lichess-org/fishnet-go/internal/fishnet/uciclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngineScript is a minimal bash stand-in for a UCI engine: it answers
// the handshake, ready-sync and a single "go" with a fixed bestmove/score so
// the executor can be exercised without a real chess engine binary.
const stubEngineScript = `
while IFS= read -r line; do
  case "$line" in
    uci)
      echo "id name StubFish"
      echo "option name UCI_Variant type combo default chess var chess var crazyhouse"
      echo "uciok"
      ;;
    isready)
      echo "readyok"
      ;;
    go*)
      echo "info depth 1 seldepth 1 time 5 nodes 100 score cp 25 pv e2e4"
      echo "bestmove e2e4"
      ;;
    *)
      ;;
  esac
done
`

func newStubClient(t *testing.T) *uciclient.Client {
	t.Helper()
	ctx := context.Background()
	ch, err := enginechan.Spawn(ctx, []string{"bash", "-c", stubEngineScript}, "")
	require.NoError(t, err)
	t.Cleanup(func() { ch.Kill(ctx) })

	client, err := uciclient.Handshake(ctx, ch)
	require.NoError(t, err)
	return client
}

func TestBestMoveReturnsEngineChoice(t *testing.T) {
	client := newStubClient(t)
	exec := New(client, 1, nil)

	j := &job.Job{
		Work:     job.Work{Level: 5},
		Variant:  "standard",
		Position: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
	}

	result, err := exec.BestMove(context.Background(), j)
	require.NoError(t, err)
	require.NotNil(t, result.BestMove)
	require.Equal(t, "e2e4", *result.BestMove)
	require.NotEmpty(t, result.FEN)
}

func TestAnalysisWalksAllPliesAndHonorsSkips(t *testing.T) {
	client := newStubClient(t)
	exec := New(client, 1, nil)

	j := &job.Job{
		Work:          job.Work{Level: 8},
		Variant:       "standard",
		Position:      "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		Moves:         "e2e4 e7e5",
		SkipPositions: []int{1},
	}

	result, err := exec.Analysis(context.Background(), j, nil)
	require.NoError(t, err)
	require.Len(t, result, 3)
	require.True(t, result[1].Skipped)
	require.False(t, result[0].Skipped)
	require.NotNil(t, result[0].Info)
	require.NotNil(t, result[0].Info.Score)
	require.Equal(t, 25, result[0].Info.Score.CP)
}

// loggingEngineScript appends every line it reads to a log file before
// answering the handshake/ready-sync, so a test can assert on the exact
// setoption commands the client sent.
const loggingEngineScript = `
while IFS= read -r line; do
  echo "$line" >> %q
  case "$line" in
    uci)
      echo "id name StubFish"
      echo "uciok"
      ;;
    isready)
      echo "readyok"
      ;;
  esac
done
`

func TestConfigureVariantSetsEvalFileWhenNNUEConfigured(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "engine.log")
	script := fmt.Sprintf(loggingEngineScript, logPath)

	ctx := context.Background()
	ch, err := enginechan.Spawn(ctx, []string{"bash", "-c", script}, "")
	require.NoError(t, err)
	t.Cleanup(func() { ch.Kill(ctx) })

	client, err := uciclient.Handshake(ctx, ch)
	require.NoError(t, err)

	exec := New(client, 1, map[string]string{"nn": "/opt/nets/nn-abc123.nnue"})

	j := &job.Job{
		Work:     job.Work{Level: 1},
		Variant:  "chess",
		Position: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		NNUE:     true,
	}

	variant, err := exec.configureVariant(ctx, j)
	require.NoError(t, err)
	require.Equal(t, "chess", variant)

	require.NoError(t, client.WaitReady(ctx))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "setoption name EvalFile value /opt/nets/nn-abc123.nnue")
}

func TestConfigureVariantLeavesEvalFileUnsetWithoutNNUE(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "engine.log")
	script := fmt.Sprintf(loggingEngineScript, logPath)

	ctx := context.Background()
	ch, err := enginechan.Spawn(ctx, []string{"bash", "-c", script}, "")
	require.NoError(t, err)
	t.Cleanup(func() { ch.Kill(ctx) })

	client, err := uciclient.Handshake(ctx, ch)
	require.NoError(t, err)

	exec := New(client, 1, map[string]string{"nn": "/opt/nets/nn-abc123.nnue"})

	j := &job.Job{
		Work:     job.Work{Level: 1},
		Variant:  "chess",
		Position: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		NNUE:     false,
	}

	_, err = exec.configureVariant(ctx, j)
	require.NoError(t, err)
	require.NoError(t, client.WaitReady(ctx))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "EvalFile")
}
