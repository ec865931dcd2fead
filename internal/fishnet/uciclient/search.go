package uciclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lichess-org/fishnet-go/internal/fishnet/job"
	"github.com/seekerror/logw"
)

// SearchRequest is the subset of a job executor's invocation the dialogue
// needs to build "position ..." and "go ...".
type SearchRequest struct {
	FEN       string
	Moves     []string
	MoveTimeMs int // 0 = unset
	Depth      int // 0 = unset
	Nodes      int // 0 = unset
	Clock      *job.Clock
}

// Search sends "position fen ... moves ..." followed by "go ...", then
// consumes info/bestmove lines until the search concludes, returning the
// accumulated SearchInfo.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*job.SearchInfo, error) {
	pos := fmt.Sprintf("position fen %v", req.FEN)
	if len(req.Moves) > 0 {
		pos += " moves " + strings.Join(req.Moves, " ")
	}
	if err := send(ctx, c.ch, pos); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("go")
	if req.MoveTimeMs > 0 {
		fmt.Fprintf(&b, " movetime %d", req.MoveTimeMs)
	}
	if req.Depth > 0 {
		fmt.Fprintf(&b, " depth %d", req.Depth)
	}
	if req.Nodes > 0 {
		fmt.Fprintf(&b, " nodes %d", req.Nodes)
	}
	if req.Clock != nil {
		fmt.Fprintf(&b, " wtime %d btime %d winc %d binc %d",
			req.Clock.WhiteTimeCs*10, req.Clock.BlackTimeCs*10,
			req.Clock.IncSeconds*1000, req.Clock.IncSeconds*1000)
	}
	if err := send(ctx, c.ch, b.String()); err != nil {
		return nil, err
	}

	return c.collectSearchResult(ctx)
}

// Stop sends "stop", used to cut a search short once a decisive mate-in-0
// score has already been observed.
func (c *Client) Stop(ctx context.Context) error {
	return send(ctx, c.ch, "stop")
}

// collectSearchResult implements the info-line accumulator and bestmove
// finalization, including the mate:0 boundary: once a multipv=1 score of
// mate 0 is observed, stop is sent immediately, further info lines are
// drained as superfluous, and the terminating bestmove is still consumed.
func (c *Client) collectSearchResult(ctx context.Context) (*job.SearchInfo, error) {
	info := &job.SearchInfo{}
	acc := newAccumulator()
	stopSent := false

	for {
		line, err := recv(ctx, c.ch)
		if err != nil {
			return nil, err
		}

		if strings.HasPrefix(line, "bestmove") {
			fields := strings.Fields(line)
			best := ""
			if len(fields) > 1 {
				best = fields[1]
			}
			acc.applyTo(info)
			info.BestMove = job.BestMovePtr(best)
			if stopSent {
				if err := c.WaitReady(ctx); err != nil {
					return nil, err
				}
			}
			return info, nil
		}

		if strings.HasPrefix(line, "info") {
			if stopSent {
				// Superfluous, already stopping; still must not block on bestmove.
				continue
			}
			acc.parseLine(strings.TrimPrefix(line, "info"))
			if acc.score != nil && acc.score.Kind == job.ScoreKindMate && acc.score.Mate == 0 && acc.multiPVOrDefault() == 1 {
				if err := c.Stop(ctx); err != nil {
					return nil, err
				}
				stopSent = true
			}
			continue
		}

		logw.Warningf(ctx, "Unexpected engine response to go: %v", line)
	}
}
