// Package executor implements the job executor: given a job descriptor, it
// configures the engine for the requested variant and skill, drives either a
// single bestmove search or a reverse-ply analysis walk, and yields a
// structured result.
package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lichess-org/fishnet-go/internal/fishnet/job"
	"github.com/lichess-org/fishnet-go/internal/fishnet/position"
	"github.com/lichess-org/fishnet-go/internal/fishnet/uciclient"
	"github.com/seekerror/logw"
)

// LVLSkill, LVLMoveTimes and LVLDepths are indexed directly by work.level
// (1..8); index 0 mirrors the source's own unused filler entry and is never
// read, since the job data model guarantees level is at least 1.
var (
	LVLSkill     = [9]int{-4, 0, 3, 6, 10, 14, 16, 18, 20}
	LVLMoveTimes = [9]int{50, 50, 100, 150, 200, 300, 400, 500, 1000}
	LVLDepths    = [9]int{1, 1, 1, 2, 3, 5, 8, 13, 22}
)

// ProgressFunc streams a partial analysis snapshot through the progress
// reporter. It must never block; the executor calls it at most once every
// ProgressInterval while iterating analysis plies.
type ProgressFunc func(result job.AnalysisResult)

// ProgressInterval is the minimum spacing between progress snapshots while
// analysing a job, per spec §4.3.
const ProgressInterval = 5 * time.Second

// AnalysisNodeDefault is the per-ply node budget used when a job does not
// specify one.
const AnalysisNodeDefault = 3_500_000

// AnalysisMoveTimeMs bounds each analysis search alongside the node budget;
// the engine stops at whichever limit is hit first.
const AnalysisMoveTimeMs = 4000

// Executor drives one engine through either bestmove or analysis jobs.
type Executor struct {
	client    *uciclient.Client
	threads   int
	nnueFiles map[string]string // NNUENetKey(variant) -> local network file path

	lastNodes int
}

// New returns an Executor bound to an already-handshaken engine client.
// nnueFiles maps a variant's NNUENetKey to the local path of its downloaded
// network file (see internal/fishnet/download); it may be nil if no NNUE
// nets were configured.
func New(client *uciclient.Client, threads int, nnueFiles map[string]string) *Executor {
	if threads < 1 {
		threads = 1
	}
	return &Executor{client: client, threads: threads, nnueFiles: nnueFiles}
}

// configureVariant implements the variant half of spec §4.2's
// set_variant_options: compute the effective variant, then select and set
// EvalFile when the job allows NNUE and a local network file is configured
// for this variant's net key.
func (e *Executor) configureVariant(ctx context.Context, j *job.Job) (string, error) {
	variant := uciclient.ModdedVariant(j.EffectiveVariant(), j.Chess960, j.Position)

	var nnuePath string
	if j.NNUE {
		nnuePath = e.nnueFiles[uciclient.NNUENetKey(variant)]
	}

	if err := e.client.ConfigureVariant(ctx, variant, j.Chess960, nnuePath); err != nil {
		return "", err
	}
	return variant, nil
}

// BestMove implements spec §4.3's bestmove(job): configure variant and skill,
// invoke a single search with a level-derived movetime and depth cap, then
// derive the post-move FEN via the position package's structural fen_after.
func (e *Executor) BestMove(ctx context.Context, j *job.Job) (*job.MoveResult, error) {
	lvl := clampLevel(j.Work.Level)

	variant, err := e.configureVariant(ctx, j)
	if err != nil {
		return nil, err
	}
	if err := e.client.SetOption(ctx, "Skill Level", LVLSkill[lvl]); err != nil {
		return nil, err
	}
	if err := e.client.SetOption(ctx, "UCI_AnalyseMode", false); err != nil {
		return nil, err
	}
	if err := e.client.NewGame(ctx); err != nil {
		return nil, err
	}
	if err := e.client.WaitReady(ctx); err != nil {
		return nil, err
	}

	moves := j.MoveList()
	movetime := int(math.Round(float64(LVLMoveTimes[lvl]) / (float64(e.threads) * math.Pow(0.9, float64(e.threads-1)))))

	logw.Infof(ctx, "Playing %v (%v) with level %v and movetime %vms", j, variant, lvl, movetime)

	info, err := e.client.Search(ctx, uciclient.SearchRequest{
		FEN:        j.Position,
		Moves:      moves,
		MoveTimeMs: movetime,
		Depth:      LVLDepths[lvl],
		Clock:      j.Work.Clock,
	})
	if err != nil {
		return nil, err
	}
	e.lastNodes = info.Nodes

	result := &job.MoveResult{BestMove: info.BestMove}
	if info.BestMove != nil {
		fen, err := position.FenAfter(variant, j.Position, moves, *info.BestMove, j.Chess960)
		if err != nil {
			logw.Errorf(ctx, "fen_after failed for %v with moves %v: %v", j.Position, moves, err)
		} else {
			result.FEN = fen
		}
	}
	return result, nil
}

// Analysis implements spec §4.3's analysis(job): maximum skill, reverse-ply
// walk from len(moves) down to 0, streaming progress at most once every
// ProgressInterval.
func (e *Executor) Analysis(ctx context.Context, j *job.Job, onProgress ProgressFunc) (job.AnalysisResult, error) {
	variant, err := e.configureVariant(ctx, j)
	if err != nil {
		return nil, err
	}
	if err := e.client.SetOption(ctx, "Skill Level", 20); err != nil {
		return nil, err
	}
	if err := e.client.SetOption(ctx, "UCI_AnalyseMode", true); err != nil {
		return nil, err
	}
	if err := e.client.NewGame(ctx); err != nil {
		return nil, err
	}
	if err := e.client.WaitReady(ctx); err != nil {
		return nil, err
	}

	moves := j.MoveList()
	nodes := j.Nodes
	if nodes <= 0 {
		nodes = AnalysisNodeDefault
	}

	result := make(job.AnalysisResult, len(moves)+1)
	lastReport := time.Now()

	for p := len(moves); p >= 0; p-- {
		if j.ShouldSkip(p) {
			result[p] = job.AnalysisPosition{Skipped: true}
			continue
		}

		if onProgress != nil && time.Since(lastReport) >= ProgressInterval {
			onProgress(result)
			lastReport = time.Now()
		}

		logw.Debugf(ctx, "Analysing %v: %v#%v", variant, j, p)

		info, err := e.client.Search(ctx, uciclient.SearchRequest{
			FEN:        j.Position,
			Moves:      moves[0:p],
			Nodes:      nodes,
			MoveTimeMs: AnalysisMoveTimeMs,
		})
		if err != nil {
			return nil, fmt.Errorf("analysis ply %v: %w", p, err)
		}

		applySanityFilters(ctx, info)
		result[p] = job.AnalysisPosition{Info: info}
	}

	return result, nil
}

// applySanityFilters implements spec §4.3's two filters: a suspiciously low
// elapsed time on a non-mate score is logged (not dropped); an implausible
// nps is already excluded by the parser (job.SearchInfo.NPS is nil at or
// above 1e8), so this only needs to log the low-time case.
func applySanityFilters(ctx context.Context, info *job.SearchInfo) {
	if info.Score != nil && info.Score.Kind != job.ScoreKindMate && info.TimeMs > 0 && info.TimeMs < 100 {
		logw.Warningf(ctx, "Very low time reported: %vms", info.TimeMs)
	}
}

// LastNodes returns the node count of the most recently completed BestMove
// search, for the caller to fold into its running node counter.
func (e *Executor) LastNodes() int {
	return e.lastNodes
}

func clampLevel(lvl int) int {
	if lvl < 1 {
		return 1
	}
	if lvl > 8 {
		return 8
	}
	return lvl
}
