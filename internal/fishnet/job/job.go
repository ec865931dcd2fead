// Package job defines the data model exchanged between a worker and the
// coordinator: the unit of remote work, the telemetry produced while
// executing it, and the request envelopes that carry results back.
package job

import (
	"encoding/json"
	"fmt"
)

// Type distinguishes the two kinds of work a Job can describe.
type Type string

const (
	TypeAnalysis Type = "analysis"
	TypeMove     Type = "move"
)

// Clock is the optional time control attached to a move request, expressed the
// way the coordinator sends it: white/black time in centiseconds, increment in
// whole seconds.
type Clock struct {
	WhiteTimeCs int `json:"wtime"`
	BlackTimeCs int `json:"btime"`
	IncSeconds  int `json:"inc"`
}

// Work carries the fields specific to one request type. Level is meaningful only
// for TypeMove (Job's Nodes and SkipPositions only for TypeAnalysis).
type Work struct {
	ID    string `json:"id"`
	Type  Type   `json:"type"`
	Level int    `json:"level,omitempty"`
	Clock *Clock `json:"clock,omitempty"`
}

// Job is one unit of remote analysis work, as delivered by acquire/analysis/move
// responses.
type Job struct {
	Work          Work   `json:"work"`
	GameID        string `json:"game_id,omitempty"`
	Variant       string `json:"variant"`
	Chess960      bool   `json:"chess960"`
	Position      string `json:"position"`
	Moves         string `json:"moves"`
	NNUE          bool   `json:"nnue"`
	Nodes         int    `json:"nodes,omitempty"`
	SkipPositions []int  `json:"skipPositions,omitempty"`
}

// EffectiveVariant returns the job's variant, defaulting to "standard" the way
// the coordinator's omission of the field is understood.
func (j *Job) EffectiveVariant() string {
	if j.Variant == "" {
		return "standard"
	}
	return j.Variant
}

// MoveList splits the space-separated move string into tokens. An empty
// Moves yields an empty slice, not a slice with one empty string.
func (j *Job) MoveList() []string {
	if j.Moves == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(j.Moves); i++ {
		if i == len(j.Moves) || j.Moves[i] == ' ' {
			if i > start {
				out = append(out, j.Moves[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// ShouldSkip reports whether ply p is in the job's skip set.
func (j *Job) ShouldSkip(p int) bool {
	for _, s := range j.SkipPositions {
		if s == p {
			return true
		}
	}
	return false
}

func (j *Job) String() string {
	if j.GameID != "" {
		return j.GameID
	}
	return j.Work.ID
}

// Score is a tagged sum: exactly one of CP or Mate is meaningful, distinguished
// by Kind. It is never represented as a dictionary of strings, per the design
// of the info-line parser that produces it.
type ScoreKind string

const (
	ScoreKindNone ScoreKind = ""
	ScoreKindCP   ScoreKind = "cp"
	ScoreKindMate ScoreKind = "mate"
)

type Score struct {
	Kind       ScoreKind `json:"-"`
	CP         int       `json:"cp,omitempty"`
	Mate       int       `json:"mate,omitempty"`
	LowerBound bool      `json:"lowerbound,omitempty"`
	UpperBound bool      `json:"upperbound,omitempty"`
}

// IsBound reports whether the score carries only a bound, not an exact value.
func (s Score) IsBound() bool {
	return s.LowerBound || s.UpperBound
}

func (s Score) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case ScoreKindCP:
		return marshalScore("cp", s.CP, s.LowerBound, s.UpperBound)
	case ScoreKindMate:
		return marshalScore("mate", s.Mate, s.LowerBound, s.UpperBound)
	default:
		return []byte("{}"), nil
	}
}

func marshalScore(key string, value int, lower, upper bool) ([]byte, error) {
	out := fmt.Sprintf(`{"%s":%d`, key, value)
	if lower {
		out += `,"lowerbound":true`
	}
	if upper {
		out += `,"upperbound":true`
	}
	out += "}"
	return []byte(out), nil
}

// SearchInfo is the latest accumulated snapshot of engine telemetry for one
// search, built incrementally by the info-line parser and finalized on
// bestmove.
type SearchInfo struct {
	Depth    int     `json:"depth,omitempty"`
	SelDepth int     `json:"seldepth,omitempty"`
	TimeMs   int     `json:"time,omitempty"`
	Nodes    int     `json:"nodes,omitempty"`
	NPS      *int    `json:"nps,omitempty"`
	TBHits   int     `json:"tbhits,omitempty"`
	HashFull int     `json:"hashfull,omitempty"`
	CPULoad  int     `json:"cpuload,omitempty"`
	MultiPV  int     `json:"multipv,omitempty"`
	Score    *Score  `json:"score,omitempty"`
	PV       string  `json:"pv,omitempty"`
	String   string  `json:"string,omitempty"`
	CurrMove string  `json:"currmove,omitempty"`
	BestMove *string `json:"bestmove"`
}

// AnalysisPosition is one element of an AnalysisResult: either a skipped
// placeholder or a computed SearchInfo.
type AnalysisPosition struct {
	Skipped bool
	Info    *SearchInfo
}

func (p AnalysisPosition) MarshalJSON() ([]byte, error) {
	if p.Skipped {
		return []byte(`{"skipped":true}`), nil
	}
	return json.Marshal(p.Info)
}

// AnalysisResult is the per-ply array returned for an analysis job: index p
// corresponds to the position after p of the job's moves have been played,
// length len(moves)+1.
type AnalysisResult []AnalysisPosition

// MoveResult is the outcome of a bestmove job: the chosen move and the FEN of
// the position after playing it.
type MoveResult struct {
	BestMove *string `json:"bestmove"`
	FEN      string  `json:"fen,omitempty"`
}

// NormalizeBestMove maps the engine's "(none)" sentinel to the empty string,
// which the envelope encodes as a JSON null per the documented contract.
func NormalizeBestMove(move string) string {
	if move == "(none)" {
		return ""
	}
	return move
}

// BestMovePtr normalizes move and returns nil if it is absent or "(none)", so
// that SearchInfo.BestMove and MoveResult serialize it as JSON null rather
// than an empty string.
func BestMovePtr(move string) *string {
	n := NormalizeBestMove(move)
	if n == "" {
		return nil
	}
	return &n
}
