package uciclient

import (
	"strconv"

	"github.com/lichess-org/fishnet-go/internal/fishnet/job"
)

// accumulator is the typed record the info-line parser builds up across
// possibly many "info ..." lines of one search, per spec's design note: a
// typed accumulator plus a tagged score sum, not a dictionary of strings.
type accumulator struct {
	depth, selDepth, timeMs, nodes, nps, tbHits, hashFull, cpuLoad, multiPV int
	haveDepth, haveSelDepth, haveTimeMs, haveNodes, haveNPS                 bool
	haveTBHits, haveHashFull, haveCPULoad, haveMultiPV                     bool

	score *job.Score
	pv    string
	str   string
	curr  string
}

func newAccumulator() *accumulator {
	return &accumulator{}
}

func (a *accumulator) multiPVOrDefault() int {
	if a.haveMultiPV {
		return a.multiPV
	}
	return 1
}

// parseLine advances the state machine over the space-delimited tokens of one
// info line (with the leading "info" keyword already stripped). current
// tracks which parameter is accumulating; integer-valued parameters store
// int(token); "string" greedily consumes the remainder of the line; "pv" is
// captured only at multipv 1 (or unspecified); unknown tokens under
// "currmove" or "pv" are appended space-delimited, matching the source
// dialogue's permissive trailing-token handling. Tokens under "refutation"
// and "currline" are discarded.
func (a *accumulator) parseLine(line string) {
	tokens := fields(line)

	var current string
	var scoreKind job.ScoreKind
	var scoreValue int
	var lowerBound, upperBound bool

	for _, tok := range tokens {
		switch {
		case current == "string":
			if a.str == "" {
				a.str = tok
			} else {
				a.str += " " + tok
			}

		case tok == "score":
			current = "score"

		case tok == "pv":
			current = "pv"
			if a.multiPVOrDefault() == 1 {
				a.pv = ""
			}

		case isKnownParameter(tok):
			current = tok
			a.resetParameter(current)

		case isIntParameter(current):
			n, err := strconv.Atoi(tok)
			if err == nil {
				a.setIntParameter(current, n)
			}

		case current == "score":
			switch tok {
			case "cp", "mate":
				scoreKind = job.ScoreKind(tok)
				scoreValue = 0
			case "lowerbound":
				lowerBound = true
			case "upperbound":
				upperBound = true
			default:
				if n, err := strconv.Atoi(tok); err == nil {
					scoreValue = n
				}
			}

		case current != "pv" || a.multiPVOrDefault() == 1:
			a.appendString(current, tok)
		}
	}

	// Replace the stored score unless the new one is itself only a bound and
	// the existing score is a present, non-bound (exact) value (§5 Open
	// Question decision #2).
	if scoreKind != job.ScoreKindNone {
		newIsBound := lowerBound || upperBound
		if !newIsBound || a.score == nil || a.score.IsBound() {
			a.score = &job.Score{Kind: scoreKind, LowerBound: lowerBound, UpperBound: upperBound}
			if scoreKind == job.ScoreKindCP {
				a.score.CP = scoreValue
			} else {
				a.score.Mate = scoreValue
			}
		}
	}
}

func (a *accumulator) resetParameter(name string) {
	switch name {
	case "currmove":
		a.curr = ""
	case "string":
		a.str = ""
	}
}

func (a *accumulator) appendString(name, tok string) {
	switch name {
	case "currmove":
		if a.curr == "" {
			a.curr = tok
		} else {
			a.curr += " " + tok
		}
	case "pv":
		if a.pv == "" {
			a.pv = tok
		} else {
			a.pv += " " + tok
		}
	}
}

func isKnownParameter(tok string) bool {
	switch tok {
	case "depth", "seldepth", "time", "nodes", "multipv",
		"currmove", "currmovenumber", "hashfull", "nps", "tbhits", "cpuload",
		"refutation", "currline", "string":
		return true
	default:
		return false
	}
}

func isIntParameter(current string) bool {
	switch current {
	case "depth", "seldepth", "time", "nodes", "currmovenumber",
		"hashfull", "nps", "tbhits", "cpuload", "multipv":
		return true
	default:
		return false
	}
}

func (a *accumulator) setIntParameter(name string, n int) {
	switch name {
	case "depth":
		a.depth, a.haveDepth = n, true
	case "seldepth":
		a.selDepth, a.haveSelDepth = n, true
	case "time":
		a.timeMs, a.haveTimeMs = n, true
	case "nodes":
		a.nodes, a.haveNodes = n, true
	case "nps":
		a.nps, a.haveNPS = n, true
	case "tbhits":
		a.tbHits, a.haveTBHits = n, true
	case "hashfull":
		a.hashFull, a.haveHashFull = n, true
	case "cpuload":
		a.cpuLoad, a.haveCPULoad = n, true
	case "multipv":
		a.multiPV, a.haveMultiPV = n, true
	}
}

// applyTo finalizes the accumulated fields into a SearchInfo, applying the
// nps sanity filter: an implausible nps (>= 1e8) is dropped entirely. The
// low-time warning is logged by the executor, not here.
func (a *accumulator) applyTo(info *job.SearchInfo) {
	info.Depth = a.depth
	info.SelDepth = a.selDepth
	info.TimeMs = a.timeMs
	info.Nodes = a.nodes
	info.TBHits = a.tbHits
	info.HashFull = a.hashFull
	info.CPULoad = a.cpuLoad
	info.MultiPV = a.multiPV
	info.PV = a.pv
	info.String = a.str
	info.CurrMove = a.curr
	info.Score = a.score

	if a.haveNPS {
		nps := a.nps
		if nps < 100_000_000 {
			info.NPS = &nps
		}
	}
}

func fields(s string) []string {
	var out []string
	start := -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != ' ' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, s[start:i])
			start = -1
		}
	}
	return out
}
