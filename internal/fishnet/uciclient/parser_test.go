package uciclient

import (
	"testing"

	"github.com/lichess-org/fishnet-go/internal/fishnet/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorBasicFields(t *testing.T) {
	a := newAccumulator()
	a.parseLine(" depth 12 seldepth 18 time 340 nodes 910284 nps 2677000 tbhits 0 hashfull 210 cpuload 980 score cp 34 currmove e2e4 currmovenumber 3")

	var info job.SearchInfo
	a.applyTo(&info)

	assert.Equal(t, 12, info.Depth)
	assert.Equal(t, 18, info.SelDepth)
	assert.Equal(t, 340, info.TimeMs)
	assert.Equal(t, 910284, info.Nodes)
	require.NotNil(t, info.NPS)
	assert.Equal(t, 2677000, *info.NPS)
	assert.Equal(t, 210, info.HashFull)
	assert.Equal(t, 980, info.CPULoad)
	assert.Equal(t, "e2e4", info.CurrMove)
	require.NotNil(t, info.Score)
	assert.Equal(t, job.ScoreKindCP, info.Score.Kind)
	assert.Equal(t, 34, info.Score.CP)
}

func TestAccumulatorDropsImplausibleNPS(t *testing.T) {
	a := newAccumulator()
	a.parseLine(" nps 150000000")

	var info job.SearchInfo
	a.applyTo(&info)
	assert.Nil(t, info.NPS)
}

func TestAccumulatorPVOnlyCapturedAtMultiPVOne(t *testing.T) {
	a := newAccumulator()
	a.parseLine(" multipv 1 depth 10 score cp 20 pv e2e4 e7e5")

	var info job.SearchInfo
	a.applyTo(&info)
	assert.Equal(t, "e2e4 e7e5", info.PV)

	a2 := newAccumulator()
	a2.parseLine(" multipv 2 depth 10 score cp 10 pv d2d4 d7d5")
	var info2 job.SearchInfo
	a2.applyTo(&info2)
	assert.Equal(t, "", info2.PV)
}

func TestAccumulatorScoreReplacementRule(t *testing.T) {
	a := newAccumulator()

	// exact score, then a bound: bound must not overwrite an exact score.
	a.parseLine(" score cp 50")
	a.parseLine(" score cp 40 upperbound")
	assert.Equal(t, job.ScoreKindCP, a.score.Kind)
	assert.Equal(t, 50, a.score.CP)
	assert.False(t, a.score.IsBound())

	// a new exact score always replaces, bound or not.
	a.parseLine(" score cp 60")
	assert.Equal(t, 60, a.score.CP)

	// once the stored score is itself a bound, a new bound may replace it.
	b := newAccumulator()
	b.parseLine(" score cp 10 lowerbound")
	b.parseLine(" score cp 15 lowerbound")
	assert.Equal(t, 15, b.score.CP)
}

func TestAccumulatorStringConsumesRestOfLine(t *testing.T) {
	a := newAccumulator()
	a.parseLine(" string NNUE evaluation using nn-abc123.nnue")

	var info job.SearchInfo
	a.applyTo(&info)
	assert.Equal(t, "NNUE evaluation using nn-abc123.nnue", info.String)
}
