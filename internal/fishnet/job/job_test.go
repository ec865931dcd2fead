package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveListSplitsOnSpaces(t *testing.T) {
	j := &Job{Moves: "e2e4 e7e5 g1f3"}
	assert.Equal(t, []string{"e2e4", "e7e5", "g1f3"}, j.MoveList())
}

func TestMoveListEmpty(t *testing.T) {
	j := &Job{Moves: ""}
	assert.Nil(t, j.MoveList())
}

func TestEffectiveVariantDefaultsToStandard(t *testing.T) {
	assert.Equal(t, "standard", (&Job{}).EffectiveVariant())
	assert.Equal(t, "crazyhouse", (&Job{Variant: "crazyhouse"}).EffectiveVariant())
}

func TestShouldSkip(t *testing.T) {
	j := &Job{SkipPositions: []int{1, 3}}
	assert.True(t, j.ShouldSkip(1))
	assert.True(t, j.ShouldSkip(3))
	assert.False(t, j.ShouldSkip(2))
}

func TestBestMovePtrNormalizesNone(t *testing.T) {
	assert.Nil(t, BestMovePtr("(none)"))
	assert.Nil(t, BestMovePtr(""))
	require.NotNil(t, BestMovePtr("e2e4"))
	assert.Equal(t, "e2e4", *BestMovePtr("e2e4"))
}

func TestScoreMarshalJSON(t *testing.T) {
	cp := Score{Kind: ScoreKindCP, CP: 34}
	b, err := json.Marshal(cp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cp":34}`, string(b))

	mate := Score{Kind: ScoreKindMate, Mate: -2, LowerBound: true}
	b, err = json.Marshal(mate)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mate":-2,"lowerbound":true}`, string(b))
}

func TestAnalysisResultMarshalsSkippedAndInfo(t *testing.T) {
	result := AnalysisResult{
		{Skipped: true},
		{Info: &SearchInfo{Depth: 10, BestMove: BestMovePtr("e2e4")}},
	}
	b, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"skipped":true},{"depth":10,"bestmove":"e2e4"}]`, string(b))
}

func TestSearchInfoNullBestMove(t *testing.T) {
	b, err := json.Marshal(&SearchInfo{Depth: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"depth":1,"bestmove":null}`, string(b))
}
