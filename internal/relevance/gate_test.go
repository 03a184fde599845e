package relevance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var indexNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{0.95, LevelHigh},
		{0.85, LevelHigh},
		{0.84, LevelMedium},
		{0.70, LevelMedium},
		{0.69, LevelLow},
		{0.40, LevelLow},
		{0.39, LevelNone},
		{0, LevelNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levelFor(tt.score), "score %v", tt.score)
	}
}

func TestBiasesScoring(t *testing.T) {
	assert.True(t, LevelHigh.BiasesScoring())
	assert.True(t, LevelMedium.BiasesScoring())
	assert.False(t, LevelLow.BiasesScoring())
	assert.False(t, LevelNone.BiasesScoring())
}

func TestEvaluate_IdenticalRecentItem(t *testing.T) {
	idx := NewIndex([]Item{
		{Text: "review quarterly budget spreadsheet", CreatedAt: indexNow.Add(-time.Hour)},
	}, indexNow, 0)
	require.Equal(t, 1, idx.Len())

	got := NewGate(0).Evaluate("review quarterly budget spreadsheet", idx)
	assert.True(t, got.Retrieved)
	assert.Equal(t, LevelHigh, got.Influence)
	assert.InDelta(t, 1.0, got.Score, 0.01)
}

func TestEvaluate_RecencyDecay(t *testing.T) {
	fresh := NewIndex([]Item{
		{Text: "renew passport before travel", CreatedAt: indexNow.Add(-time.Hour)},
	}, indexNow, 30)
	stale := NewIndex([]Item{
		{Text: "renew passport before travel", CreatedAt: indexNow.AddDate(0, 0, -30)},
	}, indexNow, 30)

	gate := NewGate(0)
	freshScore := gate.Evaluate("renew passport before travel", fresh).Score
	staleScore := gate.Evaluate("renew passport before travel", stale).Score

	assert.Greater(t, freshScore, staleScore)
	// one half-life old, same text: score should sit near 0.5
	assert.InDelta(t, 0.5, staleScore, 0.01)
}

func TestEvaluate_UnrelatedText(t *testing.T) {
	idx := NewIndex([]Item{
		{Text: "schedule dentist appointment", Category: "health", CreatedAt: indexNow.Add(-time.Hour)},
	}, indexNow, 0)

	got := NewGate(0).Evaluate("refactor billing service", idx)
	assert.False(t, got.Retrieved)
	assert.Equal(t, LevelNone, got.Influence)
	assert.Zero(t, got.Score)
}

func TestEvaluate_NilIndex(t *testing.T) {
	got := NewGate(0).Evaluate("anything at all", nil)
	assert.False(t, got.Retrieved)
	assert.Equal(t, LevelNone, got.Influence)
}

func TestNewIndex_SkipsEmptyItems(t *testing.T) {
	idx := NewIndex([]Item{
		{Text: "a an the", CreatedAt: indexNow},
		{Text: "", CreatedAt: indexNow},
		{Text: "plan team offsite", CreatedAt: indexNow},
	}, indexNow, 0)
	assert.Equal(t, 1, idx.Len())
}

func TestEvaluate_RetrievalThreshold(t *testing.T) {
	idx := NewIndex([]Item{
		{Text: "pay electric utility bill", CreatedAt: indexNow.Add(-time.Hour)},
	}, indexNow, 0)

	// partial overlap: 2 shared terms of 4 distinct, score 0.5
	got := NewGate(0.7).Evaluate("pay electric bill online", idx)
	assert.Greater(t, got.Score, 0.0)
	assert.Less(t, got.Score, 0.7)
	assert.False(t, got.Retrieved)
	assert.Equal(t, LevelLow, got.Influence)
}
