package simulation

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baseball-sim/sim-engine/league"
	"github.com/baseball-sim/sim-engine/plateappearance"
)

func TestCounts(t *testing.T) {
	var c Counts
	c.Add(plateappearance.Walk)
	c.Add(plateappearance.InPlay)
	c.Add(plateappearance.InPlay)
	c.Add(plateappearance.InPlay)
	c.Add(plateappearance.Outcome(12))

	assert.Equal(t, 4, c.Total())
	rates := c.Rates()
	assert.Equal(t, 0.25, rates.Walk)
	assert.Equal(t, 0.75, rates.InPlay)

	other := Counts{1, 2, 3, 4}
	c.Merge(other)
	assert.Equal(t, Counts{2, 2, 3, 7}, c)

	assert.Equal(t, plateappearance.Probabilities{}, Counts{}.Rates())
}

func TestCountsJSON(t *testing.T) {
	c := Counts{5, 10, 1, 84}
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"walk":5,"strikeout":10,"home_run":1,"in_play":84}`, string(b))

	var decoded Counts
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, c, decoded)

	assert.Error(t, json.Unmarshal([]byte(`{"walk":-1}`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`{"triple":1}`), &decoded))
}

func TestAggregate(t *testing.T) {
	counts := Counts{40, 100, 10, 850}
	expected := plateappearance.Probabilities{Walk: 0.036, Strikeout: 0.0936, HomeRun: 0.013, InPlay: 0.8574}
	req := MatchupRequest{Batter: neutralBatter, Pitcher: neutralPitcher, Seed: 99}

	result := Aggregate("run-1", req, counts, expected, nil)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, uint64(99), result.Seed)
	assert.Equal(t, 1000, result.PlateAppearances)
	assert.InDelta(t, 0.04, result.Observed.Walk, 1e-12)
	assert.InDelta(t, 0.1, result.Observed.Strikeout, 1e-12)
	assert.InDelta(t, 1.0, result.Observed.Sum(), 1e-12)

	assert.InDelta(t, 0.004, result.Deviation.Walk, 1e-12)
	assert.InDelta(t, -0.0074, result.Deviation.InPlay, 1e-12)
	assert.InDelta(t, 0.0074, result.MaxAbsDeviation, 1e-12)

	wantSE := math.Sqrt(0.036 * 0.964 / 1000)
	assert.InDelta(t, wantSE, result.StandardError.Walk, 1e-12)
	assert.Greater(t, result.MaxZScore, 0.0)

	assert.InDelta(t, 0.06, result.Derived.StrikeoutMinusWalk, 1e-12)
	assert.InDelta(t, 0.01, result.Derived.HomeRunPerPA, 1e-12)
	assert.InDelta(t, 0.85, result.Derived.BallInPlayShare, 1e-12)
	assert.InDelta(t, 0.15, result.Derived.ThreeTrueOutcomes, 1e-12)

	assert.Nil(t, result.League)
	assert.Nil(t, result.LeagueDelta)
}

func TestAggregateWithLeagueBaseline(t *testing.T) {
	baseline := league.Rates{
		league.Walk: 0.08, league.HitByPitch: 0.01, league.Single: 0.14, league.Double: 0.04,
		league.Triple: 0.005, league.HomeRun: 0.03, league.Strikeout: 0.22, league.Out: 0.475,
	}
	counts := Counts{90, 220, 30, 660}

	result := Aggregate("run-2", MatchupRequest{}, counts, counts.Rates(), baseline)

	require.NotNil(t, result.League)
	require.NotNil(t, result.LeagueDelta)
	assert.InDelta(t, 0.09, result.League.Walk, 1e-12)
	assert.InDelta(t, 0.0, result.LeagueDelta.Walk, 1e-12)
	assert.InDelta(t, 0.0, result.LeagueDelta.InPlay, 1e-12)
	assert.Equal(t, 0.0, result.MaxAbsDeviation)
	assert.Equal(t, 0.0, result.MaxZScore)
}

func TestAggregateEmpty(t *testing.T) {
	result := Aggregate("run-3", MatchupRequest{}, Counts{}, plateappearance.Probabilities{InPlay: 1}, nil)
	assert.Equal(t, 0, result.PlateAppearances)
	assert.Equal(t, plateappearance.Probabilities{}, result.StandardError)
	assert.Equal(t, 1.0, result.MaxAbsDeviation)
}
