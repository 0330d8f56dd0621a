package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

func scoredCandidates(scores ...float64) []matching.ScoredCandidate {
	out := make([]matching.ScoredCandidate, len(scores))
	for i, s := range scores {
		out[i] = matching.ScoredCandidate{
			Candidate: matching.Candidate{Entity: models.CanonicalEntity{ID: string(rune('a' + i)), Name: "entity"}},
			Score:     s,
		}
	}
	matching.SortScored(out)
	return out
}

func TestDecide(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name   string
		scores []float64
		action Action
		reason Reason
	}{
		{name: "no candidates", scores: nil, action: ActionMint, reason: ReasonNoCandidates},
		{name: "below low", scores: []float64{0.40, 0.10}, action: ActionMint, reason: ReasonBelowLow},
		{name: "at low", scores: []float64{0.55}, action: ActionReview, reason: ReasonReviewBand},
		{name: "review band", scores: []float64{0.773, 0.760}, action: ActionReview, reason: ReasonReviewBand},
		{name: "at high", scores: []float64{0.92}, action: ActionAccept, reason: ReasonAboveHigh},
		{name: "clear winner", scores: []float64{0.99, 0.60}, action: ActionAccept, reason: ReasonAboveHigh},
		{name: "tie above high", scores: []float64{0.95, 0.945}, action: ActionReview, reason: ReasonTie},
		{name: "tie in band", scores: []float64{0.70, 0.695}, action: ActionReview, reason: ReasonTie},
		{name: "tie below low", scores: []float64{0.30, 0.30}, action: ActionReview, reason: ReasonTie},
		{name: "vetoed candidates never tie", scores: []float64{0, 0}, action: ActionMint, reason: ReasonBelowLow},
		{name: "just outside epsilon", scores: []float64{0.95, 0.93}, action: ActionAccept, reason: ReasonAboveHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.Decide(scoredCandidates(tt.scores...))
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestDecideNeverAutoResolvesTiedCandidate(t *testing.T) {
	policy := DefaultPolicy()
	for _, best := range []float64{0.05, 0.3, 0.4, 0.55, 0.7, 0.92, 0.97, 1} {
		d := policy.Decide(scoredCandidates(best, best-policy.TieEpsilon/2))
		assert.Equal(t, ActionReview, d.Action, "best %.3f", best)
		assert.Equal(t, ReasonTie, d.Reason, "best %.3f", best)
		assert.Len(t, d.Tied, 1)
	}
}

func TestDecideKeepsVetoedBestForAudit(t *testing.T) {
	d := DefaultPolicy().Decide(scoredCandidates(0, 0, 0))
	assert.Equal(t, ActionMint, d.Action)
	assert.Equal(t, ReasonBelowLow, d.Reason)
	require.NotNil(t, d.Best)
	assert.Equal(t, "a", d.Best.Candidate.Entity.ID)
	assert.Empty(t, d.Tied)
	assert.Empty(t, d.Alternatives)
}

func TestDecideThresholdMonotonicity(t *testing.T) {
	scores := []float64{0.1, 0.3, 0.5, 0.55, 0.6, 0.8, 0.9, 0.92, 0.95, 1}
	highs := []float64{0.6, 0.8, 0.9, 0.92, 0.95, 1}

	for _, s := range scores {
		for i := 1; i < len(highs); i++ {
			lower, higher := DefaultPolicy(), DefaultPolicy()
			lower.HighThreshold, higher.HighThreshold = highs[i-1], highs[i]

			a := lower.Decide(scoredCandidates(s))
			b := higher.Decide(scoredCandidates(s))
			if a.Action != ActionAccept {
				assert.NotEqual(t, ActionAccept, b.Action, "raising high from %.2f to %.2f accepted score %.2f", highs[i-1], highs[i], s)
			}
			if a.Action == ActionAccept {
				assert.NotEqual(t, ActionMint, b.Action, "raising high must not turn accept into mint at %.2f", s)
			}
		}
	}

	lows := []float64{0.2, 0.4, 0.55, 0.7}
	for _, s := range scores {
		for i := 1; i < len(lows); i++ {
			lower, higher := DefaultPolicy(), DefaultPolicy()
			lower.LowThreshold, higher.LowThreshold = lows[i-1], lows[i]

			a := lower.Decide(scoredCandidates(s))
			b := higher.Decide(scoredCandidates(s))
			if a.Action == ActionMint {
				assert.Equal(t, ActionMint, b.Action, "raising low must keep minting at %.2f", s)
			}
		}
	}
}

func TestReviewSignalsListCandidates(t *testing.T) {
	policy := DefaultPolicy()
	scored := scoredCandidates(0.773, 0.76, 0.2)
	scored[0].Signals = models.Signals{{Name: matching.SignalNameSimilarity, Contribution: 0.773}}

	d := policy.Decide(scored)
	signals := d.ReviewSignals()

	names := make([]string, 0, len(signals))
	for _, s := range signals {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{matching.SignalNameSimilarity, "candidate:a", "candidate:b"}, names)
	assert.Equal(t, 0.76, signals[2].Contribution)
}

func TestReviewSignalsMarkTies(t *testing.T) {
	d := DefaultPolicy().Decide(scoredCandidates(0.95, 0.95))
	signals := d.ReviewSignals()
	require.NotEmpty(t, signals)
	assert.Equal(t, SignalTie, signals[len(signals)-1].Name)
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.LowThreshold, p.HighThreshold = 0.9, 0.5
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.Version = ""
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.HighThreshold = 1.2
	assert.Error(t, p.Validate())

	assert.Equal(t, "auto:policy-v1", DefaultPolicy().ResolvedBy())
}
