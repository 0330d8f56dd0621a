package resolver

import (
	"fmt"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	DefaultHighThreshold = 0.92
	DefaultLowThreshold  = 0.55
	DefaultTieEpsilon    = 0.01
	// MaxAlternatives bounds the extra candidates recorded on a pending match
	MaxAlternatives = 5
)

// Policy is the versioned decision configuration. Every result and audit row records
// the version it was decided under.
type Policy struct {
	Version       string           `json:"version"`
	HighThreshold float64          `json:"high_threshold"`
	LowThreshold  float64          `json:"low_threshold"`
	TieEpsilon    float64          `json:"tie_epsilon"`
	Weights       matching.Weights `json:"weights"`
}

func DefaultPolicy() Policy {
	return Policy{
		Version:       "v1",
		HighThreshold: DefaultHighThreshold,
		LowThreshold:  DefaultLowThreshold,
		TieEpsilon:    DefaultTieEpsilon,
		Weights:       matching.DefaultWeights(),
	}
}

func (p Policy) Validate() error {
	if p.Version == "" {
		return fmt.Errorf("policy version is required")
	}
	if p.LowThreshold < 0 || p.HighThreshold > 1 || p.LowThreshold > p.HighThreshold {
		return fmt.Errorf("policy thresholds must satisfy 0 <= low (%.3f) <= high (%.3f) <= 1", p.LowThreshold, p.HighThreshold)
	}
	if p.TieEpsilon < 0 {
		return fmt.Errorf("policy tie epsilon must not be negative")
	}
	return p.Weights.Validate()
}

// ResolvedBy is the actor recorded on rows the policy decided without a reviewer
func (p Policy) ResolvedBy() string {
	return "auto:policy-" + p.Version
}

// Action is what the resolver does with a scored record
type Action string

const (
	ActionMint   Action = "mint"
	ActionAccept Action = "accept"
	ActionReview Action = "review"
)

// Reason explains which rule produced an action
type Reason string

const (
	ReasonNoCandidates Reason = "no_candidates"
	ReasonBelowLow     Reason = "below_low"
	ReasonAboveHigh    Reason = "above_high"
	ReasonTie          Reason = "tie"
	ReasonReviewBand   Reason = "review_band"
)

// Decision is the pure outcome of applying a policy to ordered scores
type Decision struct {
	Action Action
	Reason Reason
	// Best is the top candidate; nil only when there were no candidates
	Best *matching.ScoredCandidate
	// Tied holds the candidates within TieEpsilon of Best, excluding Best
	Tied []matching.ScoredCandidate
	// Alternatives are the runners-up worth showing a reviewer
	Alternatives []matching.ScoredCandidate
}

// Decide maps candidates sorted by matching.SortScored to a decision. It has no side
// effects: the same scores and policy always give the same decision.
//
// A tie always goes to review, whatever the score, so that no record is accepted or
// minted past a candidate scoring within epsilon of the best. Candidates scoring zero
// never tie and are never alternatives; a zero best is kept only so a rejection names it.
func (p Policy) Decide(scored []matching.ScoredCandidate) Decision {
	if len(scored) == 0 {
		return Decision{Action: ActionMint, Reason: ReasonNoCandidates}
	}

	best := scored[0]
	d := Decision{Best: &best}
	for _, c := range scored[1:] {
		if c.Score <= 0 {
			break
		}
		if best.Score-c.Score < p.TieEpsilon {
			d.Tied = append(d.Tied, c)
		}
		if len(d.Alternatives) < MaxAlternatives && (c.Score >= p.LowThreshold || best.Score-c.Score < p.TieEpsilon) {
			d.Alternatives = append(d.Alternatives, c)
		}
	}

	switch {
	case len(d.Tied) > 0:
		d.Action, d.Reason = ActionReview, ReasonTie
	case best.Score < p.LowThreshold:
		d.Action, d.Reason = ActionMint, ReasonBelowLow
	case best.Score >= p.HighThreshold:
		d.Action, d.Reason = ActionAccept, ReasonAboveHigh
	default:
		d.Action, d.Reason = ActionReview, ReasonReviewBand
	}
	return d
}

// ReviewSignals is the breakdown stored on a pending match: the best candidate's
// signals followed by one entry per candidate a reviewer should weigh.
func (d Decision) ReviewSignals() models.Signals {
	if d.Best == nil {
		return nil
	}
	signals := make(models.Signals, 0, len(d.Best.Signals)+len(d.Alternatives)+2)
	signals = append(signals, d.Best.Signals...)
	signals = append(signals, candidateSignal(*d.Best))
	for _, c := range d.Alternatives {
		signals = append(signals, candidateSignal(c))
	}
	if len(d.Tied) > 0 {
		signals = append(signals, models.Signal{
			Name:   SignalTie,
			Detail: fmt.Sprintf("%d candidates within %.3f of the best score", len(d.Tied)+1, d.Best.Score-d.Tied[len(d.Tied)-1].Score),
		})
	}
	return signals
}

const (
	SignalCandidatePrefix = "candidate:"
	SignalTie             = "tie"
)

func candidateSignal(c matching.ScoredCandidate) models.Signal {
	return models.Signal{
		Name:         SignalCandidatePrefix + c.Candidate.Entity.ID,
		Contribution: c.Score,
		Detail:       c.Candidate.Entity.Name,
	}
}
