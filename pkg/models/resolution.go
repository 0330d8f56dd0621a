package models

// Outcome is how a single incoming record was resolved
type Outcome string

const (
	OutcomeExactHit     Outcome = "exact_hit"
	OutcomeAutoAccepted Outcome = "auto_accepted"
	OutcomeCreatedNew   Outcome = "created_new"
	OutcomePending      Outcome = "pending"
)

// ResolveResult is returned for every resolved record. A pending result carries
// no entity: the record cannot be assigned until a reviewer acts.
type ResolveResult struct {
	Outcome        Outcome `json:"outcome"`
	EntityID       string  `json:"entity_id,omitempty"`
	AliasID        string  `json:"alias_id,omitempty"`
	PendingMatchID string  `json:"pending_match_id,omitempty"`
	Score          float64 `json:"score"`
	Signals        Signals `json:"signals,omitempty"`
	PolicyVersion  string  `json:"policy_version,omitempty"`
}

func (r *ResolveResult) IsAssignable() bool {
	return r != nil && r.Outcome != OutcomePending && r.EntityID != ""
}
