package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PendingMatchStatus is the lifecycle state of a resolution decision
type PendingMatchStatus string

const (
	PendingMatchStatusPending      PendingMatchStatus = "pending"
	PendingMatchStatusResolved     PendingMatchStatus = "resolved"
	PendingMatchStatusRejected     PendingMatchStatus = "rejected"
	PendingMatchStatusAutoResolved PendingMatchStatus = "auto_resolved"
)

func (s PendingMatchStatus) Terminal() bool {
	return s != PendingMatchStatusPending
}

func (s PendingMatchStatus) Valid() bool {
	switch s {
	case PendingMatchStatusPending, PendingMatchStatusResolved, PendingMatchStatusRejected, PendingMatchStatusAutoResolved:
		return true
	}
	return false
}

// Resolution is the outcome recorded when a pending match leaves the pending state
type Resolution string

const (
	ResolutionMergedWithCandidate Resolution = "merged_with_candidate"
	ResolutionCreatedNew          Resolution = "created_new"
	ResolutionMarkedDuplicate     Resolution = "marked_duplicate"
	ResolutionIgnored             Resolution = "ignored"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionMergedWithCandidate, ResolutionCreatedNew, ResolutionMarkedDuplicate, ResolutionIgnored:
		return true
	}
	return false
}

// Signal is one named contribution to a match score
type Signal struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
	Detail       string  `json:"detail,omitempty"`
}

// Signals is an ordered breakdown stored as JSONB
type Signals []Signal

func (s Signals) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *Signals) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return fmt.Errorf("signals: unsupported scan type %T", src)
}

// PendingMatch reifies one resolution decision. Rows in a terminal status are immutable.
type PendingMatch struct {
	ID                  string             `json:"id" db:"id"`
	EntityType          EntityKind         `json:"entity_type" db:"entity_type"`
	IncomingName        string             `json:"incoming_name" db:"incoming_name"`
	IncomingSlug        string             `json:"incoming_slug" db:"incoming_slug"`
	IncomingData        json.RawMessage    `json:"incoming_data" db:"incoming_data"`
	Scope               string             `json:"scope,omitempty" db:"scope"`
	EraStartYear        *int               `json:"era_start_year,omitempty" db:"era_start_year"`
	EraEndYear          *int               `json:"era_end_year,omitempty" db:"era_end_year"`
	CandidateEntityID   *string            `json:"candidate_entity_id,omitempty" db:"candidate_entity_id"`
	CandidateEntityName *string            `json:"candidate_entity_name,omitempty" db:"candidate_entity_name"`
	MatchScore          float64            `json:"match_score" db:"match_score"`
	Signals             Signals            `json:"signals" db:"signals"`
	Source              string             `json:"source" db:"source"`
	Status              PendingMatchStatus `json:"status" db:"status"`
	Resolution          *Resolution        `json:"resolution,omitempty" db:"resolution"`
	ResolutionNotes     *string            `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ResolvedAt          *time.Time         `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy          *string            `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedEntityID    *string            `json:"resolved_entity_id,omitempty" db:"resolved_entity_id"`
	PolicyVersion       string             `json:"policy_version" db:"policy_version"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at" db:"updated_at"`
}

// Record rebuilds the incoming record the match was created from
func (p *PendingMatch) Record() (IncomingRecord, error) {
	attrs, err := DecodeAttributes(p.EntityType, p.IncomingData)
	if err != nil {
		return IncomingRecord{}, err
	}
	rec := IncomingRecord{
		EntityType: p.EntityType,
		Name:       p.IncomingName,
		Scope:      p.Scope,
		Source:     p.Source,
		Attributes: attrs,
	}
	if p.EraStartYear != nil {
		rec.Era.StartYear = *p.EraStartYear
	}
	if p.EraEndYear != nil {
		rec.Era.EndYear = *p.EraEndYear
	}
	return rec, nil
}

// PendingMatchFilter selects rows for the review queue
type PendingMatchFilter struct {
	EntityType *EntityKind
	Status     *PendingMatchStatus
	SortBy     PendingMatchSort
	Page       int
	PageSize   int
}

type PendingMatchSort string

const (
	PendingMatchSortScore     PendingMatchSort = "score"
	PendingMatchSortCreatedAt PendingMatchSort = "created_at"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Normalize applies paging defaults
func (f *PendingMatchFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.SortBy != PendingMatchSortCreatedAt {
		f.SortBy = PendingMatchSortScore
	}
}

func (f PendingMatchFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// PendingMatchPage is one page of the review queue
type PendingMatchPage struct {
	Items    []PendingMatch `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// PendingMatchCompletion moves a pending match into a terminal status
type PendingMatchCompletion struct {
	Status           PendingMatchStatus
	Resolution       Resolution
	Notes            string
	ResolvedBy       string
	ResolvedEntityID string
	ResolvedAt       time.Time
}

// Apply copies the completion onto p
func (c PendingMatchCompletion) Apply(p *PendingMatch) {
	resolution := c.Resolution
	p.Status = c.Status
	p.Resolution = &resolution
	p.ResolvedAt = &c.ResolvedAt
	p.UpdatedAt = c.ResolvedAt
	if c.Notes != "" {
		notes := c.Notes
		p.ResolutionNotes = &notes
	}
	if c.ResolvedBy != "" {
		by := c.ResolvedBy
		p.ResolvedBy = &by
	}
	if c.ResolvedEntityID != "" {
		id := c.ResolvedEntityID
		p.ResolvedEntityID = &id
	}
}

// PendingMatchKey identifies the record a pending match was raised for. At most one
// pending row exists per key.
type PendingMatchKey struct {
	EntityType   EntityKind
	Source       string
	IncomingName string
	Scope        string
}

func (p *PendingMatch) Key() PendingMatchKey {
	return PendingMatchKey{EntityType: p.EntityType, Source: p.Source, IncomingName: p.IncomingName, Scope: p.Scope}
}
