package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Era is the span of years a record describes. Zero years are unknown.
type Era struct {
	StartYear int `json:"start_year,omitempty" validate:"omitempty,gte=1890,lte=2100"`
	EndYear   int `json:"end_year,omitempty" validate:"omitempty,gte=1890,lte=2100"`
}

func (e Era) Known() bool {
	return e.StartYear != 0
}

// Bounds returns the inclusive year range; an unknown end collapses to the start year
func (e Era) Bounds() (from, until int) {
	from, until = e.StartYear, e.EndYear
	if until == 0 {
		until = from
	}
	return from, until
}

// EffectiveDate is the first day of the era, or nil when the era is unknown
func (e Era) EffectiveDate() *time.Time {
	if !e.Known() {
		return nil
	}
	t := time.Date(e.StartYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func (e Era) Validate() error {
	if e.EndYear != 0 && e.StartYear == 0 {
		return fmt.Errorf("era end_year %d given without start_year", e.EndYear)
	}
	if e.EndYear != 0 && e.EndYear < e.StartYear {
		return fmt.Errorf("era end_year %d is before start_year %d", e.EndYear, e.StartYear)
	}
	return nil
}

// IncomingRecord is one entity mention produced by an ingestion adapter
type IncomingRecord struct {
	EntityType EntityKind `json:"entity_type" validate:"required,oneof=driver team circuit series"`
	Name       string     `json:"name" validate:"required,max=512"`
	Era        Era        `json:"era"`
	Scope      string     `json:"scope,omitempty" validate:"max=128"`
	Attributes Attributes `json:"attributes,omitempty"`
	Source     string     `json:"source" validate:"required,max=64"`
}

type incomingRecordJSON struct {
	EntityType EntityKind      `json:"entity_type"`
	Name       string          `json:"name"`
	Era        Era             `json:"era"`
	Scope      string          `json:"scope,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
	Source     string          `json:"source"`
}

// UnmarshalJSON decodes attributes into the variant selected by entity_type
func (r *IncomingRecord) UnmarshalJSON(data []byte) error {
	var raw incomingRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseEntityKind(string(raw.EntityType))
	if err != nil {
		return err
	}
	attrs, err := DecodeAttributes(kind, raw.Attributes)
	if err != nil {
		return err
	}
	*r = IncomingRecord{
		EntityType: kind,
		Name:       raw.Name,
		Era:        raw.Era,
		Scope:      raw.Scope,
		Attributes: attrs,
		Source:     raw.Source,
	}
	return nil
}

// AttributesOrEmpty returns the record attributes, substituting the zero variant when absent
func (r IncomingRecord) AttributesOrEmpty() Attributes {
	if r.Attributes != nil {
		return r.Attributes
	}
	attrs, _ := EmptyAttributes(r.EntityType)
	return attrs
}

// PendingKey is the pending-match key a review of this record is filed under
func (r IncomingRecord) PendingKey() PendingMatchKey {
	return PendingMatchKey{EntityType: r.EntityType, Source: r.Source, IncomingName: r.Name, Scope: r.Scope}
}
