package models

import (
	"fmt"
	"strings"
	"time"
)

// EntityKind is the kind of real-world thing a canonical entity represents
type EntityKind string

const (
	EntityKindDriver  EntityKind = "driver"
	EntityKindTeam    EntityKind = "team"
	EntityKindCircuit EntityKind = "circuit"
	EntityKindSeries  EntityKind = "series"
)

// EntityKinds lists every supported kind in a stable order
var EntityKinds = []EntityKind{EntityKindDriver, EntityKindTeam, EntityKindCircuit, EntityKindSeries}

func ParseEntityKind(s string) (EntityKind, error) {
	kind := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case EntityKindDriver, EntityKindTeam, EntityKindCircuit, EntityKindSeries:
		return kind, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

func (k EntityKind) Valid() bool {
	_, err := ParseEntityKind(string(k))
	return err == nil
}

// CanonicalEntity is the single authoritative record for one real-world driver, team, circuit or series
type CanonicalEntity struct {
	ID              string     `json:"id"`
	Kind            EntityKind `json:"kind"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	Attributes      Attributes `json:"attributes,omitempty"`
	BlockingKey     string     `json:"blocking_key,omitempty"`
	ActiveFromYear  *int       `json:"active_from_year,omitempty"`
	ActiveUntilYear *int       `json:"active_until_year,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ActivePeriod returns the years the entity is known to have been active.
// Zero means unbounded on that side.
func (e *CanonicalEntity) ActivePeriod() (from, until int) {
	if e.ActiveFromYear != nil {
		from = *e.ActiveFromYear
	}
	if e.ActiveUntilYear != nil {
		until = *e.ActiveUntilYear
	}
	return from, until
}
