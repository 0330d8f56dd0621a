package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Attributes are the kind-specific secondary identifiers of a record or entity.
// Implementations are closed to this package: one per EntityKind.
type Attributes interface {
	Kind() EntityKind
	isAttributes()
}

type DriverAttributes struct {
	DateOfBirth *Date  `json:"date_of_birth,omitempty"`
	Nationality string `json:"nationality,omitempty"`
	CarNumber   string `json:"car_number,omitempty"`
}

type TeamAttributes struct {
	Country     string `json:"country,omitempty"`
	Sponsor     string `json:"sponsor,omitempty"`
	FoundedYear int    `json:"founded_year,omitempty"`
}

type CircuitAttributes struct {
	Country      string `json:"country,omitempty"`
	Locality     string `json:"locality,omitempty"`
	LengthMeters int    `json:"length_meters,omitempty"`
}

type SeriesAttributes struct {
	Region    string `json:"region,omitempty"`
	Organizer string `json:"organizer,omitempty"`
}

func (DriverAttributes) Kind() EntityKind  { return EntityKindDriver }
func (TeamAttributes) Kind() EntityKind    { return EntityKindTeam }
func (CircuitAttributes) Kind() EntityKind { return EntityKindCircuit }
func (SeriesAttributes) Kind() EntityKind  { return EntityKindSeries }

func (DriverAttributes) isAttributes()  {}
func (TeamAttributes) isAttributes()    {}
func (CircuitAttributes) isAttributes() {}
func (SeriesAttributes) isAttributes()  {}

// EmptyAttributes returns the zero attributes value for a kind
func EmptyAttributes(kind EntityKind) (Attributes, error) {
	switch kind {
	case EntityKindDriver:
		return DriverAttributes{}, nil
	case EntityKindTeam:
		return TeamAttributes{}, nil
	case EntityKindCircuit:
		return CircuitAttributes{}, nil
	case EntityKindSeries:
		return SeriesAttributes{}, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// DecodeAttributes decodes a JSON payload into the attributes variant of kind.
// Empty or null payloads decode to the zero value.
func DecodeAttributes(kind EntityKind, data []byte) (Attributes, error) {
	if len(data) == 0 || string(data) == "null" {
		return EmptyAttributes(kind)
	}

	var (
		attrs Attributes
		err   error
	)
	switch kind {
	case EntityKindDriver:
		var a DriverAttributes
		err = json.Unmarshal(data, &a)
		attrs = a
	case EntityKindTeam:
		var a TeamAttributes
		err = json.Unmarshal(data, &a)
		attrs = a
	case EntityKindCircuit:
		var a CircuitAttributes
		err = json.Unmarshal(data, &a)
		attrs = a
	case EntityKindSeries:
		var a SeriesAttributes
		err = json.Unmarshal(data, &a)
		attrs = a
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s attributes: %w", kind, err)
	}
	return attrs, nil
}

// EncodeAttributes encodes attributes for storage. Nil encodes as an empty object.
func EncodeAttributes(attrs Attributes) ([]byte, error) {
	if attrs == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(attrs)
}

// Date is a calendar date serialized as YYYY-MM-DD
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) *Date {
	return &Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("invalid date %q", s)
		}
	}
	d.Time = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return nil
}

// Equal compares calendar days
func (d *Date) Equal(other *Date) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.Format(dateLayout) == other.Format(dateLayout)
}

func (d *Date) IsSet() bool {
	return d != nil && !d.IsZero()
}
