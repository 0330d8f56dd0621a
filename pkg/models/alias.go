package models

import (
	"fmt"
	"time"
)

const (
	// SourceManualReview tags aliases written by a reviewer's resolution
	SourceManualReview = "manual-review"
)

// Alias is a name and validity window under which a canonical entity is known
type Alias struct {
	ID                string     `json:"id" db:"id"`
	CanonicalEntityID string     `json:"canonical_entity_id" db:"canonical_entity_id"`
	EntityKind        EntityKind `json:"entity_kind" db:"entity_kind"`
	AliasName         string     `json:"alias_name" db:"alias_name"`
	AliasSlug         string     `json:"alias_slug" db:"alias_slug"`
	Scope             string     `json:"scope,omitempty" db:"scope"`
	ValidFrom         *time.Time `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil        *time.Time `json:"valid_until,omitempty" db:"valid_until"`
	Source            string     `json:"source" db:"source"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

func (a *Alias) Window() Window {
	return Window{From: a.ValidFrom, Until: a.ValidUntil}
}

func (a *Alias) IsOpenEnded() bool {
	return a.ValidUntil == nil
}

// Window is an inclusive date range; nil bounds are open-ended
type Window struct {
	From  *time.Time
	Until *time.Time
}

func (w Window) Validate() error {
	if w.From != nil && w.Until != nil && truncateDay(*w.Until).Before(truncateDay(*w.From)) {
		return fmt.Errorf("valid_until %s is before valid_from %s", w.Until.Format(dateLayout), w.From.Format(dateLayout))
	}
	return nil
}

// Contains reports whether t falls within the window. A nil t means "now or unknown"
// and only matches open-ended windows.
func (w Window) Contains(t *time.Time) bool {
	if t == nil {
		return w.Until == nil
	}
	day := truncateDay(*t)
	if w.From != nil && day.Before(truncateDay(*w.From)) {
		return false
	}
	if w.Until != nil && day.After(truncateDay(*w.Until)) {
		return false
	}
	return true
}

// Overlaps reports whether two inclusive windows share at least one day
func (w Window) Overlaps(other Window) bool {
	if w.Until != nil && other.From != nil && truncateDay(*w.Until).Before(truncateDay(*other.From)) {
		return false
	}
	if other.Until != nil && w.From != nil && truncateDay(*other.Until).Before(truncateDay(*w.From)) {
		return false
	}
	return true
}

// Years returns the calendar years covered by the window; zero means unbounded
func (w Window) Years() (from, until int) {
	if w.From != nil {
		from = w.From.Year()
	}
	if w.Until != nil {
		until = w.Until.Year()
	}
	return from, until
}

// DayBefore returns the last day of a window that must end before t begins
func DayBefore(t time.Time) time.Time {
	return truncateDay(t).AddDate(0, 0, -1)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TruncateDay normalizes t to midnight UTC
func TruncateDay(t time.Time) time.Time {
	return truncateDay(t)
}
