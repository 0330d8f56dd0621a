package matching

import (
	"fmt"
)

// Weights are the policy parameters of the scorer. Conflict weights are magnitudes:
// they are subtracted from the score when both sides carry a value and disagree.
type Weights struct {
	NameSimilarity float64 `json:"name_similarity"`
	// TokenSetShare is the share of name similarity taken from the token-set ratio;
	// the remainder comes from the token-sort ratio.
	TokenSetShare float64 `json:"token_set_share"`

	DateOfBirthMatch    float64 `json:"date_of_birth_match"`
	DateOfBirthConflict float64 `json:"date_of_birth_conflict"`
	NationalityMatch    float64 `json:"nationality_match"`
	NationalityConflict float64 `json:"nationality_conflict"`
	CarNumberMatch      float64 `json:"car_number_match"`
	CarNumberConflict   float64 `json:"car_number_conflict"`

	CountryMatch        float64 `json:"country_match"`
	CountryConflict     float64 `json:"country_conflict"`
	SponsorMatch        float64 `json:"sponsor_match"`
	SponsorConflict     float64 `json:"sponsor_conflict"`
	FoundedYearMatch    float64 `json:"founded_year_match"`
	FoundedYearConflict float64 `json:"founded_year_conflict"`

	LengthMatch    float64 `json:"length_match"`
	LengthConflict float64 `json:"length_conflict"`
	// LengthToleranceMeters is the difference treated as the same layout
	LengthToleranceMeters float64 `json:"length_tolerance_meters"`

	RegionMatch        float64 `json:"region_match"`
	RegionConflict     float64 `json:"region_conflict"`
	OrganizerMatch     float64 `json:"organizer_match"`
	OrganizerConflict  float64 `json:"organizer_conflict"`
	SourceAgreement    float64 `json:"source_agreement"`
	TemporalTolerance  int     `json:"temporal_tolerance_years"`
	TextMatchThreshold float64 `json:"text_match_threshold"`
}

// DefaultWeights are tuned so that an exact name alone clears the default auto-accept
// threshold and a date-of-birth conflict alone drops it below the review band.
func DefaultWeights() Weights {
	return Weights{
		NameSimilarity: 0.95,
		TokenSetShare:  0.8,

		DateOfBirthMatch:    0.15,
		DateOfBirthConflict: 0.60,
		NationalityMatch:    0.05,
		NationalityConflict: 0.25,
		CarNumberMatch:      0.03,
		CarNumberConflict:   0.03,

		CountryMatch:        0.05,
		CountryConflict:     0.30,
		SponsorMatch:        0.05,
		SponsorConflict:     0,
		FoundedYearMatch:    0.05,
		FoundedYearConflict: 0.30,

		LengthMatch:           0.05,
		LengthConflict:        0.10,
		LengthToleranceMeters: 150,

		RegionMatch:        0.05,
		RegionConflict:     0.20,
		OrganizerMatch:     0.05,
		OrganizerConflict:  0.10,
		SourceAgreement:    0.03,
		TemporalTolerance:  1,
		TextMatchThreshold: 0.85,
	}
}

// Validate rejects weights that would break the bounded-contribution contract
func (w Weights) Validate() error {
	values := map[string]float64{
		"name_similarity":         w.NameSimilarity,
		"date_of_birth_match":     w.DateOfBirthMatch,
		"date_of_birth_conflict":  w.DateOfBirthConflict,
		"nationality_match":       w.NationalityMatch,
		"nationality_conflict":    w.NationalityConflict,
		"car_number_match":        w.CarNumberMatch,
		"car_number_conflict":     w.CarNumberConflict,
		"country_match":           w.CountryMatch,
		"country_conflict":        w.CountryConflict,
		"sponsor_match":           w.SponsorMatch,
		"sponsor_conflict":        w.SponsorConflict,
		"founded_year_match":      w.FoundedYearMatch,
		"founded_year_conflict":   w.FoundedYearConflict,
		"length_match":            w.LengthMatch,
		"length_conflict":         w.LengthConflict,
		"region_match":            w.RegionMatch,
		"region_conflict":         w.RegionConflict,
		"organizer_match":         w.OrganizerMatch,
		"organizer_conflict":      w.OrganizerConflict,
		"source_agreement":        w.SourceAgreement,
		"length_tolerance_meters": w.LengthToleranceMeters,
	}
	for name, v := range values {
		if v < 0 {
			return fmt.Errorf("weight %s must not be negative, got %v", name, v)
		}
	}
	for name, v := range map[string]float64{
		"name_similarity":      w.NameSimilarity,
		"token_set_share":      w.TokenSetShare,
		"text_match_threshold": w.TextMatchThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weight %s must be within [0,1], got %v", name, v)
		}
	}
	if w.TemporalTolerance < 0 {
		return fmt.Errorf("temporal tolerance must not be negative, got %d", w.TemporalTolerance)
	}
	return nil
}
