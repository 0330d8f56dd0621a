// Package matching scores incoming records against canonical entity candidates
package matching

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

const (
	SignalNameSimilarity       = "name_similarity"
	SignalDateOfBirth          = "date_of_birth"
	SignalNationality          = "nationality"
	SignalCarNumber            = "car_number"
	SignalCountry              = "country"
	SignalSponsor              = "sponsor"
	SignalFoundedYear          = "founded_year"
	SignalLengthMeters         = "length_meters"
	SignalRegion               = "region"
	SignalOrganizer            = "organizer"
	SignalSourceAgreement      = "source_agreement"
	SignalTemporalPlausibility = "temporal_plausibility"
)

// Candidate is a canonical entity with the aliases it is already known by
type Candidate struct {
	Entity  models.CanonicalEntity
	Aliases []models.Alias
}

// ScoredCandidate is a candidate with its clamped score and ordered signal breakdown
type ScoredCandidate struct {
	Candidate Candidate
	Score     float64
	Signals   models.Signals
}

// Scorer computes deterministic confidence scores. It holds no state and is safe for concurrent use.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score rates one candidate for a record. Signals are emitted in a fixed order:
// name similarity, kind-specific secondary identifiers, source agreement, temporal plausibility.
// Secondary identifiers missing on either side produce no signal.
func (s *Scorer) Score(w Weights, record models.IncomingRecord, normalized normalizers.NormalizedRecord, candidate Candidate) ScoredCandidate {
	signals := make(models.Signals, 0, 6)

	nameScore, bestName := s.nameSimilarity(w, normalized, record.EntityType, candidate)
	signals = append(signals, models.Signal{
		Name:         SignalNameSimilarity,
		Contribution: round(w.NameSimilarity * nameScore),
		Detail:       fmt.Sprintf("%.4f against %q", nameScore, bestName),
	})

	signals = append(signals, s.secondarySignals(w, record.AttributesOrEmpty(), candidate.Entity.Attributes)...)

	if sig, ok := s.sourceAgreement(w, record.Source, candidate.Aliases); ok {
		signals = append(signals, sig)
	}

	total := 0.0
	for _, sig := range signals {
		total += sig.Contribution
	}

	if sig, vetoed, ok := s.temporalPlausibility(w, record.Era, candidate); ok {
		if vetoed {
			sig.Contribution = round(-total)
			total = 0
		}
		signals = append(signals, sig)
	}

	return ScoredCandidate{
		Candidate: candidate,
		Score:     round(clamp01(total)),
		Signals:   signals,
	}
}

// ScoreAll scores every candidate and orders them by score descending, then entity id
func (s *Scorer) ScoreAll(w Weights, record models.IncomingRecord, normalized normalizers.NormalizedRecord, candidates []Candidate) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, s.Score(w, record, normalized, c))
	}
	SortScored(scored)
	return scored
}

// SortScored orders by score descending with entity id as the deterministic tie-break
func SortScored(scored []ScoredCandidate) {
	slices.SortStableFunc(scored, func(a, b ScoredCandidate) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Candidate.Entity.ID, b.Candidate.Entity.ID)
	})
}

func (s *Scorer) nameSimilarity(w Weights, normalized normalizers.NormalizedRecord, kind models.EntityKind, candidate Candidate) (float64, string) {
	names := make([]string, 0, len(candidate.Aliases)+1)
	names = append(names, candidate.Entity.Name)
	for _, a := range candidate.Aliases {
		names = append(names, a.AliasName)
	}

	best, bestName := 0.0, candidate.Entity.Name
	for _, name := range names {
		other, err := normalizers.Normalize(name, kind)
		if err != nil {
			continue
		}
		score := w.TokenSetShare*TokenSetRatio(normalized.Tokens, other.Tokens) +
			(1-w.TokenSetShare)*TokenSortRatio(normalized.Tokens, other.Tokens)
		if score > best {
			best, bestName = score, name
		}
	}
	return round(best), bestName
}

func (s *Scorer) secondarySignals(w Weights, incoming, existing models.Attributes) models.Signals {
	var signals models.Signals
	switch in := incoming.(type) {
	case models.DriverAttributes:
		ex, _ := existing.(models.DriverAttributes)
		if in.DateOfBirth.IsSet() && ex.DateOfBirth.IsSet() {
			signals = append(signals, agreement(SignalDateOfBirth, in.DateOfBirth.Equal(ex.DateOfBirth), w.DateOfBirthMatch, w.DateOfBirthConflict,
				in.DateOfBirth.Format("2006-01-02"), ex.DateOfBirth.Format("2006-01-02")))
		}
		signals = appendText(signals, SignalNationality, normalizers.Nationality(in.Nationality), normalizers.Nationality(ex.Nationality), w.NationalityMatch, w.NationalityConflict)
		signals = appendText(signals, SignalCarNumber, normalizers.CarNumber(in.CarNumber), normalizers.CarNumber(ex.CarNumber), w.CarNumberMatch, w.CarNumberConflict)

	case models.TeamAttributes:
		ex, _ := existing.(models.TeamAttributes)
		signals = appendText(signals, SignalCountry, normalizers.Country(in.Country), normalizers.Country(ex.Country), w.CountryMatch, w.CountryConflict)
		if in.Sponsor != "" && ex.Sponsor != "" {
			a, _ := normalizers.Normalize(in.Sponsor, models.EntityKindTeam)
			b, _ := normalizers.Normalize(ex.Sponsor, models.EntityKindTeam)
			similar := TokenSetRatio(a.Tokens, b.Tokens) >= w.TextMatchThreshold
			signals = append(signals, agreement(SignalSponsor, similar, w.SponsorMatch, w.SponsorConflict, in.Sponsor, ex.Sponsor))
		}
		if in.FoundedYear != 0 && ex.FoundedYear != 0 {
			signals = append(signals, agreement(SignalFoundedYear, in.FoundedYear == ex.FoundedYear, w.FoundedYearMatch, w.FoundedYearConflict,
				fmt.Sprint(in.FoundedYear), fmt.Sprint(ex.FoundedYear)))
		}

	case models.CircuitAttributes:
		ex, _ := existing.(models.CircuitAttributes)
		signals = appendText(signals, SignalCountry, normalizers.Country(in.Country), normalizers.Country(ex.Country), w.CountryMatch, w.CountryConflict)
		if in.LengthMeters > 0 && ex.LengthMeters > 0 {
			proximity := NumericProximity(float64(in.LengthMeters), float64(ex.LengthMeters), 2*w.LengthToleranceMeters)
			signals = append(signals, agreement(SignalLengthMeters, proximity >= 0.5, w.LengthMatch, w.LengthConflict,
				fmt.Sprint(in.LengthMeters), fmt.Sprint(ex.LengthMeters)))
		}

	case models.SeriesAttributes:
		ex, _ := existing.(models.SeriesAttributes)
		signals = appendText(signals, SignalRegion, normalizers.Slugify(in.Region), normalizers.Slugify(ex.Region), w.RegionMatch, w.RegionConflict)
		signals = appendText(signals, SignalOrganizer, normalizers.Slugify(in.Organizer), normalizers.Slugify(ex.Organizer), w.OrganizerMatch, w.OrganizerConflict)
	}
	return signals
}

func (s *Scorer) sourceAgreement(w Weights, source string, aliases []models.Alias) (models.Signal, bool) {
	if source == "" || w.SourceAgreement == 0 {
		return models.Signal{}, false
	}
	for _, a := range aliases {
		if a.Source == source {
			return models.Signal{
				Name:         SignalSourceAgreement,
				Contribution: round(w.SourceAgreement),
				Detail:       fmt.Sprintf("alias %q already accepted from %s", a.AliasName, source),
			}, true
		}
	}
	return models.Signal{}, false
}

// temporalPlausibility is only emitted when both the record era and the candidate's
// active period are known. A closed period that misses the era vetoes the whole score.
// The start of an open period is only the earliest sighting, so an era before it never vetoes.
func (s *Scorer) temporalPlausibility(w Weights, era models.Era, candidate Candidate) (sig models.Signal, vetoed, ok bool) {
	if !era.Known() {
		return models.Signal{}, false, false
	}
	from, until, known := ActivePeriod(candidate)
	if !known {
		return models.Signal{}, false, false
	}

	eraFrom, eraUntil := era.Bounds()
	tol := w.TemporalTolerance
	overlaps := until == 0 || (eraFrom <= until+tol && (from == 0 || eraUntil >= from-tol))

	period := formatPeriod(from, until)
	if overlaps {
		return models.Signal{Name: SignalTemporalPlausibility, Detail: fmt.Sprintf("active %s overlaps era %d-%d", period, eraFrom, eraUntil)}, false, true
	}
	return models.Signal{Name: SignalTemporalPlausibility, Detail: fmt.Sprintf("veto: active %s outside era %d-%d", period, eraFrom, eraUntil)}, true, true
}

// ActivePeriod is the union of the entity's recorded years and its alias windows.
// Zero bounds are open. known is false when nothing dates the candidate.
func ActivePeriod(candidate Candidate) (from, until int, known bool) {
	from, until = candidate.Entity.ActivePeriod()
	known = candidate.Entity.ActiveFromYear != nil || candidate.Entity.ActiveUntilYear != nil
	openEnded := candidate.Entity.ActiveFromYear != nil && candidate.Entity.ActiveUntilYear == nil

	for _, a := range candidate.Aliases {
		aFrom, aUntil := a.Window().Years()
		if aFrom == 0 && aUntil == 0 {
			continue
		}
		known = true
		if aFrom != 0 && (from == 0 || aFrom < from) {
			from = aFrom
		}
		if aUntil == 0 {
			openEnded = true
		} else if aUntil > until {
			until = aUntil
		}
	}
	if openEnded {
		until = 0
	}
	return from, until, known
}

func formatPeriod(from, until int) string {
	f, u := "?", "present"
	if from != 0 {
		f = fmt.Sprint(from)
	}
	if until != 0 {
		u = fmt.Sprint(until)
	}
	return f + "-" + u
}

func agreement(name string, agrees bool, match, conflict float64, incoming, existing string) models.Signal {
	if agrees {
		return models.Signal{Name: name, Contribution: round(match), Detail: fmt.Sprintf("match %q", incoming)}
	}
	return models.Signal{Name: name, Contribution: round(-conflict), Detail: fmt.Sprintf("conflict %q vs %q", incoming, existing)}
}

func appendText(signals models.Signals, name, incoming, existing string, match, conflict float64) models.Signals {
	if incoming == "" || existing == "" {
		return signals
	}
	return append(signals, agreement(name, incoming == existing, match, conflict, incoming, existing))
}
