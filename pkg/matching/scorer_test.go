package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/utils"
)

func scoreOne(t *testing.T, record models.IncomingRecord, candidate Candidate) ScoredCandidate {
	t.Helper()
	normalized, err := normalizers.Normalize(record.Name, record.EntityType)
	require.NoError(t, err)
	return NewScorer().Score(DefaultWeights(), record, normalized, candidate)
}

func driverCandidate(id, name string, attrs models.DriverAttributes) Candidate {
	return Candidate{Entity: models.CanonicalEntity{ID: id, Kind: models.EntityKindDriver, Name: name, Attributes: attrs}}
}

func signalNames(signals models.Signals) []string {
	names := make([]string, len(signals))
	for i, s := range signals {
		names[i] = s.Name
	}
	return names
}

func TestScoreExactNameWithMatchingNationality(t *testing.T) {
	record := models.IncomingRecord{
		EntityType: models.EntityKindDriver,
		Name:       "Max Verstappen",
		Source:     "ergast",
		Attributes: models.DriverAttributes{Nationality: "NED"},
	}
	scored := scoreOne(t, record, driverCandidate("d-max", "Max Verstappen", models.DriverAttributes{Nationality: "Dutch"}))

	assert.Equal(t, 1.0, scored.Score)
	assert.Equal(t, []string{SignalNameSimilarity, SignalNationality}, signalNames(scored.Signals))
	assert.InDelta(t, 0.95, scored.Signals[0].Contribution, 1e-9)
	assert.InDelta(t, 0.05, scored.Signals[1].Contribution, 1e-9)
}

func TestScoreDateOfBirthConflict(t *testing.T) {
	record := models.IncomingRecord{
		EntityType: models.EntityKindDriver,
		Name:       "John Smith",
		Source:     "wikipedia",
		Attributes: models.DriverAttributes{DateOfBirth: models.NewDate(1985, time.April, 2), Nationality: "British"},
	}
	existing := models.DriverAttributes{DateOfBirth: models.NewDate(1962, time.July, 14), Nationality: "GBR"}
	scored := scoreOne(t, record, driverCandidate("d-john", "John Smith", existing))

	assert.InDelta(t, 0.40, scored.Score, 1e-9)
	assert.Equal(t, []string{SignalNameSimilarity, SignalDateOfBirth, SignalNationality}, signalNames(scored.Signals))
	assert.InDelta(t, -0.60, scored.Signals[1].Contribution, 1e-9)
}

func TestScoreMissingSecondaryIdentifiersAreNeutral(t *testing.T) {
	record := models.IncomingRecord{EntityType: models.EntityKindDriver, Name: "Max Verstappen", Source: "ergast"}
	scored := scoreOne(t, record, driverCandidate("d-max", "Max Verstappen", models.DriverAttributes{Nationality: "Dutch"}))

	assert.Equal(t, []string{SignalNameSimilarity}, signalNames(scored.Signals))
	assert.InDelta(t, 0.95, scored.Score, 1e-9)
}

func TestScoreSourceAgreementBeforeTemporal(t *testing.T) {
	candidate := driverCandidate("d-max", "Max Verstappen", models.DriverAttributes{})
	candidate.Entity.ActiveFromYear = utils.Ptr(2015)
	candidate.Aliases = []models.Alias{{CanonicalEntityID: "d-max", AliasName: "Max Verstappen", Source: "ergast"}}

	record := models.IncomingRecord{
		EntityType: models.EntityKindDriver,
		Name:       "Max Verstappen",
		Source:     "ergast",
		Era:        models.Era{StartYear: 2021},
	}
	scored := scoreOne(t, record, candidate)

	assert.Equal(t, []string{SignalNameSimilarity, SignalSourceAgreement, SignalTemporalPlausibility}, signalNames(scored.Signals))
	assert.Zero(t, scored.Signals[2].Contribution)
	assert.InDelta(t, 0.98, scored.Score, 1e-9)
}

func TestScoreTemporalVeto(t *testing.T) {
	tests := []struct {
		name     string
		from     int
		until    int
		era      models.Era
		aliasYrs []int
	}{
		{name: "era after a closed career", from: 1960, until: 1968, era: models.Era{StartYear: 1990}},
		{name: "era before a closed career", from: 2015, until: 2020, era: models.Era{StartYear: 1960, EndYear: 1962}},
		{name: "closed alias window", era: models.Era{StartYear: 1990}, aliasYrs: []int{1955, 1958}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := driverCandidate("d-1", "Jim Clark", models.DriverAttributes{})
			if tt.from != 0 {
				candidate.Entity.ActiveFromYear = utils.Ptr(tt.from)
				candidate.Entity.ActiveUntilYear = utils.Ptr(tt.until)
			}
			if tt.aliasYrs != nil {
				from := time.Date(tt.aliasYrs[0], time.January, 1, 0, 0, 0, 0, time.UTC)
				until := time.Date(tt.aliasYrs[1], time.December, 31, 0, 0, 0, 0, time.UTC)
				candidate.Aliases = []models.Alias{{AliasName: "Jim Clark", Source: "ergast", ValidFrom: &from, ValidUntil: &until}}
			}

			record := models.IncomingRecord{EntityType: models.EntityKindDriver, Name: "Jim Clark", Source: "wikipedia", Era: tt.era}
			scored := scoreOne(t, record, candidate)

			veto := scored.Signals[len(scored.Signals)-1]
			assert.Equal(t, SignalTemporalPlausibility, veto.Name)
			assert.InDelta(t, -0.95, veto.Contribution, 1e-9)
			assert.Contains(t, veto.Detail, "veto")
			assert.Zero(t, scored.Score)
		})
	}
}

func TestScoreTemporalOpenPeriodDoesNotVetoEarlierEra(t *testing.T) {
	from := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	candidate := driverCandidate("d-max", "Max Verstappen", models.DriverAttributes{Nationality: "Dutch"})
	candidate.Entity.ActiveFromYear = utils.Ptr(2023)
	candidate.Aliases = []models.Alias{{AliasName: "Max Verstappen", Source: "openf1", ValidFrom: &from}}

	record := models.IncomingRecord{
		EntityType: models.EntityKindDriver,
		Name:       "Max Verstappen",
		Source:     "ergast",
		Era:        models.Era{StartYear: 2015},
		Attributes: models.DriverAttributes{Nationality: "Dutch"},
	}
	scored := scoreOne(t, record, candidate)

	last := scored.Signals[len(scored.Signals)-1]
	assert.Equal(t, SignalTemporalPlausibility, last.Name)
	assert.Zero(t, last.Contribution)
	assert.NotContains(t, last.Detail, "veto")
	assert.InDelta(t, 1.0, scored.Score, 1e-9)
}

func TestScoreTemporalToleranceKeepsAdjacentYears(t *testing.T) {
	candidate := driverCandidate("d-old", "Jim Clark", models.DriverAttributes{})
	candidate.Entity.ActiveFromYear = utils.Ptr(1960)
	candidate.Entity.ActiveUntilYear = utils.Ptr(1968)

	record := models.IncomingRecord{EntityType: models.EntityKindDriver, Name: "Jim Clark", Source: "ergast", Era: models.Era{StartYear: 1969}}
	scored := scoreOne(t, record, candidate)

	assert.InDelta(t, 0.95, scored.Score, 1e-9)
}

func TestScoreClampsToOne(t *testing.T) {
	dob := models.NewDate(1979, time.October, 17)
	record := models.IncomingRecord{
		EntityType: models.EntityKindDriver,
		Name:       "Kimi Raikkonen",
		Source:     "ergast",
		Attributes: models.DriverAttributes{DateOfBirth: dob, Nationality: "FIN"},
	}
	scored := scoreOne(t, record, driverCandidate("d-kimi", "Kimi Räikkönen", models.DriverAttributes{DateOfBirth: dob, Nationality: "Finnish"}))

	assert.Equal(t, 1.0, scored.Score)
}

func TestScoreUsesBestAlias(t *testing.T) {
	candidate := driverCandidate("d-nelson", "Nelson Piquet Souto Maior", models.DriverAttributes{})
	candidate.Aliases = []models.Alias{{AliasName: "Nelson Piquet", Source: "wikipedia"}}

	record := models.IncomingRecord{EntityType: models.EntityKindDriver, Name: "Nelson Piquet", Source: "ergast"}
	scored := scoreOne(t, record, candidate)

	assert.InDelta(t, 0.95, scored.Score, 1e-9)
	assert.Contains(t, scored.Signals[0].Detail, `"Nelson Piquet"`)
}

func TestScoreTeamSignals(t *testing.T) {
	record := models.IncomingRecord{
		EntityType: models.EntityKindTeam,
		Name:       "Scuderia Ferrari",
		Source:     "ergast",
		Attributes: models.TeamAttributes{Country: "Italy", FoundedYear: 1929},
	}
	candidate := Candidate{Entity: models.CanonicalEntity{
		ID:         "t-ferrari",
		Kind:       models.EntityKindTeam,
		Name:       "Scuderia Ferrari",
		Attributes: models.TeamAttributes{Country: "Italy", FoundedYear: 1950},
	}}
	scored := scoreOne(t, record, candidate)

	assert.Equal(t, []string{SignalNameSimilarity, SignalCountry, SignalFoundedYear}, signalNames(scored.Signals))
	assert.InDelta(t, 0.95+0.05-0.30, scored.Score, 1e-9)
}

func TestScoreIsDeterministic(t *testing.T) {
	record := models.IncomingRecord{EntityType: models.EntityKindDriver, Name: "A. Senna", Source: "wikipedia"}
	normalized, err := normalizers.Normalize(record.Name, record.EntityType)
	require.NoError(t, err)

	candidates := []Candidate{
		driverCandidate("d-bruno", "Bruno Senna", models.DriverAttributes{}),
		driverCandidate("d-ayrton", "Ayrton Senna", models.DriverAttributes{}),
	}
	first := NewScorer().ScoreAll(DefaultWeights(), record, normalized, candidates)
	for range 10 {
		assert.Equal(t, first, NewScorer().ScoreAll(DefaultWeights(), record, normalized, candidates))
	}
	assert.Equal(t, "d-ayrton", first[0].Candidate.Entity.ID)
}

func TestSortScoredBreaksTiesByID(t *testing.T) {
	scored := []ScoredCandidate{
		{Candidate: Candidate{Entity: models.CanonicalEntity{ID: "b"}}, Score: 0.7},
		{Candidate: Candidate{Entity: models.CanonicalEntity{ID: "c"}}, Score: 0.9},
		{Candidate: Candidate{Entity: models.CanonicalEntity{ID: "a"}}, Score: 0.7},
	}
	SortScored(scored)

	ids := []string{scored[0].Candidate.Entity.ID, scored[1].Candidate.Entity.ID, scored[2].Candidate.Entity.ID}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestIdentityConflict(t *testing.T) {
	tests := []struct {
		name     string
		incoming models.Attributes
		existing models.Attributes
		conflict bool
	}{
		{
			name:     "different dates of birth",
			incoming: models.DriverAttributes{DateOfBirth: models.NewDate(1985, time.April, 2)},
			existing: models.DriverAttributes{DateOfBirth: models.NewDate(1962, time.July, 14)},
			conflict: true,
		},
		{
			name:     "same date of birth",
			incoming: models.DriverAttributes{DateOfBirth: models.NewDate(1985, time.April, 2)},
			existing: models.DriverAttributes{DateOfBirth: models.NewDate(1985, time.April, 2)},
		},
		{
			name:     "missing date of birth",
			incoming: models.DriverAttributes{Nationality: "British"},
			existing: models.DriverAttributes{DateOfBirth: models.NewDate(1962, time.July, 14)},
		},
		{
			name:     "different founding years",
			incoming: models.TeamAttributes{FoundedYear: 1929},
			existing: models.TeamAttributes{FoundedYear: 2010},
			conflict: true,
		},
		{
			name:     "circuits never conflict",
			incoming: models.CircuitAttributes{LengthMeters: 5793},
			existing: models.CircuitAttributes{LengthMeters: 4000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, conflict := IdentityConflict(tt.incoming, tt.existing)
			assert.Equal(t, tt.conflict, conflict)
			if conflict {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestDefaultWeightsAreValid(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())

	w := DefaultWeights()
	w.DateOfBirthConflict = -1
	assert.Error(t, w.Validate())

	w = DefaultWeights()
	w.TokenSetShare = 1.5
	assert.Error(t, w.Validate())
}
