package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		kind   models.EntityKind
		slug   string
		tokens []string
	}{
		{"plain", "Max Verstappen", models.EntityKindDriver, "max-verstappen", []string{"max", "verstappen"}},
		{"diacritics", "Sergio Pérez", models.EntityKindDriver, "sergio-perez", []string{"perez", "sergio"}},
		{"initial and punctuation", "  A. Senna ", models.EntityKindDriver, "a-senna", []string{"a", "senna"}},
		{"non-decomposing letters", "Jan Magnussen Ø", models.EntityKindDriver, "jan-magnussen-o", []string{"jan", "magnussen", "o"}},
		{"repeated words dedupe", "Senna Senna", models.EntityKindDriver, "senna-senna", []string{"senna"}},
		{"team stopwords", "Red Bull Racing F1 Team", models.EntityKindTeam, "red-bull-racing-f1-team", []string{"bull", "racing", "red"}},
		{"circuit stopwords", "Autodromo Nazionale di Monza", models.EntityKindCircuit, "autodromo-nazionale-di-monza", []string{"monza", "nazionale"}},
		{"all stopwords keeps tokens", "Team F1", models.EntityKindTeam, "team-f1", []string{"f1", "team"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.slug, got.Slug)
			assert.Equal(t, tt.tokens, got.Tokens)
		})
	}
}

func TestNormalizeRejectsEmptyNames(t *testing.T) {
	for _, raw := range []string{"", "   ", "...", "-- !"} {
		_, err := Normalize(raw, models.EntityKindDriver)
		require.Error(t, err, raw)
		assert.True(t, domainerrors.HasCode(err, domainerrors.CodeInvalidRecord), raw)
	}
}

func TestNormalizeIsPure(t *testing.T) {
	a, err := Normalize("Kimi Räikkönen", models.EntityKindDriver)
	require.NoError(t, err)
	b, err := Normalize("Kimi Räikkönen", models.EntityKindDriver)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "kimi-raikkonen", a.Slug)
}

func TestNationalityAndCountry(t *testing.T) {
	assert.Equal(t, "dutch", Nationality("NED"))
	assert.Equal(t, "dutch", Nationality("Dutch"))
	assert.Equal(t, "brazilian", Nationality("Brazil"))
	assert.Equal(t, "icelandic", Nationality("Icelandic"))
	assert.Equal(t, "united-kingdom", Country("Great Britain"))
	assert.Equal(t, "italy", Country("ITA"))
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, "44", Apply("#044", "car_number"))
	assert.Equal(t, "0", CarNumber("00"))
	assert.Equal(t, "unchanged", Apply("unchanged", "does-not-exist"))
	assert.Equal(t, "perez", ApplyChain("  Pérez ", "trim", "fold", "lowercase"))

	_, ok := Get("slug")
	assert.True(t, ok)
}
