package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestFromJSONIgnoresKeyOrder(t *testing.T) {
	a, err := FromJSON([]byte(`{"name":"Max Verstappen","attributes":{"nationality":"Dutch","car_number":"33"}}`))
	require.NoError(t, err)
	b, err := FromJSON([]byte(`{"attributes":{"car_number":"33","nationality":"Dutch"},"name":"Max Verstappen"}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestRecord(t *testing.T) {
	base := models.IncomingRecord{
		EntityType: models.EntityKindDriver,
		Name:       "Max Verstappen",
		Era:        models.Era{StartYear: 2015},
		Source:     "ergast",
		Attributes: models.DriverAttributes{Nationality: "Dutch"},
	}

	same, err := Record(base)
	require.NoError(t, err)
	again, err := Record(base)
	require.NoError(t, err)
	assert.Equal(t, same, again)

	other := base
	other.Era = models.Era{StartYear: 2016}
	changed, err := Record(other)
	require.NoError(t, err)
	assert.NotEqual(t, same, changed)
}

func TestFromJSONRejectsInvalidInput(t *testing.T) {
	_, err := FromJSON([]byte(`{"name":`))
	assert.Error(t, err)
}
