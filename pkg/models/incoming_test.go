package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncomingRecordUnmarshalDecodesAttributesByKind(t *testing.T) {
	payload := `{
		"entity_type": "driver",
		"name": "Max Verstappen",
		"era": {"start_year": 2023},
		"source": "openf1",
		"attributes": {"date_of_birth": "1997-09-30", "nationality": "Dutch", "car_number": "1"}
	}`

	var rec IncomingRecord
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))

	attrs, ok := rec.Attributes.(DriverAttributes)
	require.True(t, ok)
	assert.Equal(t, EntityKindDriver, rec.EntityType)
	assert.Equal(t, "Dutch", attrs.Nationality)
	assert.True(t, attrs.DateOfBirth.Equal(NewDate(1997, time.September, 30)))
}

func TestIncomingRecordUnmarshalRejectsUnknownKind(t *testing.T) {
	var rec IncomingRecord
	err := json.Unmarshal([]byte(`{"entity_type":"marshal","name":"x","source":"s"}`), &rec)
	assert.Error(t, err)
}

func TestIncomingRecordMissingAttributesUseZeroVariant(t *testing.T) {
	var rec IncomingRecord
	require.NoError(t, json.Unmarshal([]byte(`{"entity_type":"circuit","name":"Monza","source":"ergast"}`), &rec))
	assert.Equal(t, CircuitAttributes{}, rec.Attributes)
}

func TestEraValidate(t *testing.T) {
	assert.NoError(t, Era{}.Validate())
	assert.NoError(t, Era{StartYear: 1984, EndYear: 1994}.Validate())
	assert.Error(t, Era{StartYear: 1994, EndYear: 1984}.Validate())
	assert.Error(t, Era{EndYear: 1984}.Validate())
}

func TestEraEffectiveDate(t *testing.T) {
	assert.Nil(t, Era{}.EffectiveDate())
	assert.Equal(t, time.Date(1984, time.January, 1, 0, 0, 0, 0, time.UTC), *Era{StartYear: 1984}.EffectiveDate())
}

func TestPendingMatchRecordRoundTrip(t *testing.T) {
	start := 1984
	pm := PendingMatch{
		EntityType:   EntityKindDriver,
		IncomingName: "A. Senna",
		IncomingData: json.RawMessage(`{"nationality":"Brazilian"}`),
		EraStartYear: &start,
		Source:       "thethirdturn",
	}
	rec, err := pm.Record()
	require.NoError(t, err)
	assert.Equal(t, "A. Senna", rec.Name)
	assert.Equal(t, 1984, rec.Era.StartYear)
	assert.Equal(t, DriverAttributes{Nationality: "Brazilian"}, rec.Attributes)
}
