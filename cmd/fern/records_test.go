package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestReadRecords(t *testing.T) {
	input := `{"entity_type":"driver","name":"Ayrton Senna","era":{"start_year":1988},"source":"ergast"}

{"entity_type":"team","name":"Toro Rosso","era":{"start_year":2019},"source":"ergast"}
`
	records, err := readRecords(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.EntityKindDriver, records[0].EntityType)
	assert.Equal(t, "Ayrton Senna", records[0].Name)
	assert.Equal(t, 1988, records[0].Era.StartYear)
	assert.Equal(t, models.EntityKindTeam, records[1].EntityType)
}

func TestReadRecordsReportsLine(t *testing.T) {
	input := `{"entity_type":"driver","name":"Ayrton Senna","source":"ergast"}
{not json}
`
	_, err := readRecords(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadRecordsEmpty(t *testing.T) {
	records, err := readRecords(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}
