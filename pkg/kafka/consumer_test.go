package kafka

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestShouldCommit(t *testing.T) {
	assert.True(t, ShouldCommit(domainerrors.New(domainerrors.CodeInvalidRecord, "empty name")))
	assert.True(t, ShouldCommit(domainerrors.New(domainerrors.CodeValidation, "overlap")))
	assert.False(t, ShouldCommit(domainerrors.New(domainerrors.CodeConcurrentWriteConflict, "race")))
	assert.False(t, ShouldCommit(errors.New("connection refused")))
}

func TestParseRecordUsesSourceHeader(t *testing.T) {
	msg := &IncomingMessage{
		Value:   []byte(`{"entity_type":"team","name":"McLaren","era":{"start_year":1966}}`),
		Headers: map[string]string{"source": "ergast"},
	}
	require.NoError(t, msg.ParseRecord())
	assert.Equal(t, "ergast", msg.Record.Source)
	assert.Equal(t, models.EntityKindTeam, msg.Record.EntityType)
	assert.Equal(t, 1966, msg.Record.Era.StartYear)
}

func TestCompressionCodec(t *testing.T) {
	assert.NotEqual(t, compressionCodec("gzip"), compressionCodec("snappy"))
	assert.Equal(t, compressionCodec(""), compressionCodec("snappy"))
}
