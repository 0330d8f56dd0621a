package kafka

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	Record *models.IncomingRecord
}

// ParseRecord decodes the message value as an incoming record. A "source" header
// fills in the record source when the payload omits it.
func (m *IncomingMessage) ParseRecord() error {
	var rec models.IncomingRecord
	if err := json.Unmarshal(m.Value, &rec); err != nil {
		return err
	}
	if rec.Source == "" {
		rec.Source = m.Headers["source"]
	}
	m.Record = &rec
	return nil
}
