package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Ramsey-B/fern/pkg/models"
)

// maxRecordLine bounds one JSONL line; attribute payloads can run past bufio's 64KB default
const maxRecordLine = 4 << 20

// readRecords decodes one IncomingRecord per non-blank line
func readRecords(r io.Reader) ([]models.IncomingRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)

	var records []models.IncomingRecord
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var record models.IncomingRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	return records, nil
}
