package hoodie

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	ErrMissingKeyField = errors.New("missing key field")
)

// JSONKeyGenerator extracts record keys and partition paths from raw JSON
// payloads, for callers that ingest rows rather than pre-keyed records. Paths
// use gjson syntax, so nested fields like "header.id" work.
type JSONKeyGenerator struct {
	RecordKeyPath     string
	PartitionPathPath string
}

func NewJSONKeyGenerator(recordKeyPath, partitionPathPath string) *JSONKeyGenerator {
	return &JSONKeyGenerator{
		RecordKeyPath:     recordKeyPath,
		PartitionPathPath: partitionPathPath,
	}
}

// KeyFrom extracts the Key encoded in a JSON payload. Both fields must be
// present and non-empty.
func (g *JSONKeyGenerator) KeyFrom(payload []byte) (Key, error) {
	recordKey := gjson.GetBytes(payload, g.RecordKeyPath)
	if !recordKey.Exists() || recordKey.String() == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrMissingKeyField, g.RecordKeyPath)
	}
	partitionPath := gjson.GetBytes(payload, g.PartitionPathPath)
	if !partitionPath.Exists() || partitionPath.String() == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrMissingKeyField, g.PartitionPathPath)
	}
	return Key{
		PartitionPath: partitionPath.String(),
		RecordKey:     recordKey.String(),
	}, nil
}

// RecordFrom builds a Record around a JSON payload, with its key extracted
// and no location set.
func (g *JSONKeyGenerator) RecordFrom(payload []byte) (Record, error) {
	key, err := g.KeyFrom(payload)
	if err != nil {
		return Record{}, err
	}
	return Record{Key: key, Payload: payload}, nil
}

// RecordsFrom builds Records for a batch of JSON payloads, failing on the
// first payload whose key cannot be extracted.
func (g *JSONKeyGenerator) RecordsFrom(payloads [][]byte) ([]Record, error) {
	records := make([]Record, 0, len(payloads))
	for i, payload := range payloads {
		record, err := g.RecordFrom(payload)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		records = append(records, record)
	}
	return records, nil
}
