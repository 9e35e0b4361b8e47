package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/graphcache/internal/ir"
)

// marshalRecord converts a record to canonical JSON TEXT and its hash.
func marshalRecord(typeKey string, rec ir.RecordJSON) (data string, hash string, err error) {
	b, err := ir.MarshalCanonical(map[string]any(rec))
	if err != nil {
		return "", "", fmt.Errorf("marshal record: %w", err)
	}
	hash, err = ir.RecordHash(typeKey, rec)
	if err != nil {
		return "", "", fmt.Errorf("marshal record: %w", err)
	}
	return string(b), hash, nil
}

// unmarshalRecord parses stored JSON. Numbers are decoded with UseNumber
// so integral values keep full precision.
func unmarshalRecord(data string) (ir.RecordJSON, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return ir.RecordJSON(ir.NormalizeValue(raw).(map[string]any)), nil
}
