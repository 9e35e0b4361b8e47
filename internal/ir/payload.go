package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// MarshalJSON writes the payload in its normalized wire form.
// Meta is omitted when empty.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Records)+1)
	for typeKey, recs := range p.Records {
		if typeKey == MetaKey {
			return nil, fmt.Errorf("type key %q is reserved", MetaKey)
		}
		list := make([]map[string]any, len(recs))
		for i, rec := range recs {
			list[i] = map[string]any(rec)
		}
		out[typeKey] = list
	}
	if !p.Meta.IsEmpty() {
		out[MetaKey] = p.Meta
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the normalized wire form. Numbers are decoded with
// UseNumber and normalized so integral values never lose precision.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	*p = NewPayload()
	for key, msg := range raw {
		if key == MetaKey {
			if err := json.Unmarshal(msg, &p.Meta); err != nil {
				return fmt.Errorf("decode payload meta: %w", err)
			}
			continue
		}

		var recs []map[string]any
		dec := json.NewDecoder(bytes.NewReader(msg))
		dec.UseNumber()
		if err := dec.Decode(&recs); err != nil {
			return fmt.Errorf("decode payload %q: records must be an array of objects: %w", key, err)
		}
		for _, rec := range recs {
			p.Add(key, RecordJSON(NormalizeValue(rec).(map[string]any)))
		}
		if _, ok := p.Records[key]; !ok {
			p.Records[key] = []RecordJSON{}
		}
	}
	return nil
}

// DecodePayload reads one payload from r.
func DecodePayload(r io.Reader) (Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Payload{}, fmt.Errorf("read payload: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}
