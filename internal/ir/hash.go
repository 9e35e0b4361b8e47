package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for derived keys. The version suffix allows the key
// algorithm to change without colliding with old keys.
const (
	DomainRequest = "graphcache/request/v1"
	DomainRecord  = "graphcache/record/v1"
)

// Request kinds distinguished by RequestKey.
const (
	RequestFindOne   = "find_one"
	RequestFindMany  = "find_many"
	RequestFindAll   = "find_all"
	RequestFindQuery = "find_query"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RequestKey computes the dedup key for an in-flight adapter request.
// Two calls share a key only when kind, type and canonical args are equal,
// so ["1","2"] and ["2","1"] are distinct find-many requests.
func RequestKey(kind, typeKey string, args any) (string, error) {
	obj := map[string]any{
		"kind": kind,
		"type": typeKey,
		"args": args,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RequestKey: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainRequest, canonical), nil
}

// MustRequestKey is like RequestKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRequestKey(kind, typeKey string, args any) string {
	key, err := RequestKey(kind, typeKey, args)
	if err != nil {
		panic(err)
	}
	return key
}

// RecordHash computes a content hash of a record's canonical form.
// The SQLite adapter stores it to skip rewriting unchanged rows.
func RecordHash(typeKey string, rec RecordJSON) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"type":   typeKey,
		"record": map[string]any(rec),
	})
	if err != nil {
		return "", fmt.Errorf("RecordHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}
