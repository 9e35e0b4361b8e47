package engine

import (
	"context"

	"github.com/roach88/graphcache/internal/ir"
)

// Adapter is the transport the store talks to. Every call answers with a
// normalized payload; transport and wire format are the adapter's concern.
//
// The store never retries and never applies a payload from a failed call.
// Find calls may be shared between callers, so adapters receive a context
// detached from any single caller's cancellation.
type Adapter interface {
	CreateRecord(ctx context.Context, typeKey string, rec ir.RecordJSON) (ir.Payload, error)
	FindRecord(ctx context.Context, typeKey, id string) (ir.Payload, error)
	FindMany(ctx context.Context, typeKey string, ids []string) (ir.Payload, error)
	FindAll(ctx context.Context, typeKey string) (ir.Payload, error)
	FindQuery(ctx context.Context, typeKey string, query ir.Query) (ir.Payload, error)
	UpdateRecord(ctx context.Context, typeKey string, rec ir.RecordJSON) (ir.Payload, error)
	DeleteRecord(ctx context.Context, typeKey, id string) (ir.Payload, error)
}
