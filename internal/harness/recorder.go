package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/graphcache/internal/engine"
	"github.com/roach88/graphcache/internal/ir"
)

// recordingAdapter traces every request the store sends before passing it
// on, so golden files show which steps reached the server.
type recordingAdapter struct {
	next   engine.Adapter
	record func(request string)
}

var _ engine.Adapter = (*recordingAdapter)(nil)

func (a *recordingAdapter) CreateRecord(ctx context.Context, typeKey string, rec ir.RecordJSON) (ir.Payload, error) {
	a.record("create " + typeKey)
	return a.next.CreateRecord(ctx, typeKey, rec)
}

func (a *recordingAdapter) FindRecord(ctx context.Context, typeKey, id string) (ir.Payload, error) {
	a.record(fmt.Sprintf("%s %s %s", ir.RequestFindOne, typeKey, id))
	return a.next.FindRecord(ctx, typeKey, id)
}

func (a *recordingAdapter) FindMany(ctx context.Context, typeKey string, ids []string) (ir.Payload, error) {
	a.record(fmt.Sprintf("%s %s %s", ir.RequestFindMany, typeKey, strings.Join(ids, ",")))
	return a.next.FindMany(ctx, typeKey, ids)
}

func (a *recordingAdapter) FindAll(ctx context.Context, typeKey string) (ir.Payload, error) {
	a.record(fmt.Sprintf("%s %s", ir.RequestFindAll, typeKey))
	return a.next.FindAll(ctx, typeKey)
}

func (a *recordingAdapter) FindQuery(ctx context.Context, typeKey string, query ir.Query) (ir.Payload, error) {
	q, err := ir.MarshalCanonical(query)
	if err != nil {
		return ir.Payload{}, err
	}
	a.record(fmt.Sprintf("%s %s %s", ir.RequestFindQuery, typeKey, q))
	return a.next.FindQuery(ctx, typeKey, query)
}

func (a *recordingAdapter) UpdateRecord(ctx context.Context, typeKey string, rec ir.RecordJSON) (ir.Payload, error) {
	id, _ := rec.ID()
	a.record(fmt.Sprintf("update %s %s", typeKey, id))
	return a.next.UpdateRecord(ctx, typeKey, rec)
}

func (a *recordingAdapter) DeleteRecord(ctx context.Context, typeKey, id string) (ir.Payload, error) {
	a.record(fmt.Sprintf("delete %s %s", typeKey, id))
	return a.next.DeleteRecord(ctx, typeKey, id)
}
