package engine

import (
	"context"
	"fmt"

	"github.com/roach88/graphcache/internal/ir"
)

// Adapter request kinds outside the find family, used as metric labels.
const (
	requestCreate = "create"
	requestUpdate = "update"
	requestDelete = "delete"
)

// SaveRecord persists a record: a new record is created and takes the
// permanent id from the response, an existing one is updated. The response
// payload is pushed; the record's own client changes never block it.
func (s *Store) SaveRecord(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	if err := rec.checkMutable(""); err != nil {
		s.mu.Unlock()
		return err
	}
	isNew := rec.IsNew()
	typeKey := rec.typeKey
	json := rec.serialize()
	s.mu.Unlock()

	if violations := s.schema.ValidateRecord(typeKey, json, true); len(violations) > 0 {
		return schemaError(violations)
	}

	if isNew {
		return s.create(ctx, rec, json)
	}
	return s.update(ctx, rec, json)
}

func (s *Store) create(ctx context.Context, rec *Record, json ir.RecordJSON) error {
	s.metrics.adapterRequest(requestCreate)
	p, err := s.adapter.CreateRecord(ctx, rec.typeKey, json)
	if err != nil {
		s.metrics.adapterFailure(requestCreate)
		return fmt.Errorf("create %s: %w", rec.Ref(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newID, err := createdID(rec, p)
	if err != nil {
		return err
	}
	// The record keeps its temporary id until the response is known to apply.
	if err := s.checkPayload(p, rec); err != nil {
		return err
	}

	tempID := rec.currentID()
	rec.setID(newID)
	s.records.Rekey(rec, tempID)
	s.updateRelationshipsWithNewID(rec.typeKey, tempID, newID)
	s.log.Info("record created on server", "type", rec.typeKey, "temp_id", tempID, "id", newID)

	s.applyPayload(p)
	return nil
}

// createdID reads the permanent id from a create response: the createdRecord
// meta, else the payload's only record of the type.
func createdID(rec *Record, p ir.Payload) (string, error) {
	if p.Meta.CreatedRecord != nil && p.Meta.CreatedRecord.ID != "" {
		return p.Meta.CreatedRecord.ID, nil
	}
	if recs := p.Records[rec.typeKey]; len(recs) == 1 {
		if id, err := recs[0].ID(); err == nil {
			return id, nil
		}
	}
	return "", recordError(ErrCodeMissingCreatedID, rec, "", "create response names no created record")
}

func (s *Store) update(ctx context.Context, rec *Record, json ir.RecordJSON) error {
	s.metrics.adapterRequest(requestUpdate)
	p, err := s.adapter.UpdateRecord(ctx, rec.typeKey, json)
	if err != nil {
		s.metrics.adapterFailure(requestUpdate)
		return fmt.Errorf("update %s: %w", rec.Ref(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.IsEmpty() {
		p = ir.NewPayload()
		p.Add(rec.typeKey, json)
	}
	return s.pushLocked(p, rec)
}

// DeleteRecord deletes a record on the server and then locally. A record
// the server has never seen is removed locally only.
func (s *Store) DeleteRecord(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	if err := rec.checkMutable(""); err != nil {
		s.mu.Unlock()
		return err
	}
	if rec.creating {
		s.mu.Unlock()
		return recordError(ErrCodeRecordCreating, rec, "", "record is being created")
	}
	if rec.IsNew() {
		s.removeDeleted(rec)
		s.mu.Unlock()
		return nil
	}
	ref := rec.Ref()
	s.mu.Unlock()

	s.metrics.adapterRequest(requestDelete)
	p, err := s.adapter.DeleteRecord(ctx, ref.Type, ref.ID)
	if err != nil {
		s.metrics.adapterFailure(requestDelete)
		return fmt.Errorf("delete %s: %w", ref, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !rec.deleted {
		s.removeDeleted(rec)
	}
	return s.pushLocked(p, nil)
}

// ReloadRecord refreshes a record from the adapter.
func (s *Store) ReloadRecord(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	if err := rec.checkMutable(""); err != nil {
		s.mu.Unlock()
		return err
	}
	if rec.IsNew() {
		s.mu.Unlock()
		return recordError(ErrCodeRecordIsNew, rec, "", "record has not been created")
	}
	if rec.isDirty() && !s.reloadDirty {
		s.mu.Unlock()
		s.log.Warn("reload refused for dirty record", "record", rec.Ref().String())
		return recordError(ErrCodeDirtyReload, rec, "", "record is dirty and reloadDirty is off")
	}
	ref := rec.Ref()
	s.mu.Unlock()

	_, err := s.fetch(ctx, FindKindOne, ref.Type, ref.ID, func(ctx context.Context) (ir.Payload, error) {
		return s.adapter.FindRecord(ctx, ref.Type, ref.ID)
	})
	return err
}

// UnloadRecord drops a record from the identity map. Its relationships are
// queued so they reconnect when the record is loaded again. A dirty record
// is refused unless discardChanges is set, in which case it is rolled back.
func (s *Store) UnloadRecord(rec *Record, discardChanges bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := rec.checkMutable(""); err != nil {
		return err
	}
	if rec.isDirty() && !discardChanges {
		return recordError(ErrCodeDirtyUnload, rec, "", "record is dirty")
	}

	rec.rollbackAttributes()
	s.rollbackRelationships(rec)
	s.queueConnectedRelationships(rec)

	ref := rec.Ref()
	s.records.Delete(ref.Type, ref.ID)
	rec.unloaded = true
	s.log.Info("record unloaded", "record", ref.String())
	return nil
}
