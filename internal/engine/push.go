package engine

import (
	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/schema"
)

// PushPayload applies a normalized server payload. The payload is
// validated as a whole first; nothing is applied when validation fails
// or when it names a dirty record while reloadDirty is off.
func (s *Store) PushPayload(p ir.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushLocked(p, nil)
}

// pushLocked applies p with s.mu held. exempt is the record whose save
// produced p; its own client changes never block the push.
func (s *Store) pushLocked(p ir.Payload, exempt *Record) error {
	if p.IsEmpty() {
		return nil
	}
	if err := s.checkPayload(p, exempt); err != nil {
		return err
	}
	s.applyPayload(p)
	return nil
}

// checkPayload runs every check a push makes before it touches state.
func (s *Store) checkPayload(p ir.Payload, exempt *Record) error {
	if err := s.validatePayload(p); err != nil {
		return err
	}
	if !s.reloadDirty {
		return s.checkDirty(p, exempt)
	}
	return nil
}

// applyPayload mutates the graph. p has passed checkPayload.
func (s *Store) applyPayload(p ir.Payload) {
	for _, ref := range p.Meta.DeletedRecords {
		if rec, ok := s.resident(ref); ok {
			s.removeDeleted(rec)
			continue
		}
		s.deleteRelationshipsForRecord(ref)
	}

	for _, typeKey := range p.Types() {
		m, _ := s.schema.Model(typeKey)
		for _, json := range p.Records[typeKey] {
			id, _ := json.ID()
			if rec, ok := s.resident(ir.Ref(typeKey, id)); ok {
				s.loadData(rec, json)
				s.records.Put(rec)
			} else {
				rec = newRecord(s, m, id)
				s.records.Put(rec)
				s.connectQueuedRelationships(rec)
				s.loadData(rec, json)
			}
			s.metrics.recordPushed(typeKey)
		}
	}

	s.log.Debug("payload pushed", "records", p.Len(), "deleted", len(p.Meta.DeletedRecords), "queued", len(s.queued))
}

// loadData is the per-record ingest: attributes first, then
// relationships, so dirty checks during the merge see fresh attributes.
func (s *Store) loadData(rec *Record, json ir.RecordJSON) {
	s.loadAttributes(rec, json)
	s.mergeRelationships(rec, json)
}

func (s *Store) validatePayload(p ir.Payload) error {
	var violations []schema.ValidationError
	for _, typeKey := range p.Types() {
		for _, json := range p.Records[typeKey] {
			violations = append(violations, s.schema.ValidateRecord(typeKey, json, true)...)
		}
	}
	for _, ref := range p.Meta.DeletedRecords {
		if _, ok := s.schema.Model(ref.Type); !ok || ref.ID == "" {
			violations = append(violations, schema.ValidationError{
				Field:   "meta.deletedRecords",
				Message: "invalid reference " + ref.String(),
				Code:    schema.ErrUnknownType,
			})
		}
	}
	if len(violations) > 0 {
		return schemaError(violations)
	}
	return nil
}

// checkDirty refuses a payload naming a dirty record. A record dirty only
// through edges to exempt is let through: the save confirms those edges,
// and a merge never drops client edges.
func (s *Store) checkDirty(p ir.Payload, exempt *Record) error {
	for _, typeKey := range p.Types() {
		for _, json := range p.Records[typeKey] {
			id, _ := json.ID()
			rec, ok := s.resident(ir.Ref(typeKey, id))
			if !ok || rec == exempt || !rec.isDirty() {
				continue
			}
			if exempt != nil && rec.changedOnlyWith(exempt) {
				continue
			}
			s.log.Warn("push refused for dirty record", "record", rec.Ref().String())
			return recordError(ErrCodeDirtyReload, rec, "", "record is dirty and reloadDirty is off")
		}
	}
	return nil
}

// removeDeleted drops a record the server deleted: its edges go, the
// identity map forgets it and the instance becomes terminal.
func (s *Store) removeDeleted(rec *Record) {
	ref := rec.Ref()
	s.deleteRelationshipsForRecord(ref)
	s.records.Delete(ref.Type, ref.ID)
	rec.deleted = true
	s.log.Info("record deleted", "record", ref.String())
}
