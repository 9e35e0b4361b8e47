package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/graphcache/internal/ir"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Put inserts or replaces a record. The record must carry a string id.
// A record whose canonical form is unchanged is not rewritten.
func (d *DB) Put(ctx context.Context, typeKey string, rec ir.RecordJSON) error {
	_, err := putRecord(ctx, d.db, typeKey, rec)
	return err
}

// Get returns one record. ok is false when it does not exist.
func (d *DB) Get(ctx context.Context, typeKey, id string) (rec ir.RecordJSON, ok bool, err error) {
	return getRecord(ctx, d.db, typeKey, id)
}

// GetMany returns the existing records among ids, in storage order.
func (d *DB) GetMany(ctx context.Context, typeKey string, ids []string) ([]ir.RecordJSON, error) {
	if len(ids) == 0 {
		return []ir.RecordJSON{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, typeKey)
	for _, id := range ids {
		args = append(args, id)
	}
	return readRecords(ctx, d.db, `
		SELECT id, data FROM records
		WHERE type = ? AND id IN (`+placeholders+`)
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`, args...)
}

// All returns every record of a type, in storage order.
func (d *DB) All(ctx context.Context, typeKey string) ([]ir.RecordJSON, error) {
	return readRecords(ctx, d.db, `
		SELECT id, data FROM records
		WHERE type = ?
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`, typeKey)
}

// Delete removes a record. Deleting a missing record is not an error.
func (d *DB) Delete(ctx context.Context, typeKey, id string) error {
	return deleteRecord(ctx, d.db, typeKey, id)
}

// ImportPayload writes every record of a payload as given, in one
// transaction, and removes the records named by meta.deletedRecords.
// Inverses are not rewritten: the payload is taken as complete.
func (d *DB) ImportPayload(ctx context.Context, p ir.Payload) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import payload: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ref := range p.Meta.DeletedRecords {
		if err := deleteRecord(ctx, tx, ref.Type, ref.ID); err != nil {
			return fmt.Errorf("import payload: %w", err)
		}
	}
	for _, typeKey := range p.Types() {
		for _, rec := range p.Records[typeKey] {
			if _, err := putRecord(ctx, tx, typeKey, rec); err != nil {
				return fmt.Errorf("import payload: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import payload: commit: %w", err)
	}
	return nil
}

// Export returns the whole database as one payload, types in sorted order.
func (d *DB) Export(ctx context.Context) (ir.Payload, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT type FROM records ORDER BY type COLLATE BINARY`)
	if err != nil {
		return ir.Payload{}, fmt.Errorf("export: %w", err)
	}
	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return ir.Payload{}, fmt.Errorf("export: %w", err)
		}
		types = append(types, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ir.Payload{}, fmt.Errorf("export: %w", err)
	}

	p := ir.NewPayload()
	for _, t := range types {
		recs, err := d.All(ctx, t)
		if err != nil {
			return ir.Payload{}, fmt.Errorf("export: %w", err)
		}
		p.Add(t, recs...)
	}
	return p, nil
}

// putRecord upserts a record and reports whether a row was written.
func putRecord(ctx context.Context, q querier, typeKey string, rec ir.RecordJSON) (bool, error) {
	id, err := rec.ID()
	if err != nil {
		return false, fmt.Errorf("write %s: %w", typeKey, err)
	}
	data, hash, err := marshalRecord(typeKey, rec)
	if err != nil {
		return false, fmt.Errorf("write %s:%s: %w", typeKey, id, err)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO records (type, id, data, hash, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM records))
		ON CONFLICT(type, id) DO UPDATE
		SET data = excluded.data, hash = excluded.hash
		WHERE records.hash <> excluded.hash
	`, typeKey, id, data, hash)
	if err != nil {
		return false, fmt.Errorf("write %s:%s: %w", typeKey, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write %s:%s: rows affected: %w", typeKey, id, err)
	}
	return n > 0, nil
}

func getRecord(ctx context.Context, q querier, typeKey, id string) (ir.RecordJSON, bool, error) {
	var data string
	err := q.QueryRowContext(ctx, `
		SELECT data FROM records WHERE type = ? AND id = ?
	`, typeKey, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s:%s: %w", typeKey, id, err)
	}
	rec, err := unmarshalRecord(data)
	if err != nil {
		return nil, false, fmt.Errorf("read %s:%s: %w", typeKey, id, err)
	}
	return rec, true, nil
}

func deleteRecord(ctx context.Context, q querier, typeKey, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM records WHERE type = ? AND id = ?`, typeKey, id); err != nil {
		return fmt.Errorf("delete %s:%s: %w", typeKey, id, err)
	}
	return nil
}

// readRecords runs a query selecting (id, data) rows. Returns an empty
// slice, never nil.
func readRecords(ctx context.Context, q querier, query string, args ...any) ([]ir.RecordJSON, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	recs := []ir.RecordJSON{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := unmarshalRecord(data)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}
