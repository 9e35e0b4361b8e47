package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/graphcache/internal/schema"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeSchemaViolation: a payload or call does not fit the schema
	// (missing required field, non-string id, malformed relationship value,
	// unknown type or field).
	ErrCodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// ErrCodeReadOnly: a client write to a read-only field.
	ErrCodeReadOnly ErrorCode = "READ_ONLY"

	// ErrCodeRecordDeleted: any mutation of a deleted record.
	ErrCodeRecordDeleted ErrorCode = "RECORD_DELETED"

	// ErrCodeDirtyReload: merging into a dirty record with reloadDirty off.
	ErrCodeDirtyReload ErrorCode = "DIRTY_RELOAD"

	// ErrCodeDirtyUnload: unloading a dirty record without discarding.
	ErrCodeDirtyUnload ErrorCode = "DIRTY_UNLOAD"

	// ErrCodeRecordNotLoaded: the record instance is not in the store.
	ErrCodeRecordNotLoaded ErrorCode = "RECORD_NOT_LOADED"

	// ErrCodeRecordCreating: deleting a record whose create is in flight.
	ErrCodeRecordCreating ErrorCode = "RECORD_CREATING"

	// ErrCodeRecordIsNew: reloading a record the server has never seen.
	ErrCodeRecordIsNew ErrorCode = "RECORD_IS_NEW"

	// ErrCodeInvalidFind: malformed find options.
	ErrCodeInvalidFind ErrorCode = "INVALID_FIND"

	// ErrCodeNotFound: the adapter answered without the requested record.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeMissingCreatedID: a create response carried no permanent id.
	ErrCodeMissingCreatedID ErrorCode = "MISSING_CREATED_ID"

	// ErrCodeInvariant: the relationship graph broke an invariant. Raised
	// with panic; it signals a bug, not bad input.
	ErrCodeInvariant ErrorCode = "INVARIANT"
)

// Error is the error type returned by Store and Record operations.
//
// Adapter errors are never converted to Error; they are returned wrapped
// with %w so errors.Is and errors.As still reach them.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Type and ID identify the record involved, when there is one.
	Type string
	ID   string

	// Field names the attribute or relationship involved.
	Field string

	// Violations lists every schema problem for SCHEMA_VIOLATION.
	Violations []schema.ValidationError
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Type != "" && e.Field != "":
		return fmt.Sprintf("%s: %s (record=%s:%s, field=%s)", e.Code, e.Message, e.Type, e.ID, e.Field)
	case e.Type != "":
		return fmt.Sprintf("%s: %s (record=%s:%s)", e.Code, e.Message, e.Type, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the code of an Error anywhere in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

func hasCode(err error, codes ...ErrorCode) bool {
	code, ok := CodeOf(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// IsSchemaError reports a schema violation.
func IsSchemaError(err error) bool { return hasCode(err, ErrCodeSchemaViolation) }

// IsDirtyError reports a refused reload or unload of a dirty record.
func IsDirtyError(err error) bool { return hasCode(err, ErrCodeDirtyReload, ErrCodeDirtyUnload) }

// IsDeletedError reports a mutation of a deleted record.
func IsDeletedError(err error) bool { return hasCode(err, ErrCodeRecordDeleted) }

// IsReadOnlyError reports a write to a read-only field.
func IsReadOnlyError(err error) bool { return hasCode(err, ErrCodeReadOnly) }

// IsNotFoundError reports a find that the adapter could not satisfy.
func IsNotFoundError(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsInvalidFindError reports malformed find options.
func IsInvalidFindError(err error) bool { return hasCode(err, ErrCodeInvalidFind) }

func recordError(code ErrorCode, rec *Record, field, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Type:    rec.typeKey,
		ID:      rec.currentID(),
		Field:   field,
	}
}

func schemaError(violations []schema.ValidationError) *Error {
	msg := "payload does not match the schema"
	if len(violations) > 0 {
		msg = violations[0].Error()
		if len(violations) > 1 {
			msg = fmt.Sprintf("%s (and %d more)", msg, len(violations)-1)
		}
	}
	return &Error{Code: ErrCodeSchemaViolation, Message: msg, Violations: violations}
}

// invariant panics with an INVARIANT error.
func invariant(format string, args ...any) {
	panic(&Error{Code: ErrCodeInvariant, Message: fmt.Sprintf(format, args...)})
}
