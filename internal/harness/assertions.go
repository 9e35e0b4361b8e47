package harness

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/graphcache/internal/engine"
	"github.com/roach88/graphcache/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Record   string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Record != "" {
		fmt.Fprintf(&buf, " %s", e.Record)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// evaluateAssertions checks every assertion against the store and returns
// a message per failure.
func (h *Harness) evaluateAssertions(assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := h.evaluate(a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) evaluate(a Assertion) error {
	switch a.Type {
	case AssertQueuedCount:
		if got := h.store.QueuedCount(); got != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(a.Count), Actual: fmt.Sprint(got)}
		}
		return nil
	case AssertResident:
		return h.assertResident(a)
	}

	rec, err := h.record(a.Record)
	if err != nil {
		return err
	}

	switch a.Type {
	case AssertDirty:
		return assertFlag(a, rec.IsDirty())
	case AssertNew:
		return assertFlag(a, rec.IsNew())
	case AssertAttribute:
		return assertAttribute(a, rec)
	case AssertHasOne:
		return h.assertHasOne(a, rec)
	case AssertHasMany:
		return h.assertHasMany(a, rec)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func expectedFlag(a Assertion) (bool, error) {
	if a.Value == nil {
		return true, nil
	}
	b, ok := a.Value.(bool)
	if !ok {
		return false, fmt.Errorf("%s: value must be a boolean", a.Type)
	}
	return b, nil
}

func assertFlag(a Assertion, got bool) error {
	want, err := expectedFlag(a)
	if err != nil {
		return err
	}
	if got != want {
		return &AssertionError{Type: a.Type, Record: a.Record, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
	}
	return nil
}

// assertResident passes when the identity map holds (or no longer holds)
// the record. An alias checks the record's current id.
func (h *Harness) assertResident(a Assertion) error {
	want, err := expectedFlag(a)
	if err != nil {
		return err
	}
	ref, err := h.ref(a.Record)
	if err != nil {
		return err
	}
	if got := h.store.HasRecord(ref.Type, ref.ID); got != want {
		return &AssertionError{Type: a.Type, Record: a.Record, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
	}
	return nil
}

// assertAttribute compares serialized forms, so a date attribute is
// expected as its millisecond timestamp.
func assertAttribute(a Assertion, rec *engine.Record) error {
	want, err := normalize(a.Value)
	if err != nil {
		return err
	}
	got := rec.Serialize()[a.Field]

	wantJSON, err := ir.MarshalCanonical(want)
	if err != nil {
		return fmt.Errorf("attribute: %w", err)
	}
	gotJSON, err := ir.MarshalCanonical(got)
	if err != nil {
		return fmt.Errorf("attribute: %w", err)
	}
	if !bytes.Equal(wantJSON, gotJSON) {
		return &AssertionError{Type: a.Type, Record: a.Record + "." + a.Field, Expected: string(wantJSON), Actual: string(gotJSON)}
	}
	return nil
}

func (h *Harness) assertHasOne(a Assertion, rec *engine.Record) error {
	got, ok := rec.GetOne(a.Field)
	actual := "none"
	if ok {
		actual = got.String()
	}

	if a.Target == "" {
		if ok {
			return &AssertionError{Type: a.Type, Record: a.Record + "." + a.Field, Expected: "none", Actual: actual}
		}
		return nil
	}

	want, err := h.ref(a.Target)
	if err != nil {
		return err
	}
	if !ok || got != want {
		return &AssertionError{Type: a.Type, Record: a.Record + "." + a.Field, Expected: want.String(), Actual: actual}
	}
	return nil
}

// assertHasMany compares target sets; order is not significant.
func (h *Harness) assertHasMany(a Assertion, rec *engine.Record) error {
	want := make([]string, 0, len(a.Targets))
	for _, t := range a.Targets {
		ref, err := h.ref(t)
		if err != nil {
			return err
		}
		want = append(want, ref.String())
	}
	got := make([]string, 0)
	for _, ref := range rec.GetMany(a.Field) {
		got = append(got, ref.String())
	}
	sort.Strings(want)
	sort.Strings(got)

	if strings.Join(want, ",") != strings.Join(got, ",") {
		return &AssertionError{
			Type:     a.Type,
			Record:   a.Record + "." + a.Field,
			Expected: "[" + strings.Join(want, ", ") + "]",
			Actual:   "[" + strings.Join(got, ", ") + "]",
		}
	}
	return nil
}
