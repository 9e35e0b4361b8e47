package harness

import "github.com/roach88/graphcache/internal/ir"

// TraceEvent is one step or adapter request in execution order.
type TraceEvent struct {
	Seq int64  `json:"seq"`
	Op  string `json:"op"` // a step op, or "adapter" for a request the store sent

	Record string `json:"record,omitempty"`
	Field  string `json:"field,omitempty"`

	// Request describes an adapter call, e.g. "find_one user 1".
	Request string `json:"request,omitempty"`

	// Error is the store error code a step failed with.
	Error string `json:"error,omitempty"`
}

// RecordSnapshot is the serialized state of one resident record.
type RecordSnapshot struct {
	Record ir.RecordJSON `json:"record"`
	Dirty  bool          `json:"dirty"`
	New    bool          `json:"new"`
}

// GraphSnapshot is the store's state after the last step.
type GraphSnapshot struct {
	Records       map[string][]RecordSnapshot `json:"records"`
	Queued        int                         `json:"queued"`
	Relationships int                         `json:"relationships"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent  `json:"trace"`
	Errors []string      `json:"errors,omitempty"`
	Graph  GraphSnapshot `json:"graph"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}
