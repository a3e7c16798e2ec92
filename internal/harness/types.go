package harness

import (
	"github.com/roach88/mementer/internal/ir"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Snapshot is what readers observe on each replica after the last step.
	Snapshot Snapshot `json:"snapshot"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Errors:   []string{},
		Snapshot: Snapshot{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Snapshot maps replica names to their observable state.
type Snapshot map[string]ReplicaView

// ReplicaView is the observable state of one replica.
type ReplicaView struct {
	// Aggregates are the resolvable aggregates, ordered by label.
	Aggregates []AggregateView `json:"aggregates"`

	// Unresolved labels aggregates that are listed but have no resolvable
	// revision.
	Unresolved []string `json:"unresolved"`
}

// AggregateView is one resolved aggregate.
type AggregateView struct {
	Label       string      `json:"label"`
	Settings    ir.Object   `json:"settings"`
	History     []int64     `json:"history"` // revision timestamps, newest first
	Attachments []ir.Object `json:"attachments"`
}

// canonical converts the snapshot to an ir.Object for canonical encoding.
func (s Snapshot) canonical() ir.Object {
	out := make(ir.Object, len(s))
	for name, view := range s {
		aggs := make(ir.Array, len(view.Aggregates))
		for i, a := range view.Aggregates {
			history := make(ir.Array, len(a.History))
			for j, ts := range a.History {
				history[j] = ir.Int(ts)
			}
			atts := make(ir.Array, len(a.Attachments))
			for j, c := range a.Attachments {
				atts[j] = c
			}
			aggs[i] = ir.Obj(
				ir.P("label", ir.String(a.Label)),
				ir.P("settings", a.Settings),
				ir.P("history", history),
				ir.P("attachments", atts),
			)
		}
		unresolved := make(ir.Array, len(view.Unresolved))
		for i, l := range view.Unresolved {
			unresolved[i] = ir.String(l)
		}
		out[name] = ir.Obj(
			ir.P("aggregates", aggs),
			ir.P("unresolved", unresolved),
		)
	}
	return out
}
