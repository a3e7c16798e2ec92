// Package engine resolves the current state of aggregates from an
// append-only, content-addressed link graph.
//
// An aggregate never changes in place. Every update writes a new settings
// entry plus one revision link from the aggregate's identity; reading the
// aggregate selects the winning link with a last-write-wins register:
//
//	winner = max over well-formed revision links of (action.Timestamp, action.Hash)
//
// Timestamps are writer-local and may collide, so the action hash breaks ties.
// The order is total, which makes the result a pure function of the link set:
// two replicas holding the same links resolve the same revision no matter in
// which order the links arrived.
//
// If the winning target entry is absent (not yet replicated) or does not
// decode as settings, the next candidate is tried. Foreign links whose action
// does not describe them are ignored before selection.
//
// The engine holds no mutable state besides its collaborators. Reads are
// side-effect free except for the idempotent anchor put, and writes never read
// prior revisions. Multi-step creation is not atomic: see CreateAggregate.
package engine
