// Package harness runs multi-replica convergence scenarios against the
// engine.
//
// A scenario declares replicas, writes to them independently, moves records
// between them in a chosen order, and then asserts what readers of each
// replica observe.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: concurrent_updates
//	description: "Later revision wins on every replica"
//	replicas:
//	  - name: a
//	  - name: b
//	    backend: memory
//	steps:
//	  - action: create
//	    replica: a
//	    at: 1000
//	    as: journal
//	    content: { title: "Morning pages" }
//	  - action: revise
//	    replica: b
//	    author: writer-b
//	    at: 2000
//	    aggregate: journal
//	    content: { title: "Noon pages" }
//	  - action: sync
//	    from: b
//	    to: a
//	    order: shuffle
//	    seed: 7
//	assertions:
//	  - type: current
//	    replica: a
//	    aggregate: journal
//	    expect: { title: "Noon pages" }
//	  - type: converged
//
// # Steps
//
//   - create: creates an aggregate and binds it to the label in "as"
//   - revise: records a revision of a labelled aggregate
//   - attach: attaches a timeline item to a labelled aggregate
//   - sync: applies every record of "from" to "to" in forward, reverse or
//     seeded shuffle order; "only" restricts it to entries, actions or links
//
// Steps without "at" get a timestamp 1000 past the previous step's.
//
// # Assertion Types
//
//   - current: the resolved settings contain every key of expect
//   - not_found: the aggregate does not resolve
//   - history: the number of resolvable revisions
//   - timeline: attachment count, and optionally the values of one key in
//     chronological order
//   - aggregates: the number of resolvable aggregates
//   - converged: the listed replicas (default all) observe identical state
//
// # Golden Files
//
// RunWithGolden compares the final snapshot of every replica with
// testdata/golden/{name}.golden. Snapshots contain labels instead of hashes.
//
//	go test ./internal/harness -update
package harness
