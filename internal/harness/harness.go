package harness

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/roach88/mementer/internal/engine"
	"github.com/roach88/mementer/internal/gossip"
	"github.com/roach88/mementer/internal/ir"
	"github.com/roach88/mementer/internal/memstore"
	"github.com/roach88/mementer/internal/store"
	"github.com/roach88/mementer/internal/testutil"
)

// stepInterval is the timestamp gap given to steps without an explicit at.
const stepInterval = 1000

// backend is what a replica needs: the engine's collaborators plus a full
// export for syncing.
type backend interface {
	engine.Backend
	gossip.Source
}

type replica struct {
	name    string
	backend backend
	close   func() error
}

// Harness is the scenario execution engine. Each run gets fresh replicas.
type Harness struct {
	replicas map[string]*replica
	order    []string // replica names in declaration order
	labels   map[string]ir.Hash
	names    map[ir.Hash]string
	now      int64
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Open every replica empty
// 2. Execute steps in order, stopping at the first failing step
// 3. Evaluate assertions
// 4. Snapshot every replica
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h := &Harness{
		replicas: make(map[string]*replica, len(scenario.Replicas)),
		labels:   make(map[string]ir.Hash),
		names:    make(map[ir.Hash]string),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	defer h.close()

	for _, r := range scenario.Replicas {
		rep, err := openReplica(r)
		if err != nil {
			return nil, err
		}
		h.replicas[r.Name] = rep
		h.order = append(h.order, r.Name)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Action, err))
			return result, nil
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}

	for _, name := range h.order {
		view, err := h.snapshot(ctx, h.replicas[name])
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", name, err)
		}
		result.Snapshot[name] = view
	}
	return result, nil
}

func openReplica(r Replica) (*replica, error) {
	if r.Backend == "memory" {
		return &replica{name: r.Name, backend: memstore.New(), close: func() error { return nil }}, nil
	}
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store for %s: %w", r.Name, err)
	}
	return &replica{name: r.Name, backend: st, close: st.Close}, nil
}

func (h *Harness) close() {
	for _, r := range h.replicas {
		if err := r.close(); err != nil {
			h.logger.Error("close replica", "replica", r.name, "error", err)
		}
	}
}

// writer returns an engine for one write step with its own pinned clock.
func (h *Harness) writer(step Step) *engine.Engine {
	if step.At != 0 {
		h.now = step.At
	} else {
		h.now += stepInterval
	}
	author := step.Author
	if author == "" {
		author = "writer-" + step.Replica
	}
	clock := testutil.NewManualClock(author, h.now)
	return engine.New(h.replicas[step.Replica].backend, clock, engine.WithLogger(h.logger))
}

// reader returns an engine for assertions and snapshots.
func (h *Harness) reader(r *replica) *engine.Engine {
	return engine.New(r.backend, testutil.NewManualClock("reader", 0), engine.WithLogger(h.logger))
}

func (h *Harness) executeStep(ctx context.Context, step Step) error {
	if step.Action == StepSync {
		return h.sync(ctx, step)
	}

	content, err := toObject(step.Content)
	if err != nil {
		return err
	}
	eng := h.writer(step)

	switch step.Action {
	case StepCreate:
		created, err := eng.CreateAggregate(ctx, content)
		if err != nil {
			return err
		}
		h.labels[step.As] = created.Aggregate
		h.names[created.Aggregate] = step.As
	case StepRevise:
		_, err = eng.RecordRevision(ctx, h.labels[step.Aggregate], content)
	case StepAttach:
		_, err = eng.CreateAttachment(ctx, h.labels[step.Aggregate], content)
	default:
		err = fmt.Errorf("unknown action %q", step.Action)
	}
	return err
}

// sync applies the records of one replica to another in the step's order.
func (h *Harness) sync(ctx context.Context, step Step) error {
	var records []ir.Record
	err := h.replicas[step.From].backend.Export(ctx, func(r ir.Record) error {
		if keep(r, step.Only) {
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("export %s: %w", step.From, err)
	}

	arrange(records, step.Order, step.Seed)

	dst := h.replicas[step.To].backend
	for _, r := range records {
		if err := gossip.Apply(ctx, dst, r); err != nil {
			return fmt.Errorf("apply to %s: %w", step.To, err)
		}
	}
	h.logger.Debug("synced", "from", step.From, "to", step.To, "records", len(records))
	return nil
}

func keep(r ir.Record, only string) bool {
	switch only {
	case "entries":
		return r.Kind == ir.RecordEntry
	case "actions":
		return r.Kind == ir.RecordAction
	case "links":
		return r.Kind == ir.RecordLink
	}
	return true
}

// arrange reorders records in place. Shuffles are reproducible per seed.
func arrange(records []ir.Record, order string, seed uint64) {
	switch order {
	case OrderReverse:
		slices.Reverse(records)
	case OrderShuffle:
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		rng.Shuffle(len(records), func(i, j int) {
			records[i], records[j] = records[j], records[i]
		})
	}
}

// snapshot captures what a reader of r observes.
func (h *Harness) snapshot(ctx context.Context, r *replica) (ReplicaView, error) {
	eng := h.reader(r)
	view := ReplicaView{Aggregates: []AggregateView{}, Unresolved: []string{}}

	ids, err := eng.ListAggregates(ctx)
	if err != nil {
		return ReplicaView{}, err
	}
	for _, id := range ids {
		revs, err := eng.History(ctx, id)
		if err != nil && !engine.IsNotFound(err) {
			return ReplicaView{}, err
		}
		if len(revs) == 0 {
			view.Unresolved = append(view.Unresolved, h.label(id))
			continue
		}

		atts, err := eng.ListAttachments(ctx, id)
		if err != nil {
			return ReplicaView{}, err
		}
		engine.SortChronological(atts, "timestamp")

		agg := AggregateView{
			Label:       h.label(id),
			Settings:    revs[0].Settings,
			History:     make([]int64, len(revs)),
			Attachments: make([]ir.Object, len(atts)),
		}
		for i, rev := range revs {
			agg.History[i] = rev.Action.Timestamp
		}
		for i, a := range atts {
			agg.Attachments[i] = a.Content
		}
		view.Aggregates = append(view.Aggregates, agg)
	}

	slices.SortFunc(view.Aggregates, func(a, b AggregateView) int {
		return cmp.Compare(a.Label, b.Label)
	})
	slices.Sort(view.Unresolved)
	return view, nil
}

func (h *Harness) label(id ir.Hash) string {
	if name, ok := h.names[id]; ok {
		return name
	}
	return id.Short()
}

func toObject(content map[string]any) (ir.Object, error) {
	v, err := ir.FromGo(content)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	return v.(ir.Object), nil
}
