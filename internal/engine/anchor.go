package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/mementer/internal/ir"
)

// Aggregate is an aggregate identity with its resolved current settings.
type Aggregate struct {
	ID       ir.Hash   `json:"id"`
	Settings ir.Object `json:"settings"`
	Revision Revision  `json:"-"`
}

// ListAggregates returns the identities linked from the anchor, ordered by
// their first membership link. It ensures the anchor exists and performs no
// revision resolution.
func (e *Engine) ListAggregates(ctx context.Context) (ids []ir.Hash, err error) {
	ctx, span := startSpan(ctx, "ListAggregates")
	defer func() { endSpan(span, err) }()

	if err := e.ensureAnchor(ctx); err != nil {
		return nil, err
	}
	links, err := e.backend.Links(ctx, e.anchor, ir.LinkMembership)
	if err != nil {
		return nil, storeUnavailable("query membership links", err)
	}

	ids = make([]ir.Hash, 0, len(links))
	seen := make(map[ir.Hash]bool, len(links))
	for _, l := range links {
		if l.Base != e.anchor || l.Type != ir.LinkMembership || !l.WellFormed() {
			e.logger.DebugContext(ctx, "skipping membership link",
				"action", l.Action.Hash.Short(), "reason", reasonForeign)
			continue
		}
		if seen[l.Target] {
			continue
		}
		seen[l.Target] = true
		ids = append(ids, l.Target)
	}
	span.SetAttributes(attribute.Int("aggregates", len(ids)))
	return ids, nil
}

// Aggregates lists every aggregate with its current settings. Aggregates
// without a resolvable revision are left out.
func (e *Engine) Aggregates(ctx context.Context) ([]Aggregate, error) {
	ids, err := e.ListAggregates(ctx)
	if err != nil {
		return nil, err
	}
	revs, err := e.ResolveCurrentBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Aggregate, 0, len(revs))
	for _, id := range ids {
		rev, ok := revs[id]
		if !ok {
			continue
		}
		out = append(out, Aggregate{ID: id, Settings: rev.Settings, Revision: rev})
	}
	return out, nil
}

// GetAggregate returns aggregate id with its current settings.
func (e *Engine) GetAggregate(ctx context.Context, id ir.Hash) (Aggregate, error) {
	rev, err := e.ResolveCurrent(ctx, id)
	if err != nil {
		return Aggregate{}, err
	}
	return Aggregate{ID: id, Settings: rev.Settings, Revision: rev}, nil
}
