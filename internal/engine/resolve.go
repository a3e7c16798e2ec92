package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/mementer/internal/ir"
)

// Revision is one resolved version of an aggregate.
type Revision struct {
	// Aggregate is the aggregate identity hash.
	Aggregate ir.Hash `json:"aggregate"`

	// Entry is the hash of the settings entry.
	Entry ir.Hash `json:"entry"`

	// Action is the create_link action of the revision link.
	Action ir.Action `json:"action"`

	// Settings is the decoded content of the settings entry.
	Settings ir.Object `json:"settings"`

	// Candidates is the number of well-formed revision links considered.
	Candidates int `json:"candidates"`
}

// ResolveCurrent returns the current revision of aggregate id: the
// resolvable revision link with the greatest (timestamp, action hash).
//
// Returns NotFound if id has no revision links or every winning candidate is
// absent locally, MalformedData if candidates exist but none decodes as
// settings, and StoreUnavailable if a collaborator call fails.
func (e *Engine) ResolveCurrent(ctx context.Context, id ir.Hash) (rev Revision, err error) {
	ctx, span := startSpan(ctx, "ResolveCurrent", attribute.String("aggregate", string(id)))
	defer func() { endSpan(span, err) }()
	defer measureResolve(ctx, time.Now())

	links, err := e.backend.Links(ctx, id, ir.LinkRevision)
	if err != nil {
		return Revision{}, storeUnavailable("query revision links", err)
	}
	return e.selectRevision(ctx, id, links)
}

// ResolveCurrentBatch resolves several aggregates with one link query.
//
// The result for each id is identical to ResolveCurrent(id). Aggregates that
// resolve to NotFound or MalformedData are absent from the map; a
// StoreUnavailable failure for any aggregate fails the whole call.
func (e *Engine) ResolveCurrentBatch(ctx context.Context, ids []ir.Hash) (out map[ir.Hash]Revision, err error) {
	ctx, span := startSpan(ctx, "ResolveCurrentBatch", attribute.Int("aggregates", len(ids)))
	defer func() { endSpan(span, err) }()
	defer measureResolve(ctx, time.Now())

	out = make(map[ir.Hash]Revision, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	byBase, err := e.backend.LinksBatch(ctx, ids, ir.LinkRevision)
	if err != nil {
		return nil, storeUnavailable("query revision links", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fetchConcurrency)
	seen := make(map[ir.Hash]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		g.Go(func() error {
			rev, err := e.selectRevision(gctx, id, byBase[id])
			switch {
			case err == nil:
				mu.Lock()
				out[id] = rev
				mu.Unlock()
				return nil
			case IsNotFound(err), IsMalformed(err):
				e.logger.DebugContext(gctx, "aggregate unresolvable", "aggregate", id.Short(), "error", err)
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns every resolvable revision of id, newest first by
// (timestamp, action hash). The first element, if any, is what
// ResolveCurrent returns. Absent and malformed candidates are skipped.
func (e *Engine) History(ctx context.Context, id ir.Hash) (revs []Revision, err error) {
	ctx, span := startSpan(ctx, "History", attribute.String("aggregate", string(id)))
	defer func() { endSpan(span, err) }()

	links, err := e.backend.Links(ctx, id, ir.LinkRevision)
	if err != nil {
		return nil, storeUnavailable("query revision links", err)
	}
	if len(links) == 0 {
		return nil, notFound(id, "no revision links")
	}

	cands := e.revisionCandidates(ctx, id, links)
	revs = []Revision{}
	for _, l := range cands {
		rev, reason, err := e.fetchRevision(ctx, id, l)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			continue
		}
		rev.Candidates = len(cands)
		revs = append(revs, rev)
	}
	return revs, nil
}

// selectRevision runs candidate selection over the revision links of id.
func (e *Engine) selectRevision(ctx context.Context, id ir.Hash, links []ir.Link) (Revision, error) {
	if len(links) == 0 {
		return Revision{}, notFound(id, "no revision links")
	}

	cands := e.revisionCandidates(ctx, id, links)
	if len(cands) == 0 {
		return Revision{}, malformed(id, "no well-formed revision links")
	}

	var absent, bad int
	for _, l := range cands {
		rev, reason, err := e.fetchRevision(ctx, id, l)
		if err != nil {
			return Revision{}, err
		}
		switch reason {
		case reasonAbsent:
			absent++
			continue
		case reasonMalformed:
			bad++
			continue
		}
		countSkipped(ctx, resolveSkipped, reasonAbsent, absent)
		countSkipped(ctx, resolveSkipped, reasonMalformed, bad)
		rev.Candidates = len(cands)
		return rev, nil
	}

	countSkipped(ctx, resolveSkipped, reasonAbsent, absent)
	countSkipped(ctx, resolveSkipped, reasonMalformed, bad)
	if absent > 0 {
		return Revision{}, notFound(id, "no revision candidate is available locally")
	}
	return Revision{}, malformed(id, "no revision candidate decodes as settings")
}

// revisionCandidates drops links whose action does not describe a revision
// link from id and orders the rest newest first.
func (e *Engine) revisionCandidates(ctx context.Context, id ir.Hash, links []ir.Link) []ir.Link {
	cands := make([]ir.Link, 0, len(links))
	var foreign int
	for _, l := range links {
		if l.Base != id || l.Type != ir.LinkRevision || !l.WellFormed() {
			foreign++
			e.logger.DebugContext(ctx, "skipping revision link",
				"aggregate", id.Short(), "action", l.Action.Hash.Short(), "reason", reasonForeign)
			continue
		}
		cands = append(cands, l)
	}
	countSkipped(ctx, resolveSkipped, reasonForeign, foreign)
	ir.SortNewestFirst(cands)
	return cands
}

// fetchRevision dereferences one candidate. A non-empty reason means the
// candidate must be skipped; err is reserved for store failures.
func (e *Engine) fetchRevision(ctx context.Context, id ir.Hash, l ir.Link) (Revision, string, error) {
	data, ok, err := e.backend.Get(ctx, l.Target)
	if err != nil {
		return Revision{}, "", storeUnavailable("read settings entry", err)
	}
	if !ok {
		e.logger.DebugContext(ctx, "skipping revision candidate",
			"aggregate", id.Short(), "action", l.Action.Hash.Short(), "reason", reasonAbsent)
		return Revision{}, reasonAbsent, nil
	}
	settings, err := ir.DecodeEntryAs(data, ir.KindSettings)
	if err != nil {
		if !errors.Is(err, ir.ErrMalformedEntry) {
			return Revision{}, "", err
		}
		e.logger.DebugContext(ctx, "skipping revision candidate",
			"aggregate", id.Short(), "action", l.Action.Hash.Short(), "reason", reasonMalformed, "error", err)
		return Revision{}, reasonMalformed, nil
	}
	return Revision{
		Aggregate: id,
		Entry:     l.Target,
		Action:    l.Action,
		Settings:  settings,
	}, "", nil
}
