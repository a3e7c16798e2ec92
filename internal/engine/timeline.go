package engine

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/mementer/internal/ir"
)

// Attachment is one resolvable timeline item of an aggregate.
type Attachment struct {
	Entry   ir.Hash   `json:"entry"`
	Action  ir.Action `json:"action"`
	Content ir.Object `json:"content"`
}

// ListAttachments returns every resolvable attachment of aggregate id in
// link-index order: ascending (timestamp, action hash) of the attachment
// link. This is not the attachments' own chronology; see SortChronological.
//
// Links to absent or undecodable entries are dropped without error, as are
// links whose action does not describe them. An entry attached more than once
// is listed once, at its earliest link. Store failures are returned.
func (e *Engine) ListAttachments(ctx context.Context, id ir.Hash) (atts []Attachment, err error) {
	ctx, span := startSpan(ctx, "ListAttachments", attribute.String("aggregate", string(id)))
	defer func() { endSpan(span, err) }()

	links, err := e.backend.Links(ctx, id, ir.LinkAttachment)
	if err != nil {
		return nil, storeUnavailable("query attachment links", err)
	}

	var cands []ir.Link
	var foreign int
	seen := make(map[ir.Hash]bool, len(links))
	for _, l := range links {
		if l.Base != id || l.Type != ir.LinkAttachment || !l.WellFormed() {
			foreign++
			continue
		}
		if seen[l.Target] {
			continue
		}
		seen[l.Target] = true
		cands = append(cands, l)
	}
	countSkipped(ctx, attachmentsDropped, reasonForeign, foreign)

	// Fetch concurrently into fixed slots so the result keeps link order.
	slots := make([]*Attachment, len(cands))
	reasons := make([]string, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fetchConcurrency)
	for i, l := range cands {
		g.Go(func() error {
			att, reason, err := e.fetchAttachment(gctx, l)
			if err != nil {
				return err
			}
			if reason != "" {
				reasons[i] = reason
				e.logger.DebugContext(gctx, "dropping attachment",
					"aggregate", id.Short(), "action", l.Action.Hash.Short(), "reason", reason)
				return nil
			}
			slots[i] = &att
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	atts = make([]Attachment, 0, len(cands))
	var absent, bad int
	for i, att := range slots {
		switch {
		case att != nil:
			atts = append(atts, *att)
		case reasons[i] == reasonAbsent:
			absent++
		default:
			bad++
		}
	}
	countSkipped(ctx, attachmentsDropped, reasonAbsent, absent)
	countSkipped(ctx, attachmentsDropped, reasonMalformed, bad)
	span.SetAttributes(attribute.Int("attachments", len(atts)))
	return atts, nil
}

func (e *Engine) fetchAttachment(ctx context.Context, l ir.Link) (Attachment, string, error) {
	data, ok, err := e.backend.Get(ctx, l.Target)
	if err != nil {
		return Attachment{}, "", storeUnavailable("read attachment entry", err)
	}
	if !ok {
		return Attachment{}, reasonAbsent, nil
	}
	content, err := ir.DecodeEntryAs(data, ir.KindAttachment)
	if err != nil {
		if !errors.Is(err, ir.ErrMalformedEntry) {
			return Attachment{}, "", err
		}
		return Attachment{}, reasonMalformed, nil
	}
	return Attachment{Entry: l.Target, Action: l.Action, Content: content}, "", nil
}

// SortChronological orders attachments by the integer value of field in
// their own content, oldest first. Attachments without an integer field sort
// last. Ties are broken by entry hash so the order is total.
func SortChronological(atts []Attachment, field string) {
	slices.SortStableFunc(atts, func(a, b Attachment) int {
		ta, okA := intField(a.Content, field)
		tb, okB := intField(b.Content, field)
		switch {
		case okA && !okB:
			return -1
		case !okA && okB:
			return 1
		case okA && okB:
			if c := cmp.Compare(ta, tb); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Entry, b.Entry)
	})
}

func intField(obj ir.Object, field string) (int64, bool) {
	v, ok := obj[field].(ir.Int)
	return int64(v), ok
}
