package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/mementer/internal/ir"
)

// RevisionRef identifies the records written by one revision.
type RevisionRef struct {
	Entry       ir.Hash `json:"entry"`
	EntryAction ir.Hash `json:"entry_action"`
	LinkAction  ir.Hash `json:"link_action"`
}

// Created is the result of CreateAggregate.
type Created struct {
	Aggregate ir.Hash     `json:"aggregate"`
	Revision  RevisionRef `json:"revision"`
}

// AttachmentRef identifies the records written by one attachment.
type AttachmentRef struct {
	Aggregate   ir.Hash `json:"aggregate"`
	Entry       ir.Hash `json:"entry"`
	EntryAction ir.Hash `json:"entry_action"`
	LinkAction  ir.Hash `json:"link_action"`
}

// Creation steps named in PartialCreation errors.
const (
	StepIdentityAction = "identity_action"
	StepAnchor         = "anchor"
	StepMembershipLink = "membership_link"
	StepRevisionLink   = "revision_link"
)

// RecordRevision writes content as a new revision of aggregate id.
//
// It never reads prior revisions: concurrent writers are reconciled when the
// aggregate is read, not here.
func (e *Engine) RecordRevision(ctx context.Context, id ir.Hash, content ir.Object) (ref RevisionRef, err error) {
	ctx, span := startSpan(ctx, "RecordRevision", attribute.String("aggregate", string(id)))
	defer func() { endSpan(span, err) }()

	ts := e.signer.Now()
	entry, entryAction, err := e.writeEntry(ctx, ir.Entry{Kind: ir.KindSettings, Content: content}, ts)
	if err != nil {
		return RevisionRef{}, err
	}
	link, err := e.writeLink(ctx, id, entry, ir.LinkRevision, ts)
	if err != nil {
		return RevisionRef{}, err
	}

	e.logger.DebugContext(ctx, "recorded revision",
		"aggregate", id.Short(), "entry", entry.Short(), "timestamp", ts)
	return RevisionRef{Entry: entry, EntryAction: entryAction, LinkAction: link}, nil
}

// CreateAggregate writes a new aggregate with content as its first revision.
//
// The steps run in order: settings entry, its action, identity entry, its
// action, anchor, membership link, revision link. Nothing is rolled back.
// A failure after the identity entry is stored returns a PartialCreation
// error carrying the aggregate id and the failed step; until a writer
// completes the missing links, readers see NotFound or no listing.
func (e *Engine) CreateAggregate(ctx context.Context, content ir.Object) (c Created, err error) {
	ctx, span := startSpan(ctx, "CreateAggregate")
	defer func() { endSpan(span, err) }()

	ts := e.signer.Now()
	settings, settingsAction, err := e.writeEntry(ctx, ir.Entry{Kind: ir.KindSettings, Content: content}, ts)
	if err != nil {
		return Created{}, err
	}

	identityData, err := ir.AggregateEntry(settingsAction).Encode()
	if err != nil {
		return Created{}, fmt.Errorf("encode identity entry: %w", err)
	}
	id, err := e.backend.Put(ctx, identityData)
	if err != nil {
		return Created{}, storeUnavailable("write identity entry", err)
	}
	span.SetAttributes(attribute.String("aggregate", string(id)))

	if _, err := e.appendEntryAction(ctx, id, ts); err != nil {
		return Created{}, partialCreation(id, StepIdentityAction, err)
	}
	if err := e.ensureAnchor(ctx); err != nil {
		return Created{}, partialCreation(id, StepAnchor, err)
	}
	if _, err := e.writeLink(ctx, e.anchor, id, ir.LinkMembership, ts); err != nil {
		return Created{}, partialCreation(id, StepMembershipLink, err)
	}
	revLink, err := e.writeLink(ctx, id, settings, ir.LinkRevision, ts)
	if err != nil {
		return Created{}, partialCreation(id, StepRevisionLink, err)
	}

	e.logger.InfoContext(ctx, "created aggregate", "aggregate", id.Short(), "timestamp", ts)
	return Created{
		Aggregate: id,
		Revision:  RevisionRef{Entry: settings, EntryAction: settingsAction, LinkAction: revLink},
	}, nil
}

// CreateAttachment writes content as an attachment of aggregate id.
func (e *Engine) CreateAttachment(ctx context.Context, id ir.Hash, content ir.Object) (ref AttachmentRef, err error) {
	ctx, span := startSpan(ctx, "CreateAttachment", attribute.String("aggregate", string(id)))
	defer func() { endSpan(span, err) }()

	ts := e.signer.Now()
	entry, entryAction, err := e.writeEntry(ctx, ir.Entry{Kind: ir.KindAttachment, Content: content}, ts)
	if err != nil {
		return AttachmentRef{}, err
	}
	link, err := e.writeLink(ctx, id, entry, ir.LinkAttachment, ts)
	if err != nil {
		return AttachmentRef{}, err
	}

	e.logger.DebugContext(ctx, "created attachment", "aggregate", id.Short(), "entry", entry.Short())
	return AttachmentRef{Aggregate: id, Entry: entry, EntryAction: entryAction, LinkAction: link}, nil
}

// writeEntry stores an entry and its create_entry action.
func (e *Engine) writeEntry(ctx context.Context, entry ir.Entry, ts int64) (ir.Hash, ir.Hash, error) {
	data, err := entry.Encode()
	if err != nil {
		return "", "", fmt.Errorf("write %s entry: %w", entry.Kind, err)
	}
	h, err := e.backend.Put(ctx, data)
	if err != nil {
		return "", "", storeUnavailable(fmt.Sprintf("write %s entry", entry.Kind), err)
	}
	action, err := e.appendEntryAction(ctx, h, ts)
	if err != nil {
		return "", "", err
	}
	return h, action, nil
}

func (e *Engine) appendEntryAction(ctx context.Context, entry ir.Hash, ts int64) (ir.Hash, error) {
	a, err := ir.NewEntryAction(e.signer.Author(), ts, entry)
	if err != nil {
		return "", fmt.Errorf("create entry action: %w", err)
	}
	if err := e.backend.AppendAction(ctx, a); err != nil {
		return "", storeUnavailable("append entry action", err)
	}
	return a.Hash, nil
}

// writeLink stores one link with a fresh create_link action and returns the
// action hash.
func (e *Engine) writeLink(ctx context.Context, base, target ir.Hash, t ir.LinkType, ts int64) (ir.Hash, error) {
	l, err := ir.NewLink(e.signer.Author(), ts, base, target, t, "")
	if err != nil {
		return "", fmt.Errorf("create %s link: %w", t, err)
	}
	if err := e.backend.PutLink(ctx, l); err != nil {
		return "", storeUnavailable(fmt.Sprintf("write %s link", t), err)
	}
	return l.ID(), nil
}

// ensureAnchor stores the anchor entry. Put is idempotent, so every replica
// and every call converges on the same anchor hash.
func (e *Engine) ensureAnchor(ctx context.Context) error {
	if _, err := e.backend.Put(ctx, e.anchorData); err != nil {
		return storeUnavailable("write anchor entry", err)
	}
	return nil
}
