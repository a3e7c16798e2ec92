package gossip

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/mementer/internal/ir"
)

// Target is the write surface of a replica receiving records.
type Target interface {
	Put(ctx context.Context, data []byte) (ir.Hash, error)
	AppendAction(ctx context.Context, a ir.Action) error
	PutLink(ctx context.Context, l ir.Link) error
}

// Source streams every record a replica holds.
type Source interface {
	Export(ctx context.Context, fn func(ir.Record) error) error
}

// ErrRejected marks records no replica will ever accept. Retrying them is
// pointless; any other Apply error comes from the target.
var ErrRejected = errors.New("record rejected")

// Apply writes one record to t. Applying the same record twice is a no-op.
func Apply(ctx context.Context, t Target, r ir.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("apply record: %w: %w", ErrRejected, err)
	}
	switch r.Kind {
	case ir.RecordEntry:
		if _, err := t.Put(ctx, r.Entry); err != nil {
			return fmt.Errorf("apply entry: %w", err)
		}
	case ir.RecordAction:
		if err := t.AppendAction(ctx, *r.Action); err != nil {
			return fmt.Errorf("apply action: %w", err)
		}
	case ir.RecordLink:
		if err := t.PutLink(ctx, *r.Link); err != nil {
			return fmt.Errorf("apply link: %w", err)
		}
	}
	return nil
}

// Copy applies every record of src to dst and returns how many were applied.
func Copy(ctx context.Context, src Source, dst Target) (int, error) {
	n := 0
	err := src.Export(ctx, func(r ir.Record) error {
		if err := Apply(ctx, dst, r); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
