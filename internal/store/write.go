package store

import (
	"context"
	"fmt"

	"github.com/roach88/mementer/internal/ir"
)

// Put stores entry bytes and returns their content address.
// Idempotent: storing the same bytes twice is a no-op and yields the same hash.
func (s *Store) Put(ctx context.Context, data []byte) (ir.Hash, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("put entry: empty data")
	}
	h := ir.HashEntry(data)

	query := `
		INSERT INTO entries (hash, kind, data)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, string(h), entryKind(data), data); err != nil {
		return "", fmt.Errorf("insert entry %s: %w", h.Short(), err)
	}
	return h, nil
}

// AppendAction records a create_entry action.
// Idempotent: ON CONFLICT DO NOTHING on the action hash.
func (s *Store) AppendAction(ctx context.Context, a ir.Action) error {
	if a.Hash == "" {
		return fmt.Errorf("append action: missing hash")
	}
	if a.Kind != ir.ActionCreateEntry {
		return fmt.Errorf("append action %s: unexpected kind %q", a.Hash.Short(), a.Kind)
	}

	data, err := marshalAction(a)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO actions (hash, kind, author, timestamp, entry_hash, action)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		string(a.Hash), string(a.Kind), a.Author, a.Timestamp, string(a.Entry), data)
	if err != nil {
		return fmt.Errorf("insert action %s: %w", a.Hash.Short(), err)
	}
	return nil
}

// PutLink records a link keyed by its creating action hash.
// The action is stored as given; shape checks happen on read so a replica
// never refuses a record that another replica accepted.
// Idempotent: ON CONFLICT DO NOTHING on the action hash.
func (s *Store) PutLink(ctx context.Context, l ir.Link) error {
	if l.Action.Hash == "" {
		return fmt.Errorf("put link: missing action hash")
	}
	if !l.Type.Valid() {
		return fmt.Errorf("put link %s: unknown link type %q", l.Action.Hash.Short(), l.Type)
	}

	data, err := marshalAction(l.Action)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO links (action_hash, base, target, type, tag, author, timestamp, action)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(action_hash) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		string(l.Action.Hash), string(l.Base), string(l.Target), string(l.Type), l.Tag,
		l.Action.Author, l.Action.Timestamp, data)
	if err != nil {
		return fmt.Errorf("insert link %s: %w", l.Action.Hash.Short(), err)
	}
	return nil
}
