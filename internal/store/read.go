package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/mementer/internal/ir"
	"github.com/roach88/mementer/internal/querysql"
)

// Get returns the bytes stored under h.
// Returns (nil, false, nil) if no entry exists; errors are reserved for
// storage failures.
func (s *Store) Get(ctx context.Context, h ir.Hash) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM entries WHERE hash = ?`, string(h)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read entry %s: %w", h.Short(), err)
	}
	return data, true, nil
}

// ReadAction returns the create_entry action with hash h.
// Returns (Action{}, false, nil) if not found.
func (s *Store) ReadAction(ctx context.Context, h ir.Hash) (ir.Action, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT action FROM actions WHERE hash = ?`, string(h)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Action{}, false, nil
	}
	if err != nil {
		return ir.Action{}, false, fmt.Errorf("read action %s: %w", h.Short(), err)
	}
	a, err := unmarshalAction(data)
	if err != nil {
		return ir.Action{}, false, fmt.Errorf("read action %s: %w", h.Short(), err)
	}
	return a, true, nil
}

// Links returns every link of type t from base, oldest first by
// (timestamp, action hash). Returns an empty slice if there are none.
func (s *Store) Links(ctx context.Context, base ir.Hash, t ir.LinkType) ([]ir.Link, error) {
	byBase, err := s.LinksBatch(ctx, []ir.Hash{base}, t)
	if err != nil {
		return nil, err
	}
	links := byBase[base]
	if links == nil {
		links = []ir.Link{}
	}
	return links, nil
}

// LinksBatch returns the links of type t from each base in one round of
// statements. Bases without links are absent from the map.
func (s *Store) LinksBatch(ctx context.Context, bases []ir.Hash, t ir.LinkType) (map[ir.Hash][]ir.Link, error) {
	out := make(map[ir.Hash][]ir.Link, len(bases))
	if len(bases) == 0 {
		return out, nil
	}

	stmts, err := s.compiler.Compile(querysql.LinkQuery{Bases: bases, Type: t})
	if err != nil {
		return nil, err
	}

	for _, stmt := range stmts {
		if err := s.scanLinks(ctx, stmt, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) scanLinks(ctx context.Context, stmt querysql.Statement, out map[ir.Hash][]ir.Link) error {
	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var base, target, typ, tag, action string
		if err := rows.Scan(&base, &target, &typ, &tag, &action); err != nil {
			return fmt.Errorf("scan link: %w", err)
		}
		// A row whose action does not decode keeps the zero Action, which
		// fails ir.Link.WellFormed; readers filter it instead of failing
		// the whole query.
		a, err := unmarshalAction(action)
		if err != nil {
			slog.DebugContext(ctx, "link action does not decode",
				"base", ir.Hash(base).Short(), "type", typ, "error", err)
		}
		l := ir.Link{
			Base:   ir.Hash(base),
			Target: ir.Hash(target),
			Type:   ir.LinkType(typ),
			Tag:    tag,
			Action: a,
		}
		out[l.Base] = append(out[l.Base], l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate links: %w", err)
	}
	return nil
}

// Export streams every stored record to fn in a deterministic order:
// entries by hash, then actions, then links, both by (timestamp, hash).
// Rows whose stored action does not decode are not exported.
// Stops at the first error returned by fn.
func (s *Store) Export(ctx context.Context, fn func(ir.Record) error) error {
	if err := s.exportEntries(ctx, fn); err != nil {
		return err
	}
	if err := s.exportActions(ctx, fn); err != nil {
		return err
	}
	return s.exportLinks(ctx, fn)
}

func (s *Store) exportEntries(ctx context.Context, fn func(ir.Record) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM entries ORDER BY hash ASC COLLATE BINARY`)
	if err != nil {
		return fmt.Errorf("query entries: %w", err)
	}
	// Collect before calling fn: the store holds a single connection, so an
	// open cursor would block fn from querying s.
	var all [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			rows.Close()
			return fmt.Errorf("scan entry: %w", err)
		}
		all = append(all, data)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate entries: %w", err)
	}
	rows.Close()

	for _, data := range all {
		if err := fn(ir.EntryRecord(data)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) exportActions(ctx context.Context, fn func(ir.Record) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action FROM actions
		ORDER BY timestamp ASC, hash ASC COLLATE BINARY
	`)
	if err != nil {
		return fmt.Errorf("query actions: %w", err)
	}
	var all []ir.Action
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			rows.Close()
			return fmt.Errorf("scan action: %w", err)
		}
		a, err := unmarshalAction(data)
		if err != nil {
			slog.DebugContext(ctx, "skipping action on export", "error", err)
			continue
		}
		all = append(all, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate actions: %w", err)
	}
	rows.Close()

	for _, a := range all {
		if err := fn(ir.ActionRecord(a)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) exportLinks(ctx context.Context, fn func(ir.Record) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT base, target, type, tag, action FROM links
		ORDER BY timestamp ASC, action_hash ASC COLLATE BINARY
	`)
	if err != nil {
		return fmt.Errorf("query links: %w", err)
	}
	var all []ir.Link
	for rows.Next() {
		var base, target, typ, tag, action string
		if err := rows.Scan(&base, &target, &typ, &tag, &action); err != nil {
			rows.Close()
			return fmt.Errorf("scan link: %w", err)
		}
		a, err := unmarshalAction(action)
		if err != nil {
			slog.DebugContext(ctx, "skipping link on export",
				"base", ir.Hash(base).Short(), "type", typ, "error", err)
			continue
		}
		all = append(all, ir.Link{
			Base:   ir.Hash(base),
			Target: ir.Hash(target),
			Type:   ir.LinkType(typ),
			Tag:    tag,
			Action: a,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate links: %w", err)
	}
	rows.Close()

	for _, l := range all {
		if err := fn(ir.LinkRecord(l)); err != nil {
			return err
		}
	}
	return nil
}
