// Package memstore is an in-memory replica backend with the same contracts as
// internal/store. It backs engine tests and throwaway harness replicas.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/mementer/internal/ir"
)

type linkKey struct {
	base ir.Hash
	typ  ir.LinkType
}

// Store holds entries, entry actions and links in maps guarded by one RWMutex.
// Every write is idempotent and nothing is ever removed.
type Store struct {
	mu      sync.RWMutex
	entries map[ir.Hash][]byte
	actions map[ir.Hash]ir.Action
	links   map[linkKey][]ir.Link
	seen    map[ir.Hash]bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[ir.Hash][]byte),
		actions: make(map[ir.Hash]ir.Action),
		links:   make(map[linkKey][]ir.Link),
		seen:    make(map[ir.Hash]bool),
	}
}

// Put stores a copy of data under its content address.
func (s *Store) Put(ctx context.Context, data []byte) (ir.Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("put entry: empty data")
	}
	h := ir.HashEntry(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[h]; !ok {
		s.entries[h] = slices.Clone(data)
	}
	return h, nil
}

// Get returns a copy of the bytes stored under h.
func (s *Store) Get(ctx context.Context, h ir.Hash) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[h]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(data), true, nil
}

// AppendAction records a create_entry action.
func (s *Store) AppendAction(ctx context.Context, a ir.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.Hash == "" {
		return fmt.Errorf("append action: missing hash")
	}
	if a.Kind != ir.ActionCreateEntry {
		return fmt.Errorf("append action %s: unexpected kind %q", a.Hash.Short(), a.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[a.Hash]; !ok {
		s.actions[a.Hash] = a
	}
	return nil
}

// ReadAction returns the create_entry action with hash h.
func (s *Store) ReadAction(ctx context.Context, h ir.Hash) (ir.Action, bool, error) {
	if err := ctx.Err(); err != nil {
		return ir.Action{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[h]
	return a, ok, nil
}

// PutLink records l keyed by its creating action hash.
func (s *Store) PutLink(ctx context.Context, l ir.Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.Action.Hash == "" {
		return fmt.Errorf("put link: missing action hash")
	}
	if !l.Type.Valid() {
		return fmt.Errorf("put link %s: unknown link type %q", l.Action.Hash.Short(), l.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[l.Action.Hash] {
		return nil
	}
	s.seen[l.Action.Hash] = true
	key := linkKey{base: l.Base, typ: l.Type}
	s.links[key] = append(s.links[key], l)
	return nil
}

// Links returns the links of type t from base, oldest first by
// (timestamp, action hash).
func (s *Store) Links(ctx context.Context, base ir.Hash, t ir.LinkType) ([]ir.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLinks(base, t), nil
}

// LinksBatch returns the links of type t for each base. Bases without links
// are absent from the map.
func (s *Store) LinksBatch(ctx context.Context, bases []ir.Hash, t ir.LinkType) (map[ir.Hash][]ir.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ir.Hash][]ir.Link, len(bases))
	for _, b := range bases {
		if links := s.sortedLinks(b, t); len(links) > 0 {
			out[b] = links
		}
	}
	return out, nil
}

func (s *Store) sortedLinks(base ir.Hash, t ir.LinkType) []ir.Link {
	links := slices.Clone(s.links[linkKey{base: base, typ: t}])
	if links == nil {
		return []ir.Link{}
	}
	ir.SortOldestFirst(links)
	return links
}

// Export streams every record in the same order as store.Store.Export.
func (s *Store) Export(ctx context.Context, fn func(ir.Record) error) error {
	s.mu.RLock()
	var records []ir.Record

	hashes := make([]ir.Hash, 0, len(s.entries))
	for h := range s.entries {
		hashes = append(hashes, h)
	}
	slices.Sort(hashes)
	for _, h := range hashes {
		records = append(records, ir.EntryRecord(slices.Clone(s.entries[h])))
	}

	actions := make([]ir.Action, 0, len(s.actions))
	for _, a := range s.actions {
		actions = append(actions, a)
	}
	slices.SortFunc(actions, func(a, b ir.Action) int {
		return ir.CompareLinks(ir.Link{Action: a}, ir.Link{Action: b})
	})
	for _, a := range actions {
		records = append(records, ir.ActionRecord(a))
	}

	var links []ir.Link
	for _, ls := range s.links {
		links = append(links, ls...)
	}
	ir.SortOldestFirst(links)
	for _, l := range links {
		records = append(records, ir.LinkRecord(l))
	}
	s.mu.RUnlock()

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}
