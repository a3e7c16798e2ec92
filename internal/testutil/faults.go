package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/mementer/internal/ir"
)

// ErrInjected is the cause of every failure produced by FaultyBackend.
var ErrInjected = errors.New("injected fault")

// Backend is the replica surface FaultyBackend decorates.
type Backend interface {
	Put(ctx context.Context, data []byte) (ir.Hash, error)
	Get(ctx context.Context, h ir.Hash) ([]byte, bool, error)
	AppendAction(ctx context.Context, a ir.Action) error
	PutLink(ctx context.Context, l ir.Link) error
	Links(ctx context.Context, base ir.Hash, t ir.LinkType) ([]ir.Link, error)
	LinksBatch(ctx context.Context, bases []ir.Hash, t ir.LinkType) (map[ir.Hash][]ir.Link, error)
}

// FaultyBackend wraps a Backend and injects partial replication and store
// failures on demand.
//
// Hidden entries look absent to Get while staying stored underneath, which
// models an entry whose link replicated before it did.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FaultyBackend struct {
	inner Backend

	mu           sync.Mutex
	hidden       map[ir.Hash]bool
	failGet      map[ir.Hash]bool
	failLinkType map[ir.LinkType]bool
	failQueries  bool
	failActions  bool
	failPutAfter int

	puts       int
	linksCalls int
	batchCalls int
}

// NewFaultyBackend wraps inner with no faults enabled.
func NewFaultyBackend(inner Backend) *FaultyBackend {
	return &FaultyBackend{
		inner:        inner,
		hidden:       make(map[ir.Hash]bool),
		failGet:      make(map[ir.Hash]bool),
		failLinkType: make(map[ir.LinkType]bool),
		failPutAfter: -1,
	}
}

// Hide makes Get report h as absent.
func (f *FaultyBackend) Hide(h ir.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden[h] = true
}

// Reveal undoes Hide.
func (f *FaultyBackend) Reveal(h ir.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hidden, h)
}

// FailGet makes Get of h return ErrInjected.
func (f *FaultyBackend) FailGet(h ir.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet[h] = true
}

// FailPutLink makes PutLink of links of type t return ErrInjected.
func (f *FaultyBackend) FailPutLink(t ir.LinkType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLinkType[t] = true
}

// FailQueries makes Links and LinksBatch return ErrInjected.
func (f *FaultyBackend) FailQueries(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failQueries = fail
}

// FailActions makes AppendAction return ErrInjected.
func (f *FaultyBackend) FailActions(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failActions = fail
}

// FailPutAfter lets n more Put calls succeed and fails every later one.
// A negative n disables the fault.
func (f *FaultyBackend) FailPutAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPutAfter = n
	f.puts = 0
}

// LinksCalls returns the number of Links calls seen.
func (f *FaultyBackend) LinksCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linksCalls
}

// BatchCalls returns the number of LinksBatch calls seen.
func (f *FaultyBackend) BatchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls
}

// Put implements Backend.
func (f *FaultyBackend) Put(ctx context.Context, data []byte) (ir.Hash, error) {
	f.mu.Lock()
	if f.failPutAfter >= 0 {
		if f.puts >= f.failPutAfter {
			f.mu.Unlock()
			return "", fmt.Errorf("put: %w", ErrInjected)
		}
		f.puts++
	}
	f.mu.Unlock()
	return f.inner.Put(ctx, data)
}

// Get implements Backend.
func (f *FaultyBackend) Get(ctx context.Context, h ir.Hash) ([]byte, bool, error) {
	f.mu.Lock()
	fail, hidden := f.failGet[h], f.hidden[h]
	f.mu.Unlock()
	if fail {
		return nil, false, fmt.Errorf("get %s: %w", h.Short(), ErrInjected)
	}
	if hidden {
		return nil, false, nil
	}
	return f.inner.Get(ctx, h)
}

// AppendAction implements Backend.
func (f *FaultyBackend) AppendAction(ctx context.Context, a ir.Action) error {
	f.mu.Lock()
	fail := f.failActions
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("append action: %w", ErrInjected)
	}
	return f.inner.AppendAction(ctx, a)
}

// PutLink implements Backend.
func (f *FaultyBackend) PutLink(ctx context.Context, l ir.Link) error {
	f.mu.Lock()
	fail := f.failLinkType[l.Type]
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("put %s link: %w", l.Type, ErrInjected)
	}
	return f.inner.PutLink(ctx, l)
}

// Links implements Backend.
func (f *FaultyBackend) Links(ctx context.Context, base ir.Hash, t ir.LinkType) ([]ir.Link, error) {
	f.mu.Lock()
	f.linksCalls++
	fail := f.failQueries
	f.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("links: %w", ErrInjected)
	}
	return f.inner.Links(ctx, base, t)
}

// LinksBatch implements Backend.
func (f *FaultyBackend) LinksBatch(ctx context.Context, bases []ir.Hash, t ir.LinkType) (map[ir.Hash][]ir.Link, error) {
	f.mu.Lock()
	f.batchCalls++
	fail := f.failQueries
	f.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("links batch: %w", ErrInjected)
	}
	return f.inner.LinksBatch(ctx, bases, t)
}
