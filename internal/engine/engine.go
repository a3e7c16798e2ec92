package engine

import (
	"log/slog"

	"github.com/roach88/mementer/internal/ir"
)

// DefaultFetchConcurrency bounds concurrent entry fetches in batch reads.
const DefaultFetchConcurrency = 8

// Engine serves aggregate reads and writes against one replica.
//
// Engine is safe for concurrent use: it holds no mutable state, and every
// read recomputes its result from the backend.
type Engine struct {
	backend Backend
	signer  Signer
	logger  *slog.Logger

	fetchConcurrency int

	anchorData []byte
	anchor     ir.Hash
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for skipped candidates and write steps.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFetchConcurrency bounds concurrent entry fetches across aggregates and
// attachments. Values below 1 keep the default.
func WithFetchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fetchConcurrency = n
		}
	}
}

// New creates an Engine over backend, signing writes with signer.
func New(backend Backend, signer Signer, opts ...Option) *Engine {
	data, err := ir.AnchorEntry().Encode()
	if err != nil {
		// The anchor is a constant; failing to encode it is a programming error.
		panic("engine: encode anchor entry: " + err.Error())
	}

	e := &Engine{
		backend:          backend,
		signer:           signer,
		logger:           slog.Default(),
		fetchConcurrency: DefaultFetchConcurrency,
		anchorData:       data,
		anchor:           ir.HashEntry(data),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Anchor returns the hash of the discovery anchor entry. It is identical on
// every replica.
func (e *Engine) Anchor() ir.Hash { return e.anchor }
