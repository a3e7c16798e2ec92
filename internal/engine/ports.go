package engine

import (
	"context"

	"github.com/roach88/mementer/internal/ir"
)

// ObjectStore stores immutable entries keyed by the hash of their bytes.
// Get returns (nil, false, nil) for an absent entry; an error means the store
// itself failed.
type ObjectStore interface {
	Put(ctx context.Context, data []byte) (ir.Hash, error)
	Get(ctx context.Context, h ir.Hash) ([]byte, bool, error)
}

// LinkIndex stores typed links and answers (base, type) queries.
// Links are returned oldest first by (timestamp, action hash).
type LinkIndex interface {
	PutLink(ctx context.Context, l ir.Link) error
	Links(ctx context.Context, base ir.Hash, t ir.LinkType) ([]ir.Link, error)
	LinksBatch(ctx context.Context, bases []ir.Hash, t ir.LinkType) (map[ir.Hash][]ir.Link, error)
}

// ActionLog records create_entry actions.
type ActionLog interface {
	AppendAction(ctx context.Context, a ir.Action) error
}

// Backend is one replica: store.Store and memstore.Store implement it.
type Backend interface {
	ObjectStore
	LinkIndex
	ActionLog
}

// Signer supplies the writer identity and the writer-local clock stamped on
// every action. Now returns microseconds since the Unix epoch.
type Signer interface {
	Author() string
	Now() int64
}
