package engine

import (
	"time"

	"github.com/google/uuid"
)

// WallClock signs actions with a fixed author and the local wall clock.
//
// Wall clocks of different writers are not synchronized; the resolver only
// uses timestamps as a recency hint and breaks ties by action hash.
type WallClock struct {
	author string
}

// NewWallClock returns a Signer for author.
func NewWallClock(author string) WallClock {
	return WallClock{author: author}
}

// Author implements Signer.
func (c WallClock) Author() string { return c.author }

// Now implements Signer.
func (c WallClock) Now() int64 { return time.Now().UnixMicro() }

// NewAuthorID returns a fresh writer identity.
//
// UUIDv7 embeds its creation time, so identities sort by when the writer was
// first configured.
func NewAuthorID() string {
	return uuid.Must(uuid.NewV7()).String()
}
