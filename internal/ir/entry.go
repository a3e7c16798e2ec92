package ir

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EntryKind names the shape of an entry's content.
type EntryKind string

const (
	KindSettings   EntryKind = "settings"
	KindAggregate  EntryKind = "aggregate"
	KindAttachment EntryKind = "attachment"
	KindAnchor     EntryKind = "anchor"
)

// AnchorPath is the well-known discovery path every aggregate is linked from.
const AnchorPath = "mementers"

// ErrMalformedEntry reports bytes that do not decode as the expected entry.
var ErrMalformedEntry = errors.New("malformed entry")

// Entry is an immutable unit of content. Its address is the hash of its
// canonical encoding, so two writers producing the same entry produce the
// same hash.
type Entry struct {
	Kind    EntryKind `json:"kind"`
	Content Object    `json:"content"`
}

// Encode returns the canonical bytes of e.
func (e Entry) Encode() ([]byte, error) {
	if e.Kind == "" {
		return nil, fmt.Errorf("encode entry: missing kind")
	}
	if e.Content == nil {
		return nil, fmt.Errorf("encode entry: missing content")
	}
	data, err := MarshalCanonical(Obj(
		P("kind", String(e.Kind)),
		P("content", e.Content),
	))
	if err != nil {
		return nil, fmt.Errorf("encode %s entry: %w", e.Kind, err)
	}
	return data, nil
}

// Hash returns the content address of e.
func (e Entry) Hash() (Hash, error) {
	data, err := e.Encode()
	if err != nil {
		return "", err
	}
	return HashEntry(data), nil
}

// DecodeEntry parses stored entry bytes. Errors wrap ErrMalformedEntry.
func DecodeEntry(data []byte) (Entry, error) {
	var raw struct {
		Kind    EntryKind       `json:"kind"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if raw.Kind == "" {
		return Entry{}, fmt.Errorf("%w: missing kind", ErrMalformedEntry)
	}
	if len(raw.Content) == 0 {
		return Entry{}, fmt.Errorf("%w: missing content", ErrMalformedEntry)
	}
	var content Object
	if err := json.Unmarshal(raw.Content, &content); err != nil {
		return Entry{}, fmt.Errorf("%w: content: %v", ErrMalformedEntry, err)
	}
	return Entry{Kind: raw.Kind, Content: content}, nil
}

// DecodeEntryAs parses stored entry bytes and requires the given kind.
func DecodeEntryAs(data []byte, kind EntryKind) (Object, error) {
	e, err := DecodeEntry(data)
	if err != nil {
		return nil, err
	}
	if e.Kind != kind {
		return nil, fmt.Errorf("%w: want %s entry, got %s", ErrMalformedEntry, kind, e.Kind)
	}
	return e.Content, nil
}

// AnchorEntry is the discovery root shared by every replica.
func AnchorEntry() Entry {
	return Entry{Kind: KindAnchor, Content: Obj(P("path", String(AnchorPath)))}
}

// AggregateEntry is the identity entry of an aggregate. It captures the
// action hash of the aggregate's first revision, which makes the identity
// unique per creation even when two aggregates start from equal settings.
func AggregateEntry(firstRevisionAction Hash) Entry {
	return Entry{Kind: KindAggregate, Content: Obj(P("id", String(firstRevisionAction)))}
}
