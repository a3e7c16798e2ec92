package ir

import (
	"cmp"
	"fmt"
	"slices"
)

// ActionKind classifies what an action created.
type ActionKind string

const (
	ActionCreateEntry ActionKind = "create_entry"
	ActionCreateLink  ActionKind = "create_link"
)

// LinkType is the type tag of a directed link.
type LinkType string

const (
	LinkRevision   LinkType = "revision"
	LinkAttachment LinkType = "attachment"
	LinkMembership LinkType = "membership"
)

// Valid reports whether t is a known link type.
func (t LinkType) Valid() bool {
	switch t {
	case LinkRevision, LinkAttachment, LinkMembership:
		return true
	}
	return false
}

// Action records the creation of an entry or a link by one writer.
// Timestamp is the writer's local clock in microseconds; actions from
// different authors have no causal order.
type Action struct {
	Hash      Hash       `json:"hash"`
	Kind      ActionKind `json:"kind"`
	Author    string     `json:"author"`
	Timestamp int64      `json:"timestamp"`

	// Set for create_entry.
	Entry Hash `json:"entry,omitempty"`

	// Set for create_link.
	Base     Hash     `json:"base,omitempty"`
	Target   Hash     `json:"target,omitempty"`
	LinkType LinkType `json:"link_type,omitempty"`
	Tag      string   `json:"tag,omitempty"`
}

// ComputeHash returns the content address of every field except Hash.
func (a Action) ComputeHash() (Hash, error) {
	obj := Obj(
		P("kind", String(a.Kind)),
		P("author", String(a.Author)),
		P("timestamp", Int(a.Timestamp)),
	)
	if a.Entry != "" {
		obj["entry"] = String(a.Entry)
	}
	if a.Base != "" {
		obj["base"] = String(a.Base)
	}
	if a.Target != "" {
		obj["target"] = String(a.Target)
	}
	if a.LinkType != "" {
		obj["link_type"] = String(a.LinkType)
	}
	if a.Tag != "" {
		obj["tag"] = String(a.Tag)
	}

	data, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("hash action: %w", err)
	}
	return hashWithDomain(DomainAction, data), nil
}

// NewEntryAction returns a hashed create_entry action.
func NewEntryAction(author string, timestamp int64, entry Hash) (Action, error) {
	a := Action{
		Kind:      ActionCreateEntry,
		Author:    author,
		Timestamp: timestamp,
		Entry:     entry,
	}
	h, err := a.ComputeHash()
	if err != nil {
		return Action{}, err
	}
	a.Hash = h
	return a, nil
}

// NewLink returns a link together with its hashed create_link action.
func NewLink(author string, timestamp int64, base, target Hash, t LinkType, tag string) (Link, error) {
	if !t.Valid() {
		return Link{}, fmt.Errorf("new link: unknown link type %q", t)
	}
	a := Action{
		Kind:      ActionCreateLink,
		Author:    author,
		Timestamp: timestamp,
		Base:      base,
		Target:    target,
		LinkType:  t,
		Tag:       tag,
	}
	h, err := a.ComputeHash()
	if err != nil {
		return Link{}, err
	}
	a.Hash = h
	return Link{Base: base, Target: target, Type: t, Tag: tag, Action: a}, nil
}

// Link is a directed, typed edge between two hashes. A link is identified by
// the hash of the action that created it and is never altered afterwards.
type Link struct {
	Base   Hash     `json:"base"`
	Target Hash     `json:"target"`
	Type   LinkType `json:"type"`
	Tag    string   `json:"tag,omitempty"`
	Action Action   `json:"action"`
}

// ID returns the creating action hash.
func (l Link) ID() Hash { return l.Action.Hash }

// WellFormed reports whether the creating action has the create_link shape,
// describes this very link and hashes to its claimed Hash. Links failing
// this check are foreign or corrupt and must not take part in resolution.
func (l Link) WellFormed() bool {
	a := l.Action
	if a.Kind != ActionCreateLink ||
		a.Hash == "" ||
		a.Base != l.Base ||
		a.Target != l.Target ||
		a.LinkType != l.Type ||
		a.Tag != l.Tag {
		return false
	}
	// Stores key links by action hash; a claimed hash that does not match
	// would let two different edges share one slot.
	h, err := a.ComputeHash()
	return err == nil && h == a.Hash
}

// CompareLinks is the total order used for last-write-wins: timestamp first,
// then action hash. It returns -1, 0 or +1.
func CompareLinks(a, b Link) int {
	if c := cmp.Compare(a.Action.Timestamp, b.Action.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Action.Hash, b.Action.Hash)
}

// SortNewestFirst orders links by descending (timestamp, action hash).
func SortNewestFirst(links []Link) {
	slices.SortFunc(links, func(a, b Link) int { return CompareLinks(b, a) })
}

// SortOldestFirst orders links by ascending (timestamp, action hash).
func SortOldestFirst(links []Link) {
	slices.SortFunc(links, CompareLinks)
}
