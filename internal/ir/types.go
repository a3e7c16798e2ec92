package ir

import "fmt"

// RecordKind discriminates Record.
type RecordKind string

const (
	RecordEntry  RecordKind = "entry"
	RecordAction RecordKind = "action"
	RecordLink   RecordKind = "link"
)

// Record is the unit replicas exchange: exactly one of an entry's bytes, an
// entry-creation action, or a link with its creating action.
type Record struct {
	Kind   RecordKind `json:"kind"`
	Entry  []byte     `json:"entry,omitempty"`
	Action *Action    `json:"action,omitempty"`
	Link   *Link      `json:"link,omitempty"`
}

// EntryRecord wraps entry bytes.
func EntryRecord(data []byte) Record {
	return Record{Kind: RecordEntry, Entry: data}
}

// ActionRecord wraps an action.
func ActionRecord(a Action) Record {
	return Record{Kind: RecordAction, Action: &a}
}

// LinkRecord wraps a link.
func LinkRecord(l Link) Record {
	return Record{Kind: RecordLink, Link: &l}
}

// Validate checks that exactly the payload matching Kind is set.
func (r Record) Validate() error {
	switch r.Kind {
	case RecordEntry:
		if len(r.Entry) == 0 || r.Action != nil || r.Link != nil {
			return fmt.Errorf("entry record: want entry bytes only")
		}
	case RecordAction:
		if r.Action == nil || len(r.Entry) != 0 || r.Link != nil {
			return fmt.Errorf("action record: want action only")
		}
		if r.Action.Kind != ActionCreateEntry {
			return fmt.Errorf("action record: unexpected action kind %q", r.Action.Kind)
		}
		if r.Action.Hash == "" {
			return fmt.Errorf("action record: missing hash")
		}
	case RecordLink:
		if r.Link == nil || len(r.Entry) != 0 || r.Action != nil {
			return fmt.Errorf("link record: want link only")
		}
		if !r.Link.Type.Valid() {
			return fmt.Errorf("link record: unknown link type %q", r.Link.Type)
		}
		if r.Link.Action.Hash == "" {
			return fmt.Errorf("link record: missing action hash")
		}
	default:
		return fmt.Errorf("unknown record kind %q", r.Kind)
	}
	return nil
}
