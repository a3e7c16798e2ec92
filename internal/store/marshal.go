package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/mementer/internal/ir"
)

// marshalAction converts an action to JSON TEXT for storage.
// Uses json.Encoder with HTML escaping disabled so tags containing <, > or &
// are stored as written.
func marshalAction(a ir.Action) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(a); err != nil {
		return "", fmt.Errorf("marshal action: %w", err)
	}
	// Encoder appends a newline; strip it.
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// unmarshalAction parses stored action JSON.
func unmarshalAction(data string) (ir.Action, error) {
	var a ir.Action
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return ir.Action{}, fmt.Errorf("unmarshal action: %w", err)
	}
	return a, nil
}

// entryKind extracts the kind of entry bytes for the kind index.
// Bytes that are not a valid entry are stored with an empty kind.
func entryKind(data []byte) string {
	e, err := ir.DecodeEntry(data)
	if err != nil {
		return ""
	}
	return string(e.Kind)
}
