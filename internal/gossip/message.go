package gossip

import (
	"encoding/json"
	"fmt"

	"gocloud.dev/pubsub"

	"github.com/roach88/mementer/internal/ir"
)

// metadataKind carries the record kind so brokers can route without
// decoding the body.
const metadataKind = "kind"

// Encode wraps a record in a pubsub message.
func Encode(r ir.Record) (*pubsub.Message, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return &pubsub.Message{
		Body:     body,
		Metadata: map[string]string{metadataKind: string(r.Kind)},
	}, nil
}

// Decode extracts the record carried by msg.
func Decode(msg *pubsub.Message) (ir.Record, error) {
	var r ir.Record
	if err := json.Unmarshal(msg.Body, &r); err != nil {
		return ir.Record{}, fmt.Errorf("decode record: %w", err)
	}
	if err := r.Validate(); err != nil {
		return ir.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}
