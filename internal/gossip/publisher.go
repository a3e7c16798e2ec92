package gossip

import (
	"context"
	"log/slog"

	"gocloud.dev/pubsub"

	"github.com/roach88/mementer/internal/engine"
	"github.com/roach88/mementer/internal/ir"
)

// Publisher is an engine.Backend that sends every record it writes to a
// topic after the local write succeeds.
//
// A failed send does not fail the write: the record is already durable
// locally and reaches peers with the next Broadcast. Failures are logged and
// counted.
type Publisher struct {
	engine.Backend
	topic  *pubsub.Topic
	logger *slog.Logger
}

// NewPublisher wraps backend so its writes are published to topic.
func NewPublisher(backend engine.Backend, topic *pubsub.Topic, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{Backend: backend, topic: topic, logger: logger}
}

// Put stores data locally and publishes it.
func (p *Publisher) Put(ctx context.Context, data []byte) (ir.Hash, error) {
	h, err := p.Backend.Put(ctx, data)
	if err != nil {
		return "", err
	}
	p.publish(ctx, ir.EntryRecord(data))
	return h, nil
}

// AppendAction records a locally and publishes it.
func (p *Publisher) AppendAction(ctx context.Context, a ir.Action) error {
	if err := p.Backend.AppendAction(ctx, a); err != nil {
		return err
	}
	p.publish(ctx, ir.ActionRecord(a))
	return nil
}

// PutLink stores l locally and publishes it.
func (p *Publisher) PutLink(ctx context.Context, l ir.Link) error {
	if err := p.Backend.PutLink(ctx, l); err != nil {
		return err
	}
	p.publish(ctx, ir.LinkRecord(l))
	return nil
}

func (p *Publisher) publish(ctx context.Context, r ir.Record) {
	if err := send(ctx, p.topic, r); err != nil {
		publishFailures.Add(ctx, 1, kindSet(string(r.Kind)))
		p.logger.WarnContext(ctx, "Couldn't publish record", slog.String("kind", string(r.Kind)), slog.Any("error", err))
	}
}

// Broadcast sends every record of src to topic and returns how many were
// sent. Peers use it to catch up on records written before they subscribed.
func Broadcast(ctx context.Context, src Source, topic *pubsub.Topic) (int, error) {
	n := 0
	err := src.Export(ctx, func(r ir.Record) error {
		if err := send(ctx, topic, r); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func send(ctx context.Context, topic *pubsub.Topic, r ir.Record) error {
	msg, err := Encode(r)
	if err != nil {
		return err
	}
	return topic.Send(ctx, msg)
}
