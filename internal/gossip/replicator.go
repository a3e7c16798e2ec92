package gossip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/pubsub"
)

// Replicator applies records received from a subscription to a local replica.
type Replicator struct {
	source *pubsub.Subscription
	target Target
	logger *slog.Logger
}

// NewReplicator returns a Replicator consuming source into target.
func NewReplicator(source *pubsub.Subscription, target Target, logger *slog.Logger) *Replicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replicator{source: source, target: target, logger: logger}
}

// Run applies messages until ctx is done. It returns nil when ctx is
// canceled and an error when the subscription or the replica fails.
func (r *Replicator) Run(ctx context.Context) error {
	for {
		if err := r.receiveOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// Drain applies exactly n messages and returns. Used after a Broadcast whose
// record count is known.
func (r *Replicator) Drain(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := r.receiveOne(ctx); err != nil {
			return fmt.Errorf("drain %d/%d: %w", i, n, err)
		}
	}
	return nil
}

func (r *Replicator) receiveOne(ctx context.Context) error {
	msg, err := r.source.Receive(ctx)
	if err != nil {
		// Receive fails only when ctx is done or the driver hit a
		// non-retryable error; either way the loop cannot continue.
		return fmt.Errorf("receive: %w", err)
	}

	if err := r.handleMessage(ctx, msg); err != nil {
		// Redeliver later; the replica was not updated.
		if msg.Nackable() {
			msg.Nack()
		}
		return err
	}

	// Acknowledge only after the record is applied (at-least-once).
	msg.Ack()
	return nil
}

func (r *Replicator) handleMessage(ctx context.Context, msg *pubsub.Message) (err error) {
	ctx, span := tracer.Start(ctx, "replicator.handleMessage", trace.WithAttributes(
		attribute.String("msg.id", msg.LoggableID),
		attribute.String("record.kind", msg.Metadata[metadataKind]),
	))
	defer span.End()

	rec, err := Decode(msg)
	if err != nil {
		// A message that never decodes would be redelivered forever; drop it.
		r.logger.WarnContext(ctx, "Dropping undecodable record", slog.Any("error", err))
		recordsDropped.Add(ctx, 1, kindSet(msg.Metadata[metadataKind]))
		return nil
	}

	if err := Apply(ctx, r.target, rec); err != nil {
		if errors.Is(err, ErrRejected) {
			r.logger.WarnContext(ctx, "Dropping rejected record", slog.String("kind", string(rec.Kind)), slog.Any("error", err))
			recordsDropped.Add(ctx, 1, kindSet(string(rec.Kind)))
			return nil
		}
		span.SetStatus(codes.Error, err.Error())
		r.logger.ErrorContext(ctx, "Couldn't apply record", slog.String("kind", string(rec.Kind)), slog.Any("error", err))
		return err
	}
	recordsApplied.Add(ctx, 1, kindSet(string(rec.Kind)))
	return nil
}
