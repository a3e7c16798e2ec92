package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/roach88/mementer/internal/engine")
var meter = otel.Meter("github.com/roach88/mementer/internal/engine")

const (
	// skipReason is the attribute key explaining why a candidate or
	// attachment did not make it into a result.
	skipReason = "reason"

	reasonAbsent    = "absent"
	reasonMalformed = "malformed"
	reasonForeign   = "foreign"
)

var (
	// resolveDuration measures a single ResolveCurrent or a whole
	// ResolveCurrentBatch, including every entry fetch.
	resolveDuration metric.Float64Histogram
	// resolveSkipped counts revision candidates passed over during
	// resolution, labeled with skipReason.
	resolveSkipped metric.Int64Counter
	// attachmentsDropped counts attachment links filtered from listings,
	// labeled with skipReason.
	attachmentsDropped metric.Int64Counter
)

func init() {
	var err error
	resolveDuration, err = meter.Float64Histogram(
		"mementer.resolve.duration",
		metric.WithDescription("The duration of resolving the current revision of one aggregate or one batch."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Sprintf("engine: failed to init 'mementer.resolve.duration' instrument: %v", err))
	}

	resolveSkipped, err = meter.Int64Counter(
		"mementer.resolve.skipped",
		metric.WithDescription("The number of revision candidates skipped during resolution."),
	)
	if err != nil {
		panic(fmt.Sprintf("engine: failed to init 'mementer.resolve.skipped' instrument: %v", err))
	}

	attachmentsDropped, err = meter.Int64Counter(
		"mementer.attachments.dropped",
		metric.WithDescription("The number of attachment links dropped from listings."),
	)
	if err != nil {
		panic(fmt.Sprintf("engine: failed to init 'mementer.attachments.dropped' instrument: %v", err))
	}
}

var reasonSets = map[string]attribute.Set{
	reasonAbsent:    attribute.NewSet(attribute.String(skipReason, reasonAbsent)),
	reasonMalformed: attribute.NewSet(attribute.String(skipReason, reasonMalformed)),
	reasonForeign:   attribute.NewSet(attribute.String(skipReason, reasonForeign)),
}

func countSkipped(ctx context.Context, c metric.Int64Counter, reason string, n int) {
	if n == 0 {
		return
	}
	c.Add(ctx, int64(n), metric.WithAttributeSet(reasonSets[reason]))
}

func measureResolve(ctx context.Context, start time.Time) {
	// Floating-point division keeps sub-millisecond precision.
	resolveDuration.Record(ctx, float64(time.Since(start))/float64(time.Millisecond))
}

// startSpan opens a span for an engine operation.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
