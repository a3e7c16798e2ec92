package gossip

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/roach88/mementer/internal/gossip")
var meter = otel.Meter("github.com/roach88/mementer/internal/gossip")

// recordKind is the attribute key labeling each measurement with the kind of
// record it concerns.
const recordKind = "kind"

var (
	// recordsApplied counts records received and applied to the local replica.
	recordsApplied metric.Int64Counter
	// recordsDropped counts received records that can never be applied.
	recordsDropped metric.Int64Counter
	// publishFailures counts local writes whose record could not be sent.
	publishFailures metric.Int64Counter
)

func init() {
	var err error
	recordsApplied, err = meter.Int64Counter(
		"mementer.gossip.applied",
		metric.WithDescription("The number of replicated records applied to the local replica."),
	)
	if err != nil {
		panic(fmt.Sprintf("gossip: failed to init 'mementer.gossip.applied' instrument: %v", err))
	}

	recordsDropped, err = meter.Int64Counter(
		"mementer.gossip.dropped",
		metric.WithDescription("The number of replicated records dropped as undecodable or invalid."),
	)
	if err != nil {
		panic(fmt.Sprintf("gossip: failed to init 'mementer.gossip.dropped' instrument: %v", err))
	}

	publishFailures, err = meter.Int64Counter(
		"mementer.gossip.publish.failures",
		metric.WithDescription("The number of locally written records that could not be published."),
	)
	if err != nil {
		panic(fmt.Sprintf("gossip: failed to init 'mementer.gossip.publish.failures' instrument: %v", err))
	}
}

func kindSet(kind string) metric.MeasurementOption {
	return metric.WithAttributeSet(attribute.NewSet(attribute.String(recordKind, kind)))
}
