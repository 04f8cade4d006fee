package telemetry

import (
	"context"
	"errors"

	"github.com/nkkko/simsub/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used by simsub packages
const InstrumentationName = "github.com/nkkko/simsub"

// Span attribute keys
const (
	AttrOperation      = attribute.Key("simsub.operation")
	AttrCaller         = attribute.Key("simsub.caller")
	AttrSubscriptionID = attribute.Key("simsub.subscription_id")
	AttrSlotIndex      = attribute.Key("simsub.slot_index")
)

// StartSpan starts a client span for one remote call
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer(InstrumentationName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, AttrOperation.String(name))...),
	)
}

// EndSpan records err on span and ends it. Permission failures are marked
// as errors; other failures only as events since callers never see them.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrPermissionDenied) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
