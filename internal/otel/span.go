// Package otel holds the span helpers and attribute keys shared by the sync,
// scheduler and store layers.
package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by catalog spans
const (
	AttrStorageType   = attribute.Key("storage.type")
	AttrProductID     = attribute.Key("product.id")
	AttrProductCount  = attribute.Key("product.count")
	AttrCatalogSource = attribute.Key("catalog.source")
	AttrSyncRunID     = attribute.Key("sync.run_id")
	AttrSyncTrigger   = attribute.Key("sync.trigger")
	AttrResultCount   = attribute.Key("result.count")
)

// Span status descriptions. Error text can carry staff API tokens or store
// DSNs, so the status only names the failure class; the text goes to the
// exception event.
const (
	StatusTimeout  = "timeout"
	StatusCanceled = "canceled"
	StatusFailed   = "failed"
)

// reasoned is implemented by errors that carry a stable failure reason,
// such as the sync manager's *Error
type reasoned interface {
	StatusReason() string
}

// StartSpan starts a span on tracer. A nil tracer keeps the span already in
// ctx, which is a no-op span when none was started.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError adds err as an exception event and marks the span failed.
// Nil spans and nil errors are ignored.
func RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, statusOf(err))
}

func statusOf(err error) string {
	var r reasoned
	switch {
	case errors.As(err, &r) && r.StatusReason() != "":
		return r.StatusReason()
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, context.Canceled):
		return StatusCanceled
	default:
		return StatusFailed
	}
}
