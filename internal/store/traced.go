package store

import (
	"context"
	"errors"

	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/otel"
	"github.com/boreal-financial/catalog-sync/internal/status"
)

// TracerName is the name used for the store tracer
const TracerName = "github.com/boreal-financial/catalog-sync/store"

// tracedStore records a span around every Store call
type tracedStore struct {
	next    Store
	tracer  trace.Tracer
	backend string
}

// WithTracing wraps s so that every call records a span tagged with the
// backend name. A nil tracer returns s unchanged.
func WithTracing(s Store, tracer trace.Tracer, backend string) Store {
	if tracer == nil {
		return s
	}
	return &tracedStore{next: s, tracer: tracer, backend: backend}
}

func (t *tracedStore) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append([]trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemKey.String(t.backend),
			otel.AttrStorageType.String(t.backend),
		),
	}, opts...)
	return otel.StartSpan(ctx, t.tracer, "store."+name, opts...)
}

func (t *tracedStore) Init(ctx context.Context) error {
	ctx, span := t.startSpan(ctx, "Init")
	defer span.End()

	err := t.next.Init(ctx)
	otel.RecordError(span, err)
	return err
}

func (t *tracedStore) ReplaceAll(ctx context.Context, products []catalog.Product) (int, error) {
	ctx, span := t.startSpan(ctx, "ReplaceAll",
		trace.WithAttributes(otel.AttrProductCount.Int(len(products))))
	defer span.End()

	n, err := t.next.ReplaceAll(ctx, products)
	otel.RecordError(span, err)
	span.SetAttributes(otel.AttrResultCount.Int(n))
	return n, err
}

func (t *tracedStore) GetAll(ctx context.Context) ([]catalog.Product, error) {
	ctx, span := t.startSpan(ctx, "GetAll")
	defer span.End()

	products, err := t.next.GetAll(ctx)
	otel.RecordError(span, err)
	span.SetAttributes(otel.AttrResultCount.Int(len(products)))
	return products, err
}

func (t *tracedStore) Get(ctx context.Context, id string) (*catalog.Product, error) {
	ctx, span := t.startSpan(ctx, "Get", trace.WithAttributes(otel.AttrProductID.String(id)))
	defer span.End()

	p, err := t.next.Get(ctx, id)
	// A miss is an answer, not a failure
	if err != nil && !errors.Is(err, ErrNotFound) {
		otel.RecordError(span, err)
	}
	return p, err
}

func (t *tracedStore) Count(ctx context.Context) (int, error) {
	ctx, span := t.startSpan(ctx, "Count")
	defer span.End()

	n, err := t.next.Count(ctx)
	otel.RecordError(span, err)
	return n, err
}

func (t *tracedStore) GetMetadata(ctx context.Context) (*status.SyncMetadata, error) {
	ctx, span := t.startSpan(ctx, "GetMetadata")
	defer span.End()

	meta, err := t.next.GetMetadata(ctx)
	otel.RecordError(span, err)
	return meta, err
}

func (t *tracedStore) PutMetadata(ctx context.Context, meta *status.SyncMetadata) error {
	ctx, span := t.startSpan(ctx, "PutMetadata")
	defer span.End()

	err := t.next.PutMetadata(ctx, meta)
	otel.RecordError(span, err)
	return err
}

func (t *tracedStore) Ping(ctx context.Context) error {
	ctx, span := t.startSpan(ctx, "Ping")
	defer span.End()

	err := t.next.Ping(ctx)
	otel.RecordError(span, err)
	return err
}

func (t *tracedStore) Close() error {
	return t.next.Close()
}
