package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanRun     = "pipeline.run"
	SpanFetch   = "pipeline.fetch"
	SpanDetect  = "pipeline.detect"
	SpanPublish = "pipeline.publish"
)

// Attribute keys.
const (
	AttrRunID       = "run.id"
	AttrRunTrigger  = "run.trigger"
	AttrRunOutcome  = "run.outcome"
	AttrRepo        = "git.repo"
	AttrBranch      = "git.branch"
	AttrBase        = "git.base"
	AttrCommit      = "git.commit"
	AttrTransformer = "transform.name"
	AttrFiles       = "artifact.files"
	AttrChanged     = "detect.changed"
	AttrSummary     = "detect.summary"
	AttrErrorKind   = "error.kind"
)

// Event names.
const (
	EventStateChanged = "state.changed"
	EventLeaseHeld    = "lease.held"
)

// StartStage opens a child span for one pipeline stage. The returned func
// ends the span, marking it failed when err is non-nil.
func StartStage(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		End(span, err)
	}
}

// End finishes span, marking it failed when err is non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
