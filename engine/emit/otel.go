package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OtelEmitter turns each Event into a point-in-time OpenTelemetry span named
// after event.Msg, with userID/workflowID/stepID and every Meta entry
// attached as span attributes. It's meant to sit behind a host's own
// TracerProvider setup; this package never configures exporters itself.
type OtelEmitter struct {
	tracer trace.Tracer
}

// NewOtelEmitter wraps tracer (typically otel.Tracer("workflow-engine")).
func NewOtelEmitter(tracer trace.Tracer) *OtelEmitter {
	return &OtelEmitter{tracer: tracer}
}

func (o *OtelEmitter) Emit(e Event) {
	_, span := o.tracer.Start(context.Background(), e.Msg)
	defer span.End()
	o.annotate(span, e)
}

func (o *OtelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, span := o.tracer.Start(ctx, e.Msg)
		o.annotate(span, e)
		span.End()
	}
	return nil
}

func (o *OtelEmitter) Flush(context.Context) error { return nil }

func (o *OtelEmitter) annotate(span trace.Span, e Event) {
	attrs := []attribute.KeyValue{
		attribute.String("user_id", e.UserID),
		attribute.String("workflow_id", e.WorkflowID),
		attribute.String("step_id", e.StepID),
	}
	for k, v := range e.Meta {
		attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	if errMsg, ok := e.Meta["error"].(string); ok && errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}
