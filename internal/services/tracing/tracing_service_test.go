package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordedService() (*Service, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewServiceWithProvider(tp, "egiro-test"), recorder
}

func TestService_TraceRecordsSpanAndAttributes(t *testing.T) {
	service, recorder := newRecordedService()

	var traceID string
	err := service.Trace(context.Background(), "egiro.sign", map[string]string{"egiro.flow": "authorize_creation"}, func(ctx context.Context) error {
		traceID = ExtractTraceID(ctx)
		return nil
	})

	require.NoError(t, err)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "egiro.sign", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("egiro.flow", "authorize_creation"))
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), traceID)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestService_TraceRecordsError(t *testing.T) {
	service, recorder := newRecordedService()
	failure := errors.New("signing failed")

	err := service.Trace(context.Background(), "egiro.sign", nil, func(context.Context) error { return failure })

	assert.Equal(t, failure, err)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "signing failed", spans[0].Status().Description)
}

func TestService_StartSpanNestsUnderParent(t *testing.T) {
	service, recorder := newRecordedService()

	ctx, parent := service.StartSpan(context.Background(), "parent")
	_, child := service.StartSpan(ctx, "child")
	child.End()
	parent.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
}

func TestExtractTraceID_NoSpan(t *testing.T) {
	assert.Equal(t, "", ExtractTraceID(context.Background()))
}

func TestSetup_Disabled(t *testing.T) {
	shutdown := Setup(false, 1)

	assert.NoError(t, shutdown(context.Background()))
}
