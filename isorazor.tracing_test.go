package isorazor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTemplater_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := newTestTemplater(t, WithTracerProvider(tp))
	ctx := context.Background()

	_, err := tr.Parse(ctx, "traced", "ok", time.Time{}, nil, nil)
	require.NoError(t, err)
	_, err = tr.Compile(ctx, "broken", "@if (true {", time.Time{})
	require.Error(t, err)

	spans := recorder.Ended()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{SpanCompile, SpanRender, SpanCompile}, names)

	failed := spans[len(spans)-1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	require.NotEmpty(t, failed.Events())
}
