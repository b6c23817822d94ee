package api

import (
	"net/http"
	"testing"

	"github.com/dunamismax/pixelprep/internal/testimage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingCoversRequestAndStages(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	s, _ := newTestServer(t, WithTracer(tp.Tracer("test")))
	rec := serve(s, uploadRequest(t, "/images/fit/16", "file", "a.png", testimage.PNG(t, 64, 32)))
	require.Equal(t, http.StatusOK, rec.Code)

	names := map[string]bool{}
	var server sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		names[span.Name()] = true
		if span.Name() == "POST /images/fit/{box}" {
			server = span
		}
	}
	for _, want := range []string{"POST /images/fit/{box}", "pipeline.decode", "pipeline.orient", "pipeline.sanitize", "pipeline.resample", "pipeline.encode"} {
		assert.True(t, names[want], "missing span %s", want)
	}

	require.NotNil(t, server)
	assert.Contains(t, server.Attributes(), attribute.Int("http.status_code", http.StatusOK))
	assert.Contains(t, server.Attributes(), attribute.String("image.format", "png"))
}
