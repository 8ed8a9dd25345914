package http_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingMiddleware_SpanNamedByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := newFixture(t)
	a := f.seed(t, now.Add(-time.Hour), now.Add(time.Hour))

	resp := f.do(t, http.MethodGet, "/v1/auctions/"+a.ID.String(), "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/v1/auctions/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	httpSpans := func() []string {
		var names []string
		for _, s := range recorder.Ended() {
			if s.InstrumentationScope().Name == "http" {
				names = append(names, s.Name())
			}
		}
		return names
	}
	// spans end after the response is flushed
	assert.Eventually(t, func() bool { return len(httpSpans()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"GET /v1/auctions/{id}", "GET /v1/auctions/{id}"}, httpSpans())
}
