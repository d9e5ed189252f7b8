package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestExchangeSpans(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/hop" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(testCtx(t))

	cl := NewClient(WithTracer(tp.Tracer("test")))
	if _, err := cl.Get(testCtx(t), srv.URL+"/hop"); err != nil {
		t.Fatal(err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want one per hop", len(spans))
	}
	first := spans[0]
	var names []string
	for _, ev := range first.Events() {
		names = append(names, ev.Name)
	}
	if len(names) < 2 || names[0] != "header-complete" || names[1] != "redirect" {
		t.Errorf("first hop events = %v", names)
	}
	for _, span := range spans {
		if got := span.Name(); got == "" {
			t.Error("span without a name")
		}
	}
}
