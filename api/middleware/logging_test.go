package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("decode log line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestLoggingRecordsRoutePatternAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})

	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/api/v1/orders/{orderId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/orders/abc", nil))

	lines := logLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected start and complete lines, got %d", len(lines))
	}
	if lines[0]["message"] != "request.start" {
		t.Fatalf("unexpected first line %v", lines[0])
	}
	done := lines[1]
	if done["message"] != "request.complete" || done["level"] != "info" {
		t.Fatalf("unexpected completion line %v", done)
	}
	if done["route"] != "/api/v1/orders/{orderId}" {
		t.Fatalf("expected route pattern, got %v", done["route"])
	}
	if done["status"] != float64(http.StatusAccepted) || done["bytes"] != float64(2) {
		t.Fatalf("unexpected status/bytes %v/%v", done["status"], done["bytes"])
	}
}

func TestLoggingWarnsOnServerErrors(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})

	handler := Logging(logg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	lines := logLines(t, &buf)
	last := lines[len(lines)-1]
	if last["level"] != "warn" || last["route"] != "/health/ready" {
		t.Fatalf("expected warn completion with raw path, got %v", last)
	}
}
