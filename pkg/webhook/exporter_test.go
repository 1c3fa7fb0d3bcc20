package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/schema"
)

func failedRun() schema.RunSummary {
	return schema.RunSummary{
		RunID:       "run-20261016T080000Z",
		GeneratedAt: time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC),
		Status:      10,
		Class:       "invocation_failed",
		Benchmarks:  []string{"401.bzip2", "429.mcf"},
		Copies:      4,
		SIMDTier:    "SSE4.2",
		Command:     "runspec --noreportable --rate 4 --tune=base 401.bzip2 429.mcf",
		Attempts: []schema.AttemptSummary{
			{Number: 1, Outcome: "process_failed", ExitStatus: 1},
			{Number: 2, Outcome: "process_failed", ExitStatus: 1},
		},
		Degrades: []string{"sse_degrade"},
		Metrics:  map[string]string{},
	}
}

// endpoint answers with the given statuses in order, repeating the last one,
// and keeps every request it saw.
type endpoint struct {
	mu       sync.Mutex
	statuses []int
	bodies   [][]byte
	headers  []http.Header
}

func (e *endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bodies = append(e.bodies, body)
	e.headers = append(e.headers, r.Header.Clone())
	status := e.statuses[len(e.statuses)-1]
	if n := len(e.bodies) - 1; n < len(e.statuses) {
		status = e.statuses[n]
	}
	w.WriteHeader(status)
}

func (e *endpoint) requests() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.bodies)
}

func newExporter(t *testing.T, ep *endpoint, secret string, format Format) *Exporter {
	t.Helper()
	server := httptest.NewServer(ep)
	t.Cleanup(server.Close)
	e := New(server.URL, secret, format, 2000)
	e.Backoff = time.Millisecond
	return e
}

func TestSendRetries(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		attempts int
		wantReqs int
		wantErr  bool
		wantCode int
	}{
		{name: "accepted", statuses: []int{http.StatusAccepted}, attempts: 3, wantReqs: 1},
		{name: "server errors then ok", statuses: []int{503, 502, 200}, attempts: 3, wantReqs: 3},
		{name: "server errors exhaust attempts", statuses: []int{500}, attempts: 2, wantReqs: 2, wantErr: true, wantCode: 500},
		{name: "client error is final", statuses: []int{400}, attempts: 3, wantReqs: 1, wantErr: true, wantCode: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := &endpoint{statuses: tt.statuses}
			e := newExporter(t, ep, "", FormatGeneric)
			e.Attempts = tt.attempts

			err := e.Send(context.Background(), failedRun())
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got := ep.requests(); got != tt.wantReqs {
				t.Fatalf("expected %d requests, got %d", tt.wantReqs, got)
			}
			if tt.wantErr {
				var status *StatusError
				if !errors.As(err, &status) || status.Code != tt.wantCode {
					t.Fatalf("expected status error %d, got %v", tt.wantCode, err)
				}
			}
		})
	}
}

func TestSendStopsWhenCancelled(t *testing.T) {
	ep := &endpoint{statuses: []int{503}}
	e := newExporter(t, ep, "", FormatGeneric)
	e.Backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for ep.requests() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	err := e.Send(ctx, failedRun())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestSendGenericSignsSummary(t *testing.T) {
	ep := &endpoint{statuses: []int{http.StatusOK}}
	e := newExporter(t, ep, "hook-secret", FormatGeneric)
	if err := e.Send(context.Background(), failedRun()); err != nil {
		t.Fatalf("send: %v", err)
	}

	body, header := ep.bodies[0], ep.headers[0]
	if !Verify(body, "hook-secret", header.Get(SignatureHeader)) {
		t.Fatalf("signature %q does not match body", header.Get(SignatureHeader))
	}
	if header.Get("User-Agent") != userAgent {
		t.Fatalf("unexpected user agent %q", header.Get("User-Agent"))
	}
	var got schema.RunSummary
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-20261016T080000Z" || len(got.Attempts) != 2 || got.Degrades[0] != "sse_degrade" {
		t.Fatalf("unexpected summary %+v", got)
	}
}

func TestPagerDutyPayload(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		class        string
		wantAction   string
		wantSeverity string
	}{
		{name: "invocation failure", status: 10, class: "invocation_failed", wantAction: "trigger", wantSeverity: "error"},
		{name: "bad request", status: 7, class: "configuration_invalid", wantAction: "trigger", wantSeverity: "warning"},
		{name: "success resolves", status: 0, class: "ok", wantAction: "resolve", wantSeverity: "info"},
	}

	for _, tt := range tests {
		summary := failedRun()
		summary.Status = tt.status
		summary.Class = tt.class

		data, err := BuildPagerDutyPayload(summary)
		if err != nil {
			t.Fatalf("%s: build: %v", tt.name, err)
		}
		var payload pagerDutyPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("%s: decode: %v", tt.name, err)
		}
		if payload.EventAction != tt.wantAction || payload.Payload.Severity != tt.wantSeverity {
			t.Fatalf("%s: got action=%s severity=%s", tt.name, payload.EventAction, payload.Payload.Severity)
		}
		if payload.DedupKey != summary.RunID || payload.Payload.CustomDetails["attempts"] != "2" {
			t.Fatalf("%s: unexpected payload %+v", tt.name, payload)
		}
	}
}

func TestOpsgeniePayload(t *testing.T) {
	tests := []struct {
		class string
		want  string
	}{
		{"ok", "P5"},
		{"configuration_invalid", "P4"},
		{"environment_unavailable", "P3"},
		{"invocation_failed", "P2"},
		{"results_unparseable", "P2"},
		{"unknown", "P1"},
	}

	for _, tt := range tests {
		summary := failedRun()
		summary.Class = tt.class

		data, err := BuildOpsgeniePayload(summary)
		if err != nil {
			t.Fatalf("%s: build: %v", tt.class, err)
		}
		var payload opsgeniePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("%s: decode: %v", tt.class, err)
		}
		if payload.Priority != tt.want {
			t.Fatalf("%s: expected priority %s, got %s", tt.class, tt.want, payload.Priority)
		}
		if payload.Alias != summary.RunID || payload.Entity != "401.bzip2 429.mcf" {
			t.Fatalf("%s: unexpected payload %+v", tt.class, payload)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"pagerduty": FormatPagerDuty,
		"opsgenie":  FormatOpsgenie,
		"generic":   FormatGeneric,
		"":          FormatGeneric,
		"slack":     FormatGeneric,
	} {
		if got := ParseFormat(name); got != want {
			t.Fatalf("ParseFormat(%q) = %s, want %s", name, got, want)
		}
	}
}
