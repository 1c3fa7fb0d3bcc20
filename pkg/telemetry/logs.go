package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/schema"
	"go.opentelemetry.io/otel/attribute"
)

// OTLP severity numbers used for run summaries.
const (
	severityInfo  = 9
	severityError = 17
)

// SummaryExporter posts run summaries as OTLP/HTTP JSON log records.
type SummaryExporter struct {
	Endpoint    string
	ServiceName string
	Scope       string

	client *http.Client
}

// NewSummaryExporter returns an exporter for endpoint. Empty names and a
// non-positive timeout take defaults.
func NewSummaryExporter(endpoint, serviceName, scope string, timeout time.Duration) *SummaryExporter {
	if serviceName == "" {
		serviceName = "spec-cpu-harness"
	}
	if scope == "" {
		scope = "spec-cpu-harness/run"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SummaryExporter{
		Endpoint:    endpoint,
		ServiceName: serviceName,
		Scope:       scope,
		client:      &http.Client{Timeout: timeout},
	}
}

// Export posts one log record describing summary.
func (e *SummaryExporter) Export(ctx context.Context, summary schema.RunSummary) error {
	if e.Endpoint == "" {
		return fmt.Errorf("otlp logs endpoint is required")
	}
	body, err := json.Marshal(e.request(summary, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("marshal otlp logs: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build otlp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post otlp logs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("otlp endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// SummaryAttributes flattens summary into log attributes. Numeric metric
// values become doubles; the rest stay strings.
func SummaryAttributes(summary schema.RunSummary) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("harness.run_id", summary.RunID),
		attribute.String("harness.class", summary.Class),
		attribute.Int("harness.status", summary.Status),
		attribute.Int("harness.copies", summary.Copies),
		attribute.Int("harness.attempts", len(summary.Attempts)),
		attribute.String("harness.benchmarks", strings.Join(summary.Benchmarks, " ")),
		attribute.Bool("harness.valid", summary.Valid),
	}
	if summary.SIMDTier != "" {
		attrs = append(attrs, attribute.String("harness.simd_tier", summary.SIMDTier))
	}
	if len(summary.Degrades) > 0 {
		attrs = append(attrs, attribute.String("harness.degrades", strings.Join(summary.Degrades, ",")))
	}

	keys := make([]string, 0, len(summary.Metrics))
	for key := range summary.Metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := summary.Metrics[key]
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			attrs = append(attrs, attribute.Float64("metric."+key, f))
			continue
		}
		attrs = append(attrs, attribute.String("metric."+key, value))
	}
	return attrs
}

type logsRequest struct {
	ResourceLogs []resourceLogs `json:"resourceLogs"`
}

type resourceLogs struct {
	Resource struct {
		Attributes []otlpAttribute `json:"attributes"`
	} `json:"resource"`
	ScopeLogs []scopeLogs `json:"scopeLogs"`
}

type scopeLogs struct {
	Scope struct {
		Name string `json:"name"`
	} `json:"scope"`
	LogRecords []logRecord `json:"logRecords"`
}

type logRecord struct {
	TimeUnixNano         string          `json:"timeUnixNano"`
	ObservedTimeUnixNano string          `json:"observedTimeUnixNano"`
	SeverityNumber       int             `json:"severityNumber"`
	SeverityText         string          `json:"severityText"`
	Body                 otlpValue       `json:"body"`
	Attributes           []otlpAttribute `json:"attributes"`
}

type otlpAttribute struct {
	Key   string    `json:"key"`
	Value otlpValue `json:"value"`
}

// otlpValue is the JSON form of an OTLP AnyValue; 64-bit integers travel as
// strings.
type otlpValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
	IntValue    *string  `json:"intValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
}

func (e *SummaryExporter) request(summary schema.RunSummary, observed time.Time) logsRequest {
	at := summary.GeneratedAt
	if at.IsZero() {
		at = observed
	}
	severity, text := severityInfo, "INFO"
	if summary.Status != 0 {
		severity, text = severityError, "ERROR"
	}

	var rl resourceLogs
	rl.Resource.Attributes = toOTLP([]attribute.KeyValue{attribute.String("service.name", e.ServiceName)})
	var sl scopeLogs
	sl.Scope.Name = e.Scope
	sl.LogRecords = []logRecord{{
		TimeUnixNano:         strconv.FormatInt(at.UnixNano(), 10),
		ObservedTimeUnixNano: strconv.FormatInt(observed.UnixNano(), 10),
		SeverityNumber:       severity,
		SeverityText:         text,
		Body:                 stringValue(fmt.Sprintf("run %s finished with status %d (%s)", summary.RunID, summary.Status, summary.Class)),
		Attributes:           toOTLP(SummaryAttributes(summary)),
	}}
	rl.ScopeLogs = []scopeLogs{sl}
	return logsRequest{ResourceLogs: []resourceLogs{rl}}
}

func toOTLP(attrs []attribute.KeyValue) []otlpAttribute {
	out := make([]otlpAttribute, 0, len(attrs))
	for _, kv := range attrs {
		var v otlpValue
		switch kv.Value.Type() {
		case attribute.BOOL:
			b := kv.Value.AsBool()
			v.BoolValue = &b
		case attribute.INT64:
			n := strconv.FormatInt(kv.Value.AsInt64(), 10)
			v.IntValue = &n
		case attribute.FLOAT64:
			f := kv.Value.AsFloat64()
			v.DoubleValue = &f
		default:
			v = stringValue(kv.Value.Emit())
		}
		out = append(out, otlpAttribute{Key: string(kv.Key), Value: v})
	}
	return out
}

func stringValue(s string) otlpValue {
	return otlpValue{StringValue: &s}
}
