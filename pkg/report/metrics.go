package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Value is one entry of a Metrics map. A zero Value is absent.
type Value struct {
	set    bool
	isBool bool
	b      bool
	s      string
}

// String wraps a text value.
func String(s string) Value { return Value{set: true, s: s} }

// Bool wraps a flag value.
func Bool(b bool) Value { return Value{set: true, isBool: true, b: b} }

// Int wraps a counter value.
func Int(n int) Value { return Value{set: true, s: fmt.Sprintf("%d", n)} }

// Null is the explicit absent value.
func Null() Value { return Value{} }

// IsSet reports whether the value carries data.
func (v Value) IsSet() bool { return v.set }

// IsBool reports whether the value is a flag.
func (v Value) IsBool() bool { return v.isBool }

// Text renders the value the way the key=value stream prints it.
func (v Value) Text() string {
	if !v.set {
		return ""
	}
	if v.isBool {
		if v.b {
			return "1"
		}
		return "0"
	}
	return v.s
}

func (v Value) emittable() bool {
	if !v.set {
		return false
	}
	if v.isBool {
		return v.b
	}
	return strings.TrimSpace(v.s) != ""
}

// Metrics is the insertion-ordered result mapping produced by the parse pass.
type Metrics struct {
	keys   []string
	values map[string]Value
}

// NewMetrics returns an empty map.
func NewMetrics() *Metrics {
	return &Metrics{values: map[string]Value{}}
}

// Set stores v under key. Existing keys keep their position.
func (m *Metrics) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Has reports whether key holds a set value.
func (m *Metrics) Has(key string) bool {
	return m.values[key].set
}

// Get returns the value under key.
func (m *Metrics) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Text returns the printed form of key, or "" when absent.
func (m *Metrics) Text(key string) string {
	return m.values[key].Text()
}

// Delete removes key.
func (m *Metrics) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns keys in insertion order.
func (m *Metrics) Keys() []string {
	return append([]string(nil), m.keys...)
}

// KeysWithPrefix returns matching keys sorted.
func (m *Metrics) KeysWithPrefix(prefix string) []string {
	var out []string
	for _, k := range m.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Emitted returns the key/value pairs WriteTo would print, in order.
func (m *Metrics) Emitted() [][2]string {
	var out [][2]string
	for _, k := range m.keys {
		v := m.values[k]
		if !v.emittable() {
			continue
		}
		out = append(out, [2]string{k, v.Text()})
	}
	return out
}

// Len counts emittable entries.
func (m *Metrics) Len() int {
	return len(m.Emitted())
}

// WriteTo prints one key=value line per entry, skipping absent, empty and
// false values.
func (m *Metrics) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64
	for _, kv := range m.Emitted() {
		n, err := fmt.Fprintf(bw, "%s=%s\n", kv[0], kv[1])
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write metric %s: %w", kv[0], err)
		}
	}
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("flush metrics: %w", err)
	}
	return written, nil
}
