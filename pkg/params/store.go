// Package params exposes the harness run parameters supplied through the
// process environment as an immutable snapshot.
package params

import (
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	// ParamPrefix namespaces user supplied run parameters.
	ParamPrefix = "bm_param_"
	// EnvPrefix namespaces values exported by the benchmark framework.
	EnvPrefix = "bm_"
)

// Framework supplied keys.
const (
	KeyRunDir       = "bm_run_dir"
	KeyIterationDir = "bm_iteration_dir"
	KeyCPUCount     = "bm_cpu_count"
	KeyMemoryTotal  = "bm_memory_total"
	KeyIs64Bit      = "bm_is64bit"
	KeyRunTimeout   = "bm_run_timeout"
)

// Store is a read-only snapshot of named parameters. The zero value is an
// empty store.
type Store struct {
	values map[string]string
}

// FromEnviron snapshots "key=value" entries such as os.Environ output.
func FromEnviron(environ []string) Store {
	values := make(map[string]string, len(environ))
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		values[key] = value
	}
	return Store{values: values}
}

// FromProcess snapshots the current process environment.
func FromProcess() Store {
	return FromEnviron(os.Environ())
}

// FromMap copies values into a new store.
func FromMap(values map[string]string) Store {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Store{values: copied}
}

// Lookup returns the raw value for key.
func (s Store) Lookup(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Get returns the raw value for key or "".
func (s Store) Get(key string) string {
	return s.values[key]
}

// Param returns bm_param_<name>.
func (s Store) Param(name string) string {
	return s.values[ParamPrefix+name]
}

// ParamOrDefault returns bm_param_<name> when non-empty, else fallback.
func (s Store) ParamOrDefault(name string, fallback string) string {
	if v := s.Param(name); v != "" {
		return v
	}
	return fallback
}

// Enabled reports whether bm_param_<name> is exactly "1".
func (s Store) Enabled(name string) bool {
	return s.Param(name) == "1"
}

// Int parses key as a number, truncating fractions. ok is false when the
// value is missing or not numeric.
func (s Store) Int(key string) (int, bool) {
	f, ok := s.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Float parses key as a number.
func (s Store) Float(key string) (float64, bool) {
	v, ok := s.values[key]
	if !ok || !IsNumeric(v) {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// WithPrefix returns every entry whose key starts with prefix, keyed by the
// remainder of the key.
func (s Store) WithPrefix(prefix string) map[string]string {
	out := make(map[string]string)
	for k, v := range s.values {
		if rest, ok := strings.CutPrefix(k, prefix); ok && rest != "" {
			out[rest] = v
		}
	}
	return out
}

// Keys returns all keys in sorted order.
func (s Store) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Truthy reports whether a raw value counts as set: non-empty and not "0".
func Truthy(v string) bool {
	return v != "" && v != "0"
}

// IsNumeric reports whether v is a finite decimal or exponent number,
// tolerating surrounding whitespace.
func IsNumeric(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, r := range v {
		if !strings.ContainsRune("0123456789+-.eE", r) {
			return false
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return false
	}
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
