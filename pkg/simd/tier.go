// Package simd selects the SIMD instruction-set tier requested from the
// benchmark tool.
package simd

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
	"golang.org/x/sys/cpu"
)

// ErrUnknownTier is returned for names outside the tier enumeration.
var ErrUnknownTier = errors.New("unknown simd tier")

// Tier is an ordered instruction-set capability level.
type Tier int

const (
	None Tier = iota
	SSE2
	SSE3
	SSSE3
	SSE41
	SSE42
	AVX
)

var tierNames = []string{"", "SSE2", "SSE3", "SSSE3", "SSE4.1", "SSE4.2", "AVX"}

func (t Tier) String() string {
	if t < None || int(t) >= len(tierNames) {
		return ""
	}
	return tierNames[t]
}

// Names lists every tier name in ascending order.
func Names() []string {
	return append([]string(nil), tierNames[SSE2:]...)
}

// ParseTier resolves a tier name such as "SSE4.2".
func ParseTier(name string) (Tier, error) {
	name = strings.TrimSpace(name)
	for i := int(SSE2); i < len(tierNames); i++ {
		if tierNames[i] == name {
			return Tier(i), nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownTier, name)
}

// Request describes one selection.
type Request struct {
	// Requested is a tier name or "optimal" to probe the host.
	Requested string
	Min       string
	Max       string
	// SkipOnFailover is set when SSE failover is enabled; together with
	// MarkerPresent it disables the tier outright.
	SkipOnFailover bool
	MarkerPresent  bool
}

// RequestFromStore reads bm_param_sse (default "optimal"), bm_param_sse_min,
// bm_param_sse_max and bm_param_failover_no_sse.
func RequestFromStore(store params.Store, markerPresent bool) Request {
	return Request{
		Requested:      store.ParamOrDefault("sse", "optimal"),
		Min:            store.Param("sse_min"),
		Max:            store.Param("sse_max"),
		SkipOnFailover: params.Truthy(store.Param("failover_no_sse")),
		MarkerPresent:  markerPresent,
	}
}

// Select returns the tier to request, or None when SIMD tuning must not be
// requested. probe is only called for "optimal" requests.
func Select(req Request, probe func() string) Tier {
	if req.SkipOnFailover && req.MarkerPresent {
		log.Printf("simd: skip marker present, not requesting a tier")
		return None
	}

	name := req.Requested
	if name == "" || name == "optimal" {
		name = ""
		if probe != nil {
			name = strings.ToUpper(strings.TrimSpace(probe()))
		}
	}
	tier, err := ParseTier(name)
	if err != nil {
		return None
	}

	if req.Min != "" {
		if floor, err := ParseTier(req.Min); err == nil && tier < floor {
			log.Printf("simd: %s does not meet minimum %s, tier will not be used", tier, floor)
			return None
		}
	}
	if req.Max != "" {
		if ceiling, err := ParseTier(req.Max); err == nil && tier > ceiling {
			log.Printf("simd: %s exceeds maximum %s, using maximum instead", tier, ceiling)
			tier = ceiling
		}
	}
	return tier
}

// Detect returns the best tier supported by the running CPU, or "" when
// none of the tiers is available.
func Detect() string {
	switch {
	case cpu.X86.HasAVX:
		return AVX.String()
	case cpu.X86.HasSSE42:
		return SSE42.String()
	case cpu.X86.HasSSE41:
		return SSE41.String()
	case cpu.X86.HasSSSE3:
		return SSSE3.String()
	case cpu.X86.HasSSE3:
		return SSE3.String()
	case cpu.X86.HasSSE2:
		return SSE2.String()
	}
	return ""
}
