// Package macros assembles the --define macros handed to the benchmark tool
// from host facts, note fields, the selected SIMD tier and free-form
// bm_param_define_<name> overrides.
package macros

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/marker"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/simd"
)

const (
	// NameSSE carries the selected SIMD tier.
	NameSSE = "sse"
	// NameX64 selects the wide build.
	NameX64 = "x64"
	// NameNUMA is set when runs are interleaved across NUMA nodes.
	NameNUMA = "numa"

	notesPrefix   = "meta_notes"
	maxNoteFields = 5
	definePrefix  = params.ParamPrefix + "define_"
)

// Catalog lists the macros looked up in the environment.
var Catalog = []string{
	"cpu_cache", "cpu_count", "cpu_family", "cpu_model", "cpu_name", "cpu_speed",
	"cpu_vendor", "compute_service_id", "external_id", "instance_id",
	"ip_or_hostname", "is32bit", "is64bit", "iteration_num", "mean_anyway", "meta_hw_avail",
	"meta_hw_fpu", "meta_hw_ncpuorder", "meta_hw_nthreadspercore", "meta_hw_other",
	"meta_hw_ocache", "meta_hw_pcache", "meta_hw_tcache", "meta_license_num",
	"meta_notes_base", "meta_notes_comp", "meta_notes",
	"meta_notes_os", "meta_notes_part", "meta_notes_peak", "meta_notes_plat",
	"meta_notes_port", "meta_notes_submit", "meta_sw_avail", "meta_sw_other",
	"meta_tester", "label", "location", "memory_free", "memory_total", NameNUMA,
	"os", "os_version", "provider_id", "region", "run_id", "run_name",
	"storage_config", "subregion", "test_id", NameX64,
}

var booleanMacros = map[string]bool{
	"is32bit":     true,
	"is64bit":     true,
	"mean_anyway": true,
}

// Resolver builds the macro set of one run. The environment-derived part is
// computed once; failover markers are re-read on every Resolve.
type Resolver struct {
	store   params.Store
	markers marker.Store

	// NUMA reports NUMA support; nil means unsupported.
	NUMA func(ctx context.Context) bool
	// SIMDProbe returns the best tier name of the host for "optimal" requests.
	SIMDProbe func() string

	once sync.Once
	base Set
}

// NewResolver returns a resolver over store and markers using the host
// probes supplied by the caller.
func NewResolver(store params.Store, markers marker.Store, numa func(ctx context.Context) bool, simdProbe func() string) *Resolver {
	return &Resolver{
		store:     store,
		markers:   markers,
		NUMA:      numa,
		SIMDProbe: simdProbe,
	}
}

// Resolve returns the macro set with the current failover markers applied.
func (r *Resolver) Resolve(ctx context.Context) Set {
	r.once.Do(func() {
		r.base = r.build(ctx)
	})
	set := r.base.Clone()
	if r.markers.Exists(marker.SSESkip) && set.Has(NameSSE) {
		set.Delete(NameSSE)
	}
	if r.markers.Exists(marker.ArchFailover) {
		set.PutBool(NameX64, !set.Get(NameX64).Truthy())
	}
	return set
}

func (r *Resolver) build(ctx context.Context) Set {
	log.Printf("macros: generating runspec macros")
	set := NewSet()
	for _, name := range Catalog {
		switch {
		case name == NameNUMA:
			numa := r.NUMA != nil && r.NUMA(ctx)
			if numa && r.store.Enabled("no_numa") {
				log.Printf("macros: numa available but disabled by no_numa")
				numa = false
			}
			set.PutBool(NameNUMA, numa)
		case strings.HasPrefix(name, notesPrefix):
			for i := 1; i <= maxNoteFields; i++ {
				key := name + "_" + strconv.Itoa(i)
				if v := r.lookup(key, ""); v != "" {
					set.Put(key, String(v))
				}
			}
		default:
			v := r.lookup(params.ParamPrefix+name, params.EnvPrefix+name)
			if v == "" {
				continue
			}
			switch {
			case booleanMacros[name]:
				set.Put(name, Flag())
			case name == NameX64:
				if v == "2" {
					set.PutBool(NameX64, params.Truthy(r.store.Get(params.KeyIs64Bit)))
				} else {
					set.Put(NameX64, Flag())
				}
			default:
				set.Put(name, String(v))
			}
		}
	}

	markerPresent := r.markers.Exists(marker.SSESkip)
	if tier := simd.Select(simd.RequestFromStore(r.store, markerPresent), r.SIMDProbe); tier != simd.None {
		set.Put(NameSSE, String(tier.String()))
	}

	for name, raw := range r.store.WithPrefix(definePrefix) {
		if v := strings.TrimSpace(raw); v != "" {
			set.Put(name, String(v))
		} else {
			set.Put(name, Flag())
		}
	}

	if r.store.Enabled("debug") {
		for _, k := range set.Keys() {
			log.Printf("macros: %s=%+v", k, set.Get(k))
		}
	}
	return set
}

// lookup returns the first truthy value among keys. When fallback is empty
// the note-field convention applies: the plain key first, then the
// bm_param_ prefixed key.
func (r *Resolver) lookup(primary string, fallback string) string {
	if fallback == "" {
		fallback = params.ParamPrefix + primary
	}
	for _, key := range []string{primary, fallback} {
		if v := r.store.Get(key); params.Truthy(v) {
			return v
		}
	}
	return ""
}
