package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
)

const (
	sectionMarker   = "Full Results Table"
	headerMarker    = "Benchmark"
	minSectionArity = 10
)

var (
	benchmarkRowPattern = regexp.MustCompile(`^[0-9]+\.[a-zA-Z]+`)
	validRowPattern     = regexp.MustCompile(`^valid`)
	aggregatePattern    = regexp.MustCompile(`^(SPECint|SPECfp)`)
	selectedKeyPattern  = regexp.MustCompile(`_selected[0-9]+_`)
)

// Column positions in a results-table data row.
const (
	colRefOrCopies     = 1
	colBaseRunTime     = 2
	colBaseScore       = 3
	colBaseSelected    = 4
	colPeakRefOrCopies = 6
	colPeakRunTime     = 7
	colPeakScore       = 8
	colPeakSelected    = 9
)

// Options toggles which per-benchmark metrics the reducer records.
type Options struct {
	IncludeBenchmarkMetrics bool
	IncludeRefTimes         bool
	IncludeRunTimes         bool
}

// OptionsFromStore reads the include_* parameters. Benchmark metrics default
// on; reference and run times default off.
func OptionsFromStore(store params.Store) Options {
	return Options{
		IncludeBenchmarkMetrics: store.ParamOrDefault("include_benchmark_metrics", "1") == "1",
		IncludeRefTimes:         store.Enabled("include_ref_times"),
		IncludeRunTimes:         store.Enabled("include_run_times"),
	}
}

// Reducer folds parsed report rows into a Metrics map. Several reports may be
// reduced into the same map; Finish settles the derived keys.
type Reducer struct {
	opts    Options
	metrics *Metrics

	rate         bool
	copiesSet    bool
	tuneSet      bool
	hasAggregate bool

	counts     map[string]int
	firstBench string
	iterations int
}

// NewReducer binds a reducer to m.
func NewReducer(m *Metrics, opts Options) *Reducer {
	return &Reducer{opts: opts, metrics: m, counts: map[string]int{}}
}

// Reduce scans one report's rows.
func (r *Reducer) Reduce(rows [][]string) {
	inSection := false
	for _, row := range rows {
		switch {
		case inSection && len(row) < minSectionArity:
			inSection = false
		case strings.Contains(cell(row, 1), sectionMarker):
			inSection = true
			r.counts = map[string]int{}
			r.firstBench = ""
		case inSection && r.opts.IncludeBenchmarkMetrics && r.isDataRow(row):
			r.reduceDataRow(row)
		case inSection && strings.Contains(cell(row, 1), headerMarker):
			r.rate = strings.Contains(cell(row, 3), "Rate") || strings.Contains(cell(row, 4), "Rate")
			r.metrics.Set("rate", Bool(r.rate))
			if !r.rate {
				r.metrics.Delete("copies")
				r.copiesSet = false
			}
		case !inSection && validRowPattern.MatchString(cell(row, 0)):
			r.metrics.Set("valid", Bool(cell(row, 1) == "1"))
		case !inSection:
			r.reduceAggregateRow(row)
		}
	}
}

func (r *Reducer) isDataRow(row []string) bool {
	if !benchmarkRowPattern.MatchString(cell(row, 0)) {
		return false
	}
	for _, idx := range []int{colBaseRunTime, colBaseScore, colPeakRunTime, colPeakScore} {
		if params.IsNumeric(cell(row, idx)) {
			return true
		}
	}
	return false
}

func (r *Reducer) reduceDataRow(row []string) {
	bench := cell(row, 0)
	if r.firstBench == "" {
		r.firstBench = bench
	}
	r.counts[bench]++
	n := r.counts[bench]
	if bench == r.firstBench {
		r.iterations = n
	}

	reference := cell(row, colRefOrCopies)
	if !params.Truthy(reference) {
		reference = cell(row, colPeakRefOrCopies)
	}
	hasReference := params.IsNumeric(cell(row, colRefOrCopies)) || params.IsNumeric(cell(row, colPeakRefOrCopies))
	refKey := "ref_time_" + bench
	switch {
	case r.rate && !r.copiesSet && hasReference:
		r.metrics.Set("copies", String(reference))
		r.copiesSet = true
	case !r.rate && r.opts.IncludeRefTimes && !r.metrics.Has(refKey) && hasReference:
		r.metrics.Set(refKey, String(reference))
	}

	hasBase := params.IsNumeric(cell(row, colBaseRunTime)) || params.IsNumeric(cell(row, colBaseScore))
	hasPeak := params.IsNumeric(cell(row, colPeakRunTime)) || params.IsNumeric(cell(row, colPeakScore))
	if !r.tuneSet {
		switch {
		case hasBase && hasPeak:
			r.metrics.Set("tune", String("all"))
		case hasPeak:
			r.metrics.Set("tune", String("peak"))
		default:
			r.metrics.Set("tune", String("base"))
		}
		r.tuneSet = true
	}

	if hasBase {
		r.recordTuning("base", bench, n, row, colBaseRunTime, colBaseScore, colBaseSelected)
	}
	if hasPeak {
		r.recordTuning("peak", bench, n, row, colPeakRunTime, colPeakScore, colPeakSelected)
	}
}

func (r *Reducer) recordTuning(tuning, bench string, n int, row []string, runCol, scoreCol, selectedCol int) {
	if r.opts.IncludeRunTimes && params.IsNumeric(cell(row, runCol)) {
		r.metrics.Set(fmt.Sprintf("%s_run_time%d_%s", tuning, n, bench), String(cell(row, runCol)))
	}
	if params.IsNumeric(cell(row, scoreCol)) {
		r.metrics.Set(fmt.Sprintf("%s_%s%d_%s", tuning, r.scoreName(), n, bench), String(cell(row, scoreCol)))
	}
	if strings.TrimSpace(cell(row, selectedCol)) == "1" {
		r.metrics.Set(fmt.Sprintf("%s_selected%d_%s", tuning, n, bench), Bool(true))
	}
}

func (r *Reducer) scoreName() string {
	if r.rate {
		return "rate"
	}
	return "ratio"
}

func (r *Reducer) reduceAggregateRow(row []string) {
	key := cell(row, 0)
	if strings.TrimSpace(key) == "" {
		key = cell(row, 1)
	}
	if strings.TrimSpace(key) == "" || !aggregatePattern.MatchString(key) {
		return
	}
	for i := 1; i < len(row); i++ {
		if params.IsNumeric(row[i]) {
			r.hasAggregate = true
			r.metrics.Set(key, String(row[i]))
		}
	}
}

// HasAggregate reports whether a SPECint/SPECfp summary row was seen.
func (r *Reducer) HasAggregate() bool { return r.hasAggregate }

// Iterations is how many times the first benchmark of the last results
// section appeared.
func (r *Reducer) Iterations() int { return r.iterations }

// Finish records the iteration count and drops selection flags when no
// aggregate row backs them.
func (r *Reducer) Finish() {
	if r.iterations > 0 {
		r.metrics.Set("iterations", Int(r.iterations))
	}
	if r.hasAggregate {
		return
	}
	for _, key := range r.metrics.Keys() {
		if selectedKeyPattern.MatchString(key) {
			r.metrics.Delete(key)
		}
	}
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
