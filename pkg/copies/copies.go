// Package copies computes how many benchmark copies a rate run should start.
//
// A copies specification holds one or two alternatives separated by "|". An
// alternative prefixed with "x64:" applies to wide (64-bit) runs, the other
// to narrow runs; a lone alternative applies to both. Each alternative is a
// "/" separated list of terms:
//
//	50%     percentage of the CPU count
//	2GB     one copy per 2 GB of total memory (M or G units, optional B)
//	4       a fixed count
//
// The lowest term wins unless the first term is prefixed with "+", in which
// case the highest term wins.
package copies

import (
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
)

// ErrEmptySpec is returned when no alternative could be parsed.
var ErrEmptySpec = errors.New("empty copies specification")

var (
	percentPattern = regexp.MustCompile(`^([0-9.]+)%$`)
	memoryPattern  = regexp.MustCompile(`^([0-9.]+)([GMgm])[Bb]?$`)
	fixedPattern   = regexp.MustCompile(`^([0-9]+)$`)
)

// Policy selects among term values.
type Policy int

const (
	Lowest Policy = iota
	Highest
)

func (p Policy) String() string {
	if p == Highest {
		return "highest"
	}
	return "lowest"
}

// TermKind classifies a term.
type TermKind int

const (
	Percent TermKind = iota + 1
	MemoryFraction
	Fixed
)

// Term is one parsed element of an alternative.
type Term struct {
	Kind  TermKind
	Value float64
	// UnitKB is the memory per copy in kilobytes for MemoryFraction terms.
	UnitKB float64
	Raw    string
}

// Spec is one alternative of a copies specification.
type Spec struct {
	Wide   bool
	Policy Policy
	Terms  []Term
	Text   string
}

// Rules holds the narrow and wide alternatives of a specification.
type Rules struct {
	narrow *Spec
	wide   *Spec
}

// Host carries the machine facts terms are evaluated against. Zero values
// mean unknown.
type Host struct {
	Wide     bool
	CPUCount int
	MemoryKB int64
}

// Parse parses a copies specification.
func Parse(text string) (Rules, error) {
	var rules Rules
	for _, alt := range strings.Split(text, "|") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		spec := parseAlternative(alt)
		if spec.Wide {
			rules.wide = &spec
		} else {
			rules.narrow = &spec
		}
	}
	if rules.narrow == nil && rules.wide == nil {
		return Rules{}, ErrEmptySpec
	}
	return rules, nil
}

func parseAlternative(alt string) Spec {
	spec := Spec{Text: alt}
	if rest, ok := strings.CutPrefix(alt, "x64:"); ok {
		spec.Wide = true
		alt = rest
	}
	pieces := strings.Split(strings.TrimSpace(alt), "/")
	if strings.HasPrefix(pieces[0], "+") {
		spec.Policy = Highest
		pieces[0] = strings.ReplaceAll(pieces[0], "+", "")
	}
	for _, piece := range pieces {
		if term, ok := parseTerm(strings.TrimSpace(piece)); ok {
			spec.Terms = append(spec.Terms, term)
		}
	}
	return spec
}

func parseTerm(raw string) (Term, bool) {
	if m := percentPattern.FindStringSubmatch(raw); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Term{}, false
		}
		return Term{Kind: Percent, Value: v, Raw: raw}, true
	}
	if m := memoryPattern.FindStringSubmatch(raw); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || v <= 0 {
			return Term{}, false
		}
		unit := v * 1024
		if strings.EqualFold(m[2], "G") {
			unit *= 1024
		}
		return Term{Kind: MemoryFraction, Value: v, UnitKB: unit, Raw: raw}, true
	}
	if m := fixedPattern.FindStringSubmatch(raw); m != nil {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return Term{}, false
		}
		return Term{Kind: Fixed, Value: float64(v), Raw: raw}, true
	}
	return Term{}, false
}

// For returns the alternative matching the requested width. A lone
// alternative applies to both widths.
func (r Rules) For(wide bool) Spec {
	switch {
	case r.narrow == nil:
		return *r.wide
	case r.wide == nil:
		return *r.narrow
	case wide:
		return *r.wide
	default:
		return *r.narrow
	}
}

// Evaluate returns the copy count for host, never less than 1.
func (s Spec) Evaluate(host Host) int {
	copies := 0
	for _, term := range s.Terms {
		n, ok := term.evaluate(host)
		if !ok {
			continue
		}
		if n < 1 {
			n = 1
		}
		if copies == 0 || (s.Policy == Highest && n > copies) || (s.Policy == Lowest && n < copies) {
			log.Printf("copies: term %s yields %d copies (%s policy)", term.Raw, n, s.Policy)
			copies = n
		}
	}
	if copies == 0 {
		return 1
	}
	return copies
}

func (t Term) evaluate(host Host) (int, bool) {
	switch t.Kind {
	case Percent:
		if host.CPUCount <= 0 {
			return 0, false
		}
		return int(math.Round(float64(host.CPUCount) * t.Value * .01)), true
	case MemoryFraction:
		if host.MemoryKB <= 0 {
			return 0, false
		}
		return int(math.Round(float64(host.MemoryKB) / t.UnitKB)), true
	case Fixed:
		return int(t.Value), true
	}
	return 0, false
}

// Resolve parses text, evaluates the alternative for host and applies
// maxCopies when it is positive.
func Resolve(text string, host Host, maxCopies int) (int, error) {
	rules, err := Parse(text)
	if err != nil {
		return 0, err
	}
	spec := rules.For(host.Wide)
	copies := spec.Evaluate(host)
	if maxCopies > 0 && copies > maxCopies {
		log.Printf("copies: reducing %d to %d due to max_copies", copies, maxCopies)
		copies = maxCopies
	}
	return copies, nil
}

// Resolver memoizes the copy count of one run.
type Resolver struct {
	text      string
	host      Host
	maxCopies int

	once   sync.Once
	copies int
	err    error
}

// NewResolver builds a resolver from explicit inputs.
func NewResolver(text string, host Host, maxCopies int) *Resolver {
	return &Resolver{text: text, host: host, maxCopies: maxCopies}
}

// FromStore reads bm_param_copies (falling back to defaultText),
// bm_param_max_copies, bm_cpu_count, bm_memory_total and the x64 selection.
// Facts the framework did not export are taken from fallback.
func FromStore(store params.Store, defaultText string, fallback Host) *Resolver {
	host := Host{Wide: WideRequested(store), CPUCount: fallback.CPUCount, MemoryKB: fallback.MemoryKB}
	if cpus, ok := store.Int(params.KeyCPUCount); ok {
		host.CPUCount = cpus
	}
	if mem, ok := store.Float(params.KeyMemoryTotal); ok {
		host.MemoryKB = int64(mem)
	}
	maxCopies, _ := store.Int(params.ParamPrefix + "max_copies")
	return NewResolver(store.ParamOrDefault("copies", defaultText), host, maxCopies)
}

// WideRequested reports the x64 selection: "1" selects wide, "2" defers to
// the framework's 64-bit detection.
func WideRequested(store params.Store) bool {
	switch store.Param("x64") {
	case "1":
		return true
	case "2":
		return params.Truthy(store.Get(params.KeyIs64Bit))
	}
	return false
}

// Copies returns the memoized copy count.
func (r *Resolver) Copies() (int, error) {
	r.once.Do(func() {
		log.Printf("copies: calculating from %q (wide=%t cpus=%d memory_kb=%d)", r.text, r.host.Wide, r.host.CPUCount, r.host.MemoryKB)
		r.copies, r.err = Resolve(r.text, r.host, r.maxCopies)
		if r.err != nil {
			r.err = fmt.Errorf("resolve copies %q: %w", r.text, r.err)
		}
	})
	return r.copies, r.err
}
