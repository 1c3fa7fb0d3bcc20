// Package selection validates the user's choice of benchmarks, output
// formats, suite config file, size, tune and iteration count.
package selection

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/harnesscfg"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
)

var (
	validSizes = []string{"test", "train", "ref"}
	validTunes = []string{"base", "peak", "all"}
)

// Benchmarks resolves a space separated request against the catalog. A token
// matches an entry exactly, as the name part of "<digits>.<name>", or as the
// number part of "<number>.<name>". Unmatched tokens are returned separately.
func Benchmarks(requested string, catalog harnesscfg.BenchmarkConfig) ([]string, []string) {
	if strings.TrimSpace(requested) == "" {
		requested = "all"
	}
	entries := append(append([]string{}, catalog.Suites...), catalog.Names...)

	var selected, unmatched []string
	for _, token := range strings.Fields(requested) {
		match := ""
		for _, entry := range entries {
			if matchesBenchmark(token, entry) {
				match = entry
				break
			}
		}
		if match == "" {
			log.Printf("selection: %s is not a valid benchmark", token)
			unmatched = append(unmatched, token)
			continue
		}
		if !slices.Contains(selected, match) {
			selected = append(selected, match)
		}
	}
	return selected, unmatched
}

func matchesBenchmark(token string, entry string) bool {
	if token == entry {
		return true
	}
	if strings.HasPrefix(entry, token+".") {
		return true
	}
	number, name, ok := strings.Cut(entry, ".")
	return ok && name == token && number != "" && strings.Trim(number, "0123456789") == ""
}

// OutputFormats resolves a comma separated request against the catalog,
// dropping duplicates. Unknown formats are returned separately.
func OutputFormats(requested string, catalog []string, fallback string) ([]string, []string) {
	if strings.TrimSpace(requested) == "" {
		requested = fallback
	}
	var formats, invalid []string
	for _, format := range strings.Split(requested, ",") {
		format = strings.TrimSpace(format)
		if format == "" {
			continue
		}
		switch {
		case !slices.Contains(catalog, format):
			log.Printf("selection: %s is not a valid output format", format)
			invalid = append(invalid, format)
		case !slices.Contains(formats, format):
			formats = append(formats, format)
		}
	}
	return formats, invalid
}

// WithCSV returns formats with csv appended unless csv or all is present;
// the CSV report is required to extract results.
func WithCSV(formats []string) []string {
	if slices.Contains(formats, "csv") || slices.Contains(formats, "all") {
		return formats
	}
	return append(slices.Clone(formats), "csv")
}

// ConfigFile makes sure the requested suite config is present in configDir,
// copying it there when the request names a file elsewhere, and returns its
// base name.
func ConfigFile(requested string, configDir string) (string, error) {
	name := filepath.Base(requested)
	target := filepath.Join(configDir, name)
	if _, err := os.Stat(target); err == nil {
		log.Printf("selection: config %s will be used (from %s)", name, requested)
		return name, nil
	}
	if err := copyFile(requested, target); err != nil {
		return "", fmt.Errorf("config %s is not valid or cannot be copied to %s: %w", requested, configDir, err)
	}
	log.Printf("selection: config %s copied into %s", requested, configDir)
	return name, nil
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ValidateSize accepts an empty size or one of test, train, ref.
func ValidateSize(size string) error {
	if size != "" && !slices.Contains(validSizes, size) {
		return fmt.Errorf("%s is not a valid size (valid values are: test, train or ref)", size)
	}
	return nil
}

// ValidateTune accepts an empty tune or one of base, peak, all.
func ValidateTune(tune string) error {
	if tune != "" && !slices.Contains(validTunes, tune) {
		return fmt.Errorf("%s is not a valid tune (valid values are: base, peak or all)", tune)
	}
	return nil
}

// Iterations returns bm_param_iterations when it is a positive number other
// than the tool's default of 3.
func Iterations(store params.Store) (int, bool) {
	n, ok := store.Int(params.ParamPrefix + "iterations")
	if !ok || n <= 0 || n == 3 {
		return 0, false
	}
	return n, true
}
