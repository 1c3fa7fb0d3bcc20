// Package artifacts keeps the report files a run was asked to save, purges
// the rest of the benchmark output and writes the run summary bundle.
package artifacts

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/report"
)

// DirName is the artifacts directory under the iteration dir.
const DirName = "artifacts"

var runDirPattern = regexp.MustCompile(`(?s)(?:created|existing)\s+\((.*?)\)`)

// formatKinds maps a requested output format to the report kinds it saves.
var formatKinds = map[string][]string{
	"csv":        {"csv"},
	"default":    {"html", "config"},
	"html":       {"html"},
	"config":     {"config"},
	"flags":      {"flags"},
	"text":       {"ascii"},
	"pdf":        {"pdf"},
	"postscript": {"postscript"},
	"raw":        {"raw"},
}

var allKinds = []string{"csv", "html", "config", "flags", "ascii", "pdf", "postscript", "raw"}

// Select returns the files to save for the requested formats, in request
// order and without duplicates.
func Select(formats []string, files report.OutputFiles) []string {
	seen := map[string]bool{}
	var out []string
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))
		kinds := formatKinds[format]
		if format == "all" {
			kinds = allKinds
		}
		for _, kind := range kinds {
			for _, file := range files[kind] {
				if seen[file] {
					continue
				}
				seen[file] = true
				out = append(out, file)
			}
		}
	}
	return out
}

// Collect moves files into dir and returns their new paths.
func Collect(dir string, files []string) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	moved := make([]string, 0, len(files))
	for _, file := range files {
		dst := filepath.Join(dir, filepath.Base(file))
		if err := moveFile(file, dst); err != nil {
			return moved, fmt.Errorf("collect %s: %w", file, err)
		}
		moved = append(moved, dst)
	}
	return moved, nil
}

// RunDirs lists the benchmark run directories named in a run log. Names that
// are paths or glob patterns are ignored.
func RunDirs(logText string) []string {
	var dirs []string
	for _, match := range runDirPattern.FindAllStringSubmatch(logText, -1) {
		dir := strings.TrimSpace(match[1])
		if dir == "" || strings.ContainsAny(dir, "/\\*?[") || dir == "." || dir == ".." {
			continue
		}
		dirs = append(dirs, dir)
	}
	return dirs
}

// PurgeRunDirs removes <suite>/benchspec/CPU2006/*/run/<dir> for every run
// dir named in the log and returns how many directories were removed.
func PurgeRunDirs(suitePath string, logText string) (int, error) {
	removed := 0
	for _, dir := range RunDirs(logText) {
		matches, err := filepath.Glob(filepath.Join(suitePath, "benchspec", "CPU2006", "*", "run", dir))
		if err != nil {
			return removed, fmt.Errorf("glob run dir %s: %w", dir, err)
		}
		for _, path := range matches {
			if err := os.RemoveAll(path); err != nil {
				return removed, fmt.Errorf("remove run dir %s: %w", path, err)
			}
			removed++
		}
	}
	return removed, nil
}

// PurgeOutputs deletes every listed output file that is still in place,
// together with the .log companion of each CSV report.
func PurgeOutputs(files report.OutputFiles) error {
	var errs []error
	for _, list := range files {
		for _, file := range list {
			errs = append(errs, removeIfExists(file))
			if strings.Contains(file, ".csv") {
				errs = append(errs, removeIfExists(strings.ReplaceAll(file, ".csv", ".log")))
			}
		}
	}
	return errors.Join(errs...)
}

// Purge runs both purge steps unless iterationDir is "." or disabled.
func Purge(suitePath string, iterationDir string, logText string, files report.OutputFiles, disabled bool) error {
	if iterationDir == "." || disabled {
		log.Printf("artifacts: purge skipped")
		return nil
	}
	removed, err := PurgeRunDirs(suitePath, logText)
	if err != nil {
		return err
	}
	log.Printf("artifacts: removed %d benchmark run directories", removed)
	return PurgeOutputs(files)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func moveFile(src string, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
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
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
