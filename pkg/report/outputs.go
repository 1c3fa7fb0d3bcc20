package report

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrNoOutputFiles is returned when a run log announces no report files.
var ErrNoOutputFiles = errors.New("run log names no output files")

var formatLinePattern = regexp.MustCompile(`(?m)format: (.*?) -> (.*?)$`)

// OutputFiles maps a lowercased report format (csv, html, pdf, ...) to the
// files the run wrote in that format.
type OutputFiles map[string][]string

// First returns the first file recorded for format.
func (o OutputFiles) First(format string) (string, bool) {
	files := o[format]
	if len(files) == 0 {
		return "", false
	}
	return files[0], true
}

// Formats returns how many formats have at least one file.
func (o OutputFiles) Formats() int {
	n := 0
	for _, files := range o {
		if len(files) > 0 {
			n++
		}
	}
	return n
}

// LocateOutputFiles scans run log text for "format: <kind> -> <files>" lines.
// Each line may list several comma-separated files; only those accepted by
// exists are kept. When exists is nil every file is kept.
func LocateOutputFiles(logText string, exists func(string) bool) (OutputFiles, error) {
	out := OutputFiles{}
	for _, match := range formatLinePattern.FindAllStringSubmatch(logText, -1) {
		kind := strings.ToLower(strings.TrimSpace(match[1]))
		for _, file := range strings.Split(match[2], ",") {
			file = strings.TrimSpace(file)
			if file == "" {
				continue
			}
			if exists != nil && !exists(file) {
				continue
			}
			out[kind] = append(out[kind], file)
		}
	}
	if out.Formats() == 0 {
		return out, ErrNoOutputFiles
	}
	return out, nil
}

// LocateOutputFilesInLog reads the log at path and locates the files it names
// that exist on disk.
func LocateOutputFilesInLog(path string) (OutputFiles, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	return LocateOutputFiles(string(raw), fileExists)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
