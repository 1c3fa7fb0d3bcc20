package report

import (
	"errors"
	"fmt"
)

// ErrNoCSV is returned when a run produced no parseable CSV report.
var ErrNoCSV = errors.New("no parseable csv report")

// ValidateLog locates the files named in the run log at logPath and checks
// that the first CSV report parses into at least one row.
func ValidateLog(logPath string) (OutputFiles, error) {
	files, err := LocateOutputFilesInLog(logPath)
	if err != nil {
		return files, fmt.Errorf("%w: %v", ErrNoCSV, err)
	}
	first, ok := files.First("csv")
	if !ok {
		return files, ErrNoCSV
	}
	rows, err := ParseCSVFile(first)
	if err != nil {
		return files, fmt.Errorf("%w: %v", ErrNoCSV, err)
	}
	if len(rows) == 0 {
		return files, fmt.Errorf("%w: %s is empty", ErrNoCSV, first)
	}
	return files, nil
}

// ReduceCSVFiles parses every CSV report in paths into m. Unreadable or empty
// reports are skipped; ErrNoCSV is returned when none could be reduced.
func ReduceCSVFiles(paths []string, m *Metrics, opts Options) (*Reducer, error) {
	reducer := NewReducer(m, opts)
	reduced := 0
	for _, path := range paths {
		rows, err := ParseCSVFile(path)
		if err != nil || len(rows) == 0 {
			continue
		}
		reducer.Reduce(rows)
		reduced++
	}
	reducer.Finish()
	if reduced == 0 {
		return reducer, ErrNoCSV
	}
	return reducer, nil
}
