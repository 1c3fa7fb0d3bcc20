package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

type csvState int

const (
	stateLineStart csvState = iota
	stateFieldStart
	stateUnquoted
	stateQuoted
	stateEscaped
)

const quote = '"'

// ParseCSV reads the benchmark tool's CSV dialect:
//
//   - unquoted fields end at a comma or newline
//   - quoted fields may hold commas and newlines verbatim
//   - a doubled quote inside a quoted field is one literal quote
//   - a backslash inside a quoted field is kept and protects the next byte
//
// A line holding at most one cell is not emitted as a row; its cell becomes
// the leading cell of the next row, which is how the report places section
// titles and table headers in the second column. End of input flushes
// whatever is buffered, including an unterminated quoted field. Only read
// errors from r are returned.
func ParseCSV(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	var (
		rows  [][]string
		row   []string
		buf   []byte
		state = stateLineStart
	)

	flushRow := func() {
		if len(row) > 1 {
			rows = append(rows, row)
			row = nil
		}
	}

	for {
		c, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("read csv: %w", err)
		}

		switch state {
		case stateQuoted:
			switch c {
			case quote:
				next, peekErr := br.Peek(1)
				if peekErr == nil && next[0] == quote {
					state = stateEscaped
				} else {
					state = stateUnquoted
				}
			case '\\':
				buf = append(buf, c)
				state = stateEscaped
			default:
				buf = append(buf, c)
			}
			continue
		case stateEscaped:
			buf = append(buf, c)
			state = stateQuoted
			continue
		}

		switch {
		case c == ',':
			row = append(row, string(buf))
			buf = buf[:0]
			state = stateFieldStart
		case c == '\n':
			if n := len(buf); n > 0 && buf[n-1] == '\r' {
				buf = buf[:n-1]
			}
			row = append(row, string(buf))
			buf = buf[:0]
			state = stateLineStart
			flushRow()
		case c == quote && state != stateUnquoted:
			state = stateQuoted
		default:
			buf = append(buf, c)
			state = stateUnquoted
		}
	}

	if state != stateLineStart || len(buf) > 0 {
		row = append(row, string(buf))
		flushRow()
	}
	return rows, nil
}

// ParseCSVFile parses the CSV report at path.
func ParseCSVFile(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer file.Close()
	return ParseCSV(file)
}
