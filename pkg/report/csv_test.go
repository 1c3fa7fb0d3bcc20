package report

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  [][]string
	}{
		{name: "empty input", input: "", want: nil},
		{name: "simple rows", input: "a,b,c\n1,2,3\n", want: [][]string{{"a", "b", "c"}, {"1", "2", "3"}}},
		{name: "no trailing newline", input: "a,b", want: [][]string{{"a", "b"}}},
		{name: "embedded comma", input: "\"x,y\",z\n", want: [][]string{{"x,y", "z"}}},
		{name: "embedded newline", input: "\"line1\nline2\",z\n", want: [][]string{{"line1\nline2", "z"}}},
		{name: "doubled quote", input: "\"say \"\"hi\"\"\",z\n", want: [][]string{{"say \"hi\"", "z"}}},
		{name: "backslash escape", input: "\"a\\\"b\",z\n", want: [][]string{{"a\\\"b", "z"}}},
		{name: "empty fields", input: "a,,\n", want: [][]string{{"a", "", ""}}},
		{name: "crlf line endings", input: "a,b\r\nc,d\r\n", want: [][]string{{"a", "b"}, {"c", "d"}}},
		{name: "quote inside unquoted field", input: "5\" disk,z\n", want: [][]string{{"5\" disk", "z"}}},
		{name: "text after closing quote", input: "\"ab\"cd,z\n", want: [][]string{{"abcd", "z"}}},
		{name: "unterminated quoted field", input: "a,\"open", want: [][]string{{"a", "open"}}},
		{name: "single cell carries to next row", input: "\n\"Full Results Table\"\n", want: [][]string{{"", "Full Results Table"}}},
		{name: "lone title carries", input: "Title\nx,y\n", want: [][]string{{"Title", "x", "y"}}},
		{name: "trailing single cell dropped", input: "a,b\nlonely", want: [][]string{{"a", "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCSV(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseCSVMalformedTail(t *testing.T) {
	inputs := []string{"\"", "a,\"", "a,b\n\"\"\"", "x,\"y\\"}
	for _, input := range inputs {
		if _, err := ParseCSV(strings.NewReader(input)); err != nil {
			t.Fatalf("%q: malformed tail must not fail: %v", input, err)
		}
	}
}
