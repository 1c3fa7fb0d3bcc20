// Package invoke builds the benchmark command line and drives it through
// the degrade-and-retry state machine.
package invoke

import (
	"fmt"
	"log"
	"strings"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/macros"
)

const defaultTune = "base"

// Command is the structured form of one runspec invocation.
type Command struct {
	Reportable    bool
	ConfigFile    string
	OutputFormats []string
	Comment       string
	Delay         int
	FlagsURL      string
	IgnoreErrors  bool
	Iterations    int
	NoBuild       bool
	Rate          bool
	Copies        int
	Review        bool
	Size          string
	Tune          string
	Benchmarks    []string

	// Defines are emitted in sorted name order.
	Defines macros.Set
	// QuotedValues is set when the suite quotes macro values, which allows
	// values holding spaces, dashes or periods.
	QuotedValues bool
	// NUMAPrefix is prepended when the numa macro is set.
	NUMAPrefix string
}

// WithDefines returns a copy of c using set.
func (c Command) WithDefines(set macros.Set) Command {
	c.Defines = set
	return c
}

// HasDefine reports whether name would be emitted.
func (c Command) HasDefine(name string) bool {
	if !c.Defines.Has(name) {
		return false
	}
	_, ok := c.define(name)
	return ok
}

// Args renders the command arguments after the program name.
func (c Command) Args() []string {
	args := []string{"--noreportable"}
	if c.Reportable {
		args[0] = "--reportable"
	}
	if c.ConfigFile != "" {
		args = append(args, "--config="+c.ConfigFile)
	}
	if len(c.OutputFormats) > 0 {
		args = append(args, "--output_format="+doubleQuote(strings.Join(c.OutputFormats, ",")))
	}
	if c.Comment != "" {
		args = append(args, "--comment="+doubleQuote(c.Comment))
	}
	if c.Delay > 0 {
		args = append(args, fmt.Sprintf("--delay=%d", c.Delay))
	}
	if c.FlagsURL != "" {
		args = append(args, "--flagsurl="+doubleQuote(c.FlagsURL))
	}
	if c.IgnoreErrors {
		args = append(args, "--ignore_errors")
	}
	if c.Iterations > 0 {
		args = append(args, fmt.Sprintf("--iterations=%d", c.Iterations))
	}
	if c.NoBuild {
		args = append(args, "--nobuild")
	}
	if c.Rate {
		args = append(args, fmt.Sprintf("--rate %d", c.Copies))
	}
	if c.Review {
		args = append(args, "--review")
	}
	if c.Size != "" && c.Size != "ref" {
		args = append(args, "--size="+c.Size)
	}
	tune := c.Tune
	if tune == "" {
		tune = defaultTune
	}
	args = append(args, "--tune="+tune)

	for _, name := range c.Defines.Keys() {
		if arg, ok := c.define(name); ok {
			args = append(args, arg)
		}
	}
	if c.Rate {
		args = append(args, fmt.Sprintf("--define rate=%d", c.Copies))
	}
	return append(args, c.Benchmarks...)
}

func (c Command) define(name string) (string, bool) {
	v := c.Defines.Get(name)
	switch v.Kind {
	case macros.True:
		return "--define " + name, true
	case macros.Text:
		if name != macros.NameSSE && !c.QuotedValues && needsQuoting(v.Text) {
			return "", false
		}
		if v.Text == "1" {
			return "--define " + name, true
		}
		return "--define " + name + "=" + doubleQuote(v.Text), true
	}
	return "", false
}

// String renders the full shell command.
func (c Command) String() string {
	cmd := "runspec " + strings.Join(c.Args(), " ")
	if c.Defines.Get(macros.NameNUMA).Truthy() && c.NUMAPrefix != "" {
		cmd = c.NUMAPrefix + " " + cmd
	}
	return cmd
}

// LogSkippedDefines logs macros dropped because the suite cannot quote them.
func (c Command) LogSkippedDefines() {
	for _, name := range c.Defines.Keys() {
		if _, ok := c.define(name); !ok {
			log.Printf("invoke: skipping macro %s=%q; bin/util.pl does not quote macro values", name, c.Defines.Get(name).Text)
		}
	}
}

func doubleQuote(s string) string {
	return `"` + s + `"`
}

// needsQuoting reports a space, dash or period after the first character.
func needsQuoting(v string) bool {
	for _, sep := range []string{" ", "-", "."} {
		if strings.Index(v, sep) > 0 {
			return true
		}
	}
	return false
}
