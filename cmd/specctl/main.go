package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/harness"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/harnesscfg"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/macros"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/prereq"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/schema"
)

var defaultConfigPath = filepath.Join("config", "harness.yaml")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "prereq":
		runPrereq(os.Args[2:])
	case "resolve":
		runResolve(os.Args[2:])
	case "summary":
		runSummary(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func runPrereq(args []string) {
	if len(args) == 0 {
		printPrereqUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "check":
		runPrereqCheck(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown prereq subcommand %q\n", args[0])
		printPrereqUsage()
		os.Exit(2)
	}
}

func runPrereqCheck(args []string) {
	fs := flag.NewFlagSet("specctl prereq check", flag.ExitOnError)
	output := fs.String("output", "text", "output mode: text|json")
	strict := fs.Bool("strict", false, "treat warnings as failures")
	configPath := fs.String("config", defaultConfigPath, "harness config path")
	suite := fs.String("suite", "", "benchmark suite path (defaults to suite.path)")
	diskMB := fs.Int64("disk-mb", 0, "also require this much free space under benchspec")
	_ = fs.Parse(args)

	cfg := harnesscfg.LoadOrDefault(*configPath)
	in := prereq.Inputs{SuitePath: emptyFallback(*suite, cfg.Suite.Path)}
	if *diskMB > 0 {
		in.DiskCheck = true
		in.RequiredDiskMB = *diskMB
	}
	report := prereq.RunLocal(in)

	switch *output {
	case "json":
		payload, err := prereq.MarshalJSON(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
	case "text":
		printTextReport(report)
	default:
		fmt.Fprintf(os.Stderr, "unsupported output mode %q\n", *output)
		os.Exit(2)
	}

	pass := report.Pass
	if *strict {
		pass = prereq.StrictPass(report)
	}
	if !pass {
		os.Exit(1)
	}
}

type resolution struct {
	Suite         string            `json:"suite"`
	Benchmarks    []string          `json:"benchmarks"`
	Copies        int               `json:"copies"`
	ConfigFile    string            `json:"config_file"`
	OutputFormats []string          `json:"output_formats"`
	Defines       map[string]string `json:"defines"`
	Command       string            `json:"command"`
}

// runResolve validates the bm_* environment and prints the invocation a run
// would start with, without launching anything.
func runResolve(args []string) {
	fs := flag.NewFlagSet("specctl resolve", flag.ExitOnError)
	output := fs.String("output", "text", "output mode: text|json")
	configPath := fs.String("config", defaultConfigPath, "harness config path")
	_ = fs.Parse(args)

	ctx := context.Background()
	h := harness.New(harnesscfg.LoadOrDefault(*configPath), params.FromProcess())
	plan, err := h.Validate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve: %v\n", err)
		os.Exit(harness.ExitCode(err))
	}

	set := h.MacroResolver().Resolve(ctx)
	res := resolution{
		Suite:         plan.SuitePath,
		Benchmarks:    plan.Benchmarks,
		Copies:        plan.Copies,
		ConfigFile:    plan.ConfigFile,
		OutputFormats: plan.OutputFormats,
		Defines:       make(map[string]string, set.Len()),
		Command:       h.Command(plan).WithDefines(set).String(),
	}
	for _, name := range set.Keys() {
		v := set.Get(name)
		if v.Kind == macros.True {
			res.Defines[name] = "1"
			continue
		}
		res.Defines[name] = v.Text
	}

	switch *output {
	case "json":
		payload, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal resolution: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
	case "text":
		fmt.Printf("suite: %s\n", res.Suite)
		fmt.Printf("benchmarks: %s\n", strings.Join(res.Benchmarks, " "))
		fmt.Printf("copies: %d\n", res.Copies)
		fmt.Printf("config: %s\n", res.ConfigFile)
		fmt.Printf("output_format: %s\n", strings.Join(res.OutputFormats, ","))
		fmt.Println("defines:")
		for _, name := range set.Keys() {
			fmt.Printf("- %s=%s\n", name, res.Defines[name])
		}
		fmt.Printf("command: %s\n", res.Command)
	default:
		fmt.Fprintf(os.Stderr, "unsupported output mode %q\n", *output)
		os.Exit(2)
	}
}

func runSummary(args []string) {
	if len(args) == 0 {
		printSummaryUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "validate":
		runSummaryValidate(args[1:])
	case "schema":
		os.Stdout.Write(schema.RunSummarySchema())
	default:
		fmt.Fprintf(os.Stderr, "unknown summary subcommand %q\n", args[0])
		printSummaryUsage()
		os.Exit(2)
	}
}

func runSummaryValidate(args []string) {
	fs := flag.NewFlagSet("specctl summary validate", flag.ExitOnError)
	file := fs.String("file", "", "results.json to validate")
	schemaPath := fs.String("schema", "", "validate against this schema file instead of the embedded one")
	_ = fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(2)
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read summary: %v\n", err)
		os.Exit(1)
	}

	if *schemaPath != "" {
		var payload interface{}
		if err := json.Unmarshal(data, &payload); err != nil {
			fmt.Fprintf(os.Stderr, "decode summary: %v\n", err)
			os.Exit(1)
		}
		err = schema.ValidateAgainstSchema(*schemaPath, payload)
	} else {
		var summary schema.RunSummary
		if err := json.Unmarshal(data, &summary); err != nil {
			fmt.Fprintf(os.Stderr, "decode summary: %v\n", err)
			os.Exit(1)
		}
		err = schema.ValidateRunSummary(summary)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *file, err)
		os.Exit(1)
	}
	fmt.Printf("%s: valid\n", *file)
}

func printTextReport(report prereq.Report) {
	fmt.Printf("suite %s on %s/%s, checked %s\n\n", emptyFallback(report.SuitePath, "unknown"),
		report.HostOS, report.HostArch, report.GeneratedAt.Format(time.RFC3339))

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESULT\tSEVERITY\tCHECK\tCURRENT\tREQUIRED")
	var failed []prereq.CheckResult
	for _, check := range report.Checks {
		result := "ok"
		if !check.Pass {
			result = "FAIL"
			failed = append(failed, check)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", result, check.Severity, check.Name,
			emptyFallback(check.Current, "-"), emptyFallback(check.Required, "-"))
	}
	tw.Flush()

	for _, check := range failed {
		status := ""
		if check.ExitCode != 0 {
			status = fmt.Sprintf(" (run status %d)", check.ExitCode)
		}
		fmt.Printf("\n%s%s: %s", check.Name, status, check.Remediation)
	}
	if len(failed) > 0 {
		fmt.Println()
	}
	if report.Pass {
		fmt.Println("\nblockers: none")
		return
	}
	fmt.Println("\nblockers: a run would stop before invoking the benchmark")
}

func emptyFallback(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  specctl prereq check [--output text|json] [--strict] [--suite path] [--disk-mb n]")
	fmt.Println("  specctl resolve [--output text|json] [--config path]")
	fmt.Println("  specctl summary validate --file results.json [--schema path]")
	fmt.Println("  specctl summary schema")
}

func printPrereqUsage() {
	fmt.Println("Usage:")
	fmt.Println("  specctl prereq check [--output text|json] [--strict] [--suite path] [--disk-mb n]")
}

func printSummaryUsage() {
	fmt.Println("Usage:")
	fmt.Println("  specctl summary validate --file results.json [--schema path]")
	fmt.Println("  specctl summary schema")
}
