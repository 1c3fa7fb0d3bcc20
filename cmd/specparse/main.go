package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/harness"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/harnesscfg"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/telemetry"
)

var version = "dev"

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "version") {
		fmt.Println(version)
		return
	}

	store := params.FromProcess()
	configPath := flag.String("config", store.ParamOrDefault("harness_config", filepath.Join("config", "harness.yaml")), "harness config path")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("specparse: ")

	cfg := harnesscfg.LoadOrDefault(*configPath)
	ctx := context.Background()
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
		shutdown = func(context.Context) error { return nil }
	}

	runErr := run(ctx, harness.New(cfg, store))

	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := shutdown(flushCtx); err != nil {
		log.Printf("flush traces: %v", err)
	}
	cancel()

	if runErr != nil {
		log.Printf("parse failed: %v", runErr)
		os.Exit(1)
	}
}

// run writes one key=value line per emitted metric to stdout.
func run(ctx context.Context, h *harness.Harness) error {
	res, err := h.Parse(ctx)
	if err != nil {
		return err
	}
	if _, err := res.Metrics.WriteTo(os.Stdout); err != nil {
		return err
	}
	return nil
}
