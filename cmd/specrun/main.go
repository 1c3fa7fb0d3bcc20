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
	log.SetPrefix("specrun: ")

	cfg := harnesscfg.LoadOrDefault(*configPath)
	ctx := context.Background()
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
		shutdown = func(context.Context) error { return nil }
	}

	_, runErr := harness.New(cfg, store).Run(ctx)

	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := shutdown(flushCtx); err != nil {
		log.Printf("flush traces: %v", err)
	}
	cancel()

	if runErr != nil {
		log.Printf("run failed: %v", runErr)
	}
	os.Exit(harness.ExitCode(runErr))
}
