package harnesscfg

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors config/harness.yaml.
type Config struct {
	APIVersion    string          `yaml:"apiVersion"`
	Kind          string          `yaml:"kind"`
	Suite         SuiteConfig     `yaml:"suite"`
	Benchmarks    BenchmarkConfig `yaml:"benchmarks"`
	OutputFormats []string        `yaml:"output_formats"`
	Run           RunConfig       `yaml:"run"`
	Metrics       MetricsConfig   `yaml:"metrics"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Webhook       WebhookConfig   `yaml:"webhook"`
}

// SuiteConfig locates the installed benchmark suite.
type SuiteConfig struct {
	Path           string `yaml:"path"`
	HugePagesLib64 string `yaml:"huge_pages_lib64"`
	HugePagesLib32 string `yaml:"huge_pages_lib32"`
}

// BenchmarkConfig is the benchmark catalog. Suites are selectable aliases
// such as "all" or "int" that the benchmark tool expands itself.
type BenchmarkConfig struct {
	Suites []string `yaml:"suites"`
	Names  []string `yaml:"names"`
}

// RunConfig holds run defaults.
type RunConfig struct {
	DefaultCopies        string `yaml:"default_copies"`
	TimeoutSeconds       int    `yaml:"timeout_seconds"`
	DiskPerCopyMB        int    `yaml:"disk_per_copy_mb"`
	DefaultConfigFile    string `yaml:"default_config_file"`
	DefaultOutputFmt     string `yaml:"default_output_format"`
	NumaInterleavePrefix string `yaml:"numa_interleave_prefix"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// TelemetryConfig selects the trace exporter. An empty endpoint and file
// leaves tracing disabled. LogsEndpoint receives the run summary as an
// OTLP/HTTP log record.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	TraceFile    string `yaml:"trace_file"`
	LogsEndpoint string `yaml:"logs_endpoint"`
}

// WebhookConfig configures results delivery.
type WebhookConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	Secret    string `yaml:"secret"`
	Format    string `yaml:"format"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// Timeout returns the run timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Run.TimeoutSeconds) * time.Second
}

// Default returns v1alpha1 defaults.
func Default() Config {
	return Config{
		APIVersion: "harness.spec-cpu.dev/v1alpha1",
		Kind:       "HarnessConfig",
		Suite: SuiteConfig{
			Path:           "/opt/cpu2006",
			HugePagesLib64: "/usr/lib64/libhugetlbfs.so",
			HugePagesLib32: "/usr/lib/libhugetlbfs.so",
		},
		Benchmarks: BenchmarkConfig{
			Suites: []string{"all", "int", "fp", "CINT2006", "CFP2006"},
			Names: []string{
				"400.perlbench", "401.bzip2", "403.gcc", "429.mcf", "445.gobmk",
				"456.hmmer", "458.sjeng", "462.libquantum", "464.h264ref",
				"471.omnetpp", "473.astar", "483.xalancbmk",
				"410.bwaves", "416.gamess", "433.milc", "434.zeusmp", "435.gromacs",
				"436.cactusADM", "437.leslie3d", "444.namd", "447.dealII",
				"450.soplex", "453.povray", "454.calculix", "459.GemsFDTD",
				"465.tonto", "470.lbm", "481.wrf", "482.sphinx3",
			},
		},
		OutputFormats: []string{
			"all", "default", "csv", "html", "config", "flags",
			"text", "pdf", "postscript", "raw", "screen",
		},
		Run: RunConfig{
			DefaultCopies:        "x64:100%/2GB|100%/1GB",
			TimeoutSeconds:       60 * 60 * 72,
			DiskPerCopyMB:        2 * 1024,
			DefaultConfigFile:    "default.cfg",
			DefaultOutputFmt:     "default",
			NumaInterleavePrefix: "numactl --interleave=all",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "spec-cpu-harness",
		},
		Webhook: WebhookConfig{
			TimeoutMS: 5000,
		},
	}
}

// Load parses and normalizes a harness config file.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	normalize(&cfg)
	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults with a logged warning
// when the file is missing or invalid.
func LoadOrDefault(path string) Config {
	if path == "" {
		return Default()
	}
	cfg, err := Load(path)
	if err != nil {
		log.Printf("harnesscfg: config load warning (%s): %v; using defaults", path, err)
		return Default()
	}
	return cfg
}

func normalize(cfg *Config) {
	def := Default()
	if cfg.Suite.Path == "" {
		cfg.Suite.Path = def.Suite.Path
	}
	if cfg.Suite.HugePagesLib64 == "" {
		cfg.Suite.HugePagesLib64 = def.Suite.HugePagesLib64
	}
	if cfg.Suite.HugePagesLib32 == "" {
		cfg.Suite.HugePagesLib32 = def.Suite.HugePagesLib32
	}
	if len(cfg.Benchmarks.Names) == 0 && len(cfg.Benchmarks.Suites) == 0 {
		cfg.Benchmarks = def.Benchmarks
	}
	if len(cfg.OutputFormats) == 0 {
		cfg.OutputFormats = def.OutputFormats
	}
	if cfg.Run.DefaultCopies == "" {
		cfg.Run.DefaultCopies = def.Run.DefaultCopies
	}
	if cfg.Run.TimeoutSeconds <= 0 {
		cfg.Run.TimeoutSeconds = def.Run.TimeoutSeconds
	}
	if cfg.Run.DiskPerCopyMB <= 0 {
		cfg.Run.DiskPerCopyMB = def.Run.DiskPerCopyMB
	}
	if cfg.Run.DefaultConfigFile == "" {
		cfg.Run.DefaultConfigFile = def.Run.DefaultConfigFile
	}
	if cfg.Run.DefaultOutputFmt == "" {
		cfg.Run.DefaultOutputFmt = def.Run.DefaultOutputFmt
	}
	if cfg.Run.NumaInterleavePrefix == "" {
		cfg.Run.NumaInterleavePrefix = def.Run.NumaInterleavePrefix
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = def.Telemetry.ServiceName
	}
	if cfg.Webhook.TimeoutMS <= 0 {
		cfg.Webhook.TimeoutMS = def.Webhook.TimeoutMS
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = def.APIVersion
	}
	if cfg.Kind == "" {
		cfg.Kind = def.Kind
	}
}
