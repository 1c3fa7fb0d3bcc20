package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/artifacts"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/harnesscfg"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/launcher"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/schema"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const singleIterationCSV = `valid,1
SPECint_base2006,,18.2

"Full Results Table"

Benchmark,"Base Ref Time","Base Run Time","Base Ratio","Base Selected","Base Status","Peak Ref Time","Peak Run Time","Peak Ratio","Peak Selected","Peak Status",Description
401.bzip2,9650,530.1,18.2,1,S,,,,,,
`

const twoIterationCSV = `valid,1

"Full Results Table"

Benchmark,"Base Ref Time","Base Run Time","Base Ratio","Base Selected","Base Status","Peak Ref Time","Peak Run Time","Peak Ratio","Peak Selected","Peak Status",Description
401.bzip2,9650,530.1,18.2,1,S,,,,,,
401.bzip2,9650,525.4,18.4,0,S,,,,,,
`

const runDirName = "run_base_test_none.0000"

func tempDir(prefix string) string {
	dir, err := os.MkdirTemp("", prefix)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(os.RemoveAll, dir)
	return dir
}

// stubRun returns a launcher that leaves behind what a successful benchmark
// run would: a CSV and an HTML report, a run directory and the captured log.
func stubRun(suite string, iter string, csv string) launcher.Launcher {
	return launcher.Func(func(_ context.Context, command string) (launcher.Result, error) {
		csvPath := filepath.Join(iter, "CINT2006.001.test.csv")
		htmlPath := filepath.Join(iter, "CINT2006.001.test.html")
		runDir := filepath.Join(suite, "benchspec", "CPU2006", "401.bzip2", "run", runDirName)
		for path, body := range map[string]string{csvPath: csv, htmlPath: "<html></html>\n"} {
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				return launcher.Result{}, err
			}
		}
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return launcher.Result{}, err
		}
		logText := fmt.Sprintf("%s\nSetting up 401.bzip2 test base none default: created (%s)\n"+
			"format: CSV -> %s\nformat: HTML -> %s\n", command, runDirName, csvPath, htmlPath)
		logPath := filepath.Join(iter, launcher.LogName)
		if err := os.WriteFile(logPath, []byte(logText), 0o644); err != nil {
			return launcher.Result{}, err
		}
		return launcher.Result{LogPath: logPath, Output: logText}, nil
	})
}

var _ = Describe("Benchmark iteration", func() {
	var (
		suite    string
		iter     string
		env      map[string]string
		cfg      harnesscfg.Config
		received chan schema.RunSummary
	)

	newHarness := func(csv string) *Harness {
		h := New(cfg, params.FromMap(env))
		h.Prober = fakeProber{freeMB: 1 << 20}
		h.SIMDProbe = func() string { return "SSE4.2" }
		h.Launcher = stubRun(suite, iter, csv)
		return h
	}

	parseOutput := func(csv string) (string, ParseResult) {
		_, err := newHarness(csv).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		res, err := newHarness(csv).Parse(context.Background())
		Expect(err).NotTo(HaveOccurred())
		var b strings.Builder
		_, err = res.Metrics.WriteTo(&b)
		Expect(err).NotTo(HaveOccurred())
		return b.String(), res
	}

	BeforeEach(func() {
		suite = tempDir("suite-")
		iter = tempDir("iteration-")
		Expect(os.MkdirAll(filepath.Join(suite, "config"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(suite, "config", "default.cfg"), []byte("# default\n"), 0o644)).To(Succeed())

		received = make(chan schema.RunSummary, 4)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			var summary schema.RunSummary
			if json.Unmarshal(body, &summary) == nil {
				received <- summary
			}
			w.WriteHeader(http.StatusOK)
		}))
		DeferCleanup(server.Close)

		cfg = harnesscfg.Default()
		cfg.Metrics.Textfile = filepath.Join(iter, "harness.prom")
		cfg.Webhook = harnesscfg.WebhookConfig{Enabled: true, URL: server.URL, Format: "generic", TimeoutMS: 2000}

		env = map[string]string{
			"bm_param_spec_dir":  suite,
			"bm_iteration_dir":   iter,
			"bm_run_dir":         iter,
			"bm_cpu_count":       "2",
			"bm_param_benchmark": "401.bzip2",
			"bm_param_copies":    "1",
			"bm_param_size":      "test",
		}
	})

	Context("with a single iteration report", func() {
		It("emits the selection and the results without empty values", func() {
			out, _ := parseOutput(singleIterationCSV)

			Expect(out).To(ContainSubstring("benchmarks=401.bzip2\n"))
			Expect(out).To(ContainSubstring("valid=1\n"))
			Expect(out).To(ContainSubstring("size=test\n"))
			Expect(out).To(ContainSubstring("base_ratio1_401.bzip2=18.2\n"))
			Expect(out).To(ContainSubstring("base_selected1_401.bzip2=1\n"))
			Expect(out).To(ContainSubstring("SPECint_base2006=18.2\n"))
			Expect(out).To(ContainSubstring("iterations=1\n"))
			Expect(out).NotTo(ContainSubstring("copies="))
			for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
				key, value, ok := strings.Cut(line, "=")
				Expect(ok).To(BeTrue(), line)
				Expect(strings.TrimSpace(value)).NotTo(BeEmpty(), key)
			}
		})

		It("saves the requested reports and purges the rest", func() {
			_, res := parseOutput(singleIterationCSV)

			Expect(res.Artifacts).To(ConsistOf(filepath.Join(iter, artifacts.DirName, "CINT2006.001.test.html")))
			Expect(filepath.Join(iter, "CINT2006.001.test.csv")).NotTo(BeAnExistingFile())
			Expect(filepath.Join(suite, "benchspec", "CPU2006", "401.bzip2", "run", runDirName)).NotTo(BeADirectory())
		})

		It("completes the run summary and delivers it", func() {
			_, res := parseOutput(singleIterationCSV)

			summary, err := artifacts.LoadSummary(filepath.Join(iter, artifacts.DirName))
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Status).To(Equal(ExitOK))
			Expect(summary.Valid).To(BeTrue())
			Expect(summary.Copies).To(Equal(1))
			Expect(summary.Attempts).To(HaveLen(1))
			Expect(summary.Metrics).To(HaveKeyWithValue("base_ratio1_401.bzip2", "18.2"))
			Expect(summary.RunID).To(Equal(res.Summary.RunID))

			var delivered schema.RunSummary
			Eventually(received).Should(Receive(&delivered))
			Expect(delivered.Valid).To(BeTrue())

			prom, err := os.ReadFile(cfg.Metrics.Textfile)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(prom)).To(ContainSubstring(`spec_harness_benchmark_result{benchmark="401.bzip2",iteration="1",metric="ratio",tuning="base"} 18.2`))
		})
	})

	Context("with a report holding two iterations", func() {
		It("keys results by iteration and counts them", func() {
			out, res := parseOutput(twoIterationCSV)

			Expect(out).To(ContainSubstring("base_ratio1_401.bzip2=18.2\n"))
			Expect(out).To(ContainSubstring("base_ratio2_401.bzip2=18.4\n"))
			Expect(out).To(ContainSubstring("iterations=2\n"))
			Expect(res.Metrics.KeysWithPrefix("base_selected")).To(BeEmpty())
		})
	})

	Context("when the SSE skip marker exists", func() {
		It("does not report the sse tier", func() {
			Expect(os.WriteFile(filepath.Join(iter, ".sse_failover"), nil, 0o644)).To(Succeed())
			env["bm_param_failover_no_sse"] = "1"

			out, _ := parseOutput(singleIterationCSV)
			Expect(out).NotTo(ContainSubstring("sse="))
		})
	})
})
