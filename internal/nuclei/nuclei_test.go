//go:build unix

package nuclei

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"bytemomo/harpoon/internal/adapter/htmlreport"
	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/invoker"
	"bytemomo/harpoon/internal/report"
	"bytemomo/harpoon/internal/testutil"
	"bytemomo/harpoon/pkg/harpoonerr"
)

const sample = `{"template-id":"CVE-2021-44228","info":{"name":"Log4Shell","severity":"critical"},"host":"http://app.local","matched-at":"http://app.local:8080/"}
{"template-id":"tech-detect","info":{"name":"Apache","severity":"info"},"host":"http://app.local"}
[WRN] noise
{"template-id":"x","info":{"name":"Odd","severity":"bogus"},"host":"http://app.local"}
`

// fakeNuclei copies sample into the -o file and exits with code.
func fakeNuclei(t *testing.T, content string, code string) string {
	t.Helper()
	data := filepath.Join(t.TempDir(), "findings")
	if err := os.WriteFile(data, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return testutil.FakeTool(t, "nuclei", `while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; fi
  shift
done
cat '`+data+`' > "$out"
exit `+code)
}

func newRunner(t *testing.T, tool string) *Runner {
	return newRunnerIn(t, tool, artifact.New(t.TempDir(), nil))
}

func newRunnerIn(t *testing.T, tool string, store *artifact.Store) *Runner {
	return NewRunner(
		invoker.New(nil, map[string]string{Tool: tool}),
		store,
		report.NewGenerator(store, htmlreport.New(), nil),
		"", 5*time.Second, nil,
	)
}

func TestCleanURL(t *testing.T) {
	tests := map[string]string{
		"https://http://a.b/x": "http://a.b/x",
		"http://https://a.b":   "https://a.b",
		" http://a.b ":         "http://a.b",
	}
	for in, want := range tests {
		if got := CleanURL(in); got != want {
			t.Errorf("CleanURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildArgs(t *testing.T) {
	got := buildArgs("http://a.b", "/tmp/o.jsonl", Options{Templates: "cves/", Severity: "high,critical", RateLimit: 50, Retries: 2})
	want := []string{"-u", "http://a.b", "-t", "cves/", "-jsonl", "-o", "/tmp/o.jsonl", "-c", "25", "-silent",
		"-severity", "high,critical", "-rate-limit", "50", "-retries", "2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected args:\n%v\n%v", got, want)
	}
}

func TestScan(t *testing.T) {
	r := newRunner(t, fakeNuclei(t, sample, "0"))

	scan, err := r.Scan(context.Background(), "https://http://app.local", Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scan.Total != 4 || scan.Skipped != 1 || len(scan.Result.Findings) != 3 {
		t.Fatalf("unexpected counts: total=%d skipped=%d findings=%d", scan.Total, scan.Skipped, len(scan.Result.Findings))
	}
	if scan.Result.Target.Host != "http://app.local" {
		t.Errorf("target not cleaned: %s", scan.Result.Target.Host)
	}
	s := domain.Summarize(scan.Result.Findings)
	if s.BySeverity[domain.SeverityCritical] != 1 || s.BySeverity[domain.SeverityUnknown] != 1 {
		t.Errorf("unexpected severities: %v", s.BySeverity)
	}
	if scan.Result.RenderedReportPath == "" || scan.Result.RawReportPath != scan.OutputPath {
		t.Errorf("report paths not recorded: %+v", scan.Result)
	}

	reports, err := r.Reports()
	if err != nil || len(reports) != 1 || reports[0].FindingCount != 3 {
		t.Fatalf("Reports: %+v %v", reports, err)
	}
	parsed, err := r.Report(reports[0].Name)
	if err != nil || parsed.Total != 4 {
		t.Fatalf("Report: %+v %v", parsed, err)
	}
}

func TestScanPartialOutput(t *testing.T) {
	r := newRunner(t, fakeNuclei(t, sample, "1"))

	scan, err := r.Scan(context.Background(), "http://app.local", Options{})
	if err != nil {
		t.Fatalf("partial output must be kept: %v", err)
	}
	found := false
	for _, c := range scan.Result.Caveats {
		if strings.Contains(c, "partial output kept") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected partial caveat, got %v", scan.Result.Caveats)
	}
}

func TestScanFailsWithoutOutput(t *testing.T) {
	r := newRunner(t, fakeNuclei(t, "", "2"))

	if _, err := r.Scan(context.Background(), "http://app.local", Options{}); !harpoonerr.Is(err, harpoonerr.ProcessError) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	if _, err := r.Scan(context.Background(), "http://app.local", Options{Tags: "-o/etc/x"}); !harpoonerr.Is(err, harpoonerr.ValidationError) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestScanFailureRemovesEmptyReport(t *testing.T) {
	for name, tool := range map[string]string{
		"exit status": fakeNuclei(t, "", "2"),
		"missing":     filepath.Join(t.TempDir(), "no-such-nuclei"),
	} {
		t.Run(name, func(t *testing.T) {
			store := artifact.New(t.TempDir(), nil)
			r := newRunnerIn(t, tool, store)

			scan, err := r.Scan(context.Background(), "http://app.local", Options{})
			if err == nil {
				t.Fatal("expected an error")
			}
			if scan != nil && scan.OutputPath != "" {
				t.Errorf("failed scan still reports output %s", scan.OutputPath)
			}
			reports, err := r.Reports()
			if err != nil {
				t.Fatal(err)
			}
			if len(reports) != 0 {
				t.Fatalf("expected no stored reports, got %v", reports)
			}
			entries, err := store.List(artifact.NucleiReports)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Fatalf("expected empty report dir, got %v", entries)
			}
		})
	}
}
