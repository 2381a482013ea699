package report_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bytemomo/harpoon/internal/adapter/htmlreport"
	"bytemomo/harpoon/internal/adapter/jsonreport"
	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/report"
	"bytemomo/harpoon/pkg/harpoonerr"
)

func sampleResult() *domain.ScanResult {
	r := domain.NewScanResult("nmap", domain.ScanTarget{Host: "10.0.0.5", Ports: "80,445"})
	r.HostStatus = domain.HostUp
	r.Raw.CommandLine = "nmap --script vuln -p 80,445 -oX - 10.0.0.5"
	r.Findings = []domain.Finding{
		domain.NewFinding(domain.KindVulnerability, "10.0.0.5", "smb-vuln-ms17-010").WithSeverity(domain.SeverityCritical),
		domain.NewFinding(domain.KindVulnerability, "10.0.0.5", "http-csrf").WithSeverity(domain.SeverityMedium),
		domain.NewFinding(domain.KindService, "10.0.0.5", "http"),
	}
	return r
}

func TestGenerateRoundTrip(t *testing.T) {
	store := artifact.New(t.TempDir(), nil)
	gen := report.NewGenerator(store, jsonreport.New(), nil)

	result := sampleResult()
	want := domain.Summarize(result.Findings)

	path, err := gen.Generate(result, artifact.GeneratedReports)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.RenderedReportPath != path {
		t.Fatalf("rendered path not recorded: %q", result.RenderedReportPath)
	}

	b, err := store.Open(artifact.GeneratedReports, filepath.Base(path))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("empty report")
	}

	got, err := report.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Findings) != want.Total || got.Summary.Total != want.Total {
		t.Fatalf("finding count changed: %d/%d vs %d", len(got.Findings), got.Summary.Total, want.Total)
	}
	for _, sev := range domain.Severities {
		if got.Summary.BySeverity[sev] != want.BySeverity[sev] {
			t.Errorf("%s: expected %d, got %d", sev, want.BySeverity[sev], got.Summary.BySeverity[sev])
		}
	}
}

func TestHTMLRendererEscapes(t *testing.T) {
	result := sampleResult()
	result.Findings = append(result.Findings,
		domain.NewFinding(domain.KindVulnerability, "10.0.0.5", "<script>alert(1)</script>"))

	b, err := htmlreport.New().Render(report.Build(result, map[string]any{"packets": 12}))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := string(b)
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Fatal("finding name was not escaped")
	}
	if !strings.Contains(html, "smb-vuln-ms17-010") || !strings.Contains(html, "packets") {
		t.Fatal("report is missing content")
	}
}

type failingRenderer struct{}

func (failingRenderer) Render(report.Data) ([]byte, error) {
	return nil, errors.New("template exploded")
}
func (failingRenderer) Ext() string { return "html" }

func TestAttachDowngradesFailureToCaveat(t *testing.T) {
	gen := report.NewGenerator(artifact.New(t.TempDir(), nil), failingRenderer{}, nil)

	result := sampleResult()
	gen.Attach(result, artifact.GeneratedReports, nil)

	if result.RenderedReportPath != "" {
		t.Fatal("failed report must not set a path")
	}
	if len(result.Caveats) != 1 || !strings.Contains(result.Caveats[0], "template exploded") {
		t.Fatalf("expected caveat, got %v", result.Caveats)
	}
}

func TestSaveRawAndLoadMalformed(t *testing.T) {
	store := artifact.New(t.TempDir(), nil)
	gen := report.NewGenerator(store, jsonreport.New(), nil)

	result := sampleResult()
	path, err := gen.SaveRaw(result, artifact.VulnReports)
	if err != nil {
		t.Fatalf("SaveRaw: %v", err)
	}
	if result.RawReportPath != path {
		t.Fatal("raw path not recorded")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := report.Load(bad); !harpoonerr.Is(err, harpoonerr.ParseError) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}
