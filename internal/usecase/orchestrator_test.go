package usecase

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"bytemomo/harpoon/internal/adapter/jsonreport"
	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/exploit"
	"bytemomo/harpoon/internal/nuclei"
	"bytemomo/harpoon/internal/report"
)

type fakeScanner struct {
	mu        sync.Mutex
	hosts     []string
	discErr   error
	vulnErr   map[string]error
	scanned   []string
	findings  map[string][]domain.Finding
	discovers int
}

func (f *fakeScanner) Discover(ctx context.Context, t domain.ScanTarget) (*domain.ScanResult, error) {
	f.mu.Lock()
	f.discovers++
	f.mu.Unlock()
	if f.discErr != nil {
		return nil, f.discErr
	}
	r := domain.NewScanResult("nmap", t)
	for _, h := range f.hosts {
		hf := domain.NewFinding(domain.KindHost, h, h)
		hf.Evidence = map[string]any{"state": "up"}
		r.Findings = append(r.Findings, hf)
	}
	down := domain.NewFinding(domain.KindHost, "10.0.0.99", "10.0.0.99")
	down.Evidence = map[string]any{"state": "down"}
	r.Findings = append(r.Findings, down)
	return r, nil
}

func (f *fakeScanner) VulnScan(ctx context.Context, t domain.ScanTarget) (*domain.ScanResult, error) {
	f.mu.Lock()
	f.scanned = append(f.scanned, t.Host)
	f.mu.Unlock()

	r := domain.NewScanResult("nmap", t)
	r.Findings = f.findings[t.Host]
	return r, f.vulnErr[t.Host]
}

type fakeWeb struct {
	mu   sync.Mutex
	urls []string
}

func (w *fakeWeb) Scan(ctx context.Context, target string, opts nuclei.Options) (*nuclei.Scan, error) {
	w.mu.Lock()
	w.urls = append(w.urls, target)
	w.mu.Unlock()

	r := domain.NewScanResult("nuclei", domain.ScanTarget{Host: target})
	f := domain.NewFinding(domain.KindVulnerability, "10.0.0.1", "Drupalgeddon").WithSeverity(domain.SeverityCritical)
	f.Port = 80
	f.Evidence = map[string]any{"template_id": "CVE-2014-3704"}
	r.Findings = []domain.Finding{f}
	return &nuclei.Scan{Result: r, Total: 1}, nil
}

func finding(kind domain.FindingKind, host string, port uint16, service, name string, sev domain.Severity, ev map[string]any) domain.Finding {
	f := domain.NewFinding(kind, host, name).WithSeverity(sev)
	f.Port = port
	f.Service = service
	f.Evidence = ev
	return f
}

func sampleScanner() *fakeScanner {
	return &fakeScanner{
		hosts: []string{"10.0.0.1", "10.0.0.2"},
		findings: map[string][]domain.Finding{
			"10.0.0.1": {
				finding(domain.KindService, "10.0.0.1", 80, "http", "http", domain.SeverityInfo, nil),
				finding(domain.KindVulnerability, "10.0.0.1", 443, "https", "ssl-heartbleed", domain.SeverityHigh,
					map[string]any{"script": "ssl-heartbleed"}),
			},
			"10.0.0.2": {
				finding(domain.KindService, "10.0.0.2", 22, "ssh", "ssh", domain.SeverityInfo, nil),
			},
		},
	}
}

func newOrchestrator(t *testing.T, s Scanner, web WebScanner, cfg Config) (*Orchestrator, *artifact.Store) {
	store := artifact.New(t.TempDir(), nil)
	return NewOrchestrator(s, web, exploit.NewMapper(nil), report.NewGenerator(store, jsonreport.New(), nil), cfg, nil), store
}

func TestExecute(t *testing.T) {
	s := sampleScanner()
	web := &fakeWeb{}
	o, _ := newOrchestrator(t, s, web, Config{Concurrency: 2, WebScan: true})

	res, err := o.Execute(context.Background(), domain.ScanTarget{Host: "10.0.0.0/30", Ports: "web"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != "completed" || len(res.Hosts) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(s.scanned) != 2 {
		t.Fatalf("down host must not be scanned: %v", s.scanned)
	}

	// port 443 comes from a vuln finding on an https service
	wantURLs := []string{"https://10.0.0.1:443", "http://10.0.0.1:80"}
	if len(web.urls) != 2 {
		t.Fatalf("web urls = %v", web.urls)
	}
	got := map[string]bool{web.urls[0]: true, web.urls[1]: true}
	for _, u := range wantURLs {
		if !got[u] {
			t.Errorf("missing web scan of %s in %v", u, web.urls)
		}
	}

	if len(res.Plan) < 2 {
		t.Fatalf("expected at least 2 planned exploits, got %+v", res.Plan)
	}
	if res.Plan[0].Severity != domain.SeverityCritical || res.Plan[0].Resolution.Module != "exploit/unix/webapp/drupal_drupalgeddon" {
		t.Errorf("unexpected first plan entry %+v", res.Plan[0])
	}
	var heartbleed bool
	for _, p := range res.Plan {
		if p.VulnID == "ssl-heartbleed" && p.Resolution.Source == exploit.SourceExact {
			heartbleed = true
		}
	}
	if !heartbleed {
		t.Errorf("ssl-heartbleed not planned: %+v", res.Plan)
	}

	if res.ReportPath == "" {
		t.Fatal("no report written")
	}
	d, err := report.Load(res.ReportPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.ScanID != res.RunID || d.Summary.Total != res.Summary.Total {
		t.Errorf("report does not match run: %+v", d)
	}
	if st := o.Status(); st.Phase != PhaseDone || st.Progress != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestExecuteSkipDiscovery(t *testing.T) {
	s := sampleScanner()
	o, _ := newOrchestrator(t, s, nil, Config{SkipDiscovery: true})

	res, err := o.Execute(context.Background(), domain.ScanTarget{Host: "10.0.0.2"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if s.discovers != 0 || !reflect.DeepEqual(s.scanned, []string{"10.0.0.2"}) {
		t.Fatalf("discovers=%d scanned=%v", s.discovers, s.scanned)
	}
	if len(res.Plan) != 0 {
		t.Fatalf("unexpected plan %+v", res.Plan)
	}
}

func TestExecuteDiscoveryFailure(t *testing.T) {
	boom := errors.New("nmap exploded")

	s := sampleScanner()
	s.discErr = boom
	o, _ := newOrchestrator(t, s, nil, Config{})
	res, err := o.Execute(context.Background(), domain.ScanTarget{Host: "10.0.0.1"})
	if !errors.Is(err, boom) || res.Status != "failed" {
		t.Fatalf("expected failed run, got %v %+v", err, res)
	}

	s = sampleScanner()
	s.discErr = boom
	o, _ = newOrchestrator(t, s, nil, Config{ContinueOnError: true})
	res, err = o.Execute(context.Background(), domain.ScanTarget{Host: "10.0.0.1"})
	if err != nil || res.Status != "completed" || len(res.Errors) == 0 {
		t.Fatalf("expected completed run with errors, got %v %+v", err, res)
	}
	if !reflect.DeepEqual(s.scanned, []string{"10.0.0.1"}) {
		t.Fatalf("scanned = %v", s.scanned)
	}
}

func TestExecuteHostFailure(t *testing.T) {
	s := sampleScanner()
	s.vulnErr = map[string]error{"10.0.0.2": errors.New("timed out")}

	o, _ := newOrchestrator(t, s, nil, Config{Concurrency: 4})
	res, err := o.Execute(context.Background(), domain.ScanTarget{Host: "10.0.0.0/30"})
	if err == nil || res.Status != "failed" {
		t.Fatalf("expected failure, got %v %+v", err, res)
	}

	o, _ = newOrchestrator(t, sampleScannerWithErr(), nil, Config{Concurrency: 4, ContinueOnError: true})
	res, err = o.Execute(context.Background(), domain.ScanTarget{Host: "10.0.0.0/30"})
	if err != nil || res.Status != "completed" || len(res.Errors) != 1 {
		t.Fatalf("expected completed run with one error, got %v %+v", err, res)
	}
}

func sampleScannerWithErr() *fakeScanner {
	s := sampleScanner()
	s.vulnErr = map[string]error{"10.0.0.2": errors.New("timed out")}
	return s
}

func TestExecuteInvalidTarget(t *testing.T) {
	o, _ := newOrchestrator(t, sampleScanner(), nil, Config{})
	if _, err := o.Execute(context.Background(), domain.ScanTarget{Host: "-iL /etc/passwd"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestWebEndpoints(t *testing.T) {
	fs := []domain.Finding{
		finding(domain.KindService, "h", 8080, "http-proxy", "", "", nil),
		finding(domain.KindService, "h", 8443, "http", "", "", map[string]any{"tunnel": "ssl"}),
		finding(domain.KindVulnerability, "h", 8080, "http-proxy", "x", "", nil),
		finding(domain.KindService, "h", 22, "ssh", "", "", nil),
	}
	got := webEndpoints("h", fs)
	want := []string{"http://h:8080", "https://h:8443"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("webEndpoints = %v, want %v", got, want)
	}
}
