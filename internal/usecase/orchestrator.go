package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/exploit"
	"bytemomo/harpoon/internal/nuclei"
	"bytemomo/harpoon/internal/report"
	"bytemomo/harpoon/pkg/logger"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Scanner is the nmap side of an assessment.
type Scanner interface {
	Discover(ctx context.Context, target domain.ScanTarget) (*domain.ScanResult, error)
	VulnScan(ctx context.Context, target domain.ScanTarget) (*domain.ScanResult, error)
}

// WebScanner scans one URL.
type WebScanner interface {
	Scan(ctx context.Context, target string, opts nuclei.Options) (*nuclei.Scan, error)
}

// Planner maps a vulnerability to an exploit module.
type Planner interface {
	Resolve(vulnID string, port uint16, override string) exploit.Resolution
}

// Phase names the step an assessment is in.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDiscovering Phase = "discovering"
	PhaseScanning    Phase = "scanning"
	PhasePlanning    Phase = "planning"
	PhaseReporting   Phase = "reporting"
	PhaseDone        Phase = "done"
)

// Status is a snapshot of a running assessment.
type Status struct {
	Phase       Phase         `json:"phase"`
	Progress    float64       `json:"progress"`
	CurrentHost string        `json:"current_host,omitempty"`
	StartTime   time.Time     `json:"start_time"`
	ElapsedTime time.Duration `json:"elapsed_time"`
	Message     string        `json:"message,omitempty"`
}

// Config tunes an assessment run.
type Config struct {
	// Concurrency bounds the hosts scanned in parallel.
	Concurrency int `json:"concurrency"`
	// ContinueOnError keeps going when a host or phase fails.
	ContinueOnError bool `json:"continue_on_error"`
	// SkipDiscovery scans every listed host without a ping sweep first.
	SkipDiscovery bool `json:"skip_discovery"`
	// WebScan runs nuclei against every HTTP service found.
	WebScan bool           `json:"web_scan"`
	Nuclei  nuclei.Options `json:"nuclei,omitempty"`
}

// PlannedExploit is a vulnerability together with the module that would
// exercise it. Nothing is executed during an assessment.
type PlannedExploit struct {
	Host       string             `json:"host"`
	Port       uint16             `json:"port,omitempty"`
	VulnID     string             `json:"vuln_id"`
	Severity   domain.Severity    `json:"severity"`
	Resolution exploit.Resolution `json:"resolution"`
}

// HostAssessment collects the scan results of one host.
type HostAssessment struct {
	Host   string               `json:"host"`
	Vuln   *domain.ScanResult   `json:"vuln,omitempty"`
	Web    []*domain.ScanResult `json:"web,omitempty"`
	Errors []string             `json:"errors,omitempty"`
}

// Findings returns every finding collected for the host.
func (h HostAssessment) Findings() []domain.Finding {
	var out []domain.Finding
	if h.Vuln != nil {
		out = append(out, h.Vuln.Findings...)
	}
	for _, w := range h.Web {
		out = append(out, w.Findings...)
	}
	return out
}

// Result is the outcome of a full assessment across every host of a target.
type Result struct {
	RunID      string           `json:"run_id"`
	Target     string           `json:"target"`
	StartTime  time.Time        `json:"start_time"`
	EndTime    time.Time        `json:"end_time"`
	Duration   time.Duration    `json:"duration"`
	Status     string           `json:"status"` // completed, failed, cancelled
	Hosts      []HostAssessment `json:"hosts"`
	Plan       []PlannedExploit `json:"plan"`
	Summary    domain.Summary   `json:"summary"`
	ReportPath string           `json:"report_path,omitempty"`
	Errors     []string         `json:"errors,omitempty"`
}

// Orchestrator chains discovery, vulnerability scanning, web scanning,
// exploit planning and reporting.
type Orchestrator struct {
	scanner Scanner
	web     WebScanner
	planner Planner
	reports *report.Generator
	cfg     Config
	log     *log.Entry

	mu     sync.Mutex
	status Status
}

// NewOrchestrator wires the scanners and planner into an Orchestrator. A
// non-positive concurrency is treated as 1.
func NewOrchestrator(s Scanner, web WebScanner, p Planner, reports *report.Generator, cfg Config, l *log.Entry) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{
		scanner: s,
		web:     web,
		planner: p,
		reports: reports,
		cfg:     cfg,
		log:     logger.OrNop(l).WithField("component", "assessment"),
		status:  Status{Phase: PhaseIdle},
	}
}

// Status returns the progress of the current or last assessment.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.status
	if !s.StartTime.IsZero() && s.Phase != PhaseDone {
		s.ElapsedTime = time.Since(s.StartTime)
	}
	return s
}

func (o *Orchestrator) updateStatus(phase Phase, progress float64, host, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Phase = phase
	o.status.Progress = progress
	o.status.CurrentHost = host
	o.status.Message = msg
	if phase == PhaseDone {
		o.status.ElapsedTime = time.Since(o.status.StartTime)
	}
}

// Execute runs a complete assessment of target.
func (o *Orchestrator) Execute(ctx context.Context, target domain.ScanTarget) (*Result, error) {
	target, err := target.Validate()
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:     uuid.NewString(),
		Target:    target.String(),
		StartTime: time.Now(),
		Status:    "running",
		Plan:      []PlannedExploit{},
	}
	o.mu.Lock()
	o.status = Status{Phase: PhaseIdle, StartTime: res.StartTime}
	o.mu.Unlock()

	entry := o.log.WithFields(log.Fields{"run_id": res.RunID, "target": res.Target})
	entry.Info("Starting assessment")

	finish := func(status string, err error) (*Result, error) {
		res.EndTime = time.Now()
		res.Duration = res.EndTime.Sub(res.StartTime)
		res.Status = status
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			res.Status = "cancelled"
		}
		o.updateStatus(PhaseDone, 1, "", res.Status)
		entry.WithFields(log.Fields{
			"status":   res.Status,
			"hosts":    len(res.Hosts),
			"findings": res.Summary.Total,
			"duration": res.Duration,
		}).Info("Assessment finished")
		return res, err
	}

	o.updateStatus(PhaseDiscovering, 0, "", "discovering hosts")
	hosts, err := o.discover(ctx, target)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("discovery: %v", err))
		if !o.cfg.ContinueOnError {
			return finish("failed", err)
		}
		hosts = target.Hosts()
	}
	if len(hosts) == 0 {
		return finish("completed", nil)
	}

	res.Hosts = o.scanHosts(ctx, hosts, target.Ports)
	for _, h := range res.Hosts {
		for _, e := range h.Errors {
			res.Errors = append(res.Errors, h.Host+": "+e)
		}
	}
	if len(res.Errors) > 0 && !o.cfg.ContinueOnError {
		return finish("failed", fmt.Errorf("assessment of %s: %s", res.Target, res.Errors[0]))
	}
	if err := ctx.Err(); err != nil {
		return finish("cancelled", err)
	}

	o.updateStatus(PhasePlanning, 0.8, "", "planning exploits")
	var all []domain.Finding
	for _, h := range res.Hosts {
		all = append(all, h.Findings()...)
	}
	res.Plan = o.plan(all)
	res.Summary = domain.Summarize(all)

	o.updateStatus(PhaseReporting, 0.9, "", "generating report")
	if o.reports != nil {
		combined := domain.NewScanResult("assessment", target)
		combined.ID = res.RunID
		combined.Findings = all
		if len(hosts) > 0 {
			combined.HostStatus = domain.HostUp
		}
		for _, e := range res.Errors {
			combined.AddCaveat(e)
		}
		n := len(combined.Caveats)
		o.reports.Attach(combined, artifact.GeneratedReports, map[string]any{
			"hosts":        hosts,
			"exploit_plan": res.Plan,
		})
		res.ReportPath = combined.RenderedReportPath
		res.Errors = append(res.Errors, combined.Caveats[n:]...)
	}

	return finish("completed", nil)
}

func (o *Orchestrator) discover(ctx context.Context, target domain.ScanTarget) ([]string, error) {
	if o.cfg.SkipDiscovery {
		return target.Hosts(), nil
	}

	disc, err := o.scanner.Discover(ctx, domain.ScanTarget{Host: target.Host})
	if err != nil {
		return nil, err
	}
	var hosts []string
	for _, f := range disc.FindingsOf(domain.KindHost) {
		if state, _ := f.Evidence["state"].(string); state != "" && !strings.EqualFold(state, "up") {
			continue
		}
		hosts = append(hosts, f.Host)
	}
	return hosts, nil
}

func (o *Orchestrator) scanHosts(ctx context.Context, hosts []string, ports string) []HostAssessment {
	out := make([]HostAssessment, len(hosts))
	sem := make(chan struct{}, o.cfg.Concurrency)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	for i, h := range hosts {
		wg.Add(1)
		go func(i int, h string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out[i] = HostAssessment{Host: h, Errors: []string{ctx.Err().Error()}}
				return
			}
			defer func() { <-sem }()

			mu.Lock()
			p := o.progress(done, len(hosts))
			mu.Unlock()
			o.updateStatus(PhaseScanning, p, h, "scanning "+h)
			out[i] = o.scanHost(ctx, h, ports)

			mu.Lock()
			done++
			mu.Unlock()
		}(i, h)
	}
	wg.Wait()
	return out
}

func (o *Orchestrator) progress(done, total int) float64 {
	return 0.1 + 0.7*float64(done)/float64(total)
}

func (o *Orchestrator) scanHost(ctx context.Context, host, ports string) HostAssessment {
	ha := HostAssessment{Host: host}

	vr, err := o.scanner.VulnScan(ctx, domain.ScanTarget{Host: host, Ports: ports})
	ha.Vuln = vr
	if err != nil {
		ha.Errors = append(ha.Errors, fmt.Sprintf("vuln scan: %v", err))
		if vr == nil {
			return ha
		}
	}

	if !o.cfg.WebScan || o.web == nil || vr == nil {
		return ha
	}
	for _, url := range webEndpoints(host, vr.Findings) {
		scan, err := o.web.Scan(ctx, url, o.cfg.Nuclei)
		if scan != nil && scan.Result != nil {
			ha.Web = append(ha.Web, scan.Result)
		}
		if err != nil {
			ha.Errors = append(ha.Errors, fmt.Sprintf("web scan %s: %v", url, err))
		}
	}
	return ha
}

// webEndpoints returns one URL per port that carries an HTTP service.
func webEndpoints(host string, findings []domain.Finding) []string {
	seen := map[uint16]string{}
	for _, f := range findings {
		if f.Port == 0 || !strings.Contains(strings.ToLower(f.Service), "http") {
			continue
		}
		if _, ok := seen[f.Port]; ok {
			continue
		}
		scheme := "http"
		svc := strings.ToLower(f.Service)
		tunnel, _ := f.Evidence["tunnel"].(string)
		if strings.Contains(svc, "https") || strings.Contains(svc, "ssl") || tunnel == "ssl" || f.Port == 443 || f.Port == 8443 {
			scheme = "https"
		}
		seen[f.Port] = fmt.Sprintf("%s://%s:%d", scheme, host, f.Port)
	}

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, int(p))
	}
	sort.Ints(ports)
	urls := make([]string, 0, len(ports))
	for _, p := range ports {
		urls = append(urls, seen[uint16(p)])
	}
	return urls
}

// plan resolves every vulnerability finding, highest severity first.
func (o *Orchestrator) plan(findings []domain.Finding) []PlannedExploit {
	out := []PlannedExploit{}
	if o.planner == nil {
		return out
	}

	seen := map[string]struct{}{}
	for _, f := range findings {
		if f.Kind != domain.KindVulnerability {
			continue
		}
		id := vulnID(f)
		key := fmt.Sprintf("%s|%d|%s", f.Host, f.Port, id)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		r := o.planner.Resolve(id, f.Port, "")
		if r.Source == exploit.SourceUnresolved {
			continue
		}
		out = append(out, PlannedExploit{
			Host:       f.Host,
			Port:       f.Port,
			VulnID:     id,
			Severity:   f.Severity,
			Resolution: r,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

func vulnID(f domain.Finding) string {
	for _, k := range []string{"template_id", "script"} {
		if v, ok := f.Evidence[k].(string); ok && v != "" {
			return v
		}
	}
	return f.Name
}
