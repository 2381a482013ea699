package scanner

import (
	"context"
	"time"

	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/invoker"
	"bytemomo/harpoon/internal/normalizer"
	"bytemomo/harpoon/internal/report"
	"bytemomo/harpoon/internal/severity"
	"bytemomo/harpoon/pkg/logger"

	log "github.com/sirupsen/logrus"
)

const (
	Tool           = "nmap"
	DefaultTimeout = 5 * time.Minute
)

// Scanner runs the nmap based workflows: discovery, port scan, service
// enumeration and vulnerability scan.
type Scanner struct {
	tools   domain.ToolRunner
	reports *report.Generator
	raw     *report.Generator
	timeout time.Duration
	log     *log.Entry
}

// New returns a Scanner. reports renders the human report of vulnerability
// scans; raw stores their JSON result. Either may be nil.
func New(tools domain.ToolRunner, reports, raw *report.Generator, timeout time.Duration, l *log.Entry) *Scanner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scanner{
		tools:   tools,
		reports: reports,
		raw:     raw,
		timeout: timeout,
		log:     logger.OrNop(l).WithField("component", "scanner"),
	}
}

// Discover runs a ping sweep and returns one host finding per live host.
func (s *Scanner) Discover(ctx context.Context, target domain.ScanTarget) (*domain.ScanResult, error) {
	result, out, err := s.run(ctx, "discovery", target, []string{"-sn"}, false)
	if err != nil {
		return result, err
	}
	result.Findings = out.Hosts
	return result, nil
}

// ScanPorts runs a TCP connect scan and returns one service finding per
// open port.
func (s *Scanner) ScanPorts(ctx context.Context, target domain.ScanTarget) (*domain.ScanResult, error) {
	result, out, err := s.run(ctx, "ports", target, []string{"-sT"}, true)
	if err != nil {
		return result, err
	}
	result.Findings = out.Findings
	return result, nil
}

// EnumerateServices adds version detection to the port scan.
func (s *Scanner) EnumerateServices(ctx context.Context, target domain.ScanTarget) (*domain.ScanResult, error) {
	result, out, err := s.run(ctx, "services", target, []string{"-sV"}, true)
	if err != nil {
		return result, err
	}
	result.Findings = out.Findings
	return result, nil
}

// VulnScan runs the nmap vuln script category, classifies what it finds and
// stores both the raw result and a rendered report. Report failures become
// caveats.
func (s *Scanner) VulnScan(ctx context.Context, target domain.ScanTarget) (*domain.ScanResult, error) {
	result, out, err := s.run(ctx, "vuln", target, []string{"-sV", "--script", "vuln"}, true)
	if err != nil {
		return result, err
	}
	result.Findings = severity.ClassifyFindings(out.Findings)

	if s.raw != nil {
		if _, err := s.raw.SaveRaw(result, artifact.VulnReports); err != nil {
			s.log.WithError(err).Warn("Could not store raw vulnerability result")
			result.AddCaveat("raw result not stored: " + err.Error())
		}
	}
	s.reports.Attach(result, artifact.GeneratedReports, nil)

	s.log.WithFields(log.Fields{
		"target":          result.Target.Host,
		"vulnerabilities": len(result.FindingsOf(domain.KindVulnerability)),
	}).Info("Vulnerability scan complete")
	return result, nil
}

func (s *Scanner) run(ctx context.Context, mode string, target domain.ScanTarget, flags []string, withPorts bool) (*domain.ScanResult, normalizer.NmapOutput, error) {
	var out normalizer.NmapOutput

	target, err := target.Validate()
	if err != nil {
		return nil, out, err
	}

	args := append([]string{}, flags...)
	if withPorts {
		args = append(args, "-p", target.Ports)
	}
	args = append(args, "-oX", "-")
	args = append(args, target.Hosts()...)

	inv := domain.Invocation{
		Tool:         Tool,
		Args:         args,
		Timeout:      s.timeout,
		AllowPartial: true,
	}

	result := domain.NewScanResult(Tool, target)
	entry := s.log.WithFields(log.Fields{"mode": mode, "target": target.Host, "scan_id": result.ID})
	entry.Info("Starting nmap")

	raw, runErr := s.tools.Invoke(ctx, inv)
	result.Raw = raw
	if runErr != nil {
		caveat, ok := invoker.Partial(inv, raw, runErr)
		if !ok {
			return result, out, runErr
		}
		result.AddCaveat(caveat)
	}

	out, err = normalizer.Nmap([]byte(raw.Stdout))
	if err != nil {
		if runErr != nil {
			return result, out, runErr
		}
		return result, out, err
	}
	result.HostStatus = out.HostStatus

	entry.WithFields(log.Fields{
		"findings": len(out.Findings),
		"hosts":    len(out.Hosts),
		"status":   out.HostStatus,
	}).Info("Nmap finished")
	return result, out, nil
}
