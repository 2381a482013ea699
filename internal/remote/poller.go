package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/report"
	"bytemomo/harpoon/internal/severity"
	"bytemomo/harpoon/pkg/harpoonerr"
	"bytemomo/harpoon/pkg/logger"

	log "github.com/sirupsen/logrus"
)

// API is the subset of the remote scanner used by the poller.
type API interface {
	CreateScan(ctx context.Context, templateUUID, name, targets string) (string, error)
	LaunchScan(ctx context.Context, id string) error
	ScanStatus(ctx context.Context, id string) (string, error)
	ScanResults(ctx context.Context, id string) ([]Vulnerability, error)
	Ping(ctx context.Context) error
}

// State is the lifecycle state of a ScanHandle.
type State string

const (
	StateSubmitting State = "submitting"
	StateLaunched   State = "launched"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

var (
	ErrInvalidState = errors.New("operation not valid in current scan state")
	ErrPollLimit    = errors.New("poll limit reached before scan completed")
)

// ScanHandle tracks one remote scan. Only the poller mutates it.
type ScanHandle struct {
	mu           sync.Mutex
	id           string
	target       domain.ScanTarget
	state        State
	remoteStatus string
	lastPoll     time.Time
	err          error
}

// HandleState is a snapshot of a ScanHandle.
type HandleState struct {
	ID           string            `json:"id"`
	Target       domain.ScanTarget `json:"target"`
	State        State             `json:"state"`
	RemoteStatus string            `json:"remote_status,omitempty"`
	LastPoll     time.Time         `json:"last_poll,omitempty"`
	Err          string            `json:"error,omitempty"`
}

func (h *ScanHandle) Snapshot() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := HandleState{
		ID:           h.id,
		Target:       h.target,
		State:        h.state,
		RemoteStatus: h.remoteStatus,
		LastPoll:     h.lastPoll,
	}
	if h.err != nil {
		s.Err = h.err.Error()
	}
	return s
}

func (h *ScanHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *ScanHandle) ID() string { return h.id }

// Poller drives remote scans through create, launch, poll and fetch.
type Poller struct {
	api       API
	indicator *Indicator
	template  string
	reports   *report.Generator
	log       *log.Entry
}

// NewPoller returns a Poller creating scans from templateUUID. A nil
// indicator gets a fresh one.
func NewPoller(api API, ind *Indicator, templateUUID string, l *log.Entry) *Poller {
	if ind == nil {
		ind = NewIndicator()
	}
	return &Poller{
		api:       api,
		indicator: ind,
		template:  templateUUID,
		log:       logger.OrNop(l).WithField("component", "remote"),
	}
}

// SetReports makes Run render a report for each completed scan.
func (p *Poller) SetReports(g *report.Generator) { p.reports = g }

func (p *Poller) Indicator() *Indicator { return p.indicator }

// Healthy reports whether the last remote interaction succeeded. Callers may
// skip work while it is false; an explicit call is still always attempted.
func (p *Poller) Healthy() bool {
	return p.indicator.Snapshot().Status != StatusError
}

// Check pings the service and updates the indicator.
func (p *Poller) Check(ctx context.Context) error {
	if err := p.api.Ping(ctx); err != nil {
		return p.fail(err)
	}
	p.indicator.Set(StatusOK, "remote scanner reachable")
	return nil
}

// Submit creates and launches a scan. A failed create returns no handle; a
// failed launch returns the handle in the error state.
func (p *Poller) Submit(ctx context.Context, target domain.ScanTarget, name string) (*ScanHandle, error) {
	target, err := target.Validate()
	if err != nil {
		return nil, err
	}
	if p.template == "" {
		return nil, harpoonerr.E("remote.submit", harpoonerr.ValidationError, "no scan template configured", nil)
	}
	if name == "" {
		name = "harpoon " + target.Host
	}

	h := &ScanHandle{target: target, state: StateSubmitting}
	p.indicator.Set(StatusConnecting, "creating scan for "+target.Host)

	id, err := p.api.CreateScan(ctx, p.template, name, strings.Join(target.Hosts(), ","))
	if err != nil {
		return nil, p.fail(err)
	}
	h.id = id
	h.state = StateLaunched

	entry := p.log.WithFields(log.Fields{"scan_id": id, "target": target.Host})
	entry.Info("Remote scan created")

	if err := p.api.LaunchScan(ctx, id); err != nil {
		h.state = StateError
		h.err = p.fail(err)
		entry.WithError(err).Error("Remote scan launch failed")
		return h, h.err
	}
	h.state = StateRunning
	p.indicator.Set(StatusOK, "scan "+id+" launched")
	entry.Info("Remote scan launched")
	return h, nil
}

// Poll performs one status request. It refuses handles that are already
// completed or errored without contacting the service.
func (p *Poller) Poll(ctx context.Context, h *ScanHandle) (State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateLaunched && h.state != StateRunning {
		return h.state, harpoonerr.E("remote.poll", harpoonerr.InvalidState,
			fmt.Sprintf("cannot poll scan %s in state %s", h.id, h.state), ErrInvalidState)
	}

	status, err := p.api.ScanStatus(ctx, h.id)
	h.lastPoll = time.Now().UTC()
	if err != nil {
		h.state = StateError
		h.err = p.fail(err)
		return h.state, h.err
	}
	h.remoteStatus = status

	entry := p.log.WithFields(log.Fields{"scan_id": h.id, "status": status})
	switch status {
	case "completed":
		h.state = StateCompleted
		p.indicator.Set(StatusOK, "scan "+h.id+" completed")
		entry.Info("Remote scan completed")
	case "canceled", "cancelled", "aborted", "stopped":
		h.state = StateError
		msg := fmt.Sprintf("scan %s %s", h.id, status)
		p.indicator.Set(StatusError, msg)
		h.err = harpoonerr.E("remote.poll", harpoonerr.RemoteServiceError, msg, nil)
		entry.Warn("Remote scan ended without results")
		return h.state, h.err
	default:
		h.state = StateRunning
		p.indicator.Set(StatusWarning, "scan "+h.id+" "+status)
		entry.Debug("Remote scan still running")
	}
	return h.state, nil
}

// Wait polls at most maxAttempts times, sleeping interval between polls.
func (p *Poller) Wait(ctx context.Context, h *ScanHandle, interval time.Duration, maxAttempts int) error {
	if maxAttempts <= 0 {
		return harpoonerr.E("remote.wait", harpoonerr.ValidationError, "max poll attempts must be positive", nil)
	}

	for attempt := 1; ; attempt++ {
		state, err := p.Poll(ctx, h)
		if err != nil {
			return err
		}
		if state == StateCompleted {
			return nil
		}
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	return harpoonerr.E("remote.wait", harpoonerr.InvalidState,
		fmt.Sprintf("scan %s not completed after %d polls", h.id, maxAttempts), ErrPollLimit)
}

// Fetch returns the findings of a completed scan.
func (p *Poller) Fetch(ctx context.Context, h *ScanHandle) ([]domain.Finding, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateCompleted {
		return nil, harpoonerr.E("remote.fetch", harpoonerr.InvalidState,
			fmt.Sprintf("cannot fetch scan %s in state %s", h.id, h.state), ErrInvalidState)
	}

	vulns, err := p.api.ScanResults(ctx, h.id)
	if err != nil {
		return nil, p.fail(err)
	}

	defaultHost := ""
	if hosts := h.target.Hosts(); len(hosts) > 0 {
		defaultHost = hosts[0]
	}

	out := make([]domain.Finding, 0, len(vulns))
	for _, v := range vulns {
		out = append(out, toFinding(v, defaultHost))
	}
	p.indicator.Set(StatusOK, fmt.Sprintf("scan %s returned %d findings", h.id, len(out)))
	return out, nil
}

// Run submits a scan, waits for it and returns the classified result.
func (p *Poller) Run(ctx context.Context, target domain.ScanTarget, name string, interval time.Duration, maxAttempts int) (*domain.ScanResult, error) {
	h, err := p.Submit(ctx, target, name)
	if err != nil {
		return nil, err
	}
	if err := p.Wait(ctx, h, interval, maxAttempts); err != nil {
		return nil, err
	}
	findings, err := p.Fetch(ctx, h)
	if err != nil {
		return nil, err
	}

	result := domain.NewScanResult("remote", h.target)
	// An empty vulnerability list says nothing about reachability.
	if len(findings) > 0 {
		result.HostStatus = domain.HostUp
	}
	result.Findings = severity.ClassifyFindings(findings)
	result.Raw.CommandLine = "remote scan " + h.id
	p.reports.Attach(result, artifact.GeneratedReports, map[string]any{"remote_scan_id": h.id})
	return result, nil
}

// fail records err on the indicator and returns it with the indicator
// message attached.
func (p *Poller) fail(err error) error {
	msg := "remote scanner error"
	if harpoonerr.Is(err, harpoonerr.RemoteServiceUnreachable) {
		msg = "remote scanner unreachable"
	}
	p.indicator.Set(StatusError, fmt.Sprintf("%s: %v", msg, err))
	return fmt.Errorf("%s: %w", msg, err)
}

func toFinding(v Vulnerability, defaultHost string) domain.Finding {
	host := v.Host
	if host == "" {
		host = defaultHost
	}
	name := v.PluginName
	if name == "" {
		name = "plugin " + fmt.Sprint(v.PluginID)
	}

	f := domain.NewFinding(domain.KindRemote, host, name).WithSeverity(remoteSeverity(v.Severity))
	if port, ok := number(v.Port); ok && port > 0 && port <= 65535 {
		f.Port = uint16(port)
	}
	f.Protocol = v.Protocol
	f.Details = v.Description
	f.Evidence = map[string]any{
		"plugin_id":     fmt.Sprint(v.PluginID),
		"plugin_family": v.PluginFamily,
		"count":         v.Count,
	}
	return f
}

// remoteSeverity maps the scanner's 0..4 scale, or a label, to a bucket.
func remoteSeverity(v any) domain.Severity {
	n, ok := number(v)
	if !ok {
		if s, isStr := v.(string); isStr {
			return domain.ParseSeverity(s)
		}
		return domain.SeverityUnknown
	}
	switch n {
	case 0:
		return domain.SeverityInfo
	case 1:
		return domain.SeverityLow
	case 2:
		return domain.SeverityMedium
	case 3:
		return domain.SeverityHigh
	case 4:
		return domain.SeverityCritical
	}
	return domain.SeverityUnknown
}

func number(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}
