package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// FindingKind tells what sort of condition a Finding describes.
type FindingKind string

const (
	KindService       FindingKind = "service"
	KindVulnerability FindingKind = "vulnerability"
	KindCredential    FindingKind = "credential"
	KindHost          FindingKind = "host"
	KindRemote        FindingKind = "remote"
)

// Finding is the canonical unit of a discovered condition. Findings are
// values: copy-on-change, never mutated in place.
type Finding struct {
	ID        string         `json:"id"`
	Kind      FindingKind    `json:"kind"`
	Host      string         `json:"host"`
	Port      uint16         `json:"port,omitempty"`
	Protocol  string         `json:"protocol,omitempty"`
	Service   string         `json:"service,omitempty"`
	Name      string         `json:"name"`
	Severity  Severity       `json:"severity"`
	Details   string         `json:"details,omitempty"`
	Evidence  map[string]any `json:"evidence,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewFinding returns a Finding with a fresh ID and unknown severity.
func NewFinding(kind FindingKind, host, name string) Finding {
	return Finding{
		ID:        uuid.NewString(),
		Kind:      kind,
		Host:      host,
		Name:      name,
		Severity:  SeverityUnknown,
		Timestamp: time.Now().UTC(),
	}
}

// WithSeverity returns a copy of f with the given severity.
func (f Finding) WithSeverity(s Severity) Finding {
	f.Severity = s
	return f
}

// HostStatus is the reachability of a scanned host as reported by the tool.
type HostStatus string

const (
	HostUp      HostStatus = "up"
	HostDown    HostStatus = "down"
	HostUnknown HostStatus = "unknown"
)

// Invocation describes one external tool execution. It is built right before
// the process is spawned and never persisted.
type Invocation struct {
	Tool    string
	Args    []string
	Dir     string
	Timeout time.Duration
	// AllowedExitCodes lists non-zero exit codes the caller treats as
	// success.
	AllowedExitCodes []int
	// AllowPartial lets a workflow keep parseable stdout from a failed run
	// as a caveated result.
	AllowPartial bool
}

// RawOutput is what a tool produced. It is kept on the ScanResult for
// diagnostic display.
type RawOutput struct {
	ExitCode    int           `json:"exit_code"`
	Stdout      string        `json:"stdout,omitempty"`
	Stderr      string        `json:"stderr,omitempty"`
	CommandLine string        `json:"command_line"`
	Duration    time.Duration `json:"duration"`
}

var ErrPathAlreadySet = errors.New("artifact path already set")

// ScanResult is created once per scan invocation. Only the two artifact
// paths are written afterwards, each at most once.
type ScanResult struct {
	ID                 string     `json:"id"`
	Tool               string     `json:"tool"`
	Target             ScanTarget `json:"target"`
	StartedAt          time.Time  `json:"started_at"`
	HostStatus         HostStatus `json:"host_status"`
	Findings           []Finding  `json:"findings"`
	Raw                RawOutput  `json:"raw"`
	Caveats            []string   `json:"caveats,omitempty"`
	RawReportPath      string     `json:"raw_report_path,omitempty"`
	RenderedReportPath string     `json:"rendered_report_path,omitempty"`
}

// NewScanResult starts a result for the given tool and target.
func NewScanResult(tool string, target ScanTarget) *ScanResult {
	return &ScanResult{
		ID:         uuid.NewString(),
		Tool:       tool,
		Target:     target,
		StartedAt:  time.Now().UTC(),
		HostStatus: HostUnknown,
		Findings:   []Finding{},
	}
}

// SetRawReport records where the raw tool output was stored. A path can be
// set only once; a second call returns ErrPathAlreadySet.
func (r *ScanResult) SetRawReport(path string) error {
	if r.RawReportPath != "" {
		return ErrPathAlreadySet
	}
	r.RawReportPath = path
	return nil
}

// SetRenderedReport records the rendered report path, once.
func (r *ScanResult) SetRenderedReport(path string) error {
	if r.RenderedReportPath != "" {
		return ErrPathAlreadySet
	}
	r.RenderedReportPath = path
	return nil
}

// AddCaveat records a partial-success note.
func (r *ScanResult) AddCaveat(msg string) {
	r.Caveats = append(r.Caveats, msg)
}

// FindingsOf returns the findings of the given kind, in discovery order.
func (r *ScanResult) FindingsOf(kind FindingKind) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Summary holds the per-severity statistics of a set of findings.
type Summary struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// Summarize counts findings per severity. Every bucket is present.
func Summarize(findings []Finding) Summary {
	s := Summary{BySeverity: make(map[Severity]int, len(Severities))}
	for _, sev := range Severities {
		s.BySeverity[sev] = 0
	}
	for _, f := range findings {
		sev := f.Severity
		if _, ok := s.BySeverity[sev]; !ok {
			sev = SeverityUnknown
		}
		s.BySeverity[sev]++
		s.Total++
	}
	return s
}

// WordlistEntry is a user or password list available to the brute forcer.
type WordlistEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}
