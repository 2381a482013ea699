package nuclei

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/normalizer"
	"bytemomo/harpoon/internal/report"
	"bytemomo/harpoon/pkg/harpoonerr"
	"bytemomo/harpoon/pkg/logger"

	log "github.com/sirupsen/logrus"
)

const (
	Tool           = "nuclei"
	DefaultTimeout = 5 * time.Minute
	concurrency    = "25"
)

// Options are the user tunables of a nuclei run. Zero values are omitted.
type Options struct {
	Templates string `json:"templates,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Tags      string `json:"tags,omitempty"`
	RateLimit int    `json:"rate_limit,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
	Retries   int    `json:"retries,omitempty"`
}

// Scan is the outcome of one nuclei run. Total counts raw output lines,
// including the ones that could not be parsed.
type Scan struct {
	Result     *domain.ScanResult `json:"result"`
	Total      int                `json:"total"`
	Skipped    int                `json:"skipped"`
	OutputPath string             `json:"output_path"`
}

// ReportInfo describes one stored nuclei output file.
type ReportInfo struct {
	artifact.Entry
	FindingCount int `json:"finding_count"`
}

// Runner runs nuclei against single web targets and keeps its JSONL output
// in the artifact store.
type Runner struct {
	tools     domain.ToolRunner
	store     *artifact.Store
	reports   *report.Generator
	templates string
	timeout   time.Duration
	log       *log.Entry
}

// NewRunner returns a Runner. templates is used when a scan names none.
func NewRunner(tools domain.ToolRunner, store *artifact.Store, reports *report.Generator, templates string, timeout time.Duration, l *log.Entry) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		tools:     tools,
		store:     store,
		reports:   reports,
		templates: templates,
		timeout:   timeout,
		log:       logger.OrNop(l).WithField("component", "nuclei"),
	}
}

// CleanURL repairs doubled scheme prefixes.
func CleanURL(target string) string {
	target = strings.TrimSpace(target)
	switch {
	case strings.HasPrefix(target, "https://http://"):
		return "http://" + strings.TrimPrefix(target, "https://http://")
	case strings.HasPrefix(target, "http://https://"):
		return "https://" + strings.TrimPrefix(target, "http://https://")
	}
	return target
}

// Scan runs nuclei against target. Non-zero exits that still produced
// output are kept as a result with a caveat.
func (r *Runner) Scan(ctx context.Context, target string, opts Options) (*Scan, error) {
	const op = "nuclei.scan"

	t, err := domain.ScanTarget{Host: CleanURL(target)}.Validate()
	if err != nil {
		return nil, err
	}
	if len(t.Hosts()) != 1 {
		return nil, harpoonerr.E(op, harpoonerr.ValidationError, "nuclei scans exactly one target", nil)
	}
	t.Ports = ""
	if opts.Templates == "" {
		opts.Templates = r.templates
	}
	for _, v := range []string{opts.Templates, opts.Severity, opts.Tags} {
		if strings.HasPrefix(v, "-") {
			return nil, harpoonerr.E(op, harpoonerr.ValidationError, fmt.Sprintf("invalid option %q", v), nil)
		}
	}

	out, err := r.store.Create(artifact.NucleiReports, "scan", "jsonl")
	if err != nil {
		return nil, err
	}

	inv := domain.Invocation{
		Tool:         Tool,
		Args:         buildArgs(t.Host, out, opts),
		Timeout:      r.timeout,
		AllowPartial: true,
	}

	result := domain.NewScanResult(Tool, t)
	entry := r.log.WithFields(log.Fields{"target": t.Host, "scan_id": result.ID, "path": out})
	entry.Info("Starting nuclei")

	raw, runErr := r.tools.Invoke(ctx, inv)
	result.Raw = raw

	data, readErr := os.ReadFile(out)
	if runErr != nil {
		if !inv.AllowPartial || readErr != nil || len(strings.TrimSpace(string(data))) == 0 ||
			harpoonerr.Is(runErr, harpoonerr.ToolNotFound) {
			// Drop the empty reserved file so Reports never lists it.
			if rmErr := os.Remove(out); rmErr != nil && !os.IsNotExist(rmErr) {
				entry.WithError(rmErr).Warn("Could not remove empty nuclei output")
			}
			return &Scan{Result: result}, runErr
		}
		result.AddCaveat("partial output kept: " + runErr.Error())
	} else if readErr != nil {
		return &Scan{Result: result},
			harpoonerr.E(op, harpoonerr.ParseError, "nuclei produced no output file", readErr)
	}

	parsed := normalizer.NDJSON(data)
	result.Findings = parsed.Findings
	result.HostStatus = domain.HostUp
	if err := result.SetRawReport(out); err != nil {
		return nil, err
	}
	if parsed.Skipped > 0 {
		result.AddCaveat(fmt.Sprintf("%d of %d output lines could not be parsed", parsed.Skipped, parsed.Total))
	}

	r.reports.Attach(result, artifact.NucleiReports, map[string]any{
		"raw_lines": parsed.Total,
		"templates": opts.Templates,
	})

	entry.WithFields(log.Fields{"findings": len(parsed.Findings), "lines": parsed.Total}).Info("Nuclei finished")
	return &Scan{Result: result, Total: parsed.Total, Skipped: parsed.Skipped, OutputPath: out}, nil
}

// Reports lists stored nuclei outputs, newest first.
func (r *Runner) Reports() ([]ReportInfo, error) {
	entries, err := r.store.List(artifact.NucleiReports)
	if err != nil {
		return nil, err
	}
	out := make([]ReportInfo, 0, len(entries))
	for _, e := range entries {
		if !strings.HasSuffix(e.Name, ".jsonl") {
			continue
		}
		data, err := os.ReadFile(e.Path)
		if err != nil {
			continue
		}
		out = append(out, ReportInfo{Entry: e, FindingCount: len(normalizer.NDJSON(data).Findings)})
	}
	return out, nil
}

// Report parses one stored nuclei output.
func (r *Runner) Report(name string) (normalizer.NDJSONOutput, error) {
	data, err := r.store.Open(artifact.NucleiReports, name)
	if err != nil {
		return normalizer.NDJSONOutput{}, err
	}
	return normalizer.NDJSON(data), nil
}

func buildArgs(target, out string, opts Options) []string {
	args := []string{"-u", target}
	if opts.Templates != "" {
		args = append(args, "-t", opts.Templates)
	}
	args = append(args, "-jsonl", "-o", out, "-c", concurrency, "-silent")
	if opts.Severity != "" {
		args = append(args, "-severity", opts.Severity)
	}
	if opts.Tags != "" {
		args = append(args, "-tags", opts.Tags)
	}
	if opts.RateLimit > 0 {
		args = append(args, "-rate-limit", strconv.Itoa(opts.RateLimit))
	}
	if opts.Timeout > 0 {
		args = append(args, "-timeout", strconv.Itoa(opts.Timeout))
	}
	if opts.Retries > 0 {
		args = append(args, "-retries", strconv.Itoa(opts.Retries))
	}
	return args
}
