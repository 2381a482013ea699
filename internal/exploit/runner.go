package exploit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/pkg/harpoonerr"
	"bytemomo/harpoon/pkg/logger"

	log "github.com/sirupsen/logrus"
)

const (
	Tool           = "msfconsole"
	DefaultTimeout = 3 * time.Minute
)

var optionKey = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Request asks for one exploitation attempt.
type Request struct {
	VulnID  string            `json:"vuln_id"`
	Host    string            `json:"host"`
	Port    uint16            `json:"port"`
	Module  string            `json:"module,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

// Result is the outcome of a run. It is also the content of the stored
// exploit report.
type Result struct {
	VulnID     string            `json:"vulnerability"`
	Target     string            `json:"target"`
	Port       uint16            `json:"port"`
	Module     string            `json:"module"`
	Resolution Resolution        `json:"resolution"`
	Options    map[string]string `json:"options,omitempty"`
	Output     string            `json:"output"`
	Success    bool              `json:"success"`
	Status     string            `json:"status"`
	ScriptPath string            `json:"script_path,omitempty"`
	ReportPath string            `json:"report_path,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// ReportSummary is one line of the exploit report listing.
type ReportSummary struct {
	Name      string    `json:"name"`
	VulnID    string    `json:"vulnerability"`
	Target    string    `json:"target"`
	Module    string    `json:"module"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Runner resolves a module and drives msfconsole with a generated resource
// script.
type Runner struct {
	mapper  *Mapper
	tools   domain.ToolRunner
	store   *artifact.Store
	timeout time.Duration
	log     *log.Entry
}

// NewRunner returns a Runner resolving modules through m. A non-positive
// timeout means DefaultTimeout.
func NewRunner(m *Mapper, tools domain.ToolRunner, store *artifact.Store, timeout time.Duration, l *log.Entry) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		mapper:  m,
		tools:   tools,
		store:   store,
		timeout: timeout,
		log:     logger.OrNop(l).WithField("component", "exploit"),
	}
}

// Available reports whether msfconsole is installed.
func (r *Runner) Available() bool { return r.tools.Available(Tool) }

// Run resolves, scripts and launches one exploitation attempt. When no
// module can be resolved the returned error is Unresolved and nothing runs.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	res := r.mapper.Resolve(req.VulnID, req.Port, req.Module)
	result := &Result{
		VulnID:     req.VulnID,
		Target:     req.Host,
		Port:       req.Port,
		Module:     res.Module,
		Resolution: res,
		Timestamp:  time.Now().UTC(),
	}
	entry := r.log.WithFields(log.Fields{
		"vuln":   req.VulnID,
		"target": req.Host,
		"port":   req.Port,
		"module": res.Module,
		"source": res.Source,
	})

	if res.RequiresManual {
		result.Status = "manual module required"
		entry.Warn("No module mapped")
		return result, res.Err()
	}
	if res.Source == SourceManual && !modulePattern.MatchString(res.Module) {
		return nil, harpoonerr.E("exploit.run", harpoonerr.ValidationError, fmt.Sprintf("invalid module %q", res.Module), nil)
	}

	result.Options = defaultOptions(req.VulnID)
	for k, v := range req.Options {
		result.Options[k] = v
	}

	script, err := r.store.Save(artifact.Scripts, "exploit", "rc", []byte(ResourceScript(res.Module, req.Host, req.Port, result.Options)))
	if err != nil {
		return nil, fmt.Errorf("write resource script: %w", err)
	}
	result.ScriptPath = script

	entry.Info("Launching exploit")
	out, err := r.tools.Invoke(ctx, domain.Invocation{
		Tool:    Tool,
		Args:    []string{"-q", "-r", script},
		Timeout: r.timeout,
	})
	result.Output = strings.TrimSpace(out.Stdout + "\n" + out.Stderr)
	if err != nil {
		result.Status = "failed"
		if harpoonerr.Is(err, harpoonerr.ProcessTimeout) {
			result.Status = "timeout"
		}
		entry.WithError(err).Error("Exploit run failed")
		return result, err
	}

	result.Success = succeeded(result.Output)
	result.Status = "failed"
	if result.Success {
		result.Status = "success"
	}

	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return result, fmt.Errorf("encode exploit report: %w", err)
	}
	path, err := r.store.Save(artifact.ExploitReports, req.Host, "json", b)
	if err != nil {
		entry.WithError(err).Warn("Could not store exploit report")
		return result, nil
	}
	result.ReportPath = path

	entry.WithFields(log.Fields{"success": result.Success, "path": path}).Info("Exploit finished")
	return result, nil
}

// Reports lists stored exploit reports, newest first.
func (r *Runner) Reports() ([]ReportSummary, error) {
	entries, err := r.store.List(artifact.ExploitReports)
	if err != nil {
		return nil, err
	}

	out := make([]ReportSummary, 0, len(entries))
	for _, e := range entries {
		if !strings.HasSuffix(e.Name, ".json") {
			continue
		}
		res, err := readReport(e.Path)
		if err != nil {
			r.log.WithError(err).WithField("path", e.Path).Warn("Skipping unreadable exploit report")
			continue
		}
		out = append(out, ReportSummary{
			Name:      e.Name,
			VulnID:    res.VulnID,
			Target:    res.Target,
			Module:    res.Module,
			Success:   res.Success,
			Timestamp: res.Timestamp,
		})
	}
	return out, nil
}

// Report returns one stored exploit report.
func (r *Runner) Report(name string) (*Result, error) {
	path, err := r.store.Resolve(artifact.ExploitReports, name)
	if err != nil {
		return nil, err
	}
	return readReport(path)
}

// ResourceScript renders the msfconsole resource file for one attempt.
// Options are emitted in key order.
func ResourceScript(module, host string, port uint16, options map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "use %s\n", module)
	fmt.Fprintf(&b, "set RHOSTS %s\n", host)
	fmt.Fprintf(&b, "set RPORT %d\n", port)

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "set %s %s\n", k, options[k])
	}

	if strings.HasPrefix(module, "auxiliary") {
		b.WriteString("run\n")
	} else {
		b.WriteString("exploit -z\n")
	}
	b.WriteString("exit\n")
	return b.String()
}

func (req Request) validate() error {
	const op = "exploit.run"
	if strings.TrimSpace(req.VulnID) == "" {
		return harpoonerr.E(op, harpoonerr.ValidationError, "vulnerability id is required", nil)
	}
	if req.Port == 0 {
		return harpoonerr.E(op, harpoonerr.ValidationError, "port is required", nil)
	}
	t, err := domain.ScanTarget{Host: req.Host}.Validate()
	if err != nil {
		return err
	}
	if len(t.Hosts()) != 1 || strings.Contains(req.Host, "://") {
		return harpoonerr.E(op, harpoonerr.ValidationError, "exactly one host is required", nil)
	}
	for k, v := range req.Options {
		if !optionKey.MatchString(k) || strings.ContainsAny(v, "\r\n") {
			return harpoonerr.E(op, harpoonerr.ValidationError, fmt.Sprintf("invalid option %q", k), nil)
		}
	}
	return nil
}

func defaultOptions(vulnID string) map[string]string {
	id := strings.ToLower(vulnID)
	opts := map[string]string{}
	switch {
	case strings.Contains(id, "slowloris"):
		opts["TIMEOUT"] = "500"
		opts["DELAY"] = "15"
	case strings.Contains(id, "heartbleed"), strings.Contains(id, "poodle"):
		opts["VERBOSE"] = "true"
	}
	return opts
}

func succeeded(output string) bool {
	o := strings.ToLower(output)
	return strings.Contains(o, "session") && !strings.Contains(o, "failed") && !strings.Contains(o, "error")
}

func readReport(path string) (*Result, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res Result
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, harpoonerr.E("exploit.report", harpoonerr.ParseError, "malformed exploit report", err)
	}
	return &res, nil
}
