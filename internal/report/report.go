package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/pkg/harpoonerr"
	"bytemomo/harpoon/pkg/logger"

	log "github.com/sirupsen/logrus"
)

// Data is everything a renderer needs. It is fully populated before any
// rendering happens.
type Data struct {
	Title       string            `json:"title"`
	ScanID      string            `json:"scan_id"`
	Tool        string            `json:"tool"`
	Target      domain.ScanTarget `json:"target"`
	ScanTime    time.Time         `json:"scan_time"`
	HostStatus  domain.HostStatus `json:"host_status"`
	CommandLine string            `json:"command_line,omitempty"`
	Summary     domain.Summary    `json:"summary"`
	Findings    []domain.Finding  `json:"findings"`
	Caveats     []string          `json:"caveats,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Renderer turns report data into file content.
type Renderer interface {
	Render(Data) ([]byte, error)
	Ext() string
}

// Build computes the summary and assembles the report data for result.
func Build(result *domain.ScanResult, extra map[string]any) Data {
	findings := result.Findings
	if findings == nil {
		findings = []domain.Finding{}
	}
	return Data{
		Title:       fmt.Sprintf("%s report for %s", result.Tool, result.Target.Host),
		ScanID:      result.ID,
		Tool:        result.Tool,
		Target:      result.Target,
		ScanTime:    result.StartedAt,
		HostStatus:  result.HostStatus,
		CommandLine: result.Raw.CommandLine,
		Summary:     domain.Summarize(findings),
		Findings:    findings,
		Caveats:     result.Caveats,
		Extra:       extra,
		GeneratedAt: time.Now().UTC(),
	}
}

// Generator renders scan results and stores them as artifacts.
type Generator struct {
	store    *artifact.Store
	renderer Renderer
	log      *log.Entry
}

// NewGenerator returns a Generator that renders with renderer and stores the
// output in store.
func NewGenerator(store *artifact.Store, renderer Renderer, l *log.Entry) *Generator {
	return &Generator{
		store:    store,
		renderer: renderer,
		log:      logger.OrNop(l).WithField("component", "report"),
	}
}

// Generate renders result into category and records the rendered path on
// the result.
func (g *Generator) Generate(result *domain.ScanResult, category string) (string, error) {
	return g.GenerateWith(result, category, nil)
}

// GenerateWith is Generate with additional tool-specific sections.
func (g *Generator) GenerateWith(result *domain.ScanResult, category string, extra map[string]any) (string, error) {
	data := Build(result, extra)

	content, err := g.renderer.Render(data)
	if err != nil {
		return "", fmt.Errorf("render %s report: %w", result.Tool, err)
	}

	path, err := g.store.Save(category, prefixFor(result), g.renderer.Ext(), content)
	if err != nil {
		return "", fmt.Errorf("store %s report: %w", result.Tool, err)
	}
	if err := result.SetRenderedReport(path); err != nil {
		return path, fmt.Errorf("record report path: %w", err)
	}

	g.log.WithFields(log.Fields{
		"tool":     result.Tool,
		"scan_id":  result.ID,
		"path":     path,
		"findings": data.Summary.Total,
	}).Info("Report generated")
	return path, nil
}

// Attach generates a report and downgrades any failure to a caveat on the
// result. The scan itself stays valid.
func (g *Generator) Attach(result *domain.ScanResult, category string, extra map[string]any) {
	if g == nil {
		return
	}
	if _, err := g.GenerateWith(result, category, extra); err != nil {
		g.log.WithError(err).WithField("scan_id", result.ID).Warn("Report generation failed")
		result.AddCaveat("report generation failed: " + err.Error())
	}
}

// SaveRaw writes the whole result as indented JSON and records the path.
func (g *Generator) SaveRaw(result *domain.ScanResult, category string) (string, error) {
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode raw result: %w", err)
	}
	path, err := g.store.Save(category, prefixFor(result), "json", b)
	if err != nil {
		return "", err
	}
	if err := result.SetRawReport(path); err != nil {
		return path, fmt.Errorf("record raw path: %w", err)
	}
	return path, nil
}

// Load decodes a JSON report written by the json renderer.
func Load(path string) (Data, error) {
	var d Data
	b, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal(b, &d); err != nil {
		return d, harpoonerr.E("report.load", harpoonerr.ParseError, "malformed report", err)
	}
	return d, nil
}

func prefixFor(result *domain.ScanResult) string {
	host := result.Target.Host
	if i := strings.IndexAny(host, " ,"); i > 0 {
		host = host[:i]
	}
	if host == "" {
		return result.Tool
	}
	return result.Tool + "_" + host
}
