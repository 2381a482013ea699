package htmlreport

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"time"

	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/report"
)

var page = template.Must(template.New("report").Funcs(template.FuncMap{
	"ts":       func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05 UTC") },
	"buckets":  func() []domain.Severity { return domain.Severities },
	"count":    func(s domain.Summary, sev domain.Severity) int { return s.BySeverity[sev] },
	"keys":     sortedKeys,
	"port":     portLabel,
	"severity": func(s domain.Severity) string { return string(s) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:sans-serif;margin:2em;color:#222}
table{border-collapse:collapse;width:100%;margin-bottom:1.5em}
th,td{border:1px solid #ccc;padding:.4em;text-align:left;vertical-align:top}
pre{white-space:pre-wrap;margin:0}
.critical{background:#7b1fa2;color:#fff}.high{background:#d32f2f;color:#fff}
.medium{background:#f57c00}.low{background:#fbc02d}.info{background:#1976d2;color:#fff}.unknown{background:#9e9e9e}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<table>
<tr><th>Target</th><td>{{.Target.Host}}{{if .Target.Ports}} ({{.Target.Ports}}){{end}}</td></tr>
<tr><th>Scan time</th><td>{{ts .ScanTime}}</td></tr>
<tr><th>Host status</th><td>{{.HostStatus}}</td></tr>
{{if .CommandLine}}<tr><th>Command</th><td><code>{{.CommandLine}}</code></td></tr>{{end}}
<tr><th>Generated</th><td>{{ts .GeneratedAt}}</td></tr>
</table>

<h2>Summary</h2>
<table>
<tr><th>Total</th>{{range buckets}}<th class="{{severity .}}">{{.}}</th>{{end}}</tr>
<tr><td>{{.Summary.Total}}</td>{{$s := .Summary}}{{range buckets}}<td>{{count $s .}}</td>{{end}}</tr>
</table>

{{if .Caveats}}<h2>Caveats</h2><ul>{{range .Caveats}}<li>{{.}}</li>{{end}}</ul>{{end}}

<h2>Findings</h2>
{{if .Findings}}
<table>
<tr><th>Severity</th><th>Kind</th><th>Host</th><th>Port</th><th>Name</th><th>Details</th></tr>
{{range .Findings}}<tr>
<td class="{{severity .Severity}}">{{.Severity}}</td><td>{{.Kind}}</td><td>{{.Host}}</td><td>{{port .}}</td><td>{{.Name}}</td><td><pre>{{.Details}}</pre></td>
</tr>{{end}}
</table>
{{else}}<p>No findings.</p>{{end}}

{{if .Extra}}<h2>Details</h2>
<table>{{$e := .Extra}}{{range keys .Extra}}<tr><th>{{.}}</th><td><pre>{{index $e .}}</pre></td></tr>{{end}}</table>
{{end}}
</body>
</html>
`))

// Renderer writes report data as a standalone HTML page.
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

func (r *Renderer) Ext() string { return "html" }

func (r *Renderer) Render(d report.Data) ([]byte, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	return buf.Bytes(), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func portLabel(f domain.Finding) string {
	if f.Port == 0 {
		return "-"
	}
	if f.Protocol == "" {
		return fmt.Sprint(f.Port)
	}
	return fmt.Sprintf("%d/%s", f.Port, f.Protocol)
}
