package normalizer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"bytemomo/harpoon/internal/domain"
)

// NDJSONOutput holds the findings of a newline-delimited JSON stream. Total
// counts every non-blank raw line so callers can report honest progress even
// when some lines were tool noise.
type NDJSONOutput struct {
	Findings []domain.Finding
	Total    int
	Skipped  int
}

type nucleiLine struct {
	TemplateID string `json:"template-id"`
	Info       struct {
		Name        string   `json:"name"`
		Severity    string   `json:"severity"`
		Description string   `json:"description"`
		Tags        any      `json:"tags"`
		Reference   []string `json:"reference"`
	} `json:"info"`
	Type             string   `json:"type"`
	Host             string   `json:"host"`
	IP               string   `json:"ip"`
	Port             string   `json:"port"`
	MatchedAt        string   `json:"matched-at"`
	MatcherName      string   `json:"matcher-name"`
	ExtractedResults []string `json:"extracted-results"`
	Timestamp        string   `json:"timestamp"`
}

// NDJSON parses nuclei-style JSON lines. Malformed lines are skipped.
func NDJSON(data []byte) NDJSONOutput {
	out := NDJSONOutput{Findings: []domain.Finding{}}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		out.Total++

		var l nucleiLine
		if err := json.Unmarshal(line, &l); err != nil {
			out.Skipped++
			continue
		}
		out.Findings = append(out.Findings, l.finding())
	}
	return out
}

func (l nucleiLine) finding() domain.Finding {
	name := l.Info.Name
	if name == "" {
		name = l.TemplateID
	}

	host, port := splitTarget(l.Host, l.MatchedAt)
	if l.IP != "" && host == "" {
		host = l.IP
	}
	if p, err := strconv.ParseUint(l.Port, 10, 16); err == nil {
		port = uint16(p)
	}

	f := domain.NewFinding(domain.KindVulnerability, host, name).
		WithSeverity(domain.ParseSeverity(l.Info.Severity))
	f.Port = port
	f.Protocol = l.Type
	f.Details = l.Info.Description

	ev := map[string]any{}
	for k, v := range map[string]string{
		"template_id":  l.TemplateID,
		"matched_at":   l.MatchedAt,
		"matcher_name": l.MatcherName,
		"ip":           l.IP,
	} {
		if v != "" {
			ev[k] = v
		}
	}
	if tags := tagList(l.Info.Tags); len(tags) > 0 {
		ev["tags"] = tags
	}
	if len(l.Info.Reference) > 0 {
		ev["reference"] = l.Info.Reference
	}
	if len(l.ExtractedResults) > 0 {
		ev["extracted"] = l.ExtractedResults
	}
	if len(ev) > 0 {
		f.Evidence = ev
	}
	return f
}

// nuclei writes tags either as a list or a comma-separated string.
func tagList(v any) []string {
	switch t := v.(type) {
	case string:
		var out []string
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func splitTarget(candidates ...string) (host string, port uint16) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if !strings.Contains(c, "://") {
			c = "tcp://" + c
		}
		u, err := url.Parse(c)
		if err != nil || u.Hostname() == "" {
			continue
		}
		if host == "" {
			host = u.Hostname()
		}
		if p, err := strconv.ParseUint(u.Port(), 10, 16); err == nil && port == 0 {
			port = uint16(p)
		}
	}
	return host, port
}
