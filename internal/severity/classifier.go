// Package severity assigns a severity bucket to free-text findings using a
// fixed keyword heuristic.
package severity

import (
	"strings"

	"bytemomo/harpoon/internal/domain"
)

type bucket struct {
	severity domain.Severity
	keywords []string
}

// Checked in order; the first bucket with a matching keyword wins.
var buckets = []bucket{
	{domain.SeverityCritical, []string{
		"critical", "remote code execution", "rce", "command injection", "sql injection", "authentication bypass",
	}},
	{domain.SeverityHigh, []string{
		"high", "xss", "cross site scripting", "arbitrary file", "directory traversal", "buffer overflow", "overflow",
	}},
	{domain.SeverityMedium, []string{
		"medium", "information disclosure", "sensitive data", "csrf", "cross site request forgery",
	}},
	{domain.SeverityLow, []string{
		"low", "insecure", "deprecated",
	}},
}

// Classify maps a finding name and its details to a severity. Matching is a
// case-insensitive substring test; nothing matched means info.
func Classify(name, details string) domain.Severity {
	text := strings.ToLower(name + " " + details)
	for _, b := range buckets {
		for _, kw := range b.keywords {
			if strings.Contains(text, kw) {
				return b.severity
			}
		}
	}
	return domain.SeverityInfo
}

// ClassifyFindings returns a copy of findings where every vulnerability
// without a tool-provided severity has been classified. Service, host and
// credential findings are copied unchanged.
func ClassifyFindings(findings []domain.Finding) []domain.Finding {
	out := make([]domain.Finding, len(findings))
	for i, f := range findings {
		if classifiable(f.Kind) && (f.Severity == "" || f.Severity == domain.SeverityUnknown) {
			f = f.WithSeverity(Classify(f.Name, f.Details))
		}
		out[i] = f
	}
	return out
}

func classifiable(k domain.FindingKind) bool {
	return k == domain.KindVulnerability || k == domain.KindRemote
}
