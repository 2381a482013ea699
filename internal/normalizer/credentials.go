package normalizer

import (
	"regexp"
	"strconv"
	"strings"

	"bytemomo/harpoon/internal/domain"
)

var (
	credPrefix = regexp.MustCompile(`^\[(\d+)\]\[([^\]]+)\]`)
	// Login and password run to the next label and end of line, so both may
	// contain spaces.
	credFields = regexp.MustCompile(`host:\s*(\S+)\s+login:\s*(.*?)\s+password:\s?(.*)$`)
)

// Credentials extracts one credential finding per hydra success line, i.e.
// every line carrying host:, login: and password: in that order. Everything
// else is discarded.
func Credentials(stdout string) []domain.Finding {
	out := []domain.Finding{}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		fields := credFields.FindStringSubmatch(line)
		if fields == nil {
			continue
		}

		f := domain.NewFinding(domain.KindCredential, fields[1], "valid credentials").
			WithSeverity(domain.SeverityHigh)
		if m := credPrefix.FindStringSubmatch(line); m != nil {
			if p, err := strconv.ParseUint(m[1], 10, 16); err == nil {
				f.Port = uint16(p)
			}
			f.Service = m[2]
		}
		f.Details = line
		f.Evidence = map[string]any{
			"login":    fields[2],
			"password": fields[3],
		}
		out = append(out, f)
	}
	return out
}
