package normalizer

import (
	"bytes"
	"fmt"
	"strings"

	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/pkg/harpoonerr"

	nmap "github.com/Ullaakut/nmap/v3"
)

// NmapOutput is the flattened form of one nmap run.
type NmapOutput struct {
	HostStatus domain.HostStatus
	Findings   []domain.Finding
	// Hosts has one host finding per scanned host.
	Hosts []domain.Finding
}

// Nmap parses nmap XML output. Blank input is an empty run, not an error.
func Nmap(data []byte) (NmapOutput, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NmapOutput{HostStatus: domain.HostUnknown, Findings: []domain.Finding{}, Hosts: []domain.Finding{}}, nil
	}

	run := &nmap.Run{}
	if err := nmap.Parse(data, run); err != nil {
		return NmapOutput{}, harpoonerr.E("normalize.nmap", harpoonerr.ParseError, "malformed nmap xml", err)
	}
	return FromRun(run), nil
}

// FromRun flattens the host → port → script tree. An open port yields one
// vulnerability finding per vulnerability script, or a single service
// finding when it has none. Closed and filtered ports yield nothing.
func FromRun(run *nmap.Run) NmapOutput {
	out := NmapOutput{HostStatus: hostStatus(run), Findings: []domain.Finding{}, Hosts: HostFindings(run)}
	if run == nil {
		return out
	}

	for _, h := range run.Hosts {
		host := pickHostAddress(h)
		if host == "" {
			continue
		}

		for _, s := range h.HostScripts {
			if isVulnScript(s) {
				out.Findings = append(out.Findings, vulnFinding(host, 0, "", "", s))
			}
		}

		for _, p := range h.Ports {
			if !strings.HasPrefix(strings.ToLower(p.State.State), "open") {
				continue
			}

			var vulns []domain.Finding
			notes := map[string]any{}
			for _, s := range p.Scripts {
				if isVulnScript(s) {
					vulns = append(vulns, vulnFinding(host, p.ID, p.Protocol, p.Service.Name, s))
				} else if s.Output != "" {
					notes[s.ID] = strings.TrimSpace(s.Output)
				}
			}
			if len(vulns) > 0 {
				out.Findings = append(out.Findings, vulns...)
				continue
			}

			out.Findings = append(out.Findings, serviceFinding(host, p, notes))
		}
	}
	return out
}

// HostFindings returns one host finding per host of a discovery run.
func HostFindings(run *nmap.Run) []domain.Finding {
	out := []domain.Finding{}
	if run == nil {
		return out
	}
	for _, h := range run.Hosts {
		host := pickHostAddress(h)
		if host == "" {
			continue
		}

		name := host
		if len(h.Hostnames) > 0 && h.Hostnames[0].Name != "" {
			name = h.Hostnames[0].Name
		}

		f := domain.NewFinding(domain.KindHost, host, name).WithSeverity(domain.SeverityInfo)
		f.Details = "state: " + h.Status.State
		f.Evidence = map[string]any{"state": h.Status.State}
		for _, a := range h.Addresses {
			if a.AddrType == "mac" {
				f.Evidence["mac"] = a.Addr
				if a.Vendor != "" {
					f.Evidence["vendor"] = a.Vendor
				}
			}
		}
		out = append(out, f)
	}
	return out
}

func isVulnScript(s nmap.Script) bool {
	out := strings.ToLower(s.Output)
	return strings.Contains(strings.ToLower(s.ID), "vuln") ||
		strings.Contains(out, "vuln")
}

func vulnFinding(host string, port uint16, proto, service string, s nmap.Script) domain.Finding {
	f := domain.NewFinding(domain.KindVulnerability, host, s.ID)
	f.Port = port
	f.Protocol = proto
	f.Service = service
	f.Details = strings.TrimSpace(s.Output)
	f.Evidence = map[string]any{
		"script":     s.ID,
		"vulnerable": strings.Contains(strings.ToUpper(s.Output), "VULNERABLE"),
	}
	return f
}

func serviceFinding(host string, p nmap.Port, notes map[string]any) domain.Finding {
	name := p.Service.Name
	if name == "" {
		name = fmt.Sprintf("%d/%s", p.ID, p.Protocol)
	}

	f := domain.NewFinding(domain.KindService, host, name)
	f.Port = p.ID
	f.Protocol = p.Protocol
	f.Service = p.Service.Name
	f.Details = strings.TrimSpace(strings.Join(nonEmpty(p.Service.Product, p.Service.Version, p.Service.ExtraInfo), " "))

	ev := map[string]any{"state": p.State.State}
	for k, v := range map[string]string{
		"product":   p.Service.Product,
		"version":   p.Service.Version,
		"extrainfo": p.Service.ExtraInfo,
		"tunnel":    p.Service.Tunnel,
	} {
		if v != "" {
			ev[k] = v
		}
	}
	if len(notes) > 0 {
		ev["scripts"] = notes
	}
	f.Evidence = ev
	return f
}

func hostStatus(run *nmap.Run) domain.HostStatus {
	if run == nil {
		return domain.HostUnknown
	}
	for _, h := range run.Hosts {
		if strings.EqualFold(h.Status.State, "up") {
			return domain.HostUp
		}
	}
	if len(run.Hosts) > 0 || run.Stats.Hosts.Down > 0 {
		return domain.HostDown
	}
	return domain.HostUnknown
}

func pickHostAddress(h nmap.Host) string {
	for _, a := range h.Addresses {
		if a.AddrType == "ipv4" {
			return a.Addr
		}
	}
	for _, a := range h.Addresses {
		if a.AddrType == "ipv6" {
			return a.Addr
		}
	}
	if len(h.Addresses) > 0 {
		return h.Addresses[0].Addr
	}
	return ""
}

func nonEmpty(vals ...string) []string {
	out := vals[:0]
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
