package domain

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"bytemomo/harpoon/pkg/harpoonerr"

	"github.com/miekg/dns"
)

// Validate checks the host specification and normalizes the port
// specification in place of the returned copy.
func (t ScanTarget) Validate() (ScanTarget, error) {
	const op = "target.validate"

	hosts := t.Hosts()
	if len(hosts) == 0 {
		return t, harpoonerr.E(op, harpoonerr.ValidationError, "target is required", nil)
	}
	for _, h := range hosts {
		if err := validateHost(h); err != nil {
			return t, harpoonerr.E(op, harpoonerr.ValidationError, fmt.Sprintf("invalid target %q", h), err)
		}
	}

	ports, err := NormalizePorts(t.Ports)
	if err != nil {
		return t, harpoonerr.E(op, harpoonerr.ValidationError, fmt.Sprintf("invalid ports %q", t.Ports), err)
	}

	return ScanTarget{Host: strings.Join(hosts, " "), Ports: ports}, nil
}

func validateHost(h string) error {
	// Anything starting with a dash would be read as a flag by the tool.
	if strings.HasPrefix(h, "-") {
		return fmt.Errorf("target must not start with '-'")
	}

	if strings.Contains(h, "://") {
		u, err := url.Parse(h)
		if err != nil {
			return err
		}
		if u.Host == "" {
			return fmt.Errorf("url has no host")
		}
		return nil
	}

	if net.ParseIP(h) != nil {
		return nil
	}
	if _, _, err := net.ParseCIDR(h); err == nil {
		return nil
	}
	if isOctetRange(h) {
		return nil
	}
	// Failed the address forms above; never a host name.
	if numericTarget.MatchString(h) {
		return fmt.Errorf("invalid address or range %q", h)
	}

	if _, ok := dns.IsDomainName(h); !ok {
		return fmt.Errorf("not an IP, CIDR, range, URL or host name")
	}
	for _, r := range h {
		if !(r == '.' || r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return fmt.Errorf("host name contains %q", r)
		}
	}
	return nil
}

var numericTarget = regexp.MustCompile(`^[0-9.\-/:]+$`)

// isOctetRange accepts nmap's last-octet ranges such as 10.0.0.1-20.
func isOctetRange(h string) bool {
	i := strings.LastIndexByte(h, '-')
	if i < 0 {
		return false
	}
	ip := net.ParseIP(h[:i]).To4()
	if ip == nil {
		return false
	}
	end, err := strconv.Atoi(h[i+1:])
	return err == nil && end >= int(ip[3]) && end <= 255
}

// NormalizePorts expands a named category, applies the default for an empty
// specification and validates comma lists and ranges.
func NormalizePorts(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return DefaultPorts, nil
	}
	if p, ok := PortCategory(spec); ok {
		return p, nil
	}

	var out []string
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		body := item
		if len(item) > 2 && (item[:2] == "T:" || item[:2] == "U:") {
			body = item[2:]
		}

		lo, hi, isRange := strings.Cut(body, "-")
		start, err := parsePort(lo)
		if err != nil {
			return "", err
		}
		if isRange {
			end, err := parsePort(hi)
			if err != nil {
				return "", err
			}
			if end < start {
				return "", fmt.Errorf("range %q is reversed", item)
			}
		}
		out = append(out, item)
	}

	if len(out) == 0 {
		return "", fmt.Errorf("no ports in %q", spec)
	}
	return strings.Join(out, ","), nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("port %q is not a number", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return n, nil
}
