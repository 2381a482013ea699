package exploit

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"bytemomo/harpoon/pkg/harpoonerr"

	"gopkg.in/yaml.v3"
)

const (
	GenericSSLModule  = "auxiliary/scanner/ssl/openssl_ccs"
	GenericHTTPModule = "auxiliary/scanner/http/http_version"
)

var defaultMappings = map[string]string{
	"ftp-vsftpd-backdoor":       "exploit/unix/ftp/vsftpd_234_backdoor",
	"ftp-proftpd-backdoor":      "exploit/unix/ftp/proftpd_133c_backdoor",
	"http-slowloris-check":      "auxiliary/dos/http/slowloris",
	"http-slowloris":            "auxiliary/dos/http/slowloris",
	"http-vuln-cve2014-3704":    "exploit/unix/webapp/drupal_drupalgeddon",
	"http-vuln-cve2017-1001000": "exploit/multi/http/struts_code_exec_classloader",
	"http-vuln-cve2014-6271":    "exploit/multi/http/apache_mod_cgi_bash_env_exec",
	"http-vuln-cve2019-0708":    "exploit/windows/rdp/cve_2019_0708_bluekeep_rce",
	"http-shellshock":           "exploit/multi/http/apache_mod_cgi_bash_env_exec",
	"smb-vuln-ms17-010":         "exploit/windows/smb/ms17_010_eternalblue",
	"smb-vuln-ms08-067":         "exploit/windows/smb/ms08_067_netapi",
	"ssh-auth-bypass":           "exploit/unix/ssh/libssh_auth_bypass",
	"ssl-heartbleed":            "auxiliary/scanner/ssl/openssl_heartbleed",
	"ssl-ccs-injection":         "auxiliary/scanner/ssl/openssl_ccs",
	"ssl-poodle":                "auxiliary/scanner/ssl/openssl_fallback_check",
	"ssl-drown":                 "auxiliary/scanner/ssl/openssl_drown",
	"ssl-dh-params":             "auxiliary/scanner/ssl/ssl_version",
	"ms-sql-empty-password":     "exploit/windows/mssql/mssql_payload",
}

// Keyed by normalized CVE id (cve-YYYY-N); consulted by the CVE strategy.
var defaultCVEs = map[string]string{
	"cve-2014-0224": "auxiliary/scanner/ssl/openssl_ccs",
	"cve-2014-0160": "auxiliary/scanner/ssl/openssl_heartbleed",
	"cve-2015-4000": "auxiliary/scanner/ssl/openssl_logjam",
	"cve-2016-2107": "auxiliary/scanner/ssl/openssl_aes_ni",
	"cve-2014-3704": "exploit/unix/webapp/drupal_drupalgeddon",
}

var keywords = []string{
	"slowloris", "heartbleed", "shellshock", "poodle", "drown",
	"eternalblue", "bluekeep", "drupal", "struts", "bash", "logjam",
}

var (
	cvePattern    = regexp.MustCompile(`cve-?(\d{4})-(\d+)`)
	cveKeyPattern = regexp.MustCompile(`^cve-?\d{4}-\d+$`)
	modulePattern = regexp.MustCompile(`^(exploit|auxiliary|post)/[a-z0-9_/]+$`)
)

// Source tells how a module was resolved.
type Source string

const (
	SourceManual       Source = "manual"
	SourceExact        Source = "exact"
	SourceCVE          Source = "cve"
	SourceKeyword      Source = "keyword"
	SourceFallbackSSL  Source = "fallback-ssl"
	SourceFallbackHTTP Source = "fallback-http"
	SourceUnresolved   Source = "unresolved"
)

// Resolution is the outcome of a mapping attempt. Unresolved is a normal
// outcome, signalled by RequiresManual.
type Resolution struct {
	VulnID         string `json:"vuln_id"`
	Module         string `json:"module,omitempty"`
	Source         Source `json:"source"`
	RequiresManual bool   `json:"requires_manual"`
}

// Fallback reports whether the module is a generic protocol scanner module rather
// than a mapping for this vulnerability.
func (r Resolution) Fallback() bool {
	return r.Source == SourceFallbackSSL || r.Source == SourceFallbackHTTP
}

// Err returns an Unresolved error when a manual module is required.
func (r Resolution) Err() error {
	if !r.RequiresManual {
		return nil
	}
	return harpoonerr.E("exploit.resolve", harpoonerr.Unresolved,
		fmt.Sprintf("no module mapped for %q, select one manually", r.VulnID), nil)
}

// Mapper resolves vulnerability identifiers to framework modules. Its tables
// are fixed at construction.
type Mapper struct {
	named map[string]string
	cves  map[string]string
	keys  []string
}

// NewMapper builds a mapper from the default table merged with extra. Pure
// CVE keys in extra feed the CVE strategy.
func NewMapper(extra map[string]string) *Mapper {
	m := &Mapper{
		named: make(map[string]string, len(defaultMappings)+len(extra)),
		cves:  make(map[string]string, len(defaultCVEs)),
	}
	for k, v := range defaultMappings {
		m.named[k] = v
	}
	for k, v := range defaultCVEs {
		m.cves[k] = v
	}
	for k, v := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || v == "" {
			continue
		}
		if cveKeyPattern.MatchString(k) {
			m.cves[normalizeCVE(k)] = v
			continue
		}
		m.named[k] = v
	}

	for k := range m.named {
		m.keys = append(m.keys, k)
	}
	sort.Strings(m.keys)
	return m
}

// LoadMappings reads extra vulnerability → module mappings from a YAML
// document with a top-level "mappings" map.
func LoadMappings(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Mappings map[string]string `yaml:"mappings"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range doc.Mappings {
		if !modulePattern.MatchString(v) {
			return nil, fmt.Errorf("mapping %q: invalid module %q", k, v)
		}
	}
	return doc.Mappings, nil
}

// Mappings returns a copy of every mapping the mapper knows.
func (m *Mapper) Mappings() map[string]string {
	out := make(map[string]string, len(m.named)+len(m.cves))
	for k, v := range m.named {
		out[k] = v
	}
	for k, v := range m.cves {
		out[k] = v
	}
	return out
}

// Resolve tries, in order: the manual override, an exact match, a CVE
// match, a keyword match and finally a generic SSL or HTTP scanner module when the
// port or identifier implies one.
func (m *Mapper) Resolve(vulnID string, port uint16, override string) Resolution {
	r := Resolution{VulnID: vulnID}
	id := strings.ToLower(strings.TrimSpace(vulnID))

	if override = strings.TrimSpace(override); override != "" {
		r.Module, r.Source = override, SourceManual
		return r
	}

	if mod, ok := m.named[id]; ok {
		r.Module, r.Source = mod, SourceExact
		return r
	}

	if mod, ok := m.byCVE(id); ok {
		r.Module, r.Source = mod, SourceCVE
		return r
	}

	if mod, ok := m.byKeyword(id); ok {
		r.Module, r.Source = mod, SourceKeyword
		return r
	}

	switch {
	case port == 443 || strings.Contains(id, "ssl") || strings.Contains(id, "tls"):
		r.Module, r.Source = GenericSSLModule, SourceFallbackSSL
	case port == 80 || port == 8080 || strings.Contains(id, "http"):
		r.Module, r.Source = GenericHTTPModule, SourceFallbackHTTP
	default:
		r.Source, r.RequiresManual = SourceUnresolved, true
	}
	return r
}

func (m *Mapper) byCVE(id string) (string, bool) {
	match := cvePattern.FindStringSubmatch(id)
	if match == nil {
		return "", false
	}
	year, num := match[1], match[2]

	if mod, ok := m.cves["cve-"+year+"-"+num]; ok {
		return mod, true
	}

	for _, k := range m.keys {
		if km := cvePattern.FindStringSubmatch(k); km != nil && km[1] == year && km[2] == num {
			return m.named[k], true
		}
	}

	embedded := []string{"cve" + year + "_" + num, "cve_" + year + "_" + num}
	for _, k := range m.keys {
		v := strings.ToLower(m.named[k])
		for _, e := range embedded {
			if strings.Contains(v, e) {
				return m.named[k], true
			}
		}
	}
	return "", false
}

func (m *Mapper) byKeyword(id string) (string, bool) {
	for _, kw := range keywords {
		if !strings.Contains(id, kw) {
			continue
		}
		for _, k := range m.keys {
			if strings.Contains(k, kw) {
				return m.named[k], true
			}
		}
		for _, v := range m.sortedModules() {
			if strings.Contains(strings.ToLower(v), kw) {
				return v, true
			}
		}
	}
	return "", false
}

func (m *Mapper) sortedModules() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tbl := range []map[string]string{m.named, m.cves} {
		for _, v := range tbl {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}

func normalizeCVE(k string) string {
	match := cvePattern.FindStringSubmatch(k)
	if match == nil {
		return k
	}
	return "cve-" + match[1] + "-" + match[2]
}
