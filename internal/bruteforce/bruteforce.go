package bruteforce

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/normalizer"
	"bytemomo/harpoon/pkg/harpoonerr"
	"bytemomo/harpoon/pkg/logger"

	log "github.com/sirupsen/logrus"
)

const (
	Tool           = "hydra"
	DefaultTimeout = 10 * time.Minute

	defaultFormPath    = "/"
	defaultFormData    = "username=^USER^&password=^PASS^"
	defaultFormFailure = "F=incorrect"
)

// Service is a protocol hydra can attack.
type Service struct {
	Name        string `json:"name"`
	Port        uint16 `json:"port"`
	Description string `json:"description"`
}

var services = []Service{
	{"ssh", 22, "Secure Shell"},
	{"ftp", 21, "File Transfer Protocol"},
	{"telnet", 23, "Telnet Remote Login"},
	{"http-get", 80, "HTTP GET Form"},
	{"http-post-form", 80, "HTTP POST Form"},
	{"https-get", 443, "HTTPS GET Form"},
	{"https-post-form", 443, "HTTPS POST Form"},
	{"smb", 445, "SMB/CIFS Protocol"},
	{"mysql", 3306, "MySQL Database"},
	{"postgres", 5432, "PostgreSQL Database"},
	{"mssql", 1433, "Microsoft SQL Server"},
	{"vnc", 5900, "VNC Remote Desktop"},
	{"rdp", 3389, "Remote Desktop Protocol"},
	{"smtp", 25, "Simple Mail Transfer Protocol"},
	{"pop3", 110, "Post Office Protocol v3"},
	{"imap", 143, "Internet Message Access Protocol"},
}

var serviceName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Services returns the commonly attacked services.
func Services() []Service {
	return append([]Service(nil), services...)
}

// Options are the tunables of a hydra run.
type Options struct {
	Tasks       int    `json:"tasks,omitempty"`
	Verbose     bool   `json:"verbose,omitempty"`
	Port        uint16 `json:"port,omitempty"`
	FormPath    string `json:"form_path,omitempty"`
	FormData    string `json:"form_data,omitempty"`
	FormFailure string `json:"form_failure,omitempty"`
}

// Request is one brute force attack.
type Request struct {
	Target   string  `json:"target"`
	Service  string  `json:"service"`
	UserList string  `json:"user_list"`
	PassList string  `json:"pass_list"`
	Options  Options `json:"options"`
}

// Runner drives hydra against one service at a time.
type Runner struct {
	tools     domain.ToolRunner
	store     *artifact.Store
	wordlists Wordlists
	timeout   time.Duration
	log       *log.Entry
}

// NewRunner returns a Runner. A non-positive timeout means DefaultTimeout.
func NewRunner(tools domain.ToolRunner, store *artifact.Store, wl Wordlists, timeout time.Duration, l *log.Entry) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		tools:     tools,
		store:     store,
		wordlists: wl,
		timeout:   timeout,
		log:       logger.OrNop(l).WithField("component", "bruteforce"),
	}
}

// Run launches hydra and returns one credential finding per valid login.
func (r *Runner) Run(ctx context.Context, req Request) (*domain.ScanResult, error) {
	target, err := req.validate()
	if err != nil {
		return nil, err
	}

	inv := domain.Invocation{
		Tool:    Tool,
		Args:    buildArgs(req),
		Timeout: r.timeout,
	}

	result := domain.NewScanResult(Tool, target)
	entry := r.log.WithFields(log.Fields{
		"target":  req.Target,
		"service": req.Service,
		"scan_id": result.ID,
	})
	entry.Info("Starting brute force")

	raw, err := r.tools.Invoke(ctx, inv)
	result.Raw = raw
	if err != nil {
		entry.WithError(err).Error("Brute force failed")
		return result, err
	}

	result.Findings = normalizer.Credentials(raw.Stdout)
	if len(result.Findings) > 0 {
		result.HostStatus = domain.HostUp
	}
	entry.WithField("credentials", len(result.Findings)).Info("Brute force finished")
	return result, nil
}

// Wordlists returns the user and password lists available to Run.
func (r *Runner) Wordlists() (users, passwords []domain.WordlistEntry, err error) {
	dir, err := r.store.Dir(artifact.Wordlists)
	if err != nil {
		return nil, nil, err
	}
	users, passwords = r.wordlists.Discover(dir)
	return users, passwords, nil
}

// CreateWordlist stores a user supplied list. kind is "userlist" or
// "passlist".
func (r *Runner) CreateWordlist(content, kind string) (string, error) {
	if kind != "userlist" && kind != "passlist" {
		return "", harpoonerr.E("bruteforce.wordlist", harpoonerr.ValidationError, fmt.Sprintf("unknown wordlist kind %q", kind), nil)
	}
	if strings.TrimSpace(content) == "" {
		return "", harpoonerr.E("bruteforce.wordlist", harpoonerr.ValidationError, "wordlist is empty", nil)
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return r.store.Save(artifact.Wordlists, kind, "txt", []byte(content))
}

func (req Request) validate() (domain.ScanTarget, error) {
	const op = "bruteforce.run"

	t, err := domain.ScanTarget{Host: req.Target}.Validate()
	if err != nil {
		return t, err
	}
	if len(t.Hosts()) != 1 || strings.Contains(req.Target, "://") {
		return t, harpoonerr.E(op, harpoonerr.ValidationError, "exactly one host is required", nil)
	}
	t.Ports = ""
	if req.Options.Port != 0 {
		t.Ports = strconv.Itoa(int(req.Options.Port))
	}

	if !serviceName.MatchString(req.Service) {
		return t, harpoonerr.E(op, harpoonerr.ValidationError, fmt.Sprintf("invalid service %q", req.Service), nil)
	}
	for name, path := range map[string]string{"user list": req.UserList, "password list": req.PassList} {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return t, harpoonerr.E(op, harpoonerr.ValidationError, fmt.Sprintf("%s not found: %s", name, path), err)
		}
	}
	if req.Options.Tasks < 0 {
		return t, harpoonerr.E(op, harpoonerr.ValidationError, "tasks must be positive", nil)
	}
	return t, nil
}

func buildArgs(req Request) []string {
	var args []string
	if req.Options.Tasks > 0 {
		args = append(args, "-t", strconv.Itoa(req.Options.Tasks))
	}
	if req.Options.Verbose {
		args = append(args, "-v")
	}
	if req.Options.Port > 0 {
		args = append(args, "-s", strconv.Itoa(int(req.Options.Port)))
	}
	args = append(args, "-L", req.UserList, "-P", req.PassList, req.Target, req.Service)

	if strings.HasPrefix(req.Service, "http") && strings.Contains(req.Service, "form") {
		path := orDefault(req.Options.FormPath, defaultFormPath)
		data := orDefault(req.Options.FormData, defaultFormData)
		fail := orDefault(req.Options.FormFailure, defaultFormFailure)
		args = append(args, path+":"+data+":"+fail)
	}
	return args
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
