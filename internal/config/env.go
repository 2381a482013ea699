package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const EnvPrefix = "HARPOON"

// LoadDotenv loads the given .env files into the process environment.
// Missing files are skipped and variables already set win.
func LoadDotenv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}

// Env reads prefixed environment variables.
type Env struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnv returns an Env reading variables named prefix_KEY.
func NewEnv(prefix string) *Env {
	if prefix == "" {
		prefix = EnvPrefix
	}
	return &Env{prefix: prefix, lookup: os.LookupEnv}
}

func (e *Env) key(k string) string {
	return e.prefix + "_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_"))
}

func (e *Env) String(k string, def string) string {
	if v, ok := e.lookup(e.key(k)); ok && v != "" {
		return v
	}
	return def
}

func (e *Env) Int(k string, def int) int {
	if n, err := strconv.Atoi(e.String(k, "")); err == nil {
		return n
	}
	return def
}

func (e *Env) Bool(k string, def bool) bool {
	if b, err := strconv.ParseBool(e.String(k, "")); err == nil {
		return b
	}
	return def
}

func (e *Env) Duration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(e.String(k, "")); err == nil {
		return d
	}
	return def
}

// KnownTools can be relocated with HARPOON_TOOL_<NAME>.
var KnownTools = []string{"nmap", "nuclei", "hydra", "msfconsole", "tcpdump"}

// ApplyEnv overrides c with any HARPOON_* variables that are set.
func (c *Config) ApplyEnv(e *Env) {
	c.Artifacts.Root = e.String("artifacts.root", c.Artifacts.Root)

	if c.Tools == nil {
		c.Tools = map[string]string{}
	}
	for _, t := range KnownTools {
		if p := e.String("tool."+t, ""); p != "" {
			c.Tools[t] = p
		}
	}

	c.Timeouts.Scan = e.Duration("timeout.scan", c.Timeouts.Scan)
	c.Timeouts.Nuclei = e.Duration("timeout.nuclei", c.Timeouts.Nuclei)
	c.Timeouts.Bruteforce = e.Duration("timeout.bruteforce", c.Timeouts.Bruteforce)
	c.Timeouts.Exploit = e.Duration("timeout.exploit", c.Timeouts.Exploit)
	c.Timeouts.Capture = e.Duration("timeout.capture", c.Timeouts.Capture)
	c.Timeouts.Status = e.Duration("timeout.status", c.Timeouts.Status)

	c.Remote.URL = e.String("remote.url", c.Remote.URL)
	c.Remote.AccessKey = e.String("remote.access_key", c.Remote.AccessKey)
	c.Remote.SecretKey = e.String("remote.secret_key", c.Remote.SecretKey)
	c.Remote.Template = e.String("remote.template", c.Remote.Template)
	c.Remote.InsecureTLS = e.Bool("remote.insecure_tls", c.Remote.InsecureTLS)
	c.Remote.PollInterval = e.Duration("remote.poll_interval", c.Remote.PollInterval)
	c.Remote.MaxPolls = e.Int("remote.max_polls", c.Remote.MaxPolls)

	c.Log.Level = e.String("log.level", c.Log.Level)
	c.Log.Format = e.String("log.format", c.Log.Format)
	c.Log.File = e.String("log.file", c.Log.File)

	c.Exploit.MappingsFile = e.String("exploit.mappings_file", c.Exploit.MappingsFile)
	c.Nuclei.Templates = e.String("nuclei.templates", c.Nuclei.Templates)
}
