package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envFrom(m map[string]string) *Env {
	e := NewEnv("")
	e.lookup = func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
	return e
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if c.Timeouts.Bruteforce != 10*time.Minute || c.Timeouts.Exploit != 3*time.Minute || c.Timeouts.Status != 5*time.Second {
		t.Fatalf("unexpected timeouts %+v", c.Timeouts)
	}
	if c.Remote.AccessKey != "" || c.Remote.SecretKey != "" {
		t.Fatal("default config must not carry remote credentials")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty root", func(c *Config) { c.Artifacts.Root = "" }, "artifacts.root"},
		{"zero timeout", func(c *Config) { c.Timeouts.Nuclei = 0 }, "timeouts.nuclei"},
		{"remote without keys", func(c *Config) { c.Remote.URL = "https://scanner:8834" }, "access_key"},
		{"remote half keys", func(c *Config) {
			c.Remote.URL = "https://scanner:8834"
			c.Remote.AccessKey = "a"
		}, "secret_key"},
		{"empty tool path", func(c *Config) { c.Tools["nmap"] = "" }, "tools.nmap"},
		{"max polls", func(c *Config) { c.Remote.MaxPolls = 0 }, "max_polls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	c.ApplyEnv(envFrom(map[string]string{
		"HARPOON_ARTIFACTS_ROOT":      "/srv/artifacts",
		"HARPOON_TOOL_NMAP":           "/opt/nmap/bin/nmap",
		"HARPOON_TIMEOUT_SCAN":        "90s",
		"HARPOON_TIMEOUT_EXPLOIT":     "not-a-duration",
		"HARPOON_REMOTE_URL":          "https://scanner:8834",
		"HARPOON_REMOTE_ACCESS_KEY":   "ak",
		"HARPOON_REMOTE_SECRET_KEY":   "sk",
		"HARPOON_REMOTE_INSECURE_TLS": "true",
		"HARPOON_REMOTE_MAX_POLLS":    "5",
		"HARPOON_LOG_LEVEL":           "debug",
	}))

	if c.Artifacts.Root != "/srv/artifacts" || c.Tools["nmap"] != "/opt/nmap/bin/nmap" {
		t.Errorf("unexpected paths: %+v %v", c.Artifacts, c.Tools)
	}
	if c.Timeouts.Scan != 90*time.Second || c.Timeouts.Exploit != 3*time.Minute {
		t.Errorf("unexpected timeouts %+v", c.Timeouts)
	}
	if !c.Remote.Enabled() || c.Remote.AccessKey != "ak" || !c.Remote.InsecureTLS || c.Remote.MaxPolls != 5 {
		t.Errorf("unexpected remote %+v", c.Remote)
	}
	if c.Log.Level != "debug" {
		t.Errorf("log level = %s", c.Log.Level)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("HARPOON_TEST_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HARPOON_TEST_DOTENV", "")
	os.Unsetenv("HARPOON_TEST_DOTENV")

	if err := LoadDotenv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if got := NewEnv("").String("test_dotenv", ""); got != "from-file" {
		t.Fatalf("HARPOON_TEST_DOTENV = %q", got)
	}
}
