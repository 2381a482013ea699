package config

import (
	"errors"
	"fmt"
	"time"

	"bytemomo/harpoon/pkg/logger"
)

// Config is the full harpoon configuration.
type Config struct {
	Artifacts ArtifactsConfig   `yaml:"artifacts"`
	Tools     map[string]string `yaml:"tools,omitempty"`
	Timeouts  Timeouts          `yaml:"timeouts"`
	Remote    RemoteConfig      `yaml:"remote"`
	Log       logger.Config     `yaml:"log"`
	Exploit   ExploitConfig     `yaml:"exploit"`
	Nuclei    NucleiConfig      `yaml:"nuclei"`
	Wordlists WordlistsConfig   `yaml:"wordlists"`
}

// ArtifactsConfig locates the artifact store.
type ArtifactsConfig struct {
	Root string `yaml:"root"`
}

// Timeouts bound every external tool run.
type Timeouts struct {
	Scan       time.Duration `yaml:"scan"`
	Nuclei     time.Duration `yaml:"nuclei"`
	Bruteforce time.Duration `yaml:"bruteforce"`
	Exploit    time.Duration `yaml:"exploit"`
	Capture    time.Duration `yaml:"capture"`
	Status     time.Duration `yaml:"status"`
}

// RemoteConfig configures the remote vulnerability scanner. Credentials
// have no default and must be supplied whenever URL is set.
type RemoteConfig struct {
	URL          string        `yaml:"url,omitempty"`
	AccessKey    string        `yaml:"access_key,omitempty"`
	SecretKey    string        `yaml:"secret_key,omitempty"`
	Template     string        `yaml:"template,omitempty"`
	InsecureTLS  bool          `yaml:"insecure_tls,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
}

// Enabled reports whether a remote scanner is configured.
func (r RemoteConfig) Enabled() bool { return r.URL != "" }

// ExploitConfig points at extra vulnerability to module mappings.
type ExploitConfig struct {
	MappingsFile string `yaml:"mappings_file,omitempty"`
}

// NucleiConfig holds the default template selection.
type NucleiConfig struct {
	Templates string `yaml:"templates,omitempty"`
}

// WordlistsConfig lists where brute force wordlists are looked up.
type WordlistsConfig struct {
	SystemDirs []string `yaml:"system_dirs"`
	PasswdFile string   `yaml:"passwd_file"`
}

// Default returns a configuration with every field set.
func Default() *Config {
	return &Config{
		Artifacts: ArtifactsConfig{Root: "artifacts"},
		Tools:     map[string]string{},
		Timeouts: Timeouts{
			Scan:       5 * time.Minute,
			Nuclei:     5 * time.Minute,
			Bruteforce: 10 * time.Minute,
			Exploit:    3 * time.Minute,
			Capture:    2 * time.Minute,
			Status:     5 * time.Second,
		},
		Remote: RemoteConfig{
			Template:     "ab4bacd2-5257-11e4-926b-406186ea4fc5",
			PollInterval: 30 * time.Second,
			MaxPolls:     60,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "text",
		},
		Wordlists: WordlistsConfig{
			SystemDirs: []string{"/usr/share/wordlists", "/usr/share/seclists"},
			PasswdFile: "/etc/passwd",
		},
	}
}

// Validate reports every problem found in c.
func (c *Config) Validate() error {
	var errs []error

	if c.Artifacts.Root == "" {
		errs = append(errs, errors.New("artifacts.root is required"))
	}
	for name, d := range map[string]time.Duration{
		"scan":       c.Timeouts.Scan,
		"nuclei":     c.Timeouts.Nuclei,
		"bruteforce": c.Timeouts.Bruteforce,
		"exploit":    c.Timeouts.Exploit,
		"capture":    c.Timeouts.Capture,
		"status":     c.Timeouts.Status,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("timeouts.%s must be positive", name))
		}
	}
	for tool, path := range c.Tools {
		if path == "" {
			errs = append(errs, fmt.Errorf("tools.%s has an empty path", tool))
		}
	}

	if c.Remote.Enabled() {
		if c.Remote.AccessKey == "" || c.Remote.SecretKey == "" {
			errs = append(errs, errors.New("remote.access_key and remote.secret_key are required when remote.url is set"))
		}
		if c.Remote.Template == "" {
			errs = append(errs, errors.New("remote.template is required when remote.url is set"))
		}
	}
	if c.Remote.PollInterval <= 0 {
		errs = append(errs, errors.New("remote.poll_interval must be positive"))
	}
	if c.Remote.MaxPolls <= 0 {
		errs = append(errs, errors.New("remote.max_polls must be positive"))
	}

	return errors.Join(errs...)
}
