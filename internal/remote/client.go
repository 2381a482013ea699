package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bytemomo/harpoon/pkg/harpoonerr"
	"bytemomo/harpoon/pkg/logger"

	log "github.com/sirupsen/logrus"
)

// ClientConfig holds the connection settings of the remote scanner. There
// are no built-in credentials.
type ClientConfig struct {
	URL         string
	AccessKey   string
	SecretKey   string
	InsecureTLS bool
	Timeout     time.Duration
}

// Client speaks the remote scanner's REST API.
type Client struct {
	base string
	auth string
	http *http.Client
	log  *log.Entry
}

// Vulnerability is one entry of a finished scan's vulnerability list.
type Vulnerability struct {
	PluginID     any    `json:"plugin_id"`
	PluginName   string `json:"plugin_name"`
	PluginFamily string `json:"plugin_family"`
	Severity     any    `json:"severity"`
	Count        int    `json:"count"`
	Host         string `json:"host,omitempty"`
	Port         any    `json:"port,omitempty"`
	Protocol     string `json:"protocol,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Template is a scan policy template.
type Template struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Folder is a scan folder.
type Folder struct {
	ID   any    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// NewClient validates cfg and returns a Client. URL and both API keys are
// required.
func NewClient(cfg ClientConfig, l *log.Entry) (*Client, error) {
	const op = "remote.client"

	if strings.TrimSpace(cfg.URL) == "" {
		return nil, harpoonerr.E(op, harpoonerr.ValidationError, "remote scanner url is not configured", nil)
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, harpoonerr.E(op, harpoonerr.ValidationError, "remote scanner credentials are not configured", nil)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed scanner appliances
	}

	return &Client{
		base: strings.TrimRight(cfg.URL, "/"),
		auth: fmt.Sprintf("accessKey=%s; secretKey=%s", cfg.AccessKey, cfg.SecretKey),
		http: &http.Client{Timeout: timeout, Transport: tr},
		log:  logger.OrNop(l).WithField("component", "remote"),
	}, nil
}

// CreateScan registers a scan and returns the service-assigned identifier.
func (c *Client) CreateScan(ctx context.Context, templateUUID, name, targets string) (string, error) {
	body := map[string]any{
		"uuid": templateUUID,
		"settings": map[string]any{
			"name":         name,
			"text_targets": targets,
			"enabled":      false,
		},
	}

	var resp map[string]any
	if err := c.do(ctx, http.MethodPost, "/scans", body, &resp); err != nil {
		return "", err
	}
	id, ok := scanID(resp)
	if !ok {
		return "", harpoonerr.E("remote.create", harpoonerr.RemoteServiceError, "create response carries no scan identifier", nil)
	}
	return id, nil
}

// LaunchScan starts a created scan.
func (c *Client) LaunchScan(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, scanPath(id)+"/launch", nil, nil)
}

// ScanStatus returns info.status of a scan.
func (c *Client) ScanStatus(ctx context.Context, id string) (string, error) {
	var resp struct {
		Info *struct {
			Status string `json:"status"`
		} `json:"info"`
	}
	if err := c.do(ctx, http.MethodGet, scanPath(id), nil, &resp); err != nil {
		return "", err
	}
	if resp.Info == nil || resp.Info.Status == "" {
		return "", harpoonerr.E("remote.status", harpoonerr.RemoteServiceError, "status response carries no info.status", nil)
	}
	return strings.ToLower(resp.Info.Status), nil
}

// ScanResults returns the vulnerability list of a scan.
func (c *Client) ScanResults(ctx context.Context, id string) ([]Vulnerability, error) {
	var resp struct {
		Vulnerabilities *[]Vulnerability `json:"vulnerabilities"`
	}
	if err := c.do(ctx, http.MethodGet, scanPath(id), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Vulnerabilities == nil {
		return nil, harpoonerr.E("remote.results", harpoonerr.RemoteServiceError, "results response carries no vulnerabilities", nil)
	}
	return *resp.Vulnerabilities, nil
}

func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var resp struct {
		Templates []Template `json:"templates"`
	}
	if err := c.do(ctx, http.MethodGet, "/editor/scan/templates", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Templates, nil
}

func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	var resp struct {
		Folders []Folder `json:"folders"`
	}
	if err := c.do(ctx, http.MethodGet, "/folders", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Folders, nil
}

// Ping checks that the service answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/server/status", nil, nil)
}

// scanPath escapes id so a service-provided identifier stays one path segment.
func scanPath(id string) string {
	return "/scans/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	op := "remote " + method + " " + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return harpoonerr.E(op, harpoonerr.RemoteServiceUnreachable, "build request", err)
	}
	req.Header.Set("X-ApiKeys", c.auth)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("path", path).Warn("Remote scanner unreachable")
		return harpoonerr.E(op, harpoonerr.RemoteServiceUnreachable, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return harpoonerr.E(op, harpoonerr.RemoteServiceUnreachable, "read response", err)
	}

	c.log.WithFields(log.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Remote call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &harpoonerr.Error{
			Op:   op,
			Kind: harpoonerr.RemoteServiceError,
			Msg:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet(raw)),
			Code: resp.StatusCode,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return harpoonerr.E(op, harpoonerr.RemoteServiceError, "malformed response body", err)
	}
	return nil
}

// scanID accepts the identifier shapes seen across scanner versions.
func scanID(resp map[string]any) (string, bool) {
	if scan, ok := resp["scan"].(map[string]any); ok {
		if id, ok := idString(scan["id"]); ok {
			return id, true
		}
	}
	for _, key := range []string{"scan_id", "id"} {
		if id, ok := idString(resp[key]); ok {
			return id, true
		}
	}
	if scan, ok := resp["scan"].(map[string]any); ok {
		if id, ok := idString(scan["uuid"]); ok {
			return id, true
		}
	}
	return "", false
}

func idString(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatInt(int64(t), 10), true
	case string:
		if t = strings.TrimSpace(t); t != "" {
			return t, true
		}
	}
	return "", false
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
