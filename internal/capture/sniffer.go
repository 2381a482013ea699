package capture

import (
	"context"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/report"
	"bytemomo/harpoon/pkg/harpoonerr"
	"bytemomo/harpoon/pkg/logger"

	log "github.com/sirupsen/logrus"
)

const (
	Tool           = "tcpdump"
	DefaultTimeout = 2 * time.Minute
	DefaultCount   = 100
	MaxCount       = 100000
)

var ifaceName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:@-]*$`)

// Interface describes a local network interface.
type Interface struct {
	Name  string   `json:"name"`
	MAC   string   `json:"mac,omitempty"`
	Addrs []string `json:"addrs,omitempty"`
	Up    bool     `json:"up"`
}

// Sniffer records packets with tcpdump into the capture store.
type Sniffer struct {
	tools   domain.ToolRunner
	store   *artifact.Store
	reports *report.Generator
	timeout time.Duration
	log     *log.Entry
}

// NewSniffer returns a Sniffer. A non-positive timeout means DefaultTimeout.
func NewSniffer(tools domain.ToolRunner, store *artifact.Store, reports *report.Generator, timeout time.Duration, l *log.Entry) *Sniffer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sniffer{
		tools:   tools,
		store:   store,
		reports: reports,
		timeout: timeout,
		log:     logger.OrNop(l).WithField("component", "capture"),
	}
}

// Interfaces lists the interfaces of this host.
func (s *Sniffer) Interfaces() ([]Interface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	out := make([]Interface, 0, len(ifs))
	for _, i := range ifs {
		it := Interface{
			Name: i.Name,
			MAC:  i.HardwareAddr.String(),
			Up:   i.Flags&net.FlagUp != 0,
		}
		if addrs, err := i.Addrs(); err == nil {
			for _, a := range addrs {
				it.Addrs = append(it.Addrs, a.String())
			}
		}
		out = append(out, it)
	}
	return out, nil
}

// Capture records count packets from iface into a new captures artifact
// and returns its path.
func (s *Sniffer) Capture(ctx context.Context, iface string, count int) (string, error) {
	const op = "capture.capture"

	if !ifaceName.MatchString(iface) {
		return "", harpoonerr.E(op, harpoonerr.ValidationError, fmt.Sprintf("invalid interface %q", iface), nil)
	}
	if count == 0 {
		count = DefaultCount
	}
	if count < 0 || count > MaxCount {
		return "", harpoonerr.E(op, harpoonerr.ValidationError, fmt.Sprintf("packet count must be between 1 and %d", MaxCount), nil)
	}

	path, err := s.store.Create(artifact.Captures, iface, "pcap")
	if err != nil {
		return "", err
	}

	entry := s.log.WithFields(log.Fields{"interface": iface, "count": count, "path": path})
	entry.Info("Starting capture")

	_, err = s.tools.Invoke(ctx, domain.Invocation{
		Tool:    Tool,
		Args:    []string{"-i", iface, "-c", strconv.Itoa(count), "-w", path},
		Timeout: s.timeout,
	})
	if err != nil {
		if info, statErr := os.Stat(path); statErr == nil && info.Size() == 0 {
			os.Remove(path)
		}
		entry.WithError(err).Error("Capture failed")
		return "", err
	}

	entry.Info("Capture saved")
	return path, nil
}

// AnalyzeArtifact analyzes a capture stored in the captures category.
func (s *Sniffer) AnalyzeArtifact(name string) (*Analysis, error) {
	path, err := s.store.Resolve(artifact.Captures, name)
	if err != nil {
		return nil, err
	}
	return Analyze(path)
}

// Report analyzes the capture at path and renders a capture report into the
// generated reports category.
func (s *Sniffer) Report(path string) (string, *Analysis, error) {
	a, err := Analyze(path)
	if err != nil {
		return "", nil, err
	}

	result := domain.NewScanResult(Tool, domain.ScanTarget{Host: a.File})
	result.HostStatus = domain.HostUnknown
	if err := result.SetRawReport(path); err != nil {
		return "", nil, err
	}
	if a.Note != "" {
		result.AddCaveat(a.Note + ": " + a.Error)
	}

	out, err := s.reports.GenerateWith(result, artifact.GeneratedReports, a.Extra())
	if err != nil {
		return "", a, err
	}
	s.log.WithFields(log.Fields{"capture": path, "report": out}).Info("Capture report generated")
	return out, a, nil
}
