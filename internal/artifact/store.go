package artifact

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bytemomo/harpoon/pkg/harpoonerr"
	"bytemomo/harpoon/pkg/logger"

	log "github.com/sirupsen/logrus"
)

const (
	Captures         = "captures"
	VulnReports      = "vuln_reports"
	NucleiReports    = "nuclei_reports"
	Wordlists        = "wordlists"
	ExploitReports   = "exploit_reports"
	Scripts          = "scripts"
	GeneratedReports = "generated_reports"
)

var categories = map[string]struct{}{
	Captures:         {},
	VulnReports:      {},
	NucleiReports:    {},
	Wordlists:        {},
	ExploitReports:   {},
	Scripts:          {},
	GeneratedReports: {},
}

const timeLayout = "20060102_150405"

// Entry describes one stored artifact.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store keeps artifacts in flat per-category directories below Root.
type Store struct {
	Root string
	log  *log.Entry
	now  func() time.Time
}

// New returns a Store rooted at root. Category directories are created on
// first use.
func New(root string, l *log.Entry) *Store {
	return &Store{
		Root: root,
		log:  logger.OrNop(l).WithField("component", "artifacts"),
		now:  time.Now,
	}
}

// Dir returns the directory of category, creating it if needed.
func (s *Store) Dir(category string) (string, error) {
	if _, ok := categories[category]; !ok {
		return "", harpoonerr.E("artifact.dir", harpoonerr.ValidationError, fmt.Sprintf("unknown category %q", category), nil)
	}
	dir := filepath.Join(s.Root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// Name builds the canonical artifact file name.
func (s *Store) Name(category, prefix, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", category, sanitize(prefix), s.now().Format(timeLayout), strings.TrimPrefix(ext, "."))
}

// Save writes content under a fresh artifact name and returns its path. The
// data is written to a temporary file first and linked into place only once
// complete, so readers never observe a partial artifact.
func (s *Store) Save(category, prefix, ext string, content []byte) (string, error) {
	dir, err := s.Dir(category)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}

	path, err := s.place(dir, s.Name(category, prefix, ext), func(p string) error {
		return os.Link(tmp.Name(), p)
	})
	if err != nil {
		return "", err
	}

	s.log.WithFields(log.Fields{"category": category, "path": path, "size": len(content)}).Info("Artifact saved")
	return path, nil
}

// Create reserves an empty artifact for tools that write their own output
// file and returns its path.
func (s *Store) Create(category, prefix, ext string) (string, error) {
	dir, err := s.Dir(category)
	if err != nil {
		return "", err
	}

	path, err := s.place(dir, s.Name(category, prefix, ext), func(p string) error {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		return f.Close()
	})
	if err != nil {
		return "", err
	}

	s.log.WithFields(log.Fields{"category": category, "path": path}).Debug("Artifact reserved")
	return path, nil
}

// place claims name in dir with claim, which must fail with fs.ErrExist if
// the name is taken. Collisions get a random suffix.
func (s *Store) place(dir, name string, claim func(string) error) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := name
	for attempt := 0; attempt < 8; attempt++ {
		path := filepath.Join(dir, candidate)
		err := claim(path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("store artifact %s: %w", candidate, err)
		}
		candidate = base + "_" + randomSuffix() + ext
	}
	return "", fmt.Errorf("store artifact %s: too many name collisions", name)
}

// Resolve returns the absolute path of filename inside category. Names that
// could leave the category directory are rejected before the filesystem is
// touched; symlinks are then followed and checked against the root.
func (s *Store) Resolve(category, filename string) (string, error) {
	const op = "artifact.resolve"

	if _, ok := categories[category]; !ok {
		return "", harpoonerr.E(op, harpoonerr.ValidationError, fmt.Sprintf("unknown category %q", category), nil)
	}
	if filename == "" || filename == "." || strings.Contains(filename, "..") ||
		strings.ContainsAny(filename, `/\`) || filepath.IsAbs(filename) {
		return "", harpoonerr.E(op, harpoonerr.AccessDenied, fmt.Sprintf("%q escapes %s", filename, category), nil)
	}

	root, err := filepath.Abs(filepath.Join(s.Root, category))
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	target := filepath.Join(root, filename)

	if _, err := os.Lstat(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", harpoonerr.E(op, harpoonerr.NotFound, fmt.Sprintf("%s/%s not found", category, filename), err)
		}
		return "", fmt.Errorf("stat %s: %w", target, err)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	realTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", harpoonerr.E(op, harpoonerr.NotFound, fmt.Sprintf("%s/%s not found", category, filename), err)
		}
		return "", fmt.Errorf("resolve %s: %w", target, err)
	}

	rel, err := filepath.Rel(realRoot, realTarget)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		s.log.WithFields(log.Fields{"category": category, "path": filename}).Warn("Blocked artifact escape")
		return "", harpoonerr.E(op, harpoonerr.AccessDenied, fmt.Sprintf("%q escapes %s", filename, category), nil)
	}
	return realTarget, nil
}

// Open returns the bytes of a stored artifact.
func (s *Store) Open(category, filename string) ([]byte, error) {
	path, err := s.Resolve(category, filename)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// List returns the artifacts of category, newest first.
func (s *Store) List(category string) ([]Entry, error) {
	dir, err := s.Dir(category)
	if err != nil {
		return nil, err
	}

	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", category, err)
	}

	out := make([]Entry, 0, len(items))
	for _, it := range items {
		if it.IsDir() || strings.HasPrefix(it.Name(), ".") {
			continue
		}
		info, err := it.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:    it.Name(),
			Path:    filepath.Join(dir, it.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

func randomSuffix() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%06x", time.Now().UnixNano()&0xffffff)
	}
	return hex.EncodeToString(b)
}

func sanitize(prefix string) string {
	if prefix == "" {
		return "artifact"
	}
	var b strings.Builder
	for _, r := range prefix {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.ReplaceAll(b.String(), "..", "_")
}
