package bruteforce

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bytemomo/harpoon/internal/domain"
)

// MaxWordlistSize skips larger files during discovery.
const MaxWordlistSize = 20 << 20

// Wordlists locates user and password lists on disk.
type Wordlists struct {
	// SystemDirs are searched recursively; their files are classified by
	// name.
	SystemDirs []string
	// PasswdFile is offered as a user list of system accounts.
	PasswdFile string
}

func DefaultWordlists() Wordlists {
	return Wordlists{
		SystemDirs: []string{"/usr/share/wordlists", "/usr/share/seclists"},
		PasswdFile: "/etc/passwd",
	}
}

// Discover walks the system directories and the managed directory. Files
// placed directly in the managed directory are offered as both user and
// password lists.
func (w Wordlists) Discover(managed string) (users, passwords []domain.WordlistEntry) {
	seenU := map[string]struct{}{}
	seenP := map[string]struct{}{}
	addU := func(name, path string) {
		if _, ok := seenU[path]; !ok {
			seenU[path] = struct{}{}
			users = append(users, domain.WordlistEntry{Name: name, Path: path})
		}
	}
	addP := func(name, path string) {
		if _, ok := seenP[path]; !ok {
			seenP[path] = struct{}{}
			passwords = append(passwords, domain.WordlistEntry{Name: name, Path: path})
		}
	}

	for _, root := range append(append([]string{}, w.SystemDirs...), managed) {
		isManaged := root == managed
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			info, err := d.Info()
			if err != nil || !info.Mode().IsRegular() || info.Size() >= MaxWordlistSize {
				return nil
			}

			name := d.Name()
			if isManaged && filepath.Dir(path) == filepath.Clean(managed) {
				addU(name, path)
				addP(name, path)
				return nil
			}

			lower := strings.ToLower(name)
			switch {
			case strings.Contains(lower, "user") || strings.Contains(lower, "login"):
				addU(name, path)
			case strings.Contains(lower, "pass") || strings.Contains(lower, "pwd") || strings.Contains(lower, "dict"):
				addP(name, path)
			}
			return nil
		})
	}

	for _, dir := range w.SystemDirs {
		rockyou := filepath.Join(dir, "rockyou.txt")
		if exists(rockyou) {
			addP("rockyou.txt", rockyou)
		}
	}
	if w.PasswdFile != "" && exists(w.PasswdFile) {
		addU("system-users", w.PasswdFile)
	}

	byName := func(l []domain.WordlistEntry) {
		sort.SliceStable(l, func(i, j int) bool {
			if l[i].Name != l[j].Name {
				return l[i].Name < l[j].Name
			}
			return l[i].Path < l[j].Path
		})
	}
	byName(users)
	byName(passwords)
	return users, passwords
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
