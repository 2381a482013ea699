//go:build unix

package bruteforce

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/invoker"
	"bytemomo/harpoon/internal/testutil"
	"bytemomo/harpoon/pkg/harpoonerr"
)

const hydraOut = `Hydra v9.5 (c) 2023 by van Hauser/THC
[DATA] max 4 tasks per 1 server, overall 4 tasks, 9 login tries
[22][ssh] host: 10.0.0.7   login: admin   password: hunter2
[22][ssh] host: 10.0.0.7   login: root   password: toor
1 of 1 target successfully completed, 2 valid passwords found
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newRunner(t *testing.T, tool string, wl Wordlists) *Runner {
	return NewRunner(
		invoker.New(nil, map[string]string{Tool: tool}),
		artifact.New(t.TempDir(), nil),
		wl, 5*time.Second, nil,
	)
}

func TestBuildArgs(t *testing.T) {
	got := buildArgs(Request{
		Target: "10.0.0.7", Service: "ssh", UserList: "u.txt", PassList: "p.txt",
		Options: Options{Tasks: 4, Verbose: true, Port: 2222},
	})
	want := []string{"-t", "4", "-v", "-s", "2222", "-L", "u.txt", "-P", "p.txt", "10.0.0.7", "ssh"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected args:\n%v\n%v", got, want)
	}

	got = buildArgs(Request{Target: "web", Service: "http-post-form", UserList: "u", PassList: "p",
		Options: Options{FormPath: "/login"}})
	last := got[len(got)-1]
	if last != "/login:username=^USER^&password=^PASS^:F=incorrect" {
		t.Fatalf("unexpected form spec %q", last)
	}

	got = buildArgs(Request{Target: "web", Service: "http-get", UserList: "u", PassList: "p"})
	if got[len(got)-1] != "http-get" {
		t.Fatalf("form spec added to non-form service: %v", got)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	users := writeFile(t, dir, "users.txt", "admin\nroot\n")
	pass := writeFile(t, dir, "pass.txt", "hunter2\ntoor\n")
	r := newRunner(t, testutil.StaticTool(t, "hydra", hydraOut, 0), Wordlists{})

	res, err := r.Run(context.Background(), Request{Target: "10.0.0.7", Service: "ssh", UserList: users, PassList: pass})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Findings) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(res.Findings))
	}
	f := res.Findings[0]
	if f.Kind != domain.KindCredential || f.Port != 22 || f.Service != "ssh" || f.Severity != domain.SeverityHigh {
		t.Fatalf("unexpected finding %+v", f)
	}
	if f.Evidence["login"] != "admin" || f.Evidence["password"] != "hunter2" {
		t.Fatalf("unexpected evidence %v", f.Evidence)
	}
	if res.HostStatus != domain.HostUp {
		t.Fatalf("host status = %s", res.HostStatus)
	}
}

func TestRunNoCredentials(t *testing.T) {
	dir := t.TempDir()
	users := writeFile(t, dir, "users.txt", "admin\n")
	pass := writeFile(t, dir, "pass.txt", "x\n")
	r := newRunner(t, testutil.StaticTool(t, "hydra", "0 valid passwords found\n", 0), Wordlists{})

	res, err := r.Run(context.Background(), Request{Target: "10.0.0.7", Service: "ftp", UserList: users, PassList: pass})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Findings) != 0 || res.HostStatus != domain.HostUnknown {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunValidation(t *testing.T) {
	dir := t.TempDir()
	users := writeFile(t, dir, "users.txt", "admin\n")
	pass := writeFile(t, dir, "pass.txt", "x\n")
	r := newRunner(t, testutil.StaticTool(t, "hydra", hydraOut, 0), Wordlists{})

	cases := map[string]Request{
		"missing userlist": {Target: "10.0.0.7", Service: "ssh", UserList: filepath.Join(dir, "nope"), PassList: pass},
		"dir as passlist":  {Target: "10.0.0.7", Service: "ssh", UserList: users, PassList: dir},
		"bad service":      {Target: "10.0.0.7", Service: "-x", UserList: users, PassList: pass},
		"two hosts":        {Target: "10.0.0.7 10.0.0.8", Service: "ssh", UserList: users, PassList: pass},
		"option target":    {Target: "-oX", Service: "ssh", UserList: users, PassList: pass},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Run(context.Background(), req)
			if !harpoonerr.Is(err, harpoonerr.ValidationError) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRunToolFailure(t *testing.T) {
	dir := t.TempDir()
	users := writeFile(t, dir, "users.txt", "admin\n")
	pass := writeFile(t, dir, "pass.txt", "x\n")
	r := newRunner(t, testutil.StaticTool(t, "hydra", "[ERROR] could not connect\n", 255), Wordlists{})

	res, err := r.Run(context.Background(), Request{Target: "10.0.0.7", Service: "ssh", UserList: users, PassList: pass})
	if !harpoonerr.Is(err, harpoonerr.ProcessError) {
		t.Fatalf("expected process error, got %v", err)
	}
	if res == nil || res.Raw.ExitCode != 255 {
		t.Fatalf("raw output not kept: %+v", res)
	}
}

func TestWordlists(t *testing.T) {
	sys := t.TempDir()
	writeFile(t, sys, "usernames/top-usernames.txt", "admin\n")
	writeFile(t, sys, "passwords/darkweb-passwords.txt", "123456\n")
	writeFile(t, sys, "misc/dict.lst", "a\n")
	writeFile(t, sys, "misc/readme.md", "docs\n")
	writeFile(t, sys, "rockyou.txt", "iloveyou\n")
	passwd := writeFile(t, t.TempDir(), "passwd", "root:x:0:0::/root:/bin/sh\n")

	r := newRunner(t, "hydra", Wordlists{SystemDirs: []string{sys}, PasswdFile: passwd})
	custom, err := r.CreateWordlist("alice\nbob", "userlist")
	if err != nil {
		t.Fatalf("CreateWordlist: %v", err)
	}

	users, passwords, err := r.Wordlists()
	if err != nil {
		t.Fatalf("Wordlists: %v", err)
	}

	names := func(l []domain.WordlistEntry) []string {
		var out []string
		for _, e := range l {
			out = append(out, e.Name)
		}
		return out
	}
	wantUsers := []string{"system-users", "top-usernames.txt", filepath.Base(custom)}
	wantPass := []string{"darkweb-passwords.txt", "dict.lst", "rockyou.txt", filepath.Base(custom)}
	sort.Strings(wantUsers)
	sort.Strings(wantPass)
	if got := names(users); !reflect.DeepEqual(got, wantUsers) {
		t.Errorf("users = %v, want %v", got, wantUsers)
	}
	if got := names(passwords); !reflect.DeepEqual(got, wantPass) {
		t.Errorf("passwords = %v, want %v", got, wantPass)
	}

	data, err := os.ReadFile(custom)
	if err != nil || string(data) != "alice\nbob\n" {
		t.Fatalf("custom wordlist = %q, %v", data, err)
	}
}

func TestCreateWordlistRejects(t *testing.T) {
	r := newRunner(t, "hydra", Wordlists{})
	if _, err := r.CreateWordlist("a\n", "other"); !harpoonerr.Is(err, harpoonerr.ValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := r.CreateWordlist("  \n", "passlist"); !harpoonerr.Is(err, harpoonerr.ValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
