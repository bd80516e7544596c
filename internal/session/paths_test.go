package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/opschat/internal/config"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".opschat", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "daemon.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix sessions/test/daemon.sock", got)
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	// Override BaseDir for testing by using a custom session dir.
	sessionDir := filepath.Join(tmpDir, "sessions", "test")
	logDir := filepath.Join(sessionDir, "logs")

	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(logDir, 0700); err != nil {
		t.Fatal(err)
	}

	// Verify dirs were created.
	info, err := os.Stat(sessionDir)
	if err != nil {
		t.Fatalf("session dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("session dir is not a directory")
	}
}

func TestDataPaths(t *testing.T) {
	if got := ClientDBPath("ops"); !strings.HasSuffix(got, filepath.Join("sessions", "ops", "client.db")) {
		t.Errorf("ClientDBPath(ops) = %q", got)
	}
	if got := LogPath("ops"); !strings.HasSuffix(got, filepath.Join("sessions", "ops", "logs", "opschatd.log")) {
		t.Errorf("LogPath(ops) = %q", got)
	}
}

func TestPickPrecedence(t *testing.T) {
	cfg := &config.Config{DefaultSession: "night"}
	tests := []struct {
		name string
		flag string
		cfg  *config.Config
		want string
		src  Source
	}{
		{"flag wins", "ops", cfg, "ops", SourceFlag},
		{"config next", "", cfg, "night", SourceConfig},
		{"no config", "", nil, DefaultSessionName, SourceDefault},
		{"empty default", "", &config.Config{}, DefaultSessionName, SourceDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, src := pick(tt.flag, tt.cfg)
			if got != tt.want || src != tt.src {
				t.Errorf("pick() = %q, %q; want %q, %q", got, src, tt.want, tt.src)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPSCHAT_SESSION", "")

	if got, err := Resolve(" Night "); err != nil || got != "night" {
		t.Errorf("Resolve(flag) = %q, %v", got, err)
	}
	if got, err := Resolve(""); err != nil || got != DefaultSessionName {
		t.Errorf("Resolve() = %q, %v", got, err)
	}
	_, err := Resolve("../etc")
	if !errors.Is(err, ErrInvalidName) || !strings.Contains(err.Error(), string(SourceFlag)) {
		t.Errorf("Resolve(bad flag) error = %v", err)
	}
}
