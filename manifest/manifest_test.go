package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
[vm]
heap_limit = "16MiB"
max_frame_depth = 256
gc_interval = "250ms"
gc_threshold = 0.5

[debugger]
listen = "127.0.0.1:8700"
suspend_on_start = true

[monitor]
listen = ":8701"

[cache]
path = "state/verify.db"
enabled = true

[log]
verbosity = 2
file = "dexvm.log"
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.VM.HeapLimit != 16<<20 {
		t.Errorf("heap_limit = %d, want %d", m.VM.HeapLimit, 16<<20)
	}
	if m.VM.MaxFrameDepth != 256 {
		t.Errorf("max_frame_depth = %d, want 256", m.VM.MaxFrameDepth)
	}
	if m.VM.GCInterval != 250*time.Millisecond {
		t.Errorf("gc_interval = %v, want 250ms", m.VM.GCInterval)
	}
	if m.VM.GCThreshold != 0.5 {
		t.Errorf("gc_threshold = %v, want 0.5", m.VM.GCThreshold)
	}
	if m.Debugger.Listen != "127.0.0.1:8700" || !m.Debugger.SuspendOnStart {
		t.Errorf("debugger = %+v", m.Debugger)
	}
	if m.Monitor.Listen != ":8701" {
		t.Errorf("monitor listen = %q", m.Monitor.Listen)
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, "state", "verify.db"); got != want {
		t.Errorf("CachePath = %q, want %q", got, want)
	}
	if got, want := m.LogFile(), filepath.Join(m.Dir, "dexvm.log"); got != want {
		t.Errorf("LogFile = %q, want %q", got, want)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", m.Log.Verbosity)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
[vm]
heap_limit = 1048576
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := Default()
	if m.VM.HeapLimit != 1<<20 {
		t.Errorf("heap_limit = %d, want 1MiB", m.VM.HeapLimit)
	}
	if m.VM.MaxFrameDepth != def.VM.MaxFrameDepth || m.VM.GCInterval != def.VM.GCInterval {
		t.Errorf("vm defaults not applied: %+v", m.VM)
	}
	if m.Debugger.Listen != "" || m.Monitor.Listen != "" {
		t.Error("listeners should be disabled by default")
	}
	if !m.Cache.Enabled || m.LogFile() != "" {
		t.Errorf("cache = %+v, log file = %q", m.Cache, m.LogFile())
	}
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero heap", "[vm]\nheap_limit = 0\n"},
		{"negative depth", "[vm]\nmax_frame_depth = -1\n"},
		{"threshold above one", "[vm]\ngc_threshold = 1.5\n"},
		{"listen without port", "[debugger]\nlisten = \"localhost\"\n"},
		{"monitor port not numeric", "[monitor]\nlisten = \"localhost:http\"\n"},
		{"cache enabled without path", "[cache]\nenabled = true\npath = \"\"\n"},
		{"verbosity too high", "[log]\nverbosity = 9\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), tt.content)
			_, err := Load(path)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Load = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadManifestParseError(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "[vm\nheap_limit = 1\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parse error") {
		t.Fatalf("Load = %v, want a parse error", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), FileName)); err == nil {
		t.Error("Load of a missing file succeeded")
	}
	path = writeManifest(t, t.TempDir(), "[vm]\nheap_limit = \"lots\"\n")
	if _, err := Load(path); err == nil {
		t.Error("unparseable byte size accepted")
	}
}

func TestDisabledCacheMayOmitPath(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "[cache]\nenabled = false\npath = \"\"\n")
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Cache.Enabled {
		t.Error("cache enabled")
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Validate(Default()) = %v", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[monitor]\nlisten = \"127.0.0.1:9000\"\n")

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Monitor.Listen != "127.0.0.1:9000" {
		t.Errorf("monitor listen = %q", m.Monitor.Listen)
	}
	abs, _ := filepath.Abs(dir)
	if m.Dir != abs {
		t.Errorf("Dir = %q, want %q", m.Dir, abs)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no dexvm.toml exists")
	}
}

func TestByteSizeString(t *testing.T) {
	if got := ByteSize(64 << 20).String(); got != "64 MiB" {
		t.Errorf("String = %q, want 64 MiB", got)
	}
}
