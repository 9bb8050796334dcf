// Package manifest handles dexvm.toml runtime configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
)

// FileName is the name FindAndLoad looks for.
const FileName = "dexvm.toml"

var log = commonlog.GetLogger("dexvm.manifest")

// ErrInvalid is wrapped by every schema validation failure.
var ErrInvalid = errors.New("invalid manifest")

// Manifest represents a dexvm.toml file.
type Manifest struct {
	VM       VMConfig       `toml:"vm" json:"vm"`
	Debugger DebuggerConfig `toml:"debugger" json:"debugger"`
	Monitor  MonitorConfig  `toml:"monitor" json:"monitor"`
	Cache    CacheConfig    `toml:"cache" json:"cache"`
	Log      LogConfig      `toml:"log" json:"log"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// VMConfig sizes the runtime.
type VMConfig struct {
	HeapLimit     ByteSize      `toml:"heap_limit" json:"heap_limit"`
	MaxFrameDepth int           `toml:"max_frame_depth" json:"max_frame_depth"`
	GCInterval    time.Duration `toml:"gc_interval" json:"gc_interval"`
	GCThreshold   float64       `toml:"gc_threshold" json:"gc_threshold"`
}

// DebuggerConfig configures the JDWP listener. An empty Listen disables
// it.
type DebuggerConfig struct {
	Listen         string `toml:"listen" json:"listen"`
	SuspendOnStart bool   `toml:"suspend_on_start" json:"suspend_on_start"`
}

// MonitorConfig configures the HTTP monitor. An empty Listen disables it.
type MonitorConfig struct {
	Listen string `toml:"listen" json:"listen"`
}

// CacheConfig configures the verification cache.
type CacheConfig struct {
	Path    string `toml:"path" json:"path"`
	Enabled bool   `toml:"enabled" json:"enabled"`
}

// LogConfig configures commonlog. Verbosity follows commonlog.Configure:
// 0 is notice, 1 info, 2 debug, negative values are quieter.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// ByteSize is a byte count written either as an integer or as a string
// such as "64MiB".
type ByteSize int64

// UnmarshalTOML implements toml.Unmarshaler.
func (b *ByteSize) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case int64:
		*b = ByteSize(v)
	case string:
		n, err := humanize.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("byte size %q: %w", v, err)
		}
		*b = ByteSize(n)
	default:
		return fmt.Errorf("byte size: unexpected %T", v)
	}
	return nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Default returns the configuration used when no file is present.
func Default() *Manifest {
	return &Manifest{
		VM: VMConfig{
			HeapLimit:     64 << 20,
			MaxFrameDepth: 1024,
			GCInterval:    5 * time.Second,
			GCThreshold:   0.75,
		},
		Cache: CacheConfig{
			Path:    filepath.Join(".dexvm", "cache.db"),
			Enabled: true,
		},
	}
}

// Load parses the file at path over the defaults and validates the
// result.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		log.Warningf("%s: ignoring unknown keys %s", path, strings.Join(names, ", "))
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if err := Validate(m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("loaded %s", path)
	return m, nil
}

// FindAndLoad walks up from startDir to find a dexvm.toml file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// CachePath returns the cache database path, resolved against Dir when
// relative.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) || m.Dir == "" {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// LogFile returns the log file path resolved against Dir, or "" for
// stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) || m.Dir == "" {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}
