package config

import (
	"errors"
	"strings"
	"time"
)

// Backend selects the image library used for transforms.
type Backend string

const (
	BackendImaging Backend = "imaging"
	BackendVips    Backend = "vips"
)

// Config is the top-level configuration struct. Option names follow the
// cache's historical configuration keys so existing config files keep working.
type Config struct {
	// ImageRoot is the directory request paths are resolved against.
	ImageRoot string `mapstructure:"image_root"`

	// CacheDir is the root of the variant cache.
	CacheDir string `mapstructure:"cache_dir"`
	// MimicSourceDir mirrors the source's directory subtree under CacheDir.
	MimicSourceDir bool `mapstructure:"mimic_source_dir"`

	EnforcePresets bool     `mapstructure:"enforce_presets"`
	Presets        []string `mapstructure:"presets"`

	// ScaleUp allows generated variants larger than the source.
	ScaleUp bool `mapstructure:"scale_up"`
	// ServeDefaultOnSameDimensions serves the source untouched when the
	// requested dimensions equal the source dimensions.
	ServeDefaultOnSameDimensions bool `mapstructure:"serve_default_on_same_dimensions"`

	// CacheExpire is the browser cache TTL in seconds.
	CacheExpire int `mapstructure:"cache_expire"`

	// ExecCommands run in order after generation as `<command> "<file>"`.
	ExecCommands []string `mapstructure:"exec_commands"`

	// Defaults seed the transform spec before the token is applied.
	Defaults DefaultParams `mapstructure:"defaults"`

	// DefaultQuality is used when neither the token nor Defaults set q.
	DefaultQuality int `mapstructure:"default_quality"` // 1-100; default 85

	// Backend selects the transform engine. "imaging" is pure Go and cannot
	// encode WebP: WebP variants are written as lossless PNG under the .webp
	// name and served with an image/png Content-Type. "vips" needs libvips.
	Backend Backend `mapstructure:"backend"`

	// GenerationLock serialises generation of one cache file across
	// processes with a lock file. Off by default.
	GenerationLock bool `mapstructure:"generation_lock"`

	// WorkerCount bounds concurrency of Warm; 0 resolves to NumCPU.
	WorkerCount int `mapstructure:"worker_count"`

	// Streaming / memory limits.
	MaxImageBytes int64 `mapstructure:"max_image_bytes"` // 0 = no limit
	ChunkSize     int   `mapstructure:"chunk_size"`      // response chunk size; default 8 KiB

	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

// DefaultParams holds the directive defaults. Zero means unset.
type DefaultParams struct {
	Width   int  `mapstructure:"w"`
	Height  int  `mapstructure:"h"`
	Crop    bool `mapstructure:"c"`
	Quality int  `mapstructure:"q"`
}

// ServerConfig configures the HTTP front.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	RoutePrefix string `mapstructure:"route_prefix"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // "text" or "json"
}

// TTL returns CacheExpire as a duration.
func (c Config) TTL() time.Duration { return time.Duration(c.CacheExpire) * time.Second }

// Default returns a Config populated with the historical defaults.
func Default() Config {
	return Config{
		ImageRoot:      ".",
		CacheDir:       "media/cache",
		MimicSourceDir: true,
		EnforcePresets: true,
		Presets:        []string{"w320-h240-c-q60"},
		ScaleUp:        false,
		CacheExpire:    7 * 24 * 60 * 60,
		DefaultQuality: 85,
		Backend:        BackendImaging,
		ChunkSize:      8 * 1024,
		Server: ServerConfig{
			Addr:        ":8080",
			RoutePrefix: "/imagefly",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if strings.TrimSpace(c.CacheDir) == "" {
		return errors.New("config: cache_dir must not be empty")
	}
	if strings.TrimSpace(c.ImageRoot) == "" {
		return errors.New("config: image_root must not be empty")
	}
	if c.CacheExpire < 0 {
		return errors.New("config: cache_expire must not be negative")
	}
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return errors.New("config: default_quality must be between 1 and 100")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	switch c.Backend {
	case BackendImaging, BackendVips:
	default:
		return errors.New("config: backend must be \"imaging\" or \"vips\"")
	}
	if c.EnforcePresets && len(c.Presets) == 0 {
		return errors.New("config: enforce_presets requires at least one preset")
	}
	return nil
}
