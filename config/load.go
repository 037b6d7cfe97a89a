package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. VARIANTCACHE_CACHE_DIR.
const EnvPrefix = "VARIANTCACHE"

// Load reads configuration from cfgFile (YAML, TOML or JSON) layered over
// Default and environment variables. An empty cfgFile searches
// ./variantcache.yaml and /etc/variantcache/.
func Load(cfgFile string) (Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("variantcache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/variantcache")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so env overrides apply even when the key
// is absent from the file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("image_root", d.ImageRoot)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("mimic_source_dir", d.MimicSourceDir)
	v.SetDefault("enforce_presets", d.EnforcePresets)
	v.SetDefault("presets", d.Presets)
	v.SetDefault("scale_up", d.ScaleUp)
	v.SetDefault("serve_default_on_same_dimensions", d.ServeDefaultOnSameDimensions)
	v.SetDefault("cache_expire", d.CacheExpire)
	v.SetDefault("exec_commands", []string{})
	v.SetDefault("defaults.w", d.Defaults.Width)
	v.SetDefault("defaults.h", d.Defaults.Height)
	v.SetDefault("defaults.c", d.Defaults.Crop)
	v.SetDefault("defaults.q", d.Defaults.Quality)
	v.SetDefault("default_quality", d.DefaultQuality)
	v.SetDefault("backend", string(d.Backend))
	v.SetDefault("generation_lock", d.GenerationLock)
	v.SetDefault("worker_count", d.WorkerCount)
	v.SetDefault("max_image_bytes", d.MaxImageBytes)
	v.SetDefault("chunk_size", d.ChunkSize)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.route_prefix", d.Server.RoutePrefix)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}
