package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marwant/zizh/internal/play"
)

type Config struct {
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Playback  PlaybackConfig  `mapstructure:"playback" yaml:"playback"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

type StorageConfig struct {
	DocumentsRoot string `mapstructure:"documents_root" yaml:"documents_root"`
	HomeDirectory string `mapstructure:"home_directory" yaml:"home_directory"`
	Backend       string `mapstructure:"backend" yaml:"backend"`
	Database      string `mapstructure:"database" yaml:"database"`
}

type RecordingConfig struct {
	Binary      string `mapstructure:"binary" yaml:"binary"`
	InputFormat string `mapstructure:"input_format" yaml:"input_format"`
	InputDevice string `mapstructure:"input_device" yaml:"input_device"`
	SampleRate  int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels    int    `mapstructure:"channels" yaml:"channels"`
	Codec       string `mapstructure:"codec" yaml:"codec"`
	Quality     string `mapstructure:"quality" yaml:"quality"`
}

type PlaybackConfig struct {
	Binary         string  `mapstructure:"binary" yaml:"binary"`
	ProbeBinary    string  `mapstructure:"probe_binary" yaml:"probe_binary"`
	SlowMotionRate float64 `mapstructure:"slow_motion_rate" yaml:"slow_motion_rate"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
}

// EnvPrefix prefixes environment overrides, e.g. ZIZH_STORAGE_BACKEND.
const EnvPrefix = "ZIZH"

var defaultConfig = Config{
	Storage: StorageConfig{
		DocumentsRoot: "~/Documents",
		HomeDirectory: "zizh",
		Backend:       "leveldb",
		Database:      "metadata",
	},
	Recording: RecordingConfig{
		Binary:      "ffmpeg",
		InputFormat: "pulse",
		InputDevice: "default",
		SampleRate:  44100,
		Channels:    2,
		Codec:       "aac",
		Quality:     "high",
	},
	Playback: PlaybackConfig{
		Binary:         "ffplay",
		ProbeBinary:    "ffprobe",
		SlowMotionRate: 1.0 / 6.0,
	},
	Server: ServerConfig{
		Address: ":8080",
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	return &c
}

// DefaultPath is where the config file lives unless --config says otherwise.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/zizh.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.documents_root", defaultConfig.Storage.DocumentsRoot)
	v.SetDefault("storage.home_directory", defaultConfig.Storage.HomeDirectory)
	v.SetDefault("storage.backend", defaultConfig.Storage.Backend)
	v.SetDefault("storage.database", defaultConfig.Storage.Database)

	v.SetDefault("recording.binary", defaultConfig.Recording.Binary)
	v.SetDefault("recording.input_format", defaultConfig.Recording.InputFormat)
	v.SetDefault("recording.input_device", defaultConfig.Recording.InputDevice)
	v.SetDefault("recording.sample_rate", defaultConfig.Recording.SampleRate)
	v.SetDefault("recording.channels", defaultConfig.Recording.Channels)
	v.SetDefault("recording.codec", defaultConfig.Recording.Codec)
	v.SetDefault("recording.quality", defaultConfig.Recording.Quality)

	v.SetDefault("playback.binary", defaultConfig.Playback.Binary)
	v.SetDefault("playback.probe_binary", defaultConfig.Playback.ProbeBinary)
	v.SetDefault("playback.slow_motion_rate", defaultConfig.Playback.SlowMotionRate)

	v.SetDefault("server.address", defaultConfig.Server.Address)
}

// Load reads configFile, applies ZIZH_* environment overrides and defaults,
// and validates the result. A missing file yields the defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
			slog.Debug("Config file not found, using defaults", "path", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	cfg.Storage.DocumentsRoot = expandPath(cfg.Storage.DocumentsRoot)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	cfg.Recording.InputFormat = strings.ToLower(strings.TrimSpace(cfg.Recording.InputFormat))
	cfg.Recording.Quality = strings.ToLower(strings.TrimSpace(cfg.Recording.Quality))

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// HomePath is the application directory under the documents root.
func (c *Config) HomePath() string {
	return filepath.Join(c.Storage.DocumentsRoot, c.Storage.HomeDirectory)
}

// DatabasePath resolves storage.database against the home directory.
func (c *Config) DatabasePath() string {
	db := expandPath(c.Storage.Database)
	if filepath.IsAbs(db) {
		return db
	}
	return filepath.Join(c.HomePath(), db)
}

// WriteDefault writes the built-in configuration to path. The file is
// replaced atomically; an existing file is kept unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out, err := yaml.Marshal(defaultConfig)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("error writing config file %s: %w", path, err)
	}
	defer func() { _ = pf.Cleanup() }()

	if _, err := pf.Write(out); err != nil {
		return fmt.Errorf("error writing config file %s: %w", path, err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", path, err)
	}
	return nil
}

func expandPath(path string) string {
	if path == "~" {
		homeDir, _ := os.UserHomeDir()
		return homeDir
	}
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Validate checks a decoded configuration.
func Validate(c *Config) error {
	if err := validateStorage(&c.Storage); err != nil {
		return err
	}
	if err := validateRecording(&c.Recording); err != nil {
		return err
	}
	if err := validatePlayback(&c.Playback); err != nil {
		return err
	}
	if strings.TrimSpace(c.Server.Address) == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	return nil
}

func validateStorage(s *StorageConfig) error {
	if s.DocumentsRoot == "" {
		return fmt.Errorf("storage.documents_root must not be empty")
	}
	marker := filepath.Base(filepath.Clean(s.DocumentsRoot))
	if marker == string(filepath.Separator) || marker == "." {
		return fmt.Errorf("storage.documents_root must name a directory, got: %s", s.DocumentsRoot)
	}

	if s.HomeDirectory == "" {
		return fmt.Errorf("storage.home_directory must not be empty")
	}
	if strings.ContainsRune(s.HomeDirectory, filepath.Separator) || strings.Contains(s.HomeDirectory, "/") {
		return fmt.Errorf("storage.home_directory must be a single directory name, got: %s", s.HomeDirectory)
	}
	if s.HomeDirectory == marker {
		return fmt.Errorf("storage.home_directory must differ from the documents root name '%s'", marker)
	}

	switch s.Backend {
	case "leveldb", "sqlite", "memory":
	default:
		return fmt.Errorf("storage.backend must be 'leveldb', 'sqlite' or 'memory', got: %s", s.Backend)
	}
	if s.Backend != "memory" && s.Database == "" {
		return fmt.Errorf("storage.database must not be empty for backend %s", s.Backend)
	}
	return nil
}

func validateRecording(r *RecordingConfig) error {
	if r.Binary == "" {
		return fmt.Errorf("recording.binary must not be empty")
	}

	switch r.InputFormat {
	case "pulse", "alsa", "jack":
	default:
		return fmt.Errorf("recording.input_format must be 'pulse', 'alsa' or 'jack', got: %s", r.InputFormat)
	}
	if !isValidInputDevice(r.InputFormat, r.InputDevice) {
		return fmt.Errorf("recording.input_device '%s' is not valid for input format %s", r.InputDevice, r.InputFormat)
	}

	if r.SampleRate < 8000 || r.SampleRate > 192000 {
		return fmt.Errorf("recording.sample_rate must be between 8000 and 192000, got: %d", r.SampleRate)
	}
	if r.Channels != 1 && r.Channels != 2 {
		return fmt.Errorf("recording.channels must be 1 or 2, got: %d", r.Channels)
	}
	if r.Codec == "" {
		return fmt.Errorf("recording.codec must not be empty")
	}

	switch r.Quality {
	case "min", "low", "medium", "high", "max":
	default:
		return fmt.Errorf("recording.quality must be one of min, low, medium, high, max, got: %s", r.Quality)
	}
	return nil
}

// isValidInputDevice checks the device name for the given input format.
// JACK devices use the "client:port" form; others accept any non-empty name.
func isValidInputDevice(format, device string) bool {
	device = strings.TrimSpace(device)
	if device == "" {
		return false
	}
	if format != "jack" || device == "default" {
		return true
	}

	lastColonIndex := strings.LastIndex(device, ":")
	if lastColonIndex == -1 {
		return false
	}
	client := strings.TrimSpace(device[:lastColonIndex])
	port := strings.TrimSpace(device[lastColonIndex+1:])
	return len(client) > 0 && len(port) > 0
}

func validatePlayback(p *PlaybackConfig) error {
	if p.Binary == "" {
		return fmt.Errorf("playback.binary must not be empty")
	}
	if p.ProbeBinary == "" {
		return fmt.Errorf("playback.probe_binary must not be empty")
	}
	if !play.ValidRate(p.SlowMotionRate) {
		return fmt.Errorf("playback.slow_motion_rate must be between %v and %v, got: %v", play.MinRate, play.MaxRate, p.SlowMotionRate)
	}
	return nil
}
