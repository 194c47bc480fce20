package config

import (
	"math"
	"strings"
	"testing"
)

func validConfig() *Config {
	c := Default()
	c.Storage.DocumentsRoot = "/srv/Documents"
	return c
}

func TestValidate_Default(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Expected default config to be valid, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"empty documents root", func(c *Config) { c.Storage.DocumentsRoot = "" }, "documents_root"},
		{"documents root is filesystem root", func(c *Config) { c.Storage.DocumentsRoot = "/" }, "documents_root"},
		{"home equals marker", func(c *Config) { c.Storage.HomeDirectory = "Documents" }, "must differ"},
		{"nested home", func(c *Config) { c.Storage.HomeDirectory = "a/b" }, "single directory"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "swiftdata" }, "storage.backend"},
		{"missing database", func(c *Config) { c.Storage.Database = "" }, "storage.database"},
		{"unknown input format", func(c *Config) { c.Recording.InputFormat = "coreaudio" }, "input_format"},
		{"jack device without port", func(c *Config) {
			c.Recording.InputFormat = "jack"
			c.Recording.InputDevice = "system"
		}, "input_device"},
		{"sample rate too low", func(c *Config) { c.Recording.SampleRate = 100 }, "sample_rate"},
		{"three channels", func(c *Config) { c.Recording.Channels = 3 }, "channels"},
		{"unknown quality", func(c *Config) { c.Recording.Quality = "lossless" }, "quality"},
		{"zero rate", func(c *Config) { c.Playback.SlowMotionRate = 0 }, "slow_motion_rate"},
		{"negative rate", func(c *Config) { c.Playback.SlowMotionRate = -0.5 }, "slow_motion_rate"},
		{"NaN rate", func(c *Config) { c.Playback.SlowMotionRate = math.NaN() }, "slow_motion_rate"},
		{"rate above atempo range", func(c *Config) { c.Playback.SlowMotionRate = 250 }, "slow_motion_rate"},
		{"empty address", func(c *Config) { c.Server.Address = " " }, "server.address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := Validate(c)
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_MemoryBackendNeedsNoDatabase(t *testing.T) {
	c := validConfig()
	c.Storage.Backend = "memory"
	c.Storage.Database = ""

	if err := Validate(c); err != nil {
		t.Errorf("Expected memory backend without database to be valid, got: %v", err)
	}
}

func TestIsValidInputDevice(t *testing.T) {
	tests := []struct {
		format string
		device string
		want   bool
	}{
		{"pulse", "default", true},
		{"pulse", "alsa_input.usb-Blue_Yeti-00.analog-stereo", true},
		{"alsa", "hw:1,0", true},
		{"jack", "system:capture_1", true},
		{"jack", "Scarlett 2i2 USB: Audio (hw:1,0):0", true},
		{"jack", "default", true},
		{"jack", ":capture_1", false},
		{"jack", "system:", false},
		{"pulse", "  ", false},
	}

	for _, tt := range tests {
		if got := isValidInputDevice(tt.format, tt.device); got != tt.want {
			t.Errorf("isValidInputDevice(%q, %q) = %v, want %v", tt.format, tt.device, got, tt.want)
		}
	}
}
