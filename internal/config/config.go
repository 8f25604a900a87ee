// Package config loads the per-network configuration the binkp core
// consumes as a read-only record. File-format concerns (YAML parsing,
// environment overrides, defaulting) live entirely in this package — the
// core itself never touches a config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ftnx/go-binkp/binkp"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// NetworkEntry is the on-disk shape of one network's settings, decoded via
// viper/mapstructure and validated with struct tags before being converted
// into a binkp.NetworkConfig.
type NetworkEntry struct {
	RemoteHost string `mapstructure:"remote_host" yaml:"remote_host" validate:"required"`
	RemotePort int    `mapstructure:"remote_port" yaml:"remote_port" validate:"omitempty,min=1,max=65535"`

	SharedSecret string `mapstructure:"shared_secret" yaml:"shared_secret"`
	UseCRAMMD5   bool   `mapstructure:"use_cram_md5" yaml:"use_cram_md5"`
	UseCRC       bool   `mapstructure:"use_crc" yaml:"use_crc"`
	UseNR        bool   `mapstructure:"use_nr" yaml:"use_nr"`

	PLZMode  string `mapstructure:"plz_mode" yaml:"plz_mode" validate:"omitempty,oneof=none supported required"`
	PLZLevel string `mapstructure:"plz_level" yaml:"plz_level" validate:"omitempty,oneof=fast normal best"`

	LocalAddresses []string `mapstructure:"local_addresses" yaml:"local_addresses" validate:"required,min=1"`

	FrameTimeout   time.Duration `mapstructure:"frame_timeout" yaml:"frame_timeout"`
	SessionTimeout time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`
}

// LoggingEntry mirrors internal/logging.Config with the tags this
// package's loader expects.
type LoggingEntry struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Console    bool   `mapstructure:"console" yaml:"console"`
}

// File is the top-level configuration document: one logging block plus a
// table of networks keyed by network id.
type File struct {
	Logging  LoggingEntry            `mapstructure:"logging" yaml:"logging"`
	Networks map[string]NetworkEntry `mapstructure:"networks" yaml:"networks" validate:"required,min=1,dive"`
}

// Load reads and validates a YAML configuration file at path.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BINKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(&f)

	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &f, nil
}

// Save writes f to path in YAML form, honoring the struct's yaml tags —
// used by a supervisor that wants to persist a config built or edited in
// memory rather than hand-authored.
func Save(f *File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func applyDefaults(f *File) {
	if f.Logging.Level == "" {
		f.Logging.Level = "info"
	}
	for id, n := range f.Networks {
		if n.RemotePort == 0 {
			n.RemotePort = binkp.DefaultPort
		}
		if n.PLZMode == "" {
			n.PLZMode = "none"
		}
		if n.PLZLevel == "" {
			n.PLZLevel = "normal"
		}
		if n.FrameTimeout == 0 {
			n.FrameTimeout = binkp.DefaultFrameTimeout
		}
		if n.SessionTimeout == 0 {
			n.SessionTimeout = binkp.DefaultSessionTimeout
		}
		f.Networks[id] = n
	}
}

// NetworkConfig converts one validated NetworkEntry into the read-only
// record the binkp core consumes.
func (f *File) NetworkConfig(networkID string) (binkp.NetworkConfig, error) {
	entry, ok := f.Networks[networkID]
	if !ok {
		return binkp.NetworkConfig{}, fmt.Errorf("unknown network %q", networkID)
	}
	return binkp.NetworkConfig{
		NetworkID:      networkID,
		RemoteHost:     entry.RemoteHost,
		RemotePort:     entry.RemotePort,
		SharedSecret:   entry.SharedSecret,
		UseCRAMMD5:     entry.UseCRAMMD5,
		UseCRC:         entry.UseCRC,
		UseNR:          entry.UseNR,
		PLZMode:        parsePLZMode(entry.PLZMode),
		PLZLevel:       parsePLZLevel(entry.PLZLevel),
		LocalAddresses: entry.LocalAddresses,
		FrameTimeout:   entry.FrameTimeout,
		SessionTimeout: entry.SessionTimeout,
	}, nil
}

func parsePLZMode(s string) binkp.PLZMode {
	switch s {
	case "supported":
		return binkp.PLZSupported
	case "required":
		return binkp.PLZRequired
	default:
		return binkp.PLZNone
	}
}

func parsePLZLevel(s string) binkp.PLZLevel {
	switch s {
	case "fast":
		return binkp.PLZLevelFast
	case "best":
		return binkp.PLZLevelBest
	default:
		return binkp.PLZLevelNormal
	}
}
