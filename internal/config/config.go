package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.chatrelay/config.toml.
type Config struct {
	DefaultInstance  string `toml:"default_instance"`
	ListenAddr       string `toml:"listen_addr"`
	LogLevel         string `toml:"log_level"`
	BroadcastOffline bool   `toml:"broadcast_offline"`
	HistoryLimit     int    `toml:"history_limit"`
	SendBuffer       int    `toml:"send_buffer"`
	MaxFrameBytes    int64  `toml:"max_frame_bytes"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr:    ":3000",
		LogLevel:      "info",
		HistoryLimit:  50,
		SendBuffer:    256,
		MaxFrameBytes: 64 << 10,
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.fillZero()
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ApplyEnv loads a .env file from the working directory when one exists and
// overrides file values with CHATRELAY_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if v := os.Getenv("CHATRELAY_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CHATRELAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CHATRELAY_BROADCAST_OFFLINE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		cfg.BroadcastOffline = b
	}
	return nil
}

func (c *Config) fillZero() {
	def := Default()
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = def.MaxFrameBytes
	}
}
