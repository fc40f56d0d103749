package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dcreager/framed-fields-go/framed"
	"github.com/dcreager/framed-fields-go/internal/logging"
)

// Config is the framedctl configuration.
type Config struct {
	Address        string
	Mode           framed.JoinMode
	MaxBufferSize  int
	ReadSize       int
	MetricsAddress string
	LogLevel       string
}

type fileConfig struct {
	Address        string `toml:"address"`
	Mode           string `toml:"mode"`
	MaxBufferSize  int    `toml:"max_buffer_size"`
	ReadSize       int    `toml:"read_size"`
	MetricsAddress string `toml:"metrics_address"`
	LogLevel       string `toml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	opts := framed.DefaultOptions()
	return Config{
		Address:       "127.0.0.1:5555",
		Mode:          opts.Mode,
		MaxBufferSize: 1 << 20,
		ReadSize:      opts.ReadSize,
	}
}

// Load reads a TOML file.  Keys that are not present keep their defaults.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return apply(Default(), raw, meta)
}

// Parse is Load for in-memory TOML.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return apply(Default(), raw, meta)
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}

	if meta.IsDefined("mode") {
		mode, err := framed.ParseJoinMode(strings.TrimSpace(raw.Mode))
		if err != nil {
			return Config{}, fmt.Errorf("parse mode: %w", err)
		}
		cfg.Mode = mode
	}

	if meta.IsDefined("max_buffer_size") {
		if raw.MaxBufferSize < 0 {
			return Config{}, fmt.Errorf("max_buffer_size must not be negative: %d", raw.MaxBufferSize)
		}
		cfg.MaxBufferSize = raw.MaxBufferSize
	}

	if meta.IsDefined("read_size") {
		if raw.ReadSize <= 0 {
			return Config{}, fmt.Errorf("read_size must be positive: %d", raw.ReadSize)
		}
		cfg.ReadSize = raw.ReadSize
	}

	if meta.IsDefined("metrics_address") {
		cfg.MetricsAddress = strings.TrimSpace(raw.MetricsAddress)
	}

	if meta.IsDefined("log_level") {
		level := strings.TrimSpace(raw.LogLevel)
		if _, ok := logging.ParseLevel(level); !ok {
			return Config{}, fmt.Errorf("unknown log_level %q", raw.LogLevel)
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}

// ChannelOptions converts the configuration into options for
// framed.NewChannel.  The logger and observer are left for the caller.
func (c Config) ChannelOptions() framed.Options {
	opts := framed.DefaultOptions()
	opts.Mode = c.Mode
	opts.MaxBufferSize = c.MaxBufferSize
	opts.ReadSize = c.ReadSize
	return opts
}
