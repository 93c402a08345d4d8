package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tomoyay1622/Distributed-File-System/internal/log_service"
	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
)

// Config is the server configuration. Empty listen addresses disable that
// transport; at least one must be set.
type Config struct {
	NodeID       string `yaml:"node_id"`
	Listen       string `yaml:"listen"`
	GRPCListen   string `yaml:"grpc_listen"`
	Framing      string `yaml:"framing"`
	MaxFrameSize int    `yaml:"max_frame_size"`
	StorageRoot  string `yaml:"storage_root"`
	LogDir       string `yaml:"log_dir"`
	LogLevel     string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		NodeID:       "dfs-1",
		Listen:       ":8080",
		Framing:      string(protocol.FramingLine),
		MaxFrameSize: protocol.DefaultMaxFrameSize,
		StorageRoot:  "./data",
		LogDir:       "./logs",
		LogLevel:     log_service.InfoLevel,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("%w: %s: %v", ErrConfigRead, path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Listen == "" && c.GRPCListen == "" {
		return fmt.Errorf("%w: no listen address configured", ErrInvalidConfig)
	}
	if _, err := protocol.ParseFraming(c.Framing); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("%w: max_frame_size must be positive", ErrInvalidConfig)
	}
	if c.StorageRoot == "" {
		return fmt.Errorf("%w: storage_root is required", ErrInvalidConfig)
	}
	if c.LogDir == "" {
		return fmt.Errorf("%w: log_dir is required", ErrInvalidConfig)
	}
	if !log_service.ValidLevel(c.LogLevel) {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}
