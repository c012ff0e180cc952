package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	EnableCORS bool   `mapstructure:"enable_cors" yaml:"enable_cors"`
}

// StorageConfig configures the durable store.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // sqlite, json
	Path    string `mapstructure:"path" yaml:"path"`
}

// RuntimeConfig configures the actor runtime.
type RuntimeConfig struct {
	MaxActiveActors int `mapstructure:"max_active_actors" yaml:"max_active_actors"`
	EventBufferSize int `mapstructure:"event_buffer_size" yaml:"event_buffer_size"`
}

// CacheConfig configures cache coordinator behavior.
type CacheConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Server: ServerConfig{
			Host:       "localhost",
			Port:       8080,
			EnableCORS: true,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    ".conclave/state",
		},
		Runtime: RuntimeConfig{
			MaxActiveActors: 256,
			EventBufferSize: 100,
		},
		Cache: CacheConfig{
			SweepInterval: 60 * time.Second,
		},
	}
}
