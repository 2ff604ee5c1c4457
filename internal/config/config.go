package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Inputs metadata API
	API APIConfig `mapstructure:"api" json:"api"`

	// ByteStream blob transfer endpoint
	ByteStream ByteStreamConfig `mapstructure:"bytestream" json:"bytestream"`

	// Session credentials
	Auth AuthConfig `mapstructure:"auth" json:"auth"`

	// Upload/download behavior
	Transfer TransferConfig `mapstructure:"transfer" json:"transfer"`

	// Downloaded blob cache
	Cache CacheConfig `mapstructure:"cache" json:"cache"`

	// Local development backend
	DevServer DevServerConfig `mapstructure:"devserver" json:"devserver"`

	// FUSE mount
	Mount MountConfig `mapstructure:"mount" json:"mount"`

	// Host bridge
	Serve ServeConfig `mapstructure:"serve" json:"serve"`

	// Logging
	Log LogConfig `mapstructure:"log" json:"log"`
}

// APIConfig for the Inputs metadata service.
type APIConfig struct {
	// Backend is "http" for a remote service or "sqlite" to use a local
	// database directly.
	Backend    string        `mapstructure:"backend" json:"backend"`
	BaseURL    string        `mapstructure:"base_url" json:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries"`
	UserAgent  string        `mapstructure:"user_agent" json:"user_agent"`
}

// ByteStreamConfig for the blob transfer service.
type ByteStreamConfig struct {
	Target   string `mapstructure:"target" json:"target"`
	Insecure bool   `mapstructure:"insecure" json:"insecure"`
}

// AuthConfig for session persistence.
type AuthConfig struct {
	TokenFile string `mapstructure:"token_file" json:"token_file"`
}

// TransferConfig for chunked transfers.
type TransferConfig struct {
	ChunkSize      int           `mapstructure:"chunk_size" json:"chunk_size"`
	MaxBodySize    int64         `mapstructure:"max_body_size" json:"max_body_size"`
	MaxConcurrent  int           `mapstructure:"max_concurrent" json:"max_concurrent"`
	ChangeDebounce time.Duration `mapstructure:"change_debounce" json:"change_debounce"`
	ImageHost      string        `mapstructure:"image_host" json:"image_host"`
}

// CacheConfig for the downloaded blob cache.
type CacheConfig struct {
	Backend     string        `mapstructure:"backend" json:"backend"` // memory, redis, none
	RedisAddr   string        `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPrefix string        `mapstructure:"redis_prefix" json:"redis_prefix"`
	TTL         time.Duration `mapstructure:"ttl" json:"ttl"`
	MemoryBytes int64         `mapstructure:"memory_bytes" json:"memory_bytes"`
}

// DevServerConfig for the local development backend.
type DevServerConfig struct {
	HTTPAddr       string `mapstructure:"http_addr" json:"http_addr"`
	GRPCAddr       string `mapstructure:"grpc_addr" json:"grpc_addr"`
	MetaBackend    string `mapstructure:"meta_backend" json:"meta_backend"`     // memory, sqlite, dynamodb
	SQLitePath     string `mapstructure:"sqlite_path" json:"sqlite_path"`
	DynamoTable    string `mapstructure:"dynamo_table" json:"dynamo_table"`
	DynamoRegion   string `mapstructure:"dynamo_region" json:"dynamo_region"`
	DynamoEndpoint string `mapstructure:"dynamo_endpoint" json:"dynamo_endpoint"`
	ObjectBackend  string `mapstructure:"object_backend" json:"object_backend"` // memory, local, s3
	DataDir        string `mapstructure:"data_dir" json:"data_dir"`
	S3Bucket       string `mapstructure:"s3_bucket" json:"s3_bucket"`
	S3Region       string `mapstructure:"s3_region" json:"s3_region"`
	S3Endpoint     string `mapstructure:"s3_endpoint" json:"s3_endpoint"`
}

// MountConfig for the FUSE mount.
type MountConfig struct {
	Mountpoint string `mapstructure:"mountpoint" json:"mountpoint"`
	AllowOther bool   `mapstructure:"allow_other" json:"allow_other"`
}

// ServeConfig for the host bridge.
type ServeConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // text, json
	File   string `mapstructure:"file" json:"file"`     // Log file path (empty = stdout)
	Color  bool   `mapstructure:"color" json:"color"`   // Enable colored output
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".streamfs"

	return &Config{
		API: APIConfig{
			Backend:    "http",
			BaseURL:    "http://localhost:8710",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			UserAgent:  "streamfs/1.0",
		},
		ByteStream: ByteStreamConfig{
			Target:   "localhost:8711",
			Insecure: true,
		},
		Auth: AuthConfig{
			TokenFile: filepath.Join(dataDir, "session.json"),
		},
		Transfer: TransferConfig{
			ChunkSize:      64 * 1024,        // 64 KiB frames
			MaxBodySize:    10 * 1024 * 1024, // 10 MiB
			MaxConcurrent:  4,
			ChangeDebounce: 5 * time.Millisecond,
			ImageHost:      "images",
		},
		Cache: CacheConfig{
			Backend:     "memory",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "streamfs",
			TTL:         24 * time.Hour,
			MemoryBytes: 64 * 1024 * 1024,
		},
		DevServer: DevServerConfig{
			HTTPAddr:      ":8710",
			GRPCAddr:      ":8711",
			MetaBackend:   "sqlite",
			SQLitePath:    filepath.Join(dataDir, "inputs.db"),
			ObjectBackend: "local",
			DataDir:       filepath.Join(dataDir, "blobs"),
			S3Region:      "us-east-1",
			DynamoRegion:  "us-east-1",
		},
		Mount: MountConfig{
			Mountpoint: filepath.Join(dataDir, "mnt"),
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:8712",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch c.API.Backend {
	case "http":
		if c.API.BaseURL == "" {
			return errors.New("api.base_url is required")
		}
	case "sqlite":
		if c.DevServer.SQLitePath == "" {
			return errors.New("devserver.sqlite_path is required for the sqlite api backend")
		}
	default:
		return fmt.Errorf("invalid api backend: %s", c.API.Backend)
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.ByteStream.Target == "" {
		return errors.New("bytestream.target is required")
	}

	if c.Transfer.ChunkSize <= 0 {
		return errors.New("transfer.chunk_size must be positive")
	}

	if c.Transfer.MaxBodySize <= 0 {
		return errors.New("transfer.max_body_size must be positive")
	}

	if c.Transfer.MaxConcurrent <= 0 {
		return errors.New("transfer.max_concurrent must be positive")
	}

	validCaches := map[string]bool{"memory": true, "redis": true, "none": true}
	if !validCaches[c.Cache.Backend] {
		return fmt.Errorf("invalid cache backend: %s", c.Cache.Backend)
	}

	validMeta := map[string]bool{"memory": true, "sqlite": true, "dynamodb": true}
	if !validMeta[c.DevServer.MetaBackend] {
		return fmt.Errorf("invalid devserver meta backend: %s", c.DevServer.MetaBackend)
	}
	if c.DevServer.MetaBackend == "dynamodb" && c.DevServer.DynamoTable == "" {
		return errors.New("devserver.dynamo_table is required for the dynamodb meta backend")
	}

	validObjects := map[string]bool{"memory": true, "local": true, "s3": true}
	if !validObjects[c.DevServer.ObjectBackend] {
		return fmt.Errorf("invalid devserver object backend: %s", c.DevServer.ObjectBackend)
	}
	if c.DevServer.ObjectBackend == "s3" && c.DevServer.S3Bucket == "" {
		return errors.New("devserver.s3_bucket is required for the s3 object backend")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Auth.TokenFile),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// EnsureDevServerDirectories creates the directories the development backend writes to.
func (c *Config) EnsureDevServerDirectories() error {
	dirs := []string{filepath.Dir(c.DevServer.SQLitePath)}
	if c.DevServer.ObjectBackend == "local" {
		dirs = append(dirs, c.DevServer.DataDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
