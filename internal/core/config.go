package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/imagepress/internal/backend/blobstore"
	"github.com/jo-hoe/imagepress/internal/backend/commands"
	"github.com/jo-hoe/imagepress/internal/backend/events"
	"github.com/jo-hoe/imagepress/internal/backend/upload"
	"github.com/jo-hoe/imagepress/internal/backend/worker"
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type QueueConfig struct {
	Type              string `yaml:"type"`
	Capacity          int    `yaml:"capacity"`
	worker.PoolConfig `yaml:",inline"`
	Redis             worker.RedisConfig `yaml:"redis"`
}

type UploadConfig struct {
	MaxFiles         int   `yaml:"maxFiles"`
	MaxFileSizeBytes int64 `yaml:"maxFileSizeBytes"`
}

// Limits converts the upload section into validation limits
func (c UploadConfig) Limits() upload.Limits {
	return upload.Limits{MaxFiles: c.MaxFiles, MaxFileSize: c.MaxFileSizeBytes}
}

type PipelineConfig struct {
	// MaxDimension caps the longest edge of compressed output
	MaxDimension int     `yaml:"maxDimension"`
	PreviewSize  int     `yaml:"previewSize"`
	HeicQuality  float64 `yaml:"heicQuality"`
}

type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

type ServiceConfig struct {
	Port     int              `yaml:"port"`
	Database Database         `yaml:"database"`
	Storage  blobstore.Config `yaml:"storage"`
	Queue    QueueConfig      `yaml:"queue"`
	Events   events.Config    `yaml:"events"`
	Upload   UploadConfig     `yaml:"upload"`
	Pipeline PipelineConfig   `yaml:"pipeline"`
	History  HistoryConfig    `yaml:"history"`
}

// DefaultConfig runs everything in process on an in-memory SQLite database
func DefaultConfig() *ServiceConfig {
	config := &ServiceConfig{}
	config.applyDefaults()
	return config
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config ServiceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}
	return &config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" && c.Database.ConnectionString == "" {
		c.Database.ConnectionString = ":memory:"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "database"
	}
	if c.Queue.Type == "" {
		c.Queue.Type = "memory"
	}
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = 100
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Events.Type == "" {
		c.Events.Type = "log"
	}
	if c.Upload.MaxFiles == 0 {
		c.Upload.MaxFiles = upload.DefaultMaxFiles
	}
	if c.Upload.MaxFileSizeBytes == 0 {
		c.Upload.MaxFileSizeBytes = upload.DefaultMaxFileSize
	}
	if c.Pipeline.MaxDimension == 0 {
		c.Pipeline.MaxDimension = commands.DefaultMaxWidthOrHeight
	}
	if c.Pipeline.PreviewSize == 0 {
		c.Pipeline.PreviewSize = commands.DefaultPreviewSize
	}
	if c.Pipeline.HeicQuality == 0 {
		c.Pipeline.HeicQuality = 0.9
	}
	if c.History.Limit == 0 {
		c.History.Limit = 50
	}
}

// Validate rejects unknown backends and out of range values
func (c *ServiceConfig) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Port > 0 && c.Port < 65536, "port %d out of range", c.Port)
	check(oneOf(c.Database.Type, "sqlite", "postgres"), "unsupported database type %q", c.Database.Type)
	check(c.Database.ConnectionString != "", "database connectionString is required")
	check(oneOf(c.Storage.Type, "database", "s3"), "unsupported storage type %q", c.Storage.Type)
	check(c.Storage.Type != "s3" || c.Storage.S3.Bucket != "", "storage s3 bucket is required")
	check(oneOf(c.Queue.Type, "memory", "redis"), "unsupported queue type %q", c.Queue.Type)
	check(c.Queue.Type != "redis" || c.Queue.Redis.Address != "", "queue redis address is required")
	check(c.Queue.Workers > 0, "queue workers must be positive, got %d", c.Queue.Workers)
	check(c.Queue.Capacity > 0, "queue capacity must be positive, got %d", c.Queue.Capacity)
	check(c.Queue.MaxAttempts > 0, "queue maxAttempts must be positive, got %d", c.Queue.MaxAttempts)
	check(oneOf(c.Events.Type, "log", "kafka"), "unsupported events type %q", c.Events.Type)
	check(c.Events.Type != "kafka" || len(c.Events.Kafka.Brokers) > 0, "events kafka brokers are required")
	check(c.Upload.MaxFiles > 0, "upload maxFiles must be positive, got %d", c.Upload.MaxFiles)
	check(c.Upload.MaxFileSizeBytes > 0, "upload maxFileSizeBytes must be positive, got %d", c.Upload.MaxFileSizeBytes)
	check(c.Pipeline.MaxDimension > 0, "pipeline maxDimension must be positive, got %d", c.Pipeline.MaxDimension)
	check(c.Pipeline.PreviewSize > 0, "pipeline previewSize must be positive, got %d", c.Pipeline.PreviewSize)
	check(c.Pipeline.HeicQuality > 0 && c.Pipeline.HeicQuality <= 1, "pipeline heicQuality must be in (0,1], got %v", c.Pipeline.HeicQuality)
	check(c.History.Limit > 0, "history limit must be positive, got %d", c.History.Limit)

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
