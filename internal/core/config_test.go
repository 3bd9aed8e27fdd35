package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return configPath
}

func TestLoadConfig_Success(t *testing.T) {
	configPath := writeConfig(t, `port: 9090
database:
  type: postgres
  connectionString: "postgres://localhost/imagepress"
storage:
  type: s3
  s3:
    bucket: images
    endpoint: http://localhost:9000
    usePathStyle: true
queue:
  type: redis
  workers: 8
  capacity: 50
  maxAttempts: 5
  backoff: 250ms
  redis:
    address: localhost:6379
    blockTimeout: 1s
events:
  type: kafka
  kafka:
    brokers: ["localhost:9092"]
    topic: image-events
upload:
  maxFiles: 20
pipeline:
  previewSize: 256
`)

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Port != 9090 {
		t.Errorf("Expected port to be 9090, got %d", config.Port)
	}
	if config.Database.Type != "postgres" || config.Database.ConnectionString != "postgres://localhost/imagepress" {
		t.Errorf("Unexpected database config: %+v", config.Database)
	}
	if config.Storage.S3.Bucket != "images" || !config.Storage.S3.UsePathStyle {
		t.Errorf("Unexpected storage config: %+v", config.Storage)
	}
	if config.Queue.Workers != 8 || config.Queue.MaxAttempts != 5 || config.Queue.Backoff != 250*time.Millisecond {
		t.Errorf("Unexpected queue config: %+v", config.Queue)
	}
	if config.Queue.Redis.BlockTimeout != time.Second {
		t.Errorf("Expected redis block timeout of 1s, got %v", config.Queue.Redis.BlockTimeout)
	}
	if len(config.Events.Kafka.Brokers) != 1 {
		t.Errorf("Unexpected events config: %+v", config.Events)
	}
	if config.Upload.MaxFiles != 20 || config.Upload.MaxFileSizeBytes != 10*1024*1024 {
		t.Errorf("Unexpected upload config: %+v", config.Upload)
	}
	if config.Pipeline.PreviewSize != 256 || config.Pipeline.MaxDimension != 4096 || config.Pipeline.HeicQuality != 0.9 {
		t.Errorf("Unexpected pipeline config: %+v", config.Pipeline)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "port: 8080\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Database.Type != "sqlite" || config.Database.ConnectionString != ":memory:" {
		t.Errorf("Unexpected database defaults: %+v", config.Database)
	}
	if config.Storage.Type != "database" || config.Queue.Type != "memory" || config.Events.Type != "log" {
		t.Errorf("Unexpected backend defaults: storage=%s queue=%s events=%s", config.Storage.Type, config.Queue.Type, config.Events.Type)
	}
	if config.History.Limit != 50 || config.Upload.MaxFiles != 10 {
		t.Errorf("Unexpected limits: history=%d files=%d", config.History.Limit, config.Upload.MaxFiles)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	config, err := LoadConfig("/path/that/does/not/exist/config.yaml")
	if err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
	if config != nil {
		t.Error("Expected config to be nil when file doesn't exist")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "port: [8080\n")); err == nil {
		t.Fatal("Expected error for invalid YAML, got nil")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown database", "database:\n  type: mysql\n  connectionString: x\n", "unsupported database type"},
		{"unknown queue", "queue:\n  type: sqs\n", "unsupported queue type"},
		{"redis without address", "queue:\n  type: redis\n", "redis address is required"},
		{"negative workers", "queue:\n  workers: -1\n", "workers must be positive"},
		{"s3 without bucket", "storage:\n  type: s3\n", "bucket is required"},
		{"kafka without brokers", "events:\n  type: kafka\n", "brokers are required"},
		{"heic quality", "pipeline:\n  heicQuality: 2\n", "heicQuality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
