package conf

import (
	"fmt"

	"github.com/digitalarkcorp/filestorage/internal/pkg/database"
	"github.com/digitalarkcorp/filestorage/internal/pkg/logger"
	"github.com/digitalarkcorp/filestorage/internal/pkg/minio"
	"github.com/digitalarkcorp/filestorage/internal/pkg/redis"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database database.Config `mapstructure:"database"`
	Redis    redis.Config    `mapstructure:"redis"`
	MinIO    minio.Config    `mapstructure:"minio"`
	Log      logger.Config   `mapstructure:"log"`
	Storage  StorageConfig   `mapstructure:"storage"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StorageConfig holds the upload and garbage-collection knobs
type StorageConfig struct {
	// MaxUploadSizeBytes is the hard cap on a single upload payload
	MaxUploadSizeBytes int64 `mapstructure:"max_upload_size_bytes"`

	// GCGraceMinutes is the minimum age of an unreferenced blob before
	// the garbage collector may delete it
	GCGraceMinutes int `mapstructure:"gc_grace_minutes"`

	// GCIntervalMinutes is the sweep cadence
	GCIntervalMinutes int `mapstructure:"gc_interval_minutes"`

	// GCWorkers is the number of concurrent blob deletions per sweep
	GCWorkers int `mapstructure:"gc_workers"`

	// DefaultVisibility applies when an upload does not specify one
	DefaultVisibility string `mapstructure:"default_visibility"`

	// SpoolDir is where in-flight uploads are spooled; empty means os.TempDir
	SpoolDir string `mapstructure:"spool_dir"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	viper.SetDefault("storage.max_upload_size_bytes", 1<<30)
	viper.SetDefault("storage.gc_grace_minutes", 30)
	viper.SetDefault("storage.gc_interval_minutes", 60)
	viper.SetDefault("storage.gc_workers", 8)
	viper.SetDefault("storage.default_visibility", "PRIVATE")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
