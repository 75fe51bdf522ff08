package data

import (
	"context"
	"fmt"

	"github.com/digitalarkcorp/filestorage/internal/conf"
	filedata "github.com/digitalarkcorp/filestorage/internal/file/data"
	"github.com/digitalarkcorp/filestorage/internal/pkg/database"
	"github.com/digitalarkcorp/filestorage/internal/pkg/logger"
	"github.com/digitalarkcorp/filestorage/internal/pkg/minio"
	"github.com/digitalarkcorp/filestorage/internal/pkg/redis"
)

// Data holds the shared external resources
type Data struct {
	DB     *database.DB
	Redis  *redis.Client
	MinIO  *minio.Client
	Logger *logger.Logger
}

// NewData initializes the database, Redis and MinIO and returns them with a
// cleanup function releasing everything that was opened.
func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	db, err := database.New(&config.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := db.AutoMigrate(&filedata.FilePO{}); err != nil {
		db.Close()
		return nil, nil, err
	}

	redisClient, err := redis.New(&config.Redis, log)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to init redis: %w", err)
	}
	if err := redisClient.Ping(context.Background()); err != nil {
		db.Close()
		redisClient.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	minioClient, err := minio.NewClient(&config.MinIO, log)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, nil, fmt.Errorf("failed to init minio: %w", err)
	}
	if err := minioClient.EnsureBucket(context.Background()); err != nil {
		db.Close()
		redisClient.Close()
		return nil, nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}

	d := &Data{
		DB:     db,
		Redis:  redisClient,
		MinIO:  minioClient,
		Logger: log,
	}

	cleanup := func() {
		log.Info("cleaning up data resources")
		minioClient.Close()
		redisClient.Close()
		db.Close()
	}

	return d, cleanup, nil
}
