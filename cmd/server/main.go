package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/digitalarkcorp/filestorage/internal/conf"
	"github.com/digitalarkcorp/filestorage/internal/data"
	"github.com/digitalarkcorp/filestorage/internal/file/biz"
	filedata "github.com/digitalarkcorp/filestorage/internal/file/data"
	"github.com/digitalarkcorp/filestorage/internal/file/service"
	"github.com/digitalarkcorp/filestorage/internal/pkg/logger"
	"github.com/digitalarkcorp/filestorage/internal/pkg/workerpool"
	"github.com/digitalarkcorp/filestorage/internal/server"
	"go.uber.org/zap"
)

var configFile = flag.String("config", "config.yaml", "config file path")

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("config loaded successfully")

	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	defaultVisibility, err := biz.ParseVisibility(config.Storage.DefaultVisibility)
	if err != nil {
		log.Fatal("invalid default visibility", zap.Error(err))
	}

	// Repositories and adapters
	fileRepo := filedata.NewFileRepo(d.DB)
	blobStore := filedata.NewMinIOBlobStore(d.MinIO)
	writeClaimer := filedata.NewRedisWriteClaimer(d.Redis)

	// Use cases
	fileUseCase := biz.NewFileUseCase(fileRepo, blobStore, writeClaimer, biz.Config{
		MaxUploadSizeBytes: config.Storage.MaxUploadSizeBytes,
		DefaultVisibility:  defaultVisibility,
		SpoolDir:           config.Storage.SpoolDir,
	}, log)

	// Garbage collector with its deletion worker pool
	gcPool, err := workerpool.New(&workerpool.Config{Workers: config.Storage.GCWorkers})
	if err != nil {
		log.Fatal("failed to create gc worker pool", zap.Error(err))
	}
	defer gcPool.Release()

	gc := biz.NewGarbageCollector(
		fileRepo,
		blobStore,
		gcPool,
		time.Duration(config.Storage.GCGraceMinutes)*time.Minute,
		log,
	)

	gcCtx, stopGC := context.WithCancel(context.Background())
	defer stopGC()
	go gc.Run(gcCtx, time.Duration(config.Storage.GCIntervalMinutes)*time.Minute)

	// HTTP server
	fileService := service.NewFileService(fileUseCase, log)
	httpServer := server.NewHTTPServer(config, log, fileService)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	stopGC()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Stop(ctx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
}
