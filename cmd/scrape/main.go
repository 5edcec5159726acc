package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harrisong/VideoStreaming-sub000/internal/config"
	"github.com/harrisong/VideoStreaming-sub000/internal/logger"
	"github.com/harrisong/VideoStreaming-sub000/internal/repository"
	"github.com/harrisong/VideoStreaming-sub000/internal/service"
	"github.com/harrisong/VideoStreaming-sub000/internal/source"
	"github.com/harrisong/VideoStreaming-sub000/internal/source/ytdlp"
	"github.com/harrisong/VideoStreaming-sub000/internal/storage"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		Output:      os.Stderr,
		ServiceName: "scraper-cli",
	})
	logger.SetDefaultLogger(appLogger)

	sourceURL := flag.String("url", "", "Video URL to import (required)")
	userID := flag.Int("user-id", -1, "Owner user id for the imported video")
	cookies := flag.String("cookies", "", "Cookies file passed to yt-dlp")
	title := flag.String("title", "", "Title override")
	description := flag.String("description", "", "Description override")
	tags := flag.String("tags", "", "Comma-separated tags")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *sourceURL == "" {
		fmt.Fprintln(os.Stderr, "--url is required")
		flag.Usage()
		os.Exit(2)
	}
	owner, err := parseUserID(*userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	defer repository.Close(db)
	store := repository.NewStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	extractor := ytdlp.New(&cfg.Extractor)
	jobService := service.NewJobService(store, extractor, cfg.Extractor.MaxSearchResults)

	var creds source.Credentials
	if *cookies != "" {
		creds.CookiesFile = *cookies
	}
	ingestService := service.NewIngestService(store, extractor, objectStorage, &service.IngestConfig{
		WorkDir:     cfg.Extractor.WorkDir,
		Credentials: creds,
	})

	newJob, err := service.NewJob(service.SubmitRequest{
		URL:         *sourceURL,
		Title:       *title,
		Description: *description,
		Tags:        splitTags(*tags),
		UserID:      owner,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid request")
	}

	// Inserted already claimed, so a worker pool on the same database never
	// races this process for it.
	job, err := store.InsertClaimed(ctx, newJob, fmt.Sprintf("cli-%d", os.Getpid()))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to record job")
	}
	jobID := job.ID

	_, procErr := ingestService.Process(ctx, job)

	view, err := jobService.GetStatus(context.WithoutCancel(ctx), jobID)
	if err != nil {
		appLogger.WithError(err).WithField(logger.FieldJobID, jobID).Fatal("Failed to read job status")
	}
	out, _ := json.Marshal(map[string]interface{}{"job_id": jobID, "status": view})
	fmt.Println(string(out))

	if procErr != nil {
		repository.Close(db)
		os.Exit(1)
	}
}

// parseUserID maps the --user-id flag to an owner. Negative means none.
func parseUserID(v int) (*int32, error) {
	if v < 0 {
		return nil, nil
	}
	if v > math.MaxInt32 {
		return nil, fmt.Errorf("--user-id %d is out of range (max %d)", v, math.MaxInt32)
	}
	id := int32(v)
	return &id, nil
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
