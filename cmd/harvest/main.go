package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/timmy/sentiscope/internal/app"
	"github.com/timmy/sentiscope/internal/config"
	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/logger"
	"github.com/timmy/sentiscope/internal/service"
)

// cliOutput is what the CLI prints to stdout once the job ends.
type cliOutput struct {
	JobID       string                    `json:"jobId"`
	Status      domain.JobStatus          `json:"status"`
	Cancelled   bool                      `json:"cancelled"`
	Records     int                       `json:"records"`
	Summary     domain.HarvestSummary     `json:"summary"`
	Outcomes    []domain.CommunityOutcome `json:"outcomes"`
	SnapshotURL string                    `json:"snapshotUrl,omitempty"`
	Corpus      []domain.CorpusRecord     `json:"data,omitempty"`
}

func main() {
	// Logs go to stderr so stdout carries only the JSON result
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		Output:      os.Stderr,
		ServiceName: "sentiscope-harvest",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	communities := flag.String("communities", "", "Comma-separated communities (default: configured list)")
	timeRange := flag.String("time", "", "Time range: hour, day, week, month, year, all")
	sortMode := flag.String("sort", "", "Sort mode: top, hot, rising")
	limit := flag.Int("limit", 0, "Posts per community (1-100)")
	fast := flag.Bool("fast", false, "Use the fast community list when -communities is empty")
	save := flag.Bool("save", false, "Persist the corpus into the configured sink")
	withData := flag.Bool("data", false, "Include the corpus records in the output")
	userID := flag.String("user", "cli", "User the run is stored under")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, app.Options{WithSink: *save})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize harvest pipeline")
	}
	defer func() {
		if err := application.Close(context.Background()); err != nil {
			appLogger.WithError(err).Warn("Failed to close resources")
		}
	}()

	job := application.Harvest.PrepareJob(domain.HarvestJob{
		Communities:       splitList(*communities),
		TimeRange:         domain.TimeRange(*timeRange),
		SortMode:          domain.SortMode(*sortMode),
		PostsPerCommunity: *limit,
		FastMode:          *fast,
	})

	appLogger.WithFields(logger.Fields{
		"communities": len(job.Communities),
		"time_range":  job.TimeRange,
		"sort_mode":   job.SortMode,
		"limit":       job.PostsPerCommunity,
		"save":        *save,
	}).Info("Starting harvest")

	// The first signal stops issuing batches; the in-flight batch still finishes
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, cancelling harvest...")
		cancel()
	}()

	result, err := application.Harvest.Harvest(ctx, *userID, job, service.LogReporter{})
	if err != nil && result == nil {
		if errors.Is(err, service.ErrInvalidJob) {
			appLogger.WithError(err).Error("Invalid harvest request")
			os.Exit(2)
		}
		appLogger.WithError(err).Fatal("Harvest failed")
	}
	if err != nil {
		appLogger.WithError(err).Error("Harvest aborted, printing partial result")
	}

	out := cliOutput{
		JobID:       result.JobID,
		Status:      result.Status,
		Cancelled:   result.Cancelled,
		Records:     len(result.Records),
		Summary:     result.Summary,
		Outcomes:    result.Outcomes,
		SnapshotURL: result.SnapshotURL,
	}
	if *withData {
		out.Corpus = result.Records
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		appLogger.WithError(err).Fatal("Failed to write result")
	}

	appLogger.WithFields(logger.Fields{
		"job_id":    result.JobID,
		"status":    result.Status,
		"records":   len(result.Records),
		"failed":    result.Summary.CommunitiesFailed,
		"cancelled": result.Cancelled,
	}).Info("Harvest completed")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
