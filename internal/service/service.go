package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/logger"
)

// ErrHarvestRunning is returned when a harvest is requested while another
// one is still running in this process.
var ErrHarvestRunning = errors.New("a harvest is already running")

// ErrSnapshotsDisabled is returned when no snapshot storage is configured.
var ErrSnapshotsDisabled = errors.New("snapshot storage is not configured")

// JobDefaults fills the parts of a request the caller may omit.
type JobDefaults struct {
	Fast      []string
	Full      []string
	PostLimit int
	TimeRange domain.TimeRange
	SortMode  domain.SortMode
}

// HarvestService runs harvests and hands the results to the configured
// sinks. Store, snapshots and classifier are optional.
type HarvestService struct {
	orchestrator *Orchestrator
	store        CorpusStore
	snapshots    *SnapshotExporter
	classifier   *ClassifierClient
	defaults     JobDefaults
	running      atomic.Bool
}

// HarvestServiceConfig wires the collaborators of a HarvestService.
type HarvestServiceConfig struct {
	Orchestrator *Orchestrator
	Store        CorpusStore
	Snapshots    *SnapshotExporter
	Classifier   *ClassifierClient
	Defaults     JobDefaults
}

// NewHarvestService creates a harvest service.
func NewHarvestService(cfg HarvestServiceConfig) *HarvestService {
	return &HarvestService{
		orchestrator: cfg.Orchestrator,
		store:        cfg.Store,
		snapshots:    cfg.Snapshots,
		classifier:   cfg.Classifier,
		defaults:     cfg.Defaults,
	}
}

// PrepareJob resolves omitted fields from the defaults: an empty community
// list takes the fast or full default list, and zero-valued enums and limits
// take the configured values. Invalid explicit values are left untouched
// so validation can reject them.
func (s *HarvestService) PrepareJob(job domain.HarvestJob) domain.HarvestJob {
	if len(job.Communities) == 0 {
		if job.FastMode {
			job.Communities = append([]string(nil), s.defaults.Fast...)
		} else {
			job.Communities = append([]string(nil), s.defaults.Full...)
		}
	}
	if job.TimeRange == "" {
		job.TimeRange = s.defaults.TimeRange
	}
	if job.SortMode == "" {
		job.SortMode = s.defaults.SortMode
	}
	if job.PostsPerCommunity == 0 {
		job.PostsPerCommunity = s.defaults.PostLimit
	}
	return job
}

// IsRunning reports whether a harvest is in progress.
func (s *HarvestService) IsRunning() bool {
	return s.running.Load()
}

// Harvest runs one job for a user and persists the outcome.
// Persistence runs on a context detached from ctx so a cancelled job still
// stores its partial result; sink failures are logged and do not fail the
// harvest.
// Parameters:
//   - ctx: job context; cancel to stop issuing batches.
//   - userID: owner of the run in the sink.
//   - job: request, resolved with PrepareJob before validation.
//   - reporter: optional progress observer.
// Returns:
//   - *HarvestResult: the (possibly partial) result.
//   - error: ErrHarvestRunning, ErrInvalidJob or ErrJobAborted.
func (s *HarvestService) Harvest(ctx context.Context, userID string, job domain.HarvestJob, reporter ProgressReporter) (*HarvestResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrHarvestRunning
	}
	defer s.running.Store(false)

	ctx = logger.WithField(ctx, logger.FieldUserID, userID)
	job = s.PrepareJob(job)

	result, err := s.orchestrator.Run(ctx, job, reporter)
	if result == nil {
		return nil, err
	}

	saveCtx := context.WithoutCancel(ctx)
	if s.store != nil {
		run := NewHarvestRun(userID, job, result)
		if serr := s.store.SaveCorpus(saveCtx, run, result.Records, result.Outcomes); serr != nil {
			logger.FromContext(ctx).WithError(serr).Error("Failed to save corpus")
		}
	}
	if s.snapshots != nil {
		url, serr := s.snapshots.Export(saveCtx, userID, result)
		if serr != nil {
			logger.FromContext(ctx).WithError(serr).Warn("Failed to export snapshot")
		} else {
			result.SnapshotURL = url
		}
	}
	return result, err
}

// ListRuns returns the most recent runs of a user.
func (s *HarvestService) ListRuns(ctx context.Context, userID string, limit int) ([]domain.HarvestRun, error) {
	if s.store == nil {
		return []domain.HarvestRun{}, nil
	}
	return s.store.ListRuns(ctx, userID, limit)
}

// GetRun returns one run of a user with its community outcomes.
func (s *HarvestService) GetRun(ctx context.Context, userID, jobID string) (*domain.HarvestRun, []domain.CommunityOutcome, error) {
	if s.store == nil {
		return nil, nil, fmt.Errorf("no corpus store configured")
	}
	return s.store.GetRun(ctx, userID, jobID)
}

// ClassifyRun sends the stored corpus of a run to the classifier.
// Parameters:
//   - ctx: request context.
//   - userID: owner of the run; other users' runs are not found.
//   - jobID: run to classify.
//   - nodes: categories forwarded to the classifier.
// Returns:
//   - []Classification: one verdict per deduplicated text.
//   - error: ErrClassifierDisabled, a not-found error from the store, or a
//     classifier failure.
func (s *HarvestService) ClassifyRun(ctx context.Context, userID, jobID string, nodes []Node) ([]Classification, error) {
	if !s.classifier.Enabled() {
		return nil, ErrClassifierDisabled
	}
	if _, _, err := s.GetRun(ctx, userID, jobID); err != nil {
		return nil, err
	}
	records, err := s.store.GetCorpus(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	return s.classifier.Classify(ctx, CorpusTexts(records), nodes)
}

// OpenSnapshot returns the JSON snapshot exported for a user's run.
func (s *HarvestService) OpenSnapshot(ctx context.Context, userID, jobID string) (io.ReadCloser, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}
	return s.snapshots.Open(ctx, userID, jobID)
}
