package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/storage"
)

// CorpusStore is the append-only sink for finished harvests, keyed by
// (user, job), plus the read side used for run history.
type CorpusStore interface {
	SaveCorpus(ctx context.Context, run domain.HarvestRun, records []domain.CorpusRecord, outcomes []domain.CommunityOutcome) error
	ListRuns(ctx context.Context, userID string, limit int) ([]domain.HarvestRun, error)
	GetRun(ctx context.Context, userID, jobID string) (*domain.HarvestRun, []domain.CommunityOutcome, error)
	GetCorpus(ctx context.Context, jobID string) ([]domain.CorpusRecord, error)
}

// NewHarvestRun builds the persisted run row for a result.
func NewHarvestRun(userID string, job domain.HarvestJob, result *HarvestResult) domain.HarvestRun {
	s := result.Summary
	return domain.HarvestRun{
		ID:                   result.JobID,
		UserID:               userID,
		Status:               result.Status,
		Cancelled:            result.Cancelled,
		TimeRange:            job.TimeRange,
		SortMode:             job.SortMode,
		TotalPosts:           s.TotalPosts,
		TotalComments:        s.TotalComments,
		CommunitiesRequested: s.CommunitiesRequested,
		CommunitiesSucceeded: s.CommunitiesSucceeded,
		CommunitiesFailed:    s.CommunitiesFailed,
		AverageEngagement:    s.AverageEngagement,
		MethodTally:          s.MethodTally.Clone(),
		ElapsedMs:            s.ElapsedMs,
		CreatedAt:            result.StartedAt,
	}
}

// snapshotDocument is the JSON layout of an exported corpus.
type snapshotDocument struct {
	JobID      string                    `json:"job_id"`
	UserID     string                    `json:"user_id"`
	ExportedAt time.Time                 `json:"exported_at"`
	Status     domain.JobStatus          `json:"status"`
	Summary    domain.HarvestSummary     `json:"summary"`
	Outcomes   []domain.CommunityOutcome `json:"outcomes"`
	Data       []domain.CorpusRecord     `json:"data"`
}

// SnapshotExporter writes whole harvest results as JSON objects into
// object storage under {prefix}/{user}/{job}.json.
type SnapshotExporter struct {
	storage storage.ObjectStorage
	prefix  string
}

// NewSnapshotExporter creates an exporter.
// Parameters:
//   - objectStorage: destination store.
//   - prefix: key prefix; empty uses "harvests".
// Returns:
//   - *SnapshotExporter: exporter ready for use.
func NewSnapshotExporter(objectStorage storage.ObjectStorage, prefix string) *SnapshotExporter {
	if prefix == "" {
		prefix = "harvests"
	}
	return &SnapshotExporter{storage: objectStorage, prefix: prefix}
}

// Key returns the object key for a user's job.
func (e *SnapshotExporter) Key(userID, jobID string) string {
	return path.Join(e.prefix, userID, jobID+".json")
}

// Export uploads the result and returns the object URL.
func (e *SnapshotExporter) Export(ctx context.Context, userID string, result *HarvestResult) (string, error) {
	doc := snapshotDocument{
		JobID:      result.JobID,
		UserID:     userID,
		ExportedAt: time.Now().UTC(),
		Status:     result.Status,
		Summary:    result.Summary,
		Outcomes:   result.Outcomes,
		Data:       result.Records,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := e.Key(userID, result.JobID)
	if err := e.storage.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return e.storage.GetURL(key), nil
}

// Open returns the stored snapshot of a user's job. The caller closes it.
func (e *SnapshotExporter) Open(ctx context.Context, userID, jobID string) (io.ReadCloser, error) {
	if !validKeyPart(userID) || !validKeyPart(jobID) {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrObjectNotFound, userID, jobID)
	}
	return e.storage.Download(ctx, e.Key(userID, jobID))
}

// validKeyPart rejects values that would move a key out of its user prefix.
func validKeyPart(part string) bool {
	return part != "" && part != "." && part != ".." && !strings.ContainsAny(part, `/\`)
}
