package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/filter"
	"github.com/timmy/sentiscope/internal/logger"
	"github.com/timmy/sentiscope/internal/metrics"
	"github.com/timmy/sentiscope/internal/source"
)

var (
	// ErrInvalidJob marks a structurally invalid harvest request.
	ErrInvalidJob = errors.New("invalid harvest job")
	// ErrJobAborted marks a job stopped by an unexpected programming error.
	// The partial result is still returned alongside it.
	ErrJobAborted = errors.New("harvest job aborted")
)

const (
	defaultBatchSize       = 3
	defaultInterBatchDelay = time.Second
)

// OrchestratorConfig tunes batching.
type OrchestratorConfig struct {
	BatchSize       int
	InterBatchDelay time.Duration
	MaxCommentDepth int
}

// HarvestResult is everything a job produced.
type HarvestResult struct {
	JobID     string                    `json:"job_id"`
	Status    domain.JobStatus          `json:"status"`
	Cancelled bool                      `json:"cancelled"`
	Records   []domain.CorpusRecord     `json:"data"`
	Outcomes  []domain.CommunityOutcome `json:"outcomes"`
	Summary   domain.HarvestSummary     `json:"summary"`
	StartedAt time.Time                 `json:"started_at"`
	// SnapshotURL is set when the result was exported to object storage.
	SnapshotURL string `json:"snapshot_url,omitempty"`
}

// Orchestrator runs harvest jobs batch by batch.
type Orchestrator struct {
	fetcher CommunityFetcher
	filter  *filter.Filter
	cfg     OrchestratorConfig
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator.
// Parameters:
//   - fetcher: strategy used per community, usually an *AdapterChain.
//   - noise: noise filter applied to every post and comment.
//   - cfg: batch size, inter-batch delay and comment depth cap.
// Returns:
//   - *Orchestrator: orchestrator ready to run jobs.
func NewOrchestrator(fetcher CommunityFetcher, noise *filter.Filter, cfg OrchestratorConfig) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.InterBatchDelay < 0 {
		cfg.InterBatchDelay = defaultInterBatchDelay
	}
	if cfg.MaxCommentDepth <= 0 {
		cfg.MaxCommentDepth = source.DefaultMaxDepth
	}
	if noise == nil {
		noise = filter.New(filter.Config{})
	}
	return &Orchestrator{
		fetcher: fetcher,
		filter:  noise,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// communityResult is the local output of one worker, merged after the batch.
type communityResult struct {
	records []domain.CorpusRecord
	outcome domain.CommunityOutcome
}

type jobState struct {
	jobID       string
	communities []string
	started     time.Time
	cancelled   bool
	records     []domain.CorpusRecord
	outcomes    []domain.CommunityOutcome
}

// Run executes a job to completion, returning a result even when every
// community failed. Cancelling ctx stops new batches from being issued;
// adapter calls already in flight finish first.
// Parameters:
//   - ctx: job context; cancellation is honoured between batches.
//   - job: the harvest job, consumed once.
//   - reporter: progress observer; may be nil.
// Returns:
//   - *HarvestResult: corpus, outcomes and summary, possibly partial.
//   - error: ErrInvalidJob for invalid jobs, ErrJobAborted when a
//     programming error stopped the job early (result is still set).
func (o *Orchestrator) Run(ctx context.Context, job domain.HarvestJob, reporter ProgressReporter) (result *HarvestResult, err error) {
	communities := normalizeCommunities(job.Communities)
	job.Communities = communities
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if reporter == nil {
		reporter = MultiReporter(nil)
	}

	state := &jobState{
		jobID:       uuid.New().String(),
		communities: communities,
		started:     o.now(),
	}
	ctx = logger.SetJobID(ctx, state.jobID)
	ctx = logger.SetComponent(ctx, "orchestrator")

	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).WithField("stack", string(debug.Stack())).Errorf("Harvest aborted: %v", r)
			result = o.finish(ctx, state)
			err = fmt.Errorf("%w: %v", ErrJobAborted, r)
		}
	}()

	batches := partition(communities, o.cfg.BatchSize)
	filters := source.Filters{TimeRange: job.TimeRange, SortMode: job.SortMode, Limit: job.PostsPerCommunity}

	logger.With(logger.Fields{
		"communities": len(communities),
		"batches":     len(batches),
		"time_range":  job.TimeRange,
		"sort_mode":   job.SortMode,
	}).Info(ctx, "Harvest started")

	processed := 0

	for i, batch := range batches {
		if ctx.Err() != nil {
			state.cancelled = true
			break
		}

		safeReport(ctx, reporter, o.event(state, EventBatchStart, i, len(batches), processed, batch))

		results := make([]communityResult, len(batch))
		var wg sync.WaitGroup
		for j, community := range batch {
			wg.Add(1)
			go func(j int, community string) {
				defer wg.Done()
				results[j] = o.harvestCommunity(ctx, community, filters, job)
			}(j, community)
		}
		wg.Wait()

		for _, r := range results {
			state.records = append(state.records, r.records...)
			state.outcomes = append(state.outcomes, r.outcome)
		}
		processed += len(batch)

		safeReport(ctx, reporter, o.event(state, EventBatchComplete, i+1, len(batches), processed, batch))

		if i == len(batches)-1 {
			break
		}
		if err := o.sleep(ctx, o.cfg.InterBatchDelay); err != nil {
			state.cancelled = true
			break
		}
	}

	return o.finish(ctx, state), nil
}

// harvestCommunity fetches one community and turns the threads into
// filtered corpus records. It never panics.
func (o *Orchestrator) harvestCommunity(ctx context.Context, community string, filters source.Filters, job domain.HarvestJob) (res communityResult) {
	ctx = logger.SetCommunity(ctx, community)
	res.outcome = domain.CommunityOutcome{Community: community, MethodUsed: domain.MethodFailed}

	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).WithField("stack", string(debug.Stack())).Errorf("Programming error while harvesting: %v", r)
			res = communityResult{outcome: domain.CommunityOutcome{
				Community:    community,
				MethodUsed:   domain.MethodFailed,
				ErrorMessage: fmt.Sprintf("programming error: %v", r),
			}}
		}
	}()

	chain := o.fetcher.Fetch(ctx, community, filters)
	if chain.Method == "" || chain.Method == domain.MethodFailed {
		res.outcome.ErrorMessage = strings.Join(chain.Errors, "; ")
		if res.outcome.ErrorMessage == "" {
			res.outcome.ErrorMessage = "all adapters failed"
		}
		logger.CtxWarn(ctx, "Community failed: %s", res.outcome.ErrorMessage)
		return res
	}

	now := o.now().UTC()
	cutoff := now.Add(-job.TimeRange.Window())
	seen := make(map[string]struct{})
	droppedPosts, droppedComments := 0, 0

	for _, th := range chain.Threads {
		if res.outcome.PostCount >= job.PostsPerCommunity {
			break
		}

		post := th.Post
		post.Community = community
		post.RetrievalMethod = chain.Method
		if post.ScrapedAt.IsZero() {
			post.ScrapedAt = now
		}
		if post.HasValidTimestamp() && post.CreatedAt.Before(cutoff) {
			continue
		}

		rec := domain.PostRecord(post)
		if _, dup := seen[rec.Key()]; !dup {
			seen[rec.Key()] = struct{}{}
			if o.filter.KeepPost(post) {
				res.records = append(res.records, rec)
				res.outcome.PostCount++
				if post.Score != 0 {
					res.outcome.EngagementSum += int64(post.Score)
					res.outcome.EngagedPosts++
				}
			} else {
				droppedPosts++
			}
		}

		for _, c := range source.Flatten(post.ID, community, th.Replies, o.cfg.MaxCommentDepth) {
			crec := domain.CommentRecord(c)
			if _, dup := seen[crec.Key()]; dup {
				continue
			}
			seen[crec.Key()] = struct{}{}
			if !o.filter.KeepComment(c) {
				droppedComments++
				continue
			}
			res.records = append(res.records, crec)
			res.outcome.CommentCount++
		}
	}

	res.outcome.MethodUsed = chain.Method
	metrics.AddRecords(string(domain.RecordTypePost), res.outcome.PostCount, droppedPosts)
	metrics.AddRecords(string(domain.RecordTypeComment), res.outcome.CommentCount, droppedComments)

	logger.With(logger.Fields{
		logger.FieldAdapter: chain.Adapter,
		"posts":             res.outcome.PostCount,
		"comments":          res.outcome.CommentCount,
		"dropped":           droppedPosts + droppedComments,
	}).Info(ctx, "Community harvested")
	return res
}

// finish records outcomes for communities never reached and folds the summary.
func (o *Orchestrator) finish(ctx context.Context, state *jobState) *HarvestResult {
	done := make(map[string]struct{}, len(state.outcomes))
	for _, oc := range state.outcomes {
		done[oc.Community] = struct{}{}
	}
	reason := "not processed: job aborted"
	if state.cancelled {
		reason = "not processed: job cancelled"
	}
	for _, c := range state.communities {
		if _, ok := done[c]; !ok {
			state.outcomes = append(state.outcomes, domain.CommunityOutcome{
				Community:    c,
				MethodUsed:   domain.MethodFailed,
				ErrorMessage: reason,
			})
		}
	}

	elapsed := o.now().Sub(state.started)
	summary := Summarize(state.outcomes)
	summary.ElapsedMs = elapsed.Milliseconds()
	summary.Cancelled = state.cancelled

	status := domain.JobStatusCompleted
	if summary.CommunitiesFailed > 0 {
		status = domain.JobStatusCompletedWithFailures
	}
	metrics.ObserveJob(string(status), elapsed, summary.CommunitiesFailed)

	logger.With(logger.Fields{
		logger.FieldStatus: status,
		"posts":            summary.TotalPosts,
		"comments":         summary.TotalComments,
		"succeeded":        summary.CommunitiesSucceeded,
		"failed":           summary.CommunitiesFailed,
		"cancelled":        state.cancelled,
	}).WithDuration(elapsed).Info(ctx, "Harvest finished")

	records := state.records
	if records == nil {
		records = []domain.CorpusRecord{}
	}
	return &HarvestResult{
		JobID:     state.jobID,
		Status:    status,
		Cancelled: state.cancelled,
		Records:   records,
		Outcomes:  state.outcomes,
		Summary:   summary,
		StartedAt: state.started,
	}
}

func (o *Orchestrator) event(state *jobState, typ ProgressEventType, batchIndex, totalBatches, processed int, batch []string) ProgressEvent {
	elapsed := o.now().Sub(state.started).Milliseconds()
	completed := batchIndex
	index := batchIndex
	if typ == EventBatchStart {
		index = batchIndex + 1
	}
	return ProgressEvent{
		Type:           typ,
		JobID:          state.jobID,
		BatchIndex:     index,
		TotalBatches:   totalBatches,
		ProcessedCount: processed,
		TotalCount:     len(state.communities),
		Communities:    append([]string(nil), batch...),
		ElapsedMs:      elapsed,
		EtaMs:          estimateRemaining(elapsed, completed, totalBatches),
	}
}

// safeReport keeps a misbehaving reporter from taking the job down.
func safeReport(ctx context.Context, r ProgressReporter, event ProgressEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.CtxError(ctx, "Progress reporter panicked: %v", rec)
		}
	}()
	r.Report(ctx, event)
}

// normalizeCommunities trims names, drops an "r/" prefix and removes
// case-insensitive duplicates while keeping the first spelling and order.
func normalizeCommunities(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		c = strings.TrimPrefix(strings.TrimPrefix(c, "/"), "r/")
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func partition(items []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
