package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timmy/sentiscope/internal/api/middleware"
	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/logger"
	"github.com/timmy/sentiscope/internal/repository"
	"github.com/timmy/sentiscope/internal/service"
	"github.com/timmy/sentiscope/internal/storage"
)

// HeaderUserID identifies the user a harvest is stored for.
const HeaderUserID = "X-User-ID"

const defaultUserID = "anonymous"

// HarvestHandler serves the harvest and run history endpoints.
type HarvestHandler struct {
	service *service.HarvestService
}

// NewHarvestHandler creates a new harvest handler.
// Parameters:
//   - harvestService: service running harvests and reading run history.
// Returns:
//   - *HarvestHandler: initialized handler.
func NewHarvestHandler(harvestService *service.HarvestService) *HarvestHandler {
	return &HarvestHandler{service: harvestService}
}

// HarvestRequest is the body of the harvest endpoints. Omitted fields take
// the configured defaults.
type HarvestRequest struct {
	Communities       []string `json:"communities"`
	TimeRange         string   `json:"timeRange"`
	SortMode          string   `json:"sortMode"`
	PostsPerCommunity int      `json:"postsPerCommunity" binding:"omitempty,min=1,max=100"`
	FastMode          bool     `json:"fastMode"`
}

func (r HarvestRequest) job() domain.HarvestJob {
	return domain.HarvestJob{
		Communities:       r.Communities,
		TimeRange:         domain.TimeRange(strings.ToLower(r.TimeRange)),
		SortMode:          domain.SortMode(strings.ToLower(r.SortMode)),
		PostsPerCommunity: r.PostsPerCommunity,
		FastMode:          r.FastMode,
	}
}

// HarvestResponse is the response contract of a harvest.
type HarvestResponse struct {
	Success     bool                      `json:"success"`
	JobID       string                    `json:"jobId,omitempty"`
	Cancelled   bool                      `json:"cancelled"`
	Data        []domain.CorpusRecord     `json:"data"`
	Summary     *domain.HarvestSummary    `json:"summary,omitempty"`
	Outcomes    []domain.CommunityOutcome `json:"outcomes,omitempty"`
	SnapshotURL string                    `json:"snapshotUrl,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

func newHarvestResponse(res *service.HarvestResult) HarvestResponse {
	summary := res.Summary
	return HarvestResponse{
		Success:     true,
		JobID:       res.JobID,
		Cancelled:   res.Cancelled,
		Data:        res.Records,
		Summary:     &summary,
		Outcomes:    res.Outcomes,
		SnapshotURL: res.SnapshotURL,
	}
}

func failure(c *gin.Context, status int, msg string) {
	c.JSON(status, HarvestResponse{Success: false, Data: []domain.CorpusRecord{}, Error: msg})
}

// userID returns the caller identity from the X-User-ID header.
func userID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
		return id
	}
	return defaultUserID
}

// bindJob parses and resolves the request, writing the 400/409 response itself.
func (h *HarvestHandler) bindJob(c *gin.Context) (domain.HarvestJob, bool) {
	ctx := c.Request.Context()
	var req HarvestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.CtxWarn(ctx, "Invalid harvest request: client_ip=%s, error=%v", c.ClientIP(), err)
		failure(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return domain.HarvestJob{}, false
	}

	job := h.service.PrepareJob(req.job())
	if err := job.Validate(); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return domain.HarvestJob{}, false
	}
	if h.service.IsRunning() {
		logger.CtxWarn(ctx, "Harvest request rejected: already running, client_ip=%s", c.ClientIP())
		failure(c, http.StatusConflict, service.ErrHarvestRunning.Error())
		return domain.HarvestJob{}, false
	}
	return job, true
}

func writeHarvestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidJob):
		failure(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrHarvestRunning):
		failure(c, http.StatusConflict, err.Error())
	default:
		failure(c, http.StatusInternalServerError, err.Error())
	}
}

// Harvest handles POST /api/v1/harvest. The job runs on the request
// context, so a client that disconnects cancels it; the partial result is
// still stored.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HarvestHandler) Harvest(c *gin.Context) {
	job, ok := h.bindJob(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	logger.CtxInfo(ctx, "Received harvest request: communities=%d, time=%s, sort=%s, limit=%d",
		len(job.Communities), job.TimeRange, job.SortMode, job.PostsPerCommunity)

	res, err := h.service.Harvest(ctx, userID(c), job, service.LogReporter{})
	if res == nil {
		writeHarvestError(c, err)
		return
	}
	if err != nil {
		// aborted jobs still return their partial corpus
		middleware.GetLogger(c).WithError(err).Error("Harvest aborted, returning partial result")
	}
	c.JSON(http.StatusOK, newHarvestResponse(res))
}

type streamOutcome struct {
	res *service.HarvestResult
	err error
}

// HarvestStream handles POST /api/v1/harvest/stream. Progress events are
// sent as "progress" server-sent events, followed by one "result" event
// (or "error" when the job could not run).
// Parameters:
//   - c: Gin request context.
// Returns: none (writes an SSE stream).
func (h *HarvestHandler) HarvestStream(c *gin.Context) {
	job, ok := h.bindJob(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user := userID(c)

	reporter := service.NewChannelReporter(64)
	done := make(chan streamOutcome, 1)
	go func() {
		res, err := h.service.Harvest(ctx, user, job, service.MultiReporter{reporter, service.LogReporter{}})
		reporter.Close()
		done <- streamOutcome{res: res, err: err}
	}()

	events := reporter.Events()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		if e, open := <-events; open {
			c.SSEvent("progress", e)
			return true
		}
		out := <-done
		if out.res == nil {
			c.SSEvent("error", gin.H{"success": false, "error": out.err.Error()})
			return false
		}
		c.SSEvent("result", newHarvestResponse(out.res))
		return false
	})
}

// ListRuns handles GET /api/v1/runs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HarvestHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	runs, err := h.service.ListRuns(c.Request.Context(), userID(c), limit)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

// GetRun handles GET /api/v1/runs/:id.
func (h *HarvestHandler) GetRun(c *gin.Context) {
	run, outcomes, err := h.service.GetRun(c.Request.Context(), userID(c), c.Param("id"))
	if errors.Is(err, repository.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to load run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "outcomes": outcomes})
}

// Snapshot handles GET /api/v1/runs/:id/snapshot by streaming the exported
// JSON document from object storage.
func (h *HarvestHandler) Snapshot(c *gin.Context) {
	body, err := h.service.OpenSnapshot(c.Request.Context(), userID(c), c.Param("id"))
	switch {
	case errors.Is(err, service.ErrSnapshotsDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, storage.ErrObjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	case err != nil:
		middleware.GetLogger(c).WithError(err).Error("Failed to open snapshot")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to open snapshot"})
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, -1, "application/json", body, nil)
}

// ClassifyRequest names the nodes texts are matched against.
type ClassifyRequest struct {
	Nodes []service.Node `json:"nodes" binding:"required,min=1,dive"`
}

// ClassifyRun handles POST /api/v1/runs/:id/classify.
func (h *HarvestHandler) ClassifyRun(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	results, err := h.service.ClassifyRun(c.Request.Context(), userID(c), c.Param("id"), req.Nodes)
	switch {
	case errors.Is(err, service.ErrClassifierDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
	case err != nil:
		middleware.GetLogger(c).WithError(err).Error("Classification failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
	}
}
