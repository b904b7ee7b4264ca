package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/sentiscope/internal/api/handler"
	"github.com/timmy/sentiscope/internal/api/middleware"
	"github.com/timmy/sentiscope/internal/config"
	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/filter"
	"github.com/timmy/sentiscope/internal/metrics"
	"github.com/timmy/sentiscope/internal/repository"
	"github.com/timmy/sentiscope/internal/service"
	"github.com/timmy/sentiscope/internal/source"
)

var testRegistry = prometheus.NewRegistry()

// stubAdapter serves two posts with one reply each, except for "missing".
type stubAdapter struct{}

func (stubAdapter) Name() string                   { return "stub" }
func (stubAdapter) Method() domain.RetrievalMethod { return domain.MethodAnonymous }

func (stubAdapter) FetchCommunity(_ context.Context, community string, _ source.Filters) source.FetchResult {
	if community == "missing" {
		return source.NotFound("community %s not found", community)
	}
	var threads []source.Thread
	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("%s_%d", community, i)
		threads = append(threads, source.Thread{
			Post: domain.Post{ID: id, Author: "alice", Title: "A reasonable title " + id, Score: 4},
			Replies: []*source.CommentNode{
				{ID: id + "_c", Author: "bob", Body: "An interesting reply to " + id},
			},
		})
	}
	return source.OK(threads)
}

func newTestRouter(t *testing.T) (*gin.Engine, *service.HarvestService) {
	t.Helper()
	metrics.MustRegister(testRegistry)

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "api.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)

	chain := service.NewAdapterChain([]source.Adapter{stubAdapter{}}, service.ChainConfig{})
	orchestrator := service.NewOrchestrator(chain, filter.New(filter.Config{}), service.OrchestratorConfig{BatchSize: 2})
	svc := service.NewHarvestService(service.HarvestServiceConfig{
		Orchestrator: orchestrator,
		Store:        repository.NewCorpusRepository(db),
		Defaults: service.JobDefaults{
			Fast:      []string{"golang", "rust"},
			Full:      []string{"golang", "rust", "python"},
			PostLimit: 5,
			TimeRange: domain.TimeRangeWeek,
			SortMode:  domain.SortTop,
		},
	})

	r := SetupRouter(svc, RouterConfig{Mode: "test", Gatherer: testRegistry, Adapters: chain.Adapters()})
	return r, svc
}

func doJSON(r http.Handler, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(handler.HeaderUserID, user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"stub"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	doJSON(r, http.MethodPost, "/api/v1/harvest", "", map[string]interface{}{"communities": []string{"golang"}})
	w = doJSON(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "harvest_jobs_total")
}

func TestRequestIDPropagation(t *testing.T) {
	r, _ := newTestRouter(t)

	t.Run("client id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(middleware.HeaderRequestID, "req-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "req-123", w.Header().Get(middleware.HeaderRequestID))
	})

	t.Run("missing id is generated", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/health", "", nil)
		_, err := uuid.Parse(w.Header().Get(middleware.HeaderRequestID))
		assert.NoError(t, err)
	})
}

func TestHarvestEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	t.Run("partial failure is still success", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/v1/harvest", "u1", map[string]interface{}{
			"communities":       []string{"golang", "missing"},
			"timeRange":         "week",
			"sortMode":          "top",
			"postsPerCommunity": 10,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp handler.HarvestResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Summary)
		assert.Equal(t, 1, resp.Summary.CommunitiesSucceeded)
		assert.Equal(t, 1, resp.Summary.CommunitiesFailed)
		assert.Len(t, resp.Data, 4)
		assert.Equal(t, domain.RecordTypePost, resp.Data[0].Type)
		assert.NotEmpty(t, resp.JobID)
	})

	t.Run("defaults used when communities omitted", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/v1/harvest", "u1", map[string]interface{}{"fastMode": true})
		require.Equal(t, http.StatusOK, w.Code)
		var resp handler.HarvestResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Summary.CommunitiesRequested)
	})

	t.Run("empty body uses full defaults", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/harvest", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp handler.HarvestResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Summary.CommunitiesRequested)
	})

	tests := []struct {
		name string
		body interface{}
	}{
		{"invalid time range", map[string]interface{}{"communities": []string{"a"}, "timeRange": "year"}},
		{"invalid sort", map[string]interface{}{"communities": []string{"a"}, "sortMode": "new"}},
		{"limit too large", map[string]interface{}{"communities": []string{"a"}, "postsPerCommunity": 1000}},
		{"malformed json", "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/api/v1/harvest", "u1", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp handler.HarvestResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

// streamRecorder adds the CloseNotifier gin's Stream requires.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (s *streamRecorder) CloseNotify() <-chan bool { return s.closed }

func TestHarvestStreamEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/harvest/stream", strings.NewReader(`{"communities":["a","b","c"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var names []string
	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "event:") {
			names = append(names, strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		}
	}
	assert.Equal(t, []string{"progress", "progress", "progress", "progress", "result"}, names)
	assert.Contains(t, w.Body.String(), `"batch_complete"`)
}

func TestRunsEndpoints(t *testing.T) {
	r, svc := newTestRouter(t)

	res, err := svc.Harvest(context.Background(), "u1", domain.HarvestJob{Communities: []string{"golang"}}, nil)
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/v1/runs", "u1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Runs  []domain.HarvestRun `json:"runs"`
			Total int                 `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Total)
		assert.Equal(t, res.JobID, body.Runs[0].ID)
	})

	t.Run("get", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/v1/runs/"+res.JobID, "u1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"golang"`)
	})

	t.Run("other user gets 404", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/v1/runs/"+res.JobID, "u2", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("classify without classifier", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/v1/runs/"+res.JobID+"/classify", "u1", map[string]interface{}{
			"nodes": []map[string]interface{}{{"id": "n1", "name": "General"}},
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("classify requires nodes", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/v1/runs/"+res.JobID+"/classify", "u1", map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("snapshot without storage", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/v1/runs/"+res.JobID+"/snapshot", "u1", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name       string
		cfg        config.CORSConfig
		origin     string
		wantOrigin string
	}{
		{"allow all", config.CORSConfig{AllowAllOrigins: true}, "https://a.example", "*"},
		{"listed origin", config.CORSConfig{AllowedOrigins: []string{"https://a.example"}}, "https://a.example", "https://a.example"},
		{"unlisted origin", config.CORSConfig{AllowedOrigins: []string{"https://a.example"}}, "https://evil.example", ""},
		{"no list echoes origin", config.CORSConfig{}, "https://b.example", "https://b.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SetupRouter(nil, RouterConfig{Mode: "test", CORS: tt.cfg})
			req := httptest.NewRequest(http.MethodOptions, "/health", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
