package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/source"
	"github.com/timmy/sentiscope/internal/storage"
)

// scriptedAdapter answers FetchCommunity from a function and counts calls.
type scriptedAdapter struct {
	name   string
	method domain.RetrievalMethod
	fn     func(community string, call int) source.FetchResult

	mu    sync.Mutex
	calls map[string]int
}

func newScripted(name string, method domain.RetrievalMethod, fn func(community string, call int) source.FetchResult) *scriptedAdapter {
	return &scriptedAdapter{name: name, method: method, fn: fn, calls: make(map[string]int)}
}

func (a *scriptedAdapter) Name() string                   { return a.name }
func (a *scriptedAdapter) Method() domain.RetrievalMethod { return a.method }

func (a *scriptedAdapter) FetchCommunity(_ context.Context, community string, _ source.Filters) source.FetchResult {
	a.mu.Lock()
	a.calls[community]++
	n := a.calls[community]
	a.mu.Unlock()
	return a.fn(community, n)
}

func (a *scriptedAdapter) Calls(community string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[community]
}

// threads builds posts with one flat reply list each. Every post and comment
// passes the noise filter.
func threads(community string, posts, commentsPerPost int, created time.Time) []source.Thread {
	out := make([]source.Thread, 0, posts)
	for i := 0; i < posts; i++ {
		postID := fmt.Sprintf("%s_p%d", community, i)
		th := source.Thread{Post: domain.Post{
			ID:        postID,
			Author:    "alice",
			Title:     fmt.Sprintf("Discussion number %d about things", i),
			Body:      "A long enough body to count as meaningful content.",
			CreatedAt: created,
			Score:     10 * (i + 1),
		}}
		for j := 0; j < commentsPerPost; j++ {
			th.Replies = append(th.Replies, &source.CommentNode{
				ID:     fmt.Sprintf("%s_c%d", postID, j),
				Author: "bob",
				Body:   fmt.Sprintf("Thoughtful reply number %d here", j),
			})
		}
		out = append(out, th)
	}
	return out
}

func noSleep(context.Context, time.Duration) error { return nil }

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStorage) Upload(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	m.types[key] = contentType
	return nil
}

func (m *memoryStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memoryStorage) GetURL(key string) string {
	return "mem://bucket/" + key
}

// memoryStore is an in-memory CorpusStore.
type memoryStore struct {
	mu       sync.Mutex
	runs     map[string]domain.HarvestRun
	records  map[string][]domain.CorpusRecord
	outcomes map[string][]domain.CommunityOutcome
	saveErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		runs:     map[string]domain.HarvestRun{},
		records:  map[string][]domain.CorpusRecord{},
		outcomes: map[string][]domain.CommunityOutcome{},
	}
}

func (m *memoryStore) SaveCorpus(_ context.Context, run domain.HarvestRun, records []domain.CorpusRecord, outcomes []domain.CommunityOutcome) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	m.records[run.ID] = records
	m.outcomes[run.ID] = outcomes
	return nil
}

func (m *memoryStore) ListRuns(_ context.Context, userID string, _ int) ([]domain.HarvestRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.HarvestRun
	for _, r := range m.runs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryStore) GetRun(_ context.Context, userID, jobID string) (*domain.HarvestRun, []domain.CommunityOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[jobID]
	if !ok || r.UserID != userID {
		return nil, nil, errRunMissing
	}
	return &r, m.outcomes[jobID], nil
}

func (m *memoryStore) GetCorpus(_ context.Context, jobID string) ([]domain.CorpusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[jobID], nil
}

var errRunMissing = fmt.Errorf("run not found")
