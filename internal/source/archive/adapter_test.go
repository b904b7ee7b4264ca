package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/source"
)

const postsJSON = `{"data": [
  {"id": "p1", "subreddit": "golang", "author": "alice", "title": "Low score", "selftext": "body one", "score": 2, "created_utc": 1700000000},
  {"id": "p2", "subreddit": "golang", "author": "bob", "title": "High score", "selftext": "body two", "score": 40, "created_utc": 1700000100}
], "error": null}`

const commentsJSON = `{"data": [
  {"id": "c1", "author": "carol", "body": "top level", "link_id": "t3_p2", "parent_id": "t3_p2", "created_utc": 1700000200},
  {"id": "c2", "author": "dave", "body": "reply to c1", "link_id": "t3_p2", "parent_id": "t1_c1", "created_utc": 1700000300},
  {"id": "c3", "author": "erin", "body": "orphaned reply", "link_id": "t3_p2", "parent_id": "t1_gone", "created_utc": 1700000400}
]}`

func TestFetchCommunity(t *testing.T) {
	now := time.Unix(1700100000, 0)

	t.Run("posts and flat comments", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			switch r.URL.Path {
			case "/api/posts/search":
				assert.Equal(t, "golang", q.Get("subreddit"))
				assert.Equal(t, strconv.FormatInt(now.Add(-7*24*time.Hour).Unix(), 10), q.Get("after"))
				_, _ = w.Write([]byte(postsJSON))
			case "/api/comments/search":
				assert.Equal(t, "p2", q.Get("link_id"))
				_, _ = w.Write([]byte(commentsJSON))
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		a := NewAdapter(Config{BaseURL: srv.URL, RequestPeriod: time.Millisecond, CommentPosts: 1})
		a.now = func() time.Time { return now }

		res := a.FetchCommunity(context.Background(), "golang",
			source.Filters{TimeRange: domain.TimeRangeWeek, SortMode: domain.SortTop, Limit: 10})
		require.True(t, res.Ok(), res.Message)
		require.Len(t, res.Threads, 2)

		top := res.Threads[0]
		assert.Equal(t, "p2", top.Post.ID, "top sort orders by score")
		assert.Equal(t, domain.MethodArchive, top.Post.RetrievalMethod)
		assert.Empty(t, res.Threads[1].Replies)

		flat := source.Flatten(top.Post.ID, "golang", top.Replies, 0)
		require.Len(t, flat, 3)
		byID := map[string]domain.Comment{}
		for _, c := range flat {
			byID[c.ID] = c
		}
		assert.Equal(t, "p2", byID["c1"].ParentID)
		assert.Equal(t, "c1", byID["c2"].ParentID)
		assert.Equal(t, 1, byID["c2"].Depth)
		assert.Equal(t, "gone", byID["c3"].ParentID, "orphan keeps its parent reference")
	})

	tests := []struct {
		name string
		body string
		code int
		want source.ResultKind
	}{
		{name: "missing data", body: `{"error": null}`, code: http.StatusOK, want: source.ResultMalformed},
		{name: "archive error", body: `{"data": null, "error": "subreddit not indexed"}`, code: http.StatusOK, want: source.ResultUnknown},
		{name: "not json", body: `<html></html>`, code: http.StatusOK, want: source.ResultMalformed},
		{name: "rate limited", code: http.StatusTooManyRequests, want: source.ResultRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewAdapter(Config{BaseURL: srv.URL, RequestPeriod: time.Millisecond})
			res := a.FetchCommunity(context.Background(), "golang",
				source.Filters{TimeRange: domain.TimeRangeDay, SortMode: domain.SortHot, Limit: 5})
			assert.Equal(t, tt.want, res.Kind)
		})
	}
}

func TestBuildTreeIgnoresSelfParentAndDuplicates(t *testing.T) {
	roots := buildTree("p1", []archiveComment{
		{ID: "a", ParentID: "t1_a", Body: "self parent"},
		{ID: "b", ParentID: "t3_p1", Body: "root"},
		{ID: "b", ParentID: "t3_p1", Body: "duplicate"},
		{ID: "c", ParentID: "t1_b", Body: "child"},
	})
	require.Len(t, roots, 2)
	assert.Equal(t, "a", roots[0].ID)
	assert.Equal(t, "b", roots[1].ID)
	require.Len(t, roots[1].Replies, 1)
	assert.Equal(t, "c", roots[1].Replies[0].ID)
}

func TestBuildTreeKeepsParentCycles(t *testing.T) {
	tests := []struct {
		name     string
		comments []archiveComment
		wantIDs  []string
	}{
		{
			name: "two node cycle",
			comments: []archiveComment{
				{ID: "c1", ParentID: "t3_p1", Author: "carol", Body: "top level"},
				{ID: "a", ParentID: "t1_b", Author: "alice", Body: "points at b"},
				{ID: "b", ParentID: "t1_a", Author: "bob", Body: "points at a"},
			},
			wantIDs: []string{"c1", "a", "b"},
		},
		{
			name: "three node cycle with a tail",
			comments: []archiveComment{
				{ID: "x", ParentID: "t1_z", Author: "xavier", Body: "first of loop"},
				{ID: "y", ParentID: "t1_x", Author: "yara", Body: "second of loop"},
				{ID: "z", ParentID: "t1_y", Author: "zane", Body: "third of loop"},
				{ID: "tail", ParentID: "t1_y", Author: "tom", Body: "hangs off y"},
			},
			wantIDs: []string{"x", "y", "z", "tail"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roots := buildTree("p1", tt.comments)
			comments := source.Flatten("p1", "golang", roots, source.DefaultMaxDepth)

			ids := make([]string, 0, len(comments))
			for _, c := range comments {
				ids = append(ids, c.ID)
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
			assert.Len(t, ids, len(tt.wantIDs))
		})
	}
}
