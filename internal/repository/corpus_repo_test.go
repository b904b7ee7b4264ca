package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/sentiscope/internal/config"
	"github.com/timmy/sentiscope/internal/domain"
)

func newTestRepo(t *testing.T) *CorpusRepository {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "test.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewCorpusRepository(db)
}

func sampleCorpus() []domain.CorpusRecord {
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return []domain.CorpusRecord{
		domain.PostRecord(domain.Post{ID: "p1", Community: "golang", Author: "alice", Title: "Generics", Body: "Thoughts on generics", CreatedAt: created, Score: 12, RetrievalMethod: domain.MethodPrimary}),
		domain.CommentRecord(domain.Comment{ID: "c1", PostID: "p1", ParentID: "p1", Community: "golang", Author: "bob", Body: "Love them so far", ReplyCount: 1}),
		domain.CommentRecord(domain.Comment{ID: "c2", PostID: "p1", ParentID: "c1", Community: "golang", Author: "carol", Body: "Same here honestly", Depth: 1}),
		domain.PostRecord(domain.Post{ID: "p2", Community: "rust", Author: "dave", Title: "Undated title only", RetrievalMethod: domain.MethodFeed}),
	}
}

func sampleRun(id, user string, created time.Time) domain.HarvestRun {
	return domain.HarvestRun{
		ID:                   id,
		UserID:               user,
		Status:               domain.JobStatusCompletedWithFailures,
		TimeRange:            domain.TimeRangeWeek,
		SortMode:             domain.SortTop,
		TotalPosts:           2,
		TotalComments:        2,
		CommunitiesRequested: 3,
		CommunitiesSucceeded: 2,
		CommunitiesFailed:    1,
		MethodTally:          domain.MethodTally{domain.MethodPrimary: 1, domain.MethodFeed: 1, domain.MethodFailed: 1},
		CreatedAt:            created,
	}
}

func sampleOutcomes() []domain.CommunityOutcome {
	return []domain.CommunityOutcome{
		{Community: "golang", PostCount: 1, CommentCount: 2, MethodUsed: domain.MethodPrimary},
		{Community: "rust", PostCount: 1, MethodUsed: domain.MethodFeed},
		{Community: "zig", MethodUsed: domain.MethodFailed, ErrorMessage: "all adapters failed"},
	}
}

func TestCorpusRepository_SaveAndLoad(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	run := sampleRun("job-1", "u1", time.Now())

	require.NoError(t, repo.SaveCorpus(ctx, run, sampleCorpus(), sampleOutcomes()))

	t.Run("run with outcomes", func(t *testing.T) {
		got, outcomes, err := repo.GetRun(ctx, "u1", "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompletedWithFailures, got.Status)
		assert.Equal(t, 1, got.MethodTally[domain.MethodFailed])
		require.Len(t, outcomes, 3)
		assert.Equal(t, "zig", outcomes[2].Community)
		assert.Equal(t, "all adapters failed", outcomes[2].ErrorMessage)
	})

	t.Run("corpus keeps order and zero timestamps", func(t *testing.T) {
		records, err := repo.GetCorpus(ctx, "job-1")
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, "p1", records[0].Post.ID)
		assert.Equal(t, "c1", records[1].Comment.ID)
		assert.Equal(t, "c1", records[2].Comment.ParentID)
		assert.Equal(t, 1, records[2].Comment.Depth)
		assert.Equal(t, "p2", records[3].Post.ID)
		assert.True(t, records[3].Post.CreatedAt.IsZero())
		assert.Equal(t, domain.MethodFeed, records[3].Post.RetrievalMethod)
	})

	t.Run("saving twice is append-only", func(t *testing.T) {
		require.NoError(t, repo.SaveCorpus(ctx, run, sampleCorpus(), sampleOutcomes()))
		records, err := repo.GetCorpus(ctx, "job-1")
		require.NoError(t, err)
		assert.Len(t, records, 4)
	})

	t.Run("other user cannot see the run", func(t *testing.T) {
		_, _, err := repo.GetRun(ctx, "u2", "job-1")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}

func TestCorpusRepository_ListRuns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.SaveCorpus(ctx, sampleRun(id, "u1", base.Add(time.Duration(i)*time.Hour)), nil, nil))
	}
	require.NoError(t, repo.SaveCorpus(ctx, sampleRun("other", "u2", base), nil, nil))

	runs, err := repo.ListRuns(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	none, err := repo.ListRuns(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInitDB_UnknownDriver(t *testing.T) {
	_, err := InitDB(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
