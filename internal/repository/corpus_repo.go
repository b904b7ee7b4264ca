package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/timmy/sentiscope/internal/domain"
)

const insertBatchSize = 200

var doNothing = clause.OnConflict{DoNothing: true}

// PostRow is the persisted form of a harvested post.
type PostRow struct {
	ID              uint                   `gorm:"primaryKey"`
	JobID           string                 `gorm:"type:text;not null;uniqueIndex:idx_post_job_community_id"`
	Community       string                 `gorm:"type:text;not null;uniqueIndex:idx_post_job_community_id"`
	PostID          string                 `gorm:"type:text;not null;uniqueIndex:idx_post_job_community_id"`
	Seq             int                    `gorm:"not null"`
	Author          string                 `gorm:"type:text"`
	Title           string                 `gorm:"type:text"`
	Body            string                 `gorm:"type:text"`
	CreatedAt       time.Time              `gorm:"autoCreateTime:false"`
	Score           int
	CommentCount    int
	Flair           string                 `gorm:"type:text"`
	URL             string                 `gorm:"type:text"`
	RetrievalMethod domain.RetrievalMethod `gorm:"type:text"`
	ScrapedAt       time.Time
}

// TableName returns the database table name for PostRow.
func (PostRow) TableName() string { return "harvest_posts" }

// CommentRow is the persisted form of a harvested comment.
type CommentRow struct {
	ID         uint      `gorm:"primaryKey"`
	JobID      string    `gorm:"type:text;not null;uniqueIndex:idx_comment_job_community_id"`
	Community  string    `gorm:"type:text;not null;uniqueIndex:idx_comment_job_community_id"`
	CommentID  string    `gorm:"type:text;not null;uniqueIndex:idx_comment_job_community_id"`
	Seq        int       `gorm:"not null"`
	PostID     string    `gorm:"type:text;index"`
	ParentID   string    `gorm:"type:text"`
	Author     string    `gorm:"type:text"`
	Body       string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	Score      int
	ReplyCount int
	Depth      int
}

// TableName returns the database table name for CommentRow.
func (CommentRow) TableName() string { return "harvest_comments" }

// CorpusRepository is the SQL sink for harvested corpora and the source of
// run history.
type CorpusRepository struct {
	db *gorm.DB
}

// NewCorpusRepository creates a new CorpusRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CorpusRepository: repository instance bound to db.
func NewCorpusRepository(db *gorm.DB) *CorpusRepository {
	return &CorpusRepository{db: db}
}

// SaveCorpus appends a run with its outcomes and records in one transaction.
// Rows that already exist are left untouched, so saving twice is harmless.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run row keyed by job id.
//   - records: flat corpus in harvest order.
//   - outcomes: per-community outcomes.
// Returns:
//   - error: non-nil if any insert fails.
func (r *CorpusRepository) SaveCorpus(ctx context.Context, run domain.HarvestRun, records []domain.CorpusRecord, outcomes []domain.CommunityOutcome) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	posts, comments := splitRecords(run.ID, records)

	rows := make([]domain.OutcomeRecord, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, domain.OutcomeRecord{
			JobID:        run.ID,
			Community:    o.Community,
			PostCount:    o.PostCount,
			CommentCount: o.CommentCount,
			MethodUsed:   o.MethodUsed,
			ErrorMessage: o.ErrorMessage,
		})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(doNothing).Create(&run).Error; err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.Clauses(doNothing).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
				return fmt.Errorf("failed to save outcomes: %w", err)
			}
		}
		if len(posts) > 0 {
			if err := tx.Clauses(doNothing).CreateInBatches(&posts, insertBatchSize).Error; err != nil {
				return fmt.Errorf("failed to save posts: %w", err)
			}
		}
		if len(comments) > 0 {
			if err := tx.Clauses(doNothing).CreateInBatches(&comments, insertBatchSize).Error; err != nil {
				return fmt.Errorf("failed to save comments: %w", err)
			}
		}
		return nil
	})
}

// ListRuns returns the most recent runs of a user, newest first.
func (r *CorpusRepository) ListRuns(ctx context.Context, userID string, limit int) ([]domain.HarvestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []domain.HarvestRun
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// GetRun returns a run with its outcomes.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owner; runs of other users are reported as not found.
//   - jobID: run id.
// Returns:
//   - *domain.HarvestRun: the run.
//   - []domain.CommunityOutcome: outcomes in community order.
//   - error: ErrRunNotFound or a query error.
func (r *CorpusRepository) GetRun(ctx context.Context, userID, jobID string) (*domain.HarvestRun, []domain.CommunityOutcome, error) {
	var run domain.HarvestRun
	err := r.db.WithContext(ctx).First(&run, "id = ? AND user_id = ?", jobID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrRunNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var rows []domain.OutcomeRecord
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("community").Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	outcomes := make([]domain.CommunityOutcome, 0, len(rows))
	for _, row := range rows {
		outcomes = append(outcomes, domain.CommunityOutcome{
			Community:    row.Community,
			PostCount:    row.PostCount,
			CommentCount: row.CommentCount,
			MethodUsed:   row.MethodUsed,
			ErrorMessage: row.ErrorMessage,
		})
	}
	return &run, outcomes, nil
}

// GetCorpus loads the records of a run in their original harvest order.
func (r *CorpusRepository) GetCorpus(ctx context.Context, jobID string) ([]domain.CorpusRecord, error) {
	var posts []PostRow
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Find(&posts).Error; err != nil {
		return nil, err
	}
	var comments []CommentRow
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Find(&comments).Error; err != nil {
		return nil, err
	}

	type seqRecord struct {
		seq    int
		record domain.CorpusRecord
	}
	all := make([]seqRecord, 0, len(posts)+len(comments))
	for _, p := range posts {
		all = append(all, seqRecord{p.Seq, domain.PostRecord(p.toDomain())})
	}
	for _, c := range comments {
		all = append(all, seqRecord{c.Seq, domain.CommentRecord(c.toDomain())})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	out := make([]domain.CorpusRecord, len(all))
	for i, s := range all {
		out[i] = s.record
	}
	return out, nil
}

func splitRecords(jobID string, records []domain.CorpusRecord) ([]PostRow, []CommentRow) {
	var posts []PostRow
	var comments []CommentRow
	for i, rec := range records {
		switch {
		case rec.Type == domain.RecordTypePost && rec.Post != nil:
			p := rec.Post
			posts = append(posts, PostRow{
				JobID: jobID, Community: p.Community, PostID: p.ID, Seq: i,
				Author: p.Author, Title: p.Title, Body: p.Body, CreatedAt: p.CreatedAt,
				Score: p.Score, CommentCount: p.CommentCount, Flair: p.Flair, URL: p.URL,
				RetrievalMethod: p.RetrievalMethod, ScrapedAt: p.ScrapedAt,
			})
		case rec.Type == domain.RecordTypeComment && rec.Comment != nil:
			c := rec.Comment
			comments = append(comments, CommentRow{
				JobID: jobID, Community: c.Community, CommentID: c.ID, Seq: i,
				PostID: c.PostID, ParentID: c.ParentID, Author: c.Author, Body: c.Body,
				CreatedAt: c.CreatedAt, Score: c.Score, ReplyCount: c.ReplyCount, Depth: c.Depth,
			})
		}
	}
	return posts, comments
}

func (p PostRow) toDomain() domain.Post {
	return domain.Post{
		ID: p.PostID, Community: p.Community, Author: p.Author, Title: p.Title, Body: p.Body,
		CreatedAt: p.CreatedAt, Score: p.Score, CommentCount: p.CommentCount, Flair: p.Flair,
		URL: p.URL, RetrievalMethod: p.RetrievalMethod, ScrapedAt: p.ScrapedAt,
	}
}

func (c CommentRow) toDomain() domain.Comment {
	return domain.Comment{
		ID: c.CommentID, PostID: c.PostID, ParentID: c.ParentID, Community: c.Community,
		Author: c.Author, Body: c.Body, CreatedAt: c.CreatedAt, Score: c.Score,
		ReplyCount: c.ReplyCount, Depth: c.Depth,
	}
}
