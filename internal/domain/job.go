package domain

import (
	"fmt"
	"time"
)

// TimeRange bounds how far back a harvest looks.
type TimeRange string

const (
	TimeRangeDay      TimeRange = "day"
	TimeRangeThreeDay TimeRange = "3days"
	TimeRangeWeek     TimeRange = "week"
	TimeRangeMonth    TimeRange = "month"
)

// Valid reports whether r is a known time range.
func (r TimeRange) Valid() bool {
	switch r {
	case TimeRangeDay, TimeRangeThreeDay, TimeRangeWeek, TimeRangeMonth:
		return true
	}
	return false
}

// Window returns the look-back duration of the range.
func (r TimeRange) Window() time.Duration {
	switch r {
	case TimeRangeDay:
		return 24 * time.Hour
	case TimeRangeThreeDay:
		return 3 * 24 * time.Hour
	case TimeRangeWeek:
		return 7 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// ListingParam maps the range onto the upstream "t" listing parameter.
// The upstream has no three-day bucket, so 3days widens to week.
func (r TimeRange) ListingParam() string {
	switch r {
	case TimeRangeDay:
		return "day"
	case TimeRangeThreeDay, TimeRangeWeek:
		return "week"
	default:
		return "month"
	}
}

// SortMode selects the upstream listing order.
type SortMode string

const (
	SortTop    SortMode = "top"
	SortHot    SortMode = "hot"
	SortRising SortMode = "rising"
)

// Valid reports whether m is a known sort mode.
func (m SortMode) Valid() bool {
	switch m {
	case SortTop, SortHot, SortRising:
		return true
	}
	return false
}

// HarvestJob is the unit of work consumed once by the orchestrator.
type HarvestJob struct {
	Communities       []string  `json:"communities"`
	TimeRange         TimeRange `json:"time_range"`
	SortMode          SortMode  `json:"sort_mode"`
	PostsPerCommunity int       `json:"posts_per_community"`
	FastMode          bool      `json:"fast_mode"`
}

// Validate checks the structural validity of the job.
// Parameters: none.
// Returns:
//   - error: non-nil describing the first invalid field.
func (j *HarvestJob) Validate() error {
	if len(j.Communities) == 0 {
		return fmt.Errorf("communities must not be empty")
	}
	if !j.TimeRange.Valid() {
		return fmt.Errorf("invalid time range %q", j.TimeRange)
	}
	if !j.SortMode.Valid() {
		return fmt.Errorf("invalid sort mode %q", j.SortMode)
	}
	if j.PostsPerCommunity <= 0 {
		return fmt.Errorf("posts per community must be positive, got %d", j.PostsPerCommunity)
	}
	return nil
}

// JobStatus represents the lifecycle state of a harvest job.
// Values include JobStatusPending, JobStatusRunning, JobStatusCompleted, and JobStatusCompletedWithFailures.
type JobStatus string

const (
	JobStatusPending               JobStatus = "pending"
	JobStatusRunning               JobStatus = "running"
	JobStatusCompleted             JobStatus = "completed"
	JobStatusCompletedWithFailures JobStatus = "completed_with_failures"
)

// HarvestRun is the persisted record of one finished harvest job.
type HarvestRun struct {
	ID                   string      `gorm:"type:text;primaryKey" json:"id"`
	UserID               string      `gorm:"type:text;not null;index" json:"user_id"`
	Status               JobStatus   `gorm:"type:text;not null" json:"status"`
	Cancelled            bool        `json:"cancelled"`
	TimeRange            TimeRange   `gorm:"type:text" json:"time_range"`
	SortMode             SortMode    `gorm:"type:text" json:"sort_mode"`
	TotalPosts           int         `json:"total_posts"`
	TotalComments        int         `json:"total_comments"`
	CommunitiesRequested int         `json:"communities_requested"`
	CommunitiesSucceeded int         `json:"communities_succeeded"`
	CommunitiesFailed    int         `json:"communities_failed"`
	AverageEngagement    float64     `json:"average_engagement"`
	MethodTally          MethodTally `gorm:"type:text" json:"method_tally"`
	ElapsedMs            int64       `json:"elapsed_ms"`
	CreatedAt            time.Time   `json:"created_at"`
}

// TableName returns the database table name for HarvestRun.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (HarvestRun) TableName() string {
	return "harvest_runs"
}
