package domain

// CommunityOutcome is the per-community result of one harvest attempt.
// EngagementSum and EngagedPosts carry the non-zero score totals so summaries
// can be folded in any order.
type CommunityOutcome struct {
	Community     string          `json:"community"`
	PostCount     int             `json:"post_count"`
	CommentCount  int             `json:"comment_count"`
	MethodUsed    RetrievalMethod `json:"method_used"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	EngagementSum int64           `json:"engagement_sum"`
	EngagedPosts  int             `json:"engaged_posts"`
}

// Succeeded reports whether any adapter delivered data for the community.
func (o CommunityOutcome) Succeeded() bool {
	return o.MethodUsed != "" && o.MethodUsed != MethodFailed
}

// HarvestSummary aggregates all community outcomes of a job.
type HarvestSummary struct {
	TotalPosts           int         `json:"total_posts"`
	TotalComments        int         `json:"total_comments"`
	CommunitiesRequested int         `json:"communities_requested"`
	CommunitiesSucceeded int         `json:"communities_succeeded"`
	CommunitiesFailed    int         `json:"communities_failed"`
	AverageEngagement    float64     `json:"average_engagement"`
	MethodTally          MethodTally `json:"method_tally"`
	ElapsedMs            int64       `json:"elapsed_ms"`
	Cancelled            bool        `json:"cancelled"`

	EngagementSum int64 `json:"-"`
	EngagedPosts  int   `json:"-"`
}

// OutcomeRecord is the persisted form of a CommunityOutcome.
type OutcomeRecord struct {
	ID           uint            `gorm:"primaryKey" json:"-"`
	JobID        string          `gorm:"type:text;not null;uniqueIndex:idx_outcome_job_community" json:"job_id"`
	Community    string          `gorm:"type:text;not null;uniqueIndex:idx_outcome_job_community" json:"community"`
	PostCount    int             `json:"post_count"`
	CommentCount int             `json:"comment_count"`
	MethodUsed   RetrievalMethod `gorm:"type:text" json:"method_used"`
	ErrorMessage string          `gorm:"type:text" json:"error_message,omitempty"`
}

// TableName returns the database table name for OutcomeRecord.
func (OutcomeRecord) TableName() string {
	return "harvest_outcomes"
}
