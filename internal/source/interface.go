package source

import (
	"context"
	"time"

	"github.com/timmy/sentiscope/internal/domain"
)

// Filters narrows what an adapter retrieves for a community.
type Filters struct {
	TimeRange domain.TimeRange
	SortMode  domain.SortMode
	Limit     int
}

// CommentNode is one node of an upstream reply tree.
// Replies hold pointers so malformed upstream data can describe cycles.
type CommentNode struct {
	ID        string
	ParentID  string
	Author    string
	Body      string
	CreatedAt time.Time
	Score     int
	Replies   []*CommentNode
}

// Thread is a post together with its raw reply tree.
type Thread struct {
	Post    domain.Post
	Replies []*CommentNode
}

// Adapter is a single retrieval strategy for fetching a community.
type Adapter interface {
	// Name returns a short stable identifier used in logs and metrics.
	// Parameters: none.
	// Returns:
	//   - string: adapter identifier.
	Name() string

	// Method returns the retrieval method recorded for data this adapter produced.
	// Parameters: none.
	// Returns:
	//   - domain.RetrievalMethod: method tag for outcomes and posts.
	Method() domain.RetrievalMethod

	// FetchCommunity retrieves posts and reply trees for one community.
	// Implementations never panic or return raw errors; every failure is
	// converted into a FetchResult kind.
	// Parameters:
	//   - ctx: context carrying the per-call deadline.
	//   - community: community name without prefix.
	//   - filters: time range, sort mode and post limit.
	// Returns:
	//   - FetchResult: Ok with threads, or a typed failure.
	FetchCommunity(ctx context.Context, community string, filters Filters) FetchResult
}
