package redditapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"
	"golang.org/x/oauth2"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/logger"
	"github.com/timmy/sentiscope/internal/source"
)

const adapterName = "reddit_api"

// Config holds the credentials and fetch limits of the authenticated adapter.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	// TokenTTL forces a client rebuild once the session is older than this.
	TokenTTL time.Duration
	// CommentPosts is how many leading posts get their reply tree fetched.
	CommentPosts    int
	CommentsPerPost int
	MaxDepth        int
}

// Adapter fetches communities through the authenticated reddit API.
type Adapter struct {
	cfg     Config
	factory func() (api, error)
	now     func() time.Time

	mu      sync.Mutex
	client  api
	builtAt time.Time
}

// NewAdapter creates the authenticated adapter. No network call happens
// until the first fetch.
// Parameters:
//   - cfg: credentials and limits.
// Returns:
//   - *Adapter: adapter ready for use.
func NewAdapter(cfg Config) *Adapter {
	return newAdapter(cfg, newClientFactory(cfg))
}

func newAdapter(cfg Config, factory func() (api, error)) *Adapter {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 50 * time.Minute
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = source.DefaultMaxDepth
	}
	return &Adapter{cfg: cfg, factory: factory, now: time.Now}
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return adapterName }

// Method returns the retrieval method tag.
func (a *Adapter) Method() domain.RetrievalMethod { return domain.MethodPrimary }

// FetchCommunity lists posts for the community and fetches reply trees for
// the first CommentPosts posts. Failures while fetching replies only drop
// the replies of that post.
func (a *Adapter) FetchCommunity(ctx context.Context, community string, filters source.Filters) source.FetchResult {
	opts := &reddit.ListPostOptions{
		ListOptions: reddit.ListOptions{Limit: clampLimit(filters.Limit)},
		Time:        filters.TimeRange.ListingParam(),
	}

	var posts []*reddit.Post
	resp, err := a.withSession(func(c api) (*reddit.Response, error) {
		var (
			r   *reddit.Response
			err error
		)
		posts, r, err = c.Listing(ctx, community, filters.SortMode, opts)
		return r, err
	})
	if err != nil || !statusOK(resp) {
		return classify(ctx, resp, err)
	}

	scrapedAt := a.now().UTC()
	threads := make([]source.Thread, 0, len(posts))
	rateLimited := false
	for i, p := range posts {
		if p == nil {
			continue
		}
		th := source.Thread{Post: convertPost(p, community, scrapedAt)}
		if i < a.cfg.CommentPosts && !rateLimited && ctx.Err() == nil {
			replies, res := a.fetchReplies(ctx, p.ID)
			if res.Kind == source.ResultRateLimited {
				rateLimited = true
			}
			if !res.Ok() {
				logger.With(logger.Fields{
					logger.FieldAdapter: adapterName,
					logger.FieldResult:  res.Kind.String(),
				}).Warn(ctx, "Skipping replies of post %s: %s", p.ID, res.Message)
			}
			th.Replies = replies
		}
		threads = append(threads, th)
	}

	return source.OK(threads)
}

func (a *Adapter) fetchReplies(ctx context.Context, postID string) (nodes []*source.CommentNode, result source.FetchResult) {
	defer func() {
		if r := recover(); r != nil {
			nodes, result = nil, source.Malformed("%s: undecodable thread %s: %v", adapterName, postID, r)
		}
	}()

	var thread *reddit.PostAndComments
	resp, err := a.withSession(func(c api) (*reddit.Response, error) {
		var (
			r   *reddit.Response
			err error
		)
		thread, r, err = c.Thread(ctx, postID)
		return r, err
	})
	if err != nil || !statusOK(resp) {
		return nil, classify(ctx, resp, err)
	}
	if thread == nil {
		return nil, source.OK(nil)
	}

	comments := thread.Comments
	if a.cfg.CommentsPerPost > 0 && len(comments) > a.cfg.CommentsPerPost {
		comments = comments[:a.cfg.CommentsPerPost]
	}
	return convertComments(comments, 0, a.cfg.MaxDepth), source.OK(nil)
}

// withSession runs fn with a live client. An authentication failure
// rebuilds the client and retries exactly once.
func (a *Adapter) withSession(fn func(api) (*reddit.Response, error)) (*reddit.Response, error) {
	for attempt := 0; ; attempt++ {
		client, err := a.session()
		if err != nil {
			return nil, err
		}
		resp, err := fn(client)
		if attempt > 0 || !isAuthFailure(resp, err) {
			return resp, err
		}
		a.invalidate(client)
	}
}

// session returns the cached client, building it when absent or expired.
func (a *Adapter) session() (api, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil && a.now().Sub(a.builtAt) < a.cfg.TokenTTL {
		return a.client, nil
	}
	client, err := a.factory()
	if err != nil {
		return nil, err
	}
	a.client = client
	a.builtAt = a.now()
	return client, nil
}

func (a *Adapter) invalidate(stale api) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == stale {
		a.client = nil
	}
}

func isAuthFailure(resp *reddit.Response, err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return true
	}
	return statusOf(resp, err) == http.StatusUnauthorized
}

func statusOf(resp *reddit.Response, err error) int {
	var rateErr *reddit.RateLimitError
	if errors.As(err, &rateErr) {
		return http.StatusTooManyRequests
	}
	var errResp *reddit.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return retrieveErr.Response.StatusCode
	}
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	return 0
}

func statusOK(resp *reddit.Response) bool {
	return resp == nil || resp.Response == nil || resp.StatusCode < 300
}

func classify(ctx context.Context, resp *reddit.Response, err error) source.FetchResult {
	if status := statusOf(resp, err); status >= 300 {
		return source.FromStatus(adapterName, status)
	}
	if err == nil {
		return source.Unknown("%s: empty response", adapterName)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return source.Malformed("%s: %v", adapterName, err)
	}
	return source.FromError(ctx, adapterName, err)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 25
	case limit > 100:
		return 100
	}
	return limit
}

func convertPost(p *reddit.Post, community string, scrapedAt time.Time) domain.Post {
	post := domain.Post{
		ID:              p.ID,
		Community:       community,
		Author:          p.Author,
		Title:           p.Title,
		Body:            p.Body,
		Score:           p.Score,
		CommentCount:    p.NumberOfComments,
		URL:             p.URL,
		RetrievalMethod: domain.MethodPrimary,
		ScrapedAt:       scrapedAt,
	}
	if p.Created != nil {
		post.CreatedAt = p.Created.Time.UTC()
	}
	return post
}

func convertComments(comments []*reddit.Comment, depth, maxDepth int) []*source.CommentNode {
	if depth >= maxDepth || len(comments) == 0 {
		return nil
	}
	nodes := make([]*source.CommentNode, 0, len(comments))
	for _, c := range comments {
		if c == nil {
			continue
		}
		n := &source.CommentNode{
			ID:       c.ID,
			ParentID: source.TrimFullname(c.ParentID),
			Author:   c.Author,
			Body:     c.Body,
			Score:    c.Score,
			Replies:  convertComments(c.Replies.Comments, depth+1, maxDepth),
		}
		if c.Created != nil {
			n.CreatedAt = c.Created.Time.UTC()
		}
		nodes = append(nodes, n)
	}
	return nodes
}

