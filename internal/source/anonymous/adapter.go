package anonymous

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/logger"
	"github.com/timmy/sentiscope/internal/source"
)

const adapterName = "anonymous_json"

// Config configures the anonymous listing adapter.
type Config struct {
	BaseURL         string
	UserAgent       string
	RequestPeriod   time.Duration
	CommentPosts    int
	CommentsPerPost int
	MaxDepth        int
}

// Adapter reads the public JSON listings without credentials.
type Adapter struct {
	cfg     Config
	client  *resty.Client
	limiter *rate.Limiter
}

// NewAdapter creates the anonymous adapter.
// Parameters:
//   - cfg: base URL, user agent, pacing and reply limits.
// Returns:
//   - *Adapter: adapter ready for use.
func NewAdapter(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.reddit.com"
	}
	if cfg.RequestPeriod <= 0 {
		cfg.RequestPeriod = time.Second
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = source.DefaultMaxDepth
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	return &Adapter{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(cfg.RequestPeriod), 1),
	}
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return adapterName }

// Method returns the retrieval method tag.
func (a *Adapter) Method() domain.RetrievalMethod { return domain.MethodAnonymous }

// FetchCommunity reads /r/{community}/{sort}.json and the reply trees of the
// leading posts.
func (a *Adapter) FetchCommunity(ctx context.Context, community string, filters source.Filters) source.FetchResult {
	sort := string(filters.SortMode)
	if sort == "" {
		sort = string(domain.SortTop)
	}
	params := map[string]string{
		"limit":    strconv.Itoa(clampLimit(filters.Limit)),
		"raw_json": "1",
	}
	if filters.SortMode == domain.SortTop {
		params["t"] = filters.TimeRange.ListingParam()
	}

	body, res := a.get(ctx, fmt.Sprintf("/r/%s/%s.json", community, sort), params)
	if !res.Ok() {
		return res
	}

	l, err := decodeListing(body)
	if err != nil {
		return source.Malformed("%s: %v", adapterName, err)
	}

	scrapedAt := time.Now().UTC()
	threads := make([]source.Thread, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		if c.Kind != "t3" {
			continue
		}
		var d postData
		if err := json.Unmarshal(c.Data, &d); err != nil {
			return source.Malformed("%s: post: %v", adapterName, err)
		}
		threads = append(threads, source.Thread{Post: domain.Post{
			ID:              d.ID,
			Community:       community,
			Author:          d.Author,
			Title:           d.Title,
			Body:            d.Selftext,
			CreatedAt:       source.UnixTime(d.CreatedUTC),
			Score:           d.Score,
			CommentCount:    d.NumComments,
			Flair:           d.LinkFlairText,
			URL:             d.URL,
			RetrievalMethod: domain.MethodAnonymous,
			ScrapedAt:       scrapedAt,
		}})
	}

	for i := range threads {
		if i >= a.cfg.CommentPosts || ctx.Err() != nil {
			break
		}
		replies, res := a.fetchReplies(ctx, threads[i].Post.ID)
		if !res.Ok() {
			logger.With(logger.Fields{
				logger.FieldAdapter: adapterName,
				logger.FieldResult:  res.Kind.String(),
			}).Warn(ctx, "Skipping replies of post %s: %s", threads[i].Post.ID, res.Message)
			if res.Kind == source.ResultRateLimited {
				break
			}
			continue
		}
		threads[i].Replies = replies
	}

	return source.OK(threads)
}

func (a *Adapter) fetchReplies(ctx context.Context, postID string) ([]*source.CommentNode, source.FetchResult) {
	params := map[string]string{
		"depth":    strconv.Itoa(a.cfg.MaxDepth),
		"raw_json": "1",
	}
	if a.cfg.CommentsPerPost > 0 {
		params["limit"] = strconv.Itoa(a.cfg.CommentsPerPost)
	}

	body, res := a.get(ctx, fmt.Sprintf("/comments/%s.json", postID), params)
	if !res.Ok() {
		return nil, res
	}
	l, err := decodeThread(body)
	if err != nil {
		return nil, source.Malformed("%s: thread %s: %v", adapterName, postID, err)
	}
	return convertReplies(l, 0, a.cfg.MaxDepth), source.OK(nil)
}

// get performs one paced GET and maps transport failures and non-2xx
// statuses into failure results.
func (a *Adapter) get(ctx context.Context, path string, params map[string]string) ([]byte, source.FetchResult) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, source.FromError(ctx, adapterName, err)
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return nil, source.FromError(ctx, adapterName, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, source.FromStatus(adapterName, resp.StatusCode())
	}
	// unknown communities redirect to the search page
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && strings.Contains(raw.Request.URL.Path, "/subreddits/search") {
		return nil, source.NotFound("%s: community redirected to search", adapterName)
	}
	return resp.Body(), source.OK(nil)
}

func convertReplies(l *listing, depth, maxDepth int) []*source.CommentNode {
	if l == nil || depth >= maxDepth {
		return nil
	}
	nodes := make([]*source.CommentNode, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		if c.Kind != "t1" {
			continue
		}
		var d commentData
		if err := json.Unmarshal(c.Data, &d); err != nil {
			continue
		}
		nodes = append(nodes, &source.CommentNode{
			ID:        d.ID,
			ParentID:  source.TrimFullname(d.ParentID),
			Author:    d.Author,
			Body:      d.Body,
			CreatedAt: source.UnixTime(d.CreatedUTC),
			Score:     d.Score,
			Replies:   convertReplies(d.Replies.Listing, depth+1, maxDepth),
		})
	}
	return nodes
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
