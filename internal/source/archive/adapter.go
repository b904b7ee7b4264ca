package archive

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/logger"
	"github.com/timmy/sentiscope/internal/source"
)

const adapterName = "archive_mirror"

// searchResponse is the envelope of every archive search endpoint.
type searchResponse[T any] struct {
	Data  *[]T            `json:"data"`
	Error json.RawMessage `json:"error"`
}

type archivePost struct {
	ID            string  `json:"id"`
	Subreddit     string  `json:"subreddit"`
	Author        string  `json:"author"`
	Title         string  `json:"title"`
	Selftext      string  `json:"selftext"`
	URL           string  `json:"url"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	CreatedUTC    float64 `json:"created_utc"`
	LinkFlairText string  `json:"link_flair_text"`
}

type archiveComment struct {
	ID         string  `json:"id"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	LinkID     string  `json:"link_id"`
	ParentID   string  `json:"parent_id"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}

// Config configures the archive adapter.
type Config struct {
	BaseURL         string
	RequestPeriod   time.Duration
	CommentPosts    int
	CommentsPerPost int
}

// Adapter reads posts and comments from the archive mirror search API.
type Adapter struct {
	cfg     Config
	client  *resty.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewAdapter creates the archive adapter.
// Parameters:
//   - cfg: mirror base URL, pacing and reply limits.
// Returns:
//   - *Adapter: adapter ready for use.
func NewAdapter(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://arctic-shift.photon-reddit.com"
	}
	if cfg.RequestPeriod <= 0 {
		cfg.RequestPeriod = 500 * time.Millisecond
	}
	return &Adapter{
		cfg:     cfg,
		client:  resty.New().SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		limiter: rate.NewLimiter(rate.Every(cfg.RequestPeriod), 1),
		now:     time.Now,
	}
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return adapterName }

// Method returns the retrieval method tag.
func (a *Adapter) Method() domain.RetrievalMethod { return domain.MethodArchive }

// FetchCommunity searches archived posts inside the time window. The archive
// has no ranking, so "top" is approximated by ordering the window by score.
func (a *Adapter) FetchCommunity(ctx context.Context, community string, filters source.Filters) source.FetchResult {
	limit := filters.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	after := a.now().Add(-filters.TimeRange.Window()).Unix()

	posts, res := search[archivePost](ctx, a, "/api/posts/search", map[string]string{
		"subreddit": community,
		"after":     strconv.FormatInt(after, 10),
		"limit":     strconv.Itoa(limit),
		"sort":      "desc",
	})
	if !res.Ok() {
		return res
	}

	if filters.SortMode == domain.SortTop {
		sort.SliceStable(posts, func(i, j int) bool { return posts[i].Score > posts[j].Score })
	}

	scrapedAt := a.now().UTC()
	threads := make([]source.Thread, 0, len(posts))
	for _, p := range posts {
		threads = append(threads, source.Thread{Post: domain.Post{
			ID:              p.ID,
			Community:       community,
			Author:          p.Author,
			Title:           p.Title,
			Body:            p.Selftext,
			CreatedAt:       source.UnixTime(p.CreatedUTC),
			Score:           p.Score,
			CommentCount:    p.NumComments,
			Flair:           p.LinkFlairText,
			URL:             p.URL,
			RetrievalMethod: domain.MethodArchive,
			ScrapedAt:       scrapedAt,
		}})
	}

	for i := range threads {
		if i >= a.cfg.CommentPosts || ctx.Err() != nil {
			break
		}
		params := map[string]string{"link_id": threads[i].Post.ID}
		if a.cfg.CommentsPerPost > 0 {
			params["limit"] = strconv.Itoa(a.cfg.CommentsPerPost)
		}
		comments, res := search[archiveComment](ctx, a, "/api/comments/search", params)
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
		threads[i].Replies = buildTree(threads[i].Post.ID, comments)
	}

	return source.OK(threads)
}

func search[T any](ctx context.Context, a *Adapter, path string, params map[string]string) ([]T, source.FetchResult) {
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

	var envelope searchResponse[T]
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, source.Malformed("%s: %v", adapterName, err)
	}
	if msg := strings.TrimSpace(string(envelope.Error)); msg != "" && msg != "null" {
		return nil, source.Unknown("%s: archive error %s", adapterName, msg)
	}
	if envelope.Data == nil {
		return nil, source.Malformed("%s: response has no data field", adapterName)
	}
	return *envelope.Data, source.OK(nil)
}

// buildTree links flat archive comments into reply trees by parent id.
// Comments whose parent is the post, or is missing from the batch, become
// roots and keep their original parent id.
// Parameters:
//   - postID: owning post id without type prefix.
//   - comments: flat comments in archive order.
// Returns:
//   - []*source.CommentNode: root nodes in archive order.
func buildTree(postID string, comments []archiveComment) []*source.CommentNode {
	nodes := make(map[string]*source.CommentNode, len(comments))
	ordered := make([]*source.CommentNode, 0, len(comments))
	for _, c := range comments {
		if _, dup := nodes[c.ID]; dup {
			continue
		}
		n := &source.CommentNode{
			ID:        c.ID,
			ParentID:  source.TrimFullname(c.ParentID),
			Author:    c.Author,
			Body:      c.Body,
			CreatedAt: source.UnixTime(c.CreatedUTC),
			Score:     c.Score,
		}
		nodes[c.ID] = n
		ordered = append(ordered, n)
	}

	roots := make([]*source.CommentNode, 0, len(ordered))
	for _, n := range ordered {
		parent, ok := nodes[n.ParentID]
		if n.ParentID == "" || n.ParentID == postID || !ok || parent == n {
			roots = append(roots, n)
			continue
		}
		parent.Replies = append(parent.Replies, n)
	}

	// Nodes whose parent chain loops never hang off a root. Promote the
	// first unreached member of each loop and cut the edge that closes it.
	reached := make(map[*source.CommentNode]struct{}, len(ordered))
	for _, r := range roots {
		markReached(r, reached)
	}
	for _, n := range ordered {
		if _, ok := reached[n]; ok {
			continue
		}
		if parent := nodes[n.ParentID]; parent != nil {
			parent.Replies = removeNode(parent.Replies, n)
		}
		roots = append(roots, n)
		markReached(n, reached)
	}
	return roots
}

func markReached(root *source.CommentNode, reached map[*source.CommentNode]struct{}) {
	stack := []*source.CommentNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := reached[n]; ok {
			continue
		}
		reached[n] = struct{}{}
		stack = append(stack, n.Replies...)
	}
}

func removeNode(list []*source.CommentNode, target *source.CommentNode) []*source.CommentNode {
	out := list[:0]
	for _, n := range list {
		if n != target {
			out = append(out, n)
		}
	}
	return out
}
