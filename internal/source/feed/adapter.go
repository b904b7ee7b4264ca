package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/source"
)

const adapterName = "rss_feed"

// Config configures the feed adapter.
type Config struct {
	BaseURL   string
	UserAgent string
}

// Adapter reads the community syndication feed. Feeds carry no scores and
// no replies, so posts come back with score 0 and empty reply trees.
type Adapter struct {
	client *resty.Client
}

// NewAdapter creates the feed adapter.
func NewAdapter(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.reddit.com"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/atom+xml, application/rss+xml, text/xml")

	return &Adapter{client: client}
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return adapterName }

// Method returns the retrieval method tag.
func (a *Adapter) Method() domain.RetrievalMethod { return domain.MethodFeed }

// FetchCommunity reads /r/{community}/{sort}/.rss and converts its entries.
func (a *Adapter) FetchCommunity(ctx context.Context, community string, filters source.Filters) source.FetchResult {
	sort := string(filters.SortMode)
	if sort == "" {
		sort = string(domain.SortTop)
	}
	params := map[string]string{}
	if filters.Limit > 0 {
		params["limit"] = strconv.Itoa(filters.Limit)
	}
	if filters.SortMode == domain.SortTop {
		params["t"] = filters.TimeRange.ListingParam()
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(fmt.Sprintf("/r/%s/%s/.rss", community, sort))
	if err != nil {
		return source.FromError(ctx, adapterName, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return source.FromStatus(adapterName, resp.StatusCode())
	}

	// gofeed parsers are not safe for concurrent use
	parsed, err := gofeed.NewParser().ParseString(resp.String())
	if err != nil {
		return source.Malformed("%s: %v", adapterName, err)
	}

	scrapedAt := time.Now().UTC()
	threads := make([]source.Thread, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		if filters.Limit > 0 && len(threads) >= filters.Limit {
			break
		}
		threads = append(threads, source.Thread{Post: domain.Post{
			ID:              itemID(item),
			Community:       community,
			Author:          itemAuthor(item),
			Title:           strings.TrimSpace(item.Title),
			Body:            ContentText(itemContent(item)),
			CreatedAt:       itemTime(item),
			URL:             item.Link,
			RetrievalMethod: domain.MethodFeed,
			ScrapedAt:       scrapedAt,
		}})
	}

	return source.OK(threads)
}

func itemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return source.TrimFullname(item.GUID)
	}
	return item.Link
}

func itemAuthor(item *gofeed.Item) string {
	name := ""
	if item.Author != nil {
		name = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		name = item.Authors[0].Name
	}
	return strings.TrimPrefix(strings.TrimSpace(name), "/u/")
}

func itemContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

func itemTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return time.Time{}
}

// ContentText turns the entry HTML into plain text and drops the
// "submitted by ... [link] [comments]" trailer the feed appends.
// Parameters:
//   - html: entry content as served by the feed.
// Returns:
//   - string: whitespace-normalized body text, possibly empty.
func ContentText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	text := doc.Text()
	if idx := strings.LastIndex(text, "submitted by"); idx >= 0 {
		text = text[:idx]
	}
	return strings.Join(strings.Fields(text), " ")
}
