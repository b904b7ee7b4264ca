package redditapi

import (
	"context"
	"fmt"

	"github.com/loganintech/go-reddit/v2/reddit"
	"github.com/timmy/sentiscope/internal/domain"
)

// api is the slice of the reddit client the adapter needs.
type api interface {
	Listing(ctx context.Context, community string, sort domain.SortMode, opts *reddit.ListPostOptions) ([]*reddit.Post, *reddit.Response, error)
	Thread(ctx context.Context, postID string) (*reddit.PostAndComments, *reddit.Response, error)
}

type clientAPI struct {
	client *reddit.Client
}

func (c *clientAPI) Listing(ctx context.Context, community string, sort domain.SortMode, opts *reddit.ListPostOptions) ([]*reddit.Post, *reddit.Response, error) {
	switch sort {
	case domain.SortHot:
		return c.client.Subreddit.HotPosts(ctx, community, &opts.ListOptions)
	case domain.SortRising:
		return c.client.Subreddit.RisingPosts(ctx, community, &opts.ListOptions)
	default:
		return c.client.Subreddit.TopPosts(ctx, community, opts)
	}
}

func (c *clientAPI) Thread(ctx context.Context, postID string) (*reddit.PostAndComments, *reddit.Response, error) {
	return c.client.Post.Get(ctx, postID)
}

// newClientFactory returns a factory building script-app clients from credentials.
func newClientFactory(cfg Config) func() (api, error) {
	return func() (api, error) {
		creds := reddit.Credentials{
			ID:       cfg.ClientID,
			Secret:   cfg.ClientSecret,
			Username: cfg.Username,
			Password: cfg.Password,
		}
		client, err := reddit.NewClient(creds, reddit.WithUserAgent(cfg.UserAgent))
		if err != nil {
			return nil, fmt.Errorf("failed to create reddit client: %w", err)
		}
		return &clientAPI{client: client}, nil
	}
}
