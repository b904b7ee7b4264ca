package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/source"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>top scoring links : golang</title>
  <entry>
    <author><name>/u/alice</name></author>
    <content type="html">&lt;div class=&quot;md&quot;&gt;&lt;p&gt;How do I constrain a &lt;code&gt;type set&lt;/code&gt;?&lt;/p&gt;&lt;/div&gt; &amp;#32; submitted by &amp;#32; &lt;a href=&quot;https://www.reddit.com/user/alice&quot;&gt; /u/alice &lt;/a&gt; &lt;br/&gt; &lt;span&gt;&lt;a href=&quot;https://example.com&quot;&gt;[link]&lt;/a&gt;&lt;/span&gt;</content>
    <id>t3_p1</id>
    <link href="https://www.reddit.com/r/golang/comments/p1/generics/" />
    <updated>2023-11-14T22:13:20+00:00</updated>
    <published>2023-11-14T22:13:20+00:00</published>
    <title>Generics question</title>
  </entry>
  <entry>
    <author><name>/u/bob</name></author>
    <content type="html">&lt;span&gt;submitted by /u/bob&lt;/span&gt;</content>
    <id>t3_p2</id>
    <link href="https://www.reddit.com/r/golang/comments/p2/show/" />
    <updated>2023-11-15T10:00:00+00:00</updated>
    <title>Link only post</title>
  </entry>
</feed>`

func TestFetchCommunity(t *testing.T) {
	t.Run("parses atom entries", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/r/golang/top/.rss", r.URL.Path)
			assert.Equal(t, "month", r.URL.Query().Get("t"))
			w.Header().Set("Content-Type", "application/atom+xml")
			_, _ = w.Write([]byte(atomFeed))
		}))
		defer srv.Close()

		a := NewAdapter(Config{BaseURL: srv.URL, UserAgent: "test"})
		res := a.FetchCommunity(context.Background(), "golang",
			source.Filters{TimeRange: domain.TimeRangeMonth, SortMode: domain.SortTop, Limit: 10})
		require.True(t, res.Ok(), res.Message)
		require.Len(t, res.Threads, 2)

		p := res.Threads[0].Post
		assert.Equal(t, "p1", p.ID)
		assert.Equal(t, "alice", p.Author)
		assert.Equal(t, "Generics question", p.Title)
		assert.Equal(t, "How do I constrain a type set?", p.Body)
		assert.Equal(t, 0, p.Score)
		assert.Equal(t, domain.MethodFeed, p.RetrievalMethod)
		assert.Equal(t, 2023, p.CreatedAt.Year())
		assert.Empty(t, res.Threads[0].Replies)

		p2 := res.Threads[1].Post
		assert.Equal(t, "", p2.Body)
		assert.False(t, p2.CreatedAt.IsZero(), "falls back to updated")
	})

	t.Run("limit caps entries", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(atomFeed))
		}))
		defer srv.Close()

		res := NewAdapter(Config{BaseURL: srv.URL}).FetchCommunity(context.Background(), "golang",
			source.Filters{TimeRange: domain.TimeRangeWeek, SortMode: domain.SortHot, Limit: 1})
		require.True(t, res.Ok())
		assert.Len(t, res.Threads, 1)
	})

	t.Run("garbage is malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("definitely not a feed"))
		}))
		defer srv.Close()

		res := NewAdapter(Config{BaseURL: srv.URL}).FetchCommunity(context.Background(), "golang",
			source.Filters{TimeRange: domain.TimeRangeWeek, SortMode: domain.SortTop})
		assert.Equal(t, source.ResultMalformed, res.Kind)
	})

	t.Run("not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		res := NewAdapter(Config{BaseURL: srv.URL}).FetchCommunity(context.Background(), "nope",
			source.Filters{TimeRange: domain.TimeRangeWeek, SortMode: domain.SortTop})
		assert.Equal(t, source.ResultNotFound, res.Kind)
	})
}

func TestContentText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain paragraph", "<p>hello   world</p>", "hello world"},
		{"strips trailer", "<p>body text</p> submitted by <a>/u/x</a> [link] [comments]", "body text"},
		{"only trailer", "submitted by /u/x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContentText(tt.in))
		})
	}
}
