package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/source"
)

func TestKeepComment(t *testing.T) {
	f := New(Config{BotAccounts: []string{"AutoModerator", "RemindMe"}})

	tests := []struct {
		name    string
		comment domain.Comment
		want    bool
	}{
		{"regular comment", domain.Comment{Author: "alice", Body: "great point, thanks"}, true},
		{"deleted body", domain.Comment{Author: "alice", Body: "[deleted]"}, false},
		{"removed body", domain.Comment{Author: "alice", Body: "[removed]"}, false},
		{"deleted author", domain.Comment{Author: "[deleted]", Body: "some real looking text"}, false},
		{"bot naming convention", domain.Comment{Author: "Sentiment_Bot", Body: "analysis of this thread follows"}, false},
		{"known automation account", domain.Comment{Author: "RemindMe", Body: "I will be messaging you in 2 days"}, false},
		{"automoderator", domain.Comment{Author: "automoderator", Body: "Welcome to the community everyone"}, false},
		{"boilerplate notice", domain.Comment{Author: "helper", Body: "Thanks! *This action was performed automatically.*"}, false},
		{"self declared bot", domain.Comment{Author: "helper", Body: "Beep boop, I am a bot and here is a summary"}, false},
		{"too short", domain.Comment{Author: "alice", Body: "lol same"}, false},
		{"exactly minimum", domain.Comment{Author: "alice", Body: "0123456789"}, true},
		{"link only", domain.Comment{Author: "alice", Body: "https://example.com/a/very/long/path/that/is/long"}, false},
		{"links only", domain.Comment{Author: "alice", Body: "https://a.example.com www.b.example.com"}, false},
		{"text with link", domain.Comment{Author: "alice", Body: "see the docs https://go.dev/doc"}, true},
		{"short text with link", domain.Comment{Author: "alice", Body: "see https://go.dev"}, true},
		{"empty", domain.Comment{Author: "alice", Body: "   "}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.KeepComment(tt.comment))
			assert.Equal(t, tt.want, f.Keep(domain.CommentRecord(tt.comment)))
		})
	}
}

func TestKeepPost(t *testing.T) {
	f := New(Config{})

	tests := []struct {
		name string
		post domain.Post
		want bool
	}{
		{"title and body", domain.Post{Author: "alice", Title: "Question", Body: "How do generics work here?"}, true},
		{"title only", domain.Post{Author: "alice", Title: "Is anyone else exhausted today"}, true},
		{"short title only", domain.Post{Author: "alice", Title: "Help"}, true},
		{"empty title and body", domain.Post{Author: "alice"}, false},
		{"title is just a link", domain.Post{Author: "alice", Title: "https://example.com"}, false},
		{"link only body", domain.Post{Author: "alice", Title: "Look", Body: "https://example.com/image.png"}, false},
		{"short body", domain.Post{Author: "alice", Title: "Look at this", Body: "wow"}, false},
		{"removed body", domain.Post{Author: "alice", Title: "Something", Body: "[removed]"}, false},
		{"bot author", domain.Post{Author: "WeeklyThreadBot", Title: "Weekly thread", Body: "Post your questions below please"}, false},
		{"deleted author keeps content", domain.Post{Author: "[deleted]", Title: "Remote work", Body: "I have been working remotely for three years now"}, true},
		{"removed author keeps title only", domain.Post{Author: "[removed]", Title: "Anyone else burnt out"}, true},
		{"deleted author and body", domain.Post{Author: "[deleted]", Title: "Gone", Body: "[deleted]"}, false},
		{"boilerplate title", domain.Post{Author: "mod", Title: "Your post has been removed"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.KeepPost(tt.post))
			assert.Equal(t, tt.want, f.Keep(domain.PostRecord(tt.post)))
		})
	}
}

func TestFlattenThenFilter(t *testing.T) {
	f := New(Config{})
	roots := []*source.CommentNode{
		{ID: "a", Author: "alice", Body: "[deleted]"},
		{ID: "b", Author: "bob", Body: "great point, thanks"},
	}

	var kept []domain.Comment
	for _, c := range source.Flatten("p1", "golang", roots, 0) {
		if f.KeepComment(c) {
			kept = append(kept, c)
		}
	}

	if assert.Len(t, kept, 1) {
		assert.Equal(t, "great point, thanks", kept[0].Body)
	}
}

func TestKeepIsDeterministic(t *testing.T) {
	f := New(Config{})
	inputs := []domain.CorpusRecord{
		domain.CommentRecord(domain.Comment{Author: "alice", Body: "deterministic enough body"}),
		domain.CommentRecord(domain.Comment{Author: "bot", Body: "x"}),
		domain.PostRecord(domain.Post{Author: "bob", Title: "t", Body: "https://example.com"}),
		{Type: "unknown"},
	}
	for _, in := range inputs {
		first := f.Keep(in)
		for i := 0; i < 20; i++ {
			assert.Equal(t, first, f.Keep(in))
		}
	}
}

func TestSubstituteLinks(t *testing.T) {
	assert.Equal(t, "see [link] and [link]", SubstituteLinks("see https://go.dev and www.example.com"))
}
