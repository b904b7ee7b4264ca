package domain

import "time"

// Post is a single submission harvested from a community.
type Post struct {
	ID              string          `json:"id"`
	Community       string          `json:"community"`
	Author          string          `json:"author"`
	Title           string          `json:"title"`
	Body            string          `json:"body"`
	CreatedAt       time.Time       `json:"created_at"`
	Score           int             `json:"score"`
	CommentCount    int             `json:"comment_count"`
	Flair           string          `json:"flair,omitempty"`
	URL             string          `json:"url,omitempty"`
	RetrievalMethod RetrievalMethod `json:"retrieval_method"`
	ScrapedAt       time.Time       `json:"scraped_at"`
}

// HasValidTimestamp reports whether CreatedAt can take part in time-window filtering.
func (p *Post) HasValidTimestamp() bool {
	return !p.CreatedAt.IsZero() && p.CreatedAt.Unix() > 0
}

// Comment is a reply to a post or to another comment.
// PostID and ParentID are weak references; the parent may be absent from the corpus.
type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	ParentID   string    `json:"parent_id"`
	Community  string    `json:"community"`
	Author     string    `json:"author"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	Score      int       `json:"score"`
	ReplyCount int       `json:"reply_count"`
	Depth      int       `json:"depth"`
}

// RecordType discriminates the entries of a corpus.
type RecordType string

const (
	RecordTypePost    RecordType = "post"
	RecordTypeComment RecordType = "comment"
)

// CorpusRecord is one tagged entry of a harvested corpus.
// Exactly one of Post or Comment is set, matching Type.
type CorpusRecord struct {
	Type    RecordType `json:"type"`
	Post    *Post      `json:"post,omitempty"`
	Comment *Comment   `json:"comment,omitempty"`
}

// Community returns the community the record was harvested from.
func (r CorpusRecord) Community() string {
	switch r.Type {
	case RecordTypePost:
		return r.Post.Community
	case RecordTypeComment:
		return r.Comment.Community
	}
	return ""
}

// Key returns the corpus-unique identity of the record.
func (r CorpusRecord) Key() string {
	switch r.Type {
	case RecordTypePost:
		return "p:" + r.Post.Community + ":" + r.Post.ID
	case RecordTypeComment:
		return "c:" + r.Comment.Community + ":" + r.Comment.ID
	}
	return ""
}

// PostRecord wraps a post into a corpus record.
func PostRecord(p Post) CorpusRecord {
	return CorpusRecord{Type: RecordTypePost, Post: &p}
}

// CommentRecord wraps a comment into a corpus record.
func CommentRecord(c Comment) CorpusRecord {
	return CorpusRecord{Type: RecordTypeComment, Comment: &c}
}
