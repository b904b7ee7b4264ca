package anonymous

import (
	"encoding/json"
	"errors"
)

// listing is the envelope of every public listing response.
type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []child `json:"children"`
	} `json:"data"`
}

type child struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type postData struct {
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

type commentData struct {
	ID         string  `json:"id"`
	ParentID   string  `json:"parent_id"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Replies    replies `json:"replies"`
}

// replies is either a nested listing or the empty string.
type replies struct {
	Listing *listing
}

func (r *replies) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == `""` || s == "null" {
		r.Listing = nil
		return nil
	}
	var l listing
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	r.Listing = &l
	return nil
}

var errNotListing = errors.New("response is not a listing")

func decodeListing(body []byte) (*listing, error) {
	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, err
	}
	if l.Kind != "Listing" {
		return nil, errNotListing
	}
	return &l, nil
}

// decodeThread decodes the [post listing, comment listing] pair.
func decodeThread(body []byte) (*listing, error) {
	var pair []listing
	if err := json.Unmarshal(body, &pair); err != nil {
		return nil, err
	}
	if len(pair) < 2 || pair[1].Kind != "Listing" {
		return nil, errNotListing
	}
	return &pair[1], nil
}
