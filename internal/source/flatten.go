package source

import (
	"strings"
	"time"

	"github.com/timmy/sentiscope/internal/domain"
)

// DefaultMaxDepth bounds how deep the flattener walks a reply tree.
const DefaultMaxDepth = 10

type frame struct {
	node     *CommentNode
	parentID string
	depth    int
}

// Flatten walks a reply tree depth-first and emits a flat comment list.
// Deleted or removed nodes are not emitted but their replies still are.
// Branches beyond maxDepth and nodes already visited are skipped without
// aborting the rest of the traversal.
// Parameters:
//   - postID: id of the owning post, used as parent for top-level replies.
//   - community: community tag for emitted comments.
//   - roots: top-level reply nodes in upstream order.
//   - maxDepth: depth cap; values <= 0 use DefaultMaxDepth.
// Returns:
//   - []domain.Comment: comments in pre-order.
func Flatten(postID, community string, roots []*CommentNode, maxDepth int) []domain.Comment {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	out := make([]domain.Comment, 0, len(roots))
	seenNodes := make(map[*CommentNode]struct{})
	seenIDs := make(map[string]struct{})

	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: roots[i], parentID: postID, depth: 0})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := f.node
		if n == nil || f.depth >= maxDepth {
			continue
		}
		if _, ok := seenNodes[n]; ok {
			continue
		}
		seenNodes[n] = struct{}{}
		if n.ID != "" {
			if _, ok := seenIDs[n.ID]; ok {
				continue
			}
			seenIDs[n.ID] = struct{}{}
		}

		replies := 0
		for _, r := range n.Replies {
			if r != nil {
				replies++
			}
		}

		if !IsDeleted(n.Author, n.Body) {
			parentID := n.ParentID
			if parentID == "" {
				parentID = f.parentID
			}
			out = append(out, domain.Comment{
				ID:         n.ID,
				PostID:     postID,
				ParentID:   parentID,
				Community:  community,
				Author:     n.Author,
				Body:       n.Body,
				CreatedAt:  n.CreatedAt,
				Score:      n.Score,
				ReplyCount: replies,
				Depth:      f.depth,
			})
		}

		for i := len(n.Replies) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: n.Replies[i], parentID: n.ID, depth: f.depth + 1})
		}
	}

	return out
}

// IsDeleted reports whether a node was deleted or removed upstream.
func IsDeleted(author, body string) bool {
	b := strings.TrimSpace(body)
	if b == "" || b == "[deleted]" || b == "[removed]" {
		return true
	}
	a := strings.TrimSpace(author)
	return a == "[deleted]" || a == "[removed]"
}

// TrimFullname strips the upstream type prefix ("t1_", "t3_") from an id.
func TrimFullname(id string) string {
	if len(id) > 3 && id[0] == 't' && id[2] == '_' && id[1] >= '0' && id[1] <= '9' {
		return id[3:]
	}
	return id
}

// UnixTime converts upstream epoch seconds; non-positive values stay zero.
func UnixTime(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0).UTC()
}
