package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, body string, replies ...*CommentNode) *CommentNode {
	return &CommentNode{ID: id, Author: "user_" + id, Body: body, Replies: replies}
}

func ids(t *testing.T, got []string, want ...string) {
	t.Helper()
	assert.Equal(t, want, got)
}

func TestFlatten(t *testing.T) {
	t.Run("preorder with parents and depths", func(t *testing.T) {
		roots := []*CommentNode{
			node("a", "first top level",
				node("b", "reply to a",
					node("c", "reply to b")),
			),
			node("d", "second top level"),
		}

		out := Flatten("p1", "golang", roots, 0)
		require.Len(t, out, 4)

		var gotIDs []string
		for _, c := range out {
			gotIDs = append(gotIDs, c.ID)
			assert.Equal(t, "p1", c.PostID)
			assert.Equal(t, "golang", c.Community)
		}
		ids(t, gotIDs, "a", "b", "c", "d")

		assert.Equal(t, "p1", out[0].ParentID)
		assert.Equal(t, "a", out[1].ParentID)
		assert.Equal(t, "b", out[2].ParentID)
		assert.Equal(t, 0, out[0].Depth)
		assert.Equal(t, 2, out[2].Depth)
		assert.Equal(t, 1, out[0].ReplyCount)
		assert.Equal(t, 0, out[3].ReplyCount)
	})

	t.Run("deleted nodes excluded but replies kept", func(t *testing.T) {
		roots := []*CommentNode{
			node("a", "[deleted]", node("b", "still here")),
			node("c", "[removed]"),
			{ID: "d", Author: "[deleted]", Body: "ghost"},
			node("e", "   "),
		}

		out := Flatten("p1", "golang", roots, 0)
		require.Len(t, out, 1)
		assert.Equal(t, "b", out[0].ID)
		assert.Equal(t, "a", out[0].ParentID)
	})

	t.Run("depth cap truncates only the deep branch", func(t *testing.T) {
		deep := node("n11", "level 11")
		for i := 10; i >= 1; i-- {
			deep = node("n"+string(rune('a'+i)), "level", deep)
		}
		roots := []*CommentNode{deep, node("side", "sibling")}

		out := Flatten("p1", "golang", roots, 10)
		assert.Len(t, out, 11)
		for _, c := range out {
			assert.Less(t, c.Depth, 10)
		}
		assert.Equal(t, "side", out[len(out)-1].ID)
	})

	t.Run("cycle terminates", func(t *testing.T) {
		a := node("a", "alpha")
		b := node("b", "beta")
		c := node("c", "gamma")
		a.Replies = []*CommentNode{b}
		b.Replies = []*CommentNode{c}
		c.Replies = []*CommentNode{a}

		out := Flatten("p1", "golang", []*CommentNode{a}, 0)
		require.Len(t, out, 3)
	})

	t.Run("duplicate ids emitted once", func(t *testing.T) {
		roots := []*CommentNode{
			node("a", "alpha", node("x", "dup")),
			node("b", "beta", node("x", "dup again")),
		}

		out := Flatten("p1", "golang", roots, 0)
		var gotIDs []string
		for _, c := range out {
			gotIDs = append(gotIDs, c.ID)
		}
		ids(t, gotIDs, "a", "x", "b")
	})

	t.Run("nil nodes skipped", func(t *testing.T) {
		roots := []*CommentNode{nil, node("a", "alpha", nil)}
		out := Flatten("p1", "golang", roots, 0)
		require.Len(t, out, 1)
		assert.Equal(t, 0, out[0].ReplyCount)
	})

	t.Run("idempotent", func(t *testing.T) {
		roots := []*CommentNode{node("a", "alpha", node("b", "beta")), node("c", "gamma")}
		first := Flatten("p1", "golang", roots, 0)
		second := Flatten("p1", "golang", roots, 0)
		assert.Equal(t, first, second)
	})
}

func TestTrimFullname(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"t1_abc", "abc"},
		{"t3_xyz", "xyz"},
		{"abc", "abc"},
		{"tx_abc", "tx_abc"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, TrimFullname(tt.in))
		})
	}
}
