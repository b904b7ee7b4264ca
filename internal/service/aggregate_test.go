package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/timmy/sentiscope/internal/domain"
)

func sampleOutcomes() []domain.CommunityOutcome {
	return []domain.CommunityOutcome{
		{Community: "a", PostCount: 5, CommentCount: 10, MethodUsed: domain.MethodPrimary, EngagementSum: 100, EngagedPosts: 4},
		{Community: "b", MethodUsed: domain.MethodFailed, ErrorMessage: "gone"},
		{Community: "c", PostCount: 2, CommentCount: 0, MethodUsed: domain.MethodFeed},
		{Community: "d", PostCount: 3, CommentCount: 7, MethodUsed: domain.MethodArchive, EngagementSum: -9, EngagedPosts: 3},
	}
}

func permutations(in []domain.CommunityOutcome) [][]domain.CommunityOutcome {
	if len(in) <= 1 {
		return [][]domain.CommunityOutcome{append([]domain.CommunityOutcome(nil), in...)}
	}
	var out [][]domain.CommunityOutcome
	for i := range in {
		rest := make([]domain.CommunityOutcome, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]domain.CommunityOutcome{in[i]}, p...))
		}
	}
	return out
}

func TestFold_Commutative(t *testing.T) {
	want := Summarize(sampleOutcomes())
	perms := permutations(sampleOutcomes())
	assert.Len(t, perms, 24)
	for _, p := range perms {
		assert.Equal(t, want, Summarize(p))
	}
}

func TestFold_Values(t *testing.T) {
	s := Summarize(sampleOutcomes())
	assert.Equal(t, 10, s.TotalPosts)
	assert.Equal(t, 17, s.TotalComments)
	assert.Equal(t, 4, s.CommunitiesRequested)
	assert.Equal(t, 3, s.CommunitiesSucceeded)
	assert.Equal(t, 1, s.CommunitiesFailed)
	assert.InDelta(t, 13.0, s.AverageEngagement, 0.0001)
	assert.Equal(t, domain.MethodTally{
		domain.MethodPrimary:   1,
		domain.MethodAnonymous: 0,
		domain.MethodFeed:      1,
		domain.MethodArchive:   1,
		domain.MethodFailed:    1,
	}, s.MethodTally)
}

func TestFold_DoesNotMutateInput(t *testing.T) {
	base := NewSummary()
	_ = Fold(base, sampleOutcomes()[0])
	assert.Equal(t, 0, base.MethodTally[domain.MethodPrimary])
	assert.Equal(t, 0, base.TotalPosts)
}

func TestFold_EmptyMethodCountsAsFailed(t *testing.T) {
	s := Fold(NewSummary(), domain.CommunityOutcome{Community: "x"})
	assert.Equal(t, 1, s.CommunitiesFailed)
	assert.Equal(t, 1, s.MethodTally[domain.MethodFailed])
	_, hasEmpty := s.MethodTally[""]
	assert.False(t, hasEmpty)
}

func TestMerge_Associative(t *testing.T) {
	o := sampleOutcomes()
	left := Merge(Summarize(o[:1]), Summarize(o[1:]))
	right := Merge(Summarize(o[:3]), Summarize(o[3:]))
	assert.Equal(t, Summarize(o), left)
	assert.Equal(t, Summarize(o), right)
}

func TestAverageEngagement_NoScores(t *testing.T) {
	s := Summarize([]domain.CommunityOutcome{{Community: "a", PostCount: 3, MethodUsed: domain.MethodFeed}})
	assert.Zero(t, s.AverageEngagement)
}
