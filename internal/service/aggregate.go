package service

import "github.com/timmy/sentiscope/internal/domain"

// NewSummary returns the identity element of Fold, with every method
// present in the tally.
func NewSummary() domain.HarvestSummary {
	tally := make(domain.MethodTally, len(domain.AllMethods))
	for _, m := range domain.AllMethods {
		tally[m] = 0
	}
	return domain.HarvestSummary{MethodTally: tally}
}

// Fold adds one community outcome to a summary. The operation is
// commutative and associative: every field is a sum, and the average
// engagement is recomputed from the summed totals.
// Parameters:
//   - s: running summary; it is not modified.
//   - o: outcome to add.
// Returns:
//   - domain.HarvestSummary: the combined summary.
func Fold(s domain.HarvestSummary, o domain.CommunityOutcome) domain.HarvestSummary {
	out := s
	out.MethodTally = s.MethodTally.Clone()

	out.CommunitiesRequested++
	out.TotalPosts += o.PostCount
	out.TotalComments += o.CommentCount
	out.EngagementSum += o.EngagementSum
	out.EngagedPosts += o.EngagedPosts

	method := o.MethodUsed
	if o.Succeeded() {
		out.CommunitiesSucceeded++
	} else {
		out.CommunitiesFailed++
		method = domain.MethodFailed
	}
	out.MethodTally[method]++

	out.AverageEngagement = averageEngagement(out.EngagementSum, out.EngagedPosts)
	return out
}

// Merge combines two partial summaries, e.g. from batches folded separately.
func Merge(a, b domain.HarvestSummary) domain.HarvestSummary {
	out := a
	out.MethodTally = a.MethodTally.Clone()
	for m, n := range b.MethodTally {
		out.MethodTally[m] += n
	}

	out.TotalPosts += b.TotalPosts
	out.TotalComments += b.TotalComments
	out.CommunitiesRequested += b.CommunitiesRequested
	out.CommunitiesSucceeded += b.CommunitiesSucceeded
	out.CommunitiesFailed += b.CommunitiesFailed
	out.EngagementSum += b.EngagementSum
	out.EngagedPosts += b.EngagedPosts
	out.Cancelled = a.Cancelled || b.Cancelled
	if b.ElapsedMs > out.ElapsedMs {
		out.ElapsedMs = b.ElapsedMs
	}

	out.AverageEngagement = averageEngagement(out.EngagementSum, out.EngagedPosts)
	return out
}

// Summarize folds every outcome into a fresh summary.
func Summarize(outcomes []domain.CommunityOutcome) domain.HarvestSummary {
	s := NewSummary()
	for _, o := range outcomes {
		s = Fold(s, o)
	}
	return s
}

func averageEngagement(sum int64, posts int) float64 {
	if posts == 0 {
		return 0
	}
	return float64(sum) / float64(posts)
}
