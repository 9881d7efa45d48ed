package feed

import "github.com/mrcoles/iron-blogger2/pkg/domain"

// SelectNew returns the prefix of candidates that are genuinely new for a blog
// whose most recent stored post is last. Candidates must be sorted newest first.
// The walk stops at the first candidate strictly older than last, or sharing
// both timestamp and title with it: either signals already-ingested history.
// Equal timestamps with different titles keep going, more than one post can
// land on the same instant.
func SelectNew(candidates []Candidate, last *domain.Post) []Candidate {
	if last == nil {
		return candidates
	}
	fresh := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Timestamp.Before(last.Timestamp) {
			break
		}
		if c.Timestamp.Equal(last.Timestamp) && c.Title == last.Title {
			break
		}
		fresh = append(fresh, c)
	}
	return fresh
}
