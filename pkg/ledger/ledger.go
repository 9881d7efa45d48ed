// Package ledger computes the debt owed per round from assignment state.
// All functions are pure and operate on explicit snapshots, storage is the
// caller's concern.
package ledger

import (
	"fmt"
	"time"

	"github.com/mrcoles/iron-blogger2/pkg/domain"
	"github.com/mrcoles/iron-blogger2/pkg/rounds"
)

const (
	// DebtPerRound is the debt accrued for a round with no satisfying post, in currency units.
	DebtPerRound = 5
	// LatePenalty is the per-round-late reduction applied to a satisfying post.
	LatePenalty = 1
)

// Entry is a single round of a blogger's ledger: the round's due-date, the post
// that satisfied it (nil for a miss) and any manual credits.
type Entry struct {
	Due      time.Time
	Post     *domain.Post
	Paid     int
	Forgiven int
}

// ConsistencyError reports an owed value outside [0, DebtPerRound]. It signals a
// defect in payment/forgiveness entry or in assignment logic, not a user error,
// and must never be swallowed or clamped.
type ConsistencyError struct {
	Due  time.Time
	Owed int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistency: round %s owes %d, outside [0, %d]",
		e.Due.Format("2006-01-02"), e.Owed, DebtPerRound)
}

// RoundsLate reports how far the entry's due round diverges from the satisfying
// post's chronological round, in whole rounds. Zero when the post landed in its
// own round, negative when it was assigned to an earlier round. Raw division,
// the sign feeds directly into the late penalty.
func RoundsLate(e Entry) int {
	return int(e.Due.Sub(rounds.DueDate(e.Post.Timestamp)) / rounds.RoundLen)
}

// Owed returns the debt owed for the entry in currency units. A round with no
// satisfying post owes the full debt less any credits; a satisfied round owes
// min(0, DebtPerRound - lateness penalty) less credits. The result is checked
// against the 0..DebtPerRound bound and a ConsistencyError is returned on
// violation, with the raw value preserved for diagnostics.
func Owed(e Entry) (int, error) {
	var owed int
	if e.Post == nil {
		owed = DebtPerRound - e.Paid - e.Forgiven
	} else {
		penalty := RoundsLate(e) * LatePenalty
		base := DebtPerRound - penalty
		if base > 0 {
			base = 0
		}
		owed = base - e.Paid - e.Forgiven
	}
	if owed < 0 || owed > DebtPerRound {
		return owed, &ConsistencyError{Due: e.Due, Owed: owed}
	}
	return owed, nil
}

// Snapshot is the immutable view MissedPosts operates on: a blogger's start date
// and the publication times of all their posts, in any order.
type Snapshot struct {
	StartDate time.Time
	PostTimes []time.Time
}

// MissedPosts counts the rounds in [since, until) with no satisfying post.
// A zero since defaults to the blogger's start date, a zero until to now.
// The round containing since is counted, the round containing until is not.
func MissedPosts(s Snapshot, since, until time.Time) int {
	if since.IsZero() {
		since = s.StartDate
	}
	if until.IsZero() {
		until = time.Now().UTC()
	}

	first := rounds.DueDate(since)
	last := rounds.Prev(rounds.DueDate(until))
	if last.Before(first) {
		return 0
	}

	met := make(map[time.Time]struct{})
	for _, ts := range s.PostTimes {
		if ts.After(rounds.Prev(first)) && ts.Before(last) {
			met[rounds.DueDate(ts)] = struct{}{}
		}
	}

	total := int(last.Sub(first)/rounds.RoundLen) + 1
	return total - len(met)
}
