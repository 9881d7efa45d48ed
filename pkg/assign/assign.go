// Package assign credits posts to the weekly rounds they count for. The engine
// reads unassigned posts, decides their rounds in memory and hands the whole
// batch to the store as one atomic unit, re-running over an overlapping window
// is always a safe no-op for prior work.
package assign

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/mrcoles/iron-blogger2/pkg/domain"
	"github.com/mrcoles/iron-blogger2/pkg/rounds"
)

// Store is the persistence surface the engine needs
type Store interface {
	EarliestStart(ctx context.Context) (time.Time, bool, error)
	ListBloggers(ctx context.Context) ([]*domain.Blogger, error)
	UnassignedPosts(ctx context.Context, since, until time.Time) ([]*domain.PostWithBlogger, error)
	AssignedDues(ctx context.Context, bloggerID int64) (map[int64]int64, error)
	ApplyAssignments(ctx context.Context, assignments []domain.Assignment, states []domain.RoundState) error
}

// Result summarizes an assignment run
type Result struct {
	Assigned   int // posts credited to a round
	Unassigned int // posts left without a round, every candidate round was taken
	Rounds     int // round records refreshed
}

// Engine assigns posts to rounds
type Engine struct {
	store Store
}

// New creates an assignment engine on top of store
func New(store Store) *Engine {
	return &Engine{store: store}
}

// AssignRounds processes every post in the [since, until] window that has no
// round yet, in timestamp order, and refreshes the per-blogger round records up
// to the last closed round. A zero since defaults to the earliest blogger start
// date, a zero until to now. With no bloggers in the system the run is a no-op.
//
// Each post lands in its own chronological round when that round is still open;
// otherwise it backfills the nearest earlier open round, never before the
// blogger's start date. A post with no open round to claim stays unassigned and
// is reported, both in the result and in the log.
func (e *Engine) AssignRounds(ctx context.Context, since, until time.Time) (Result, error) {
	if until.IsZero() {
		until = time.Now().UTC()
	}
	if since.IsZero() {
		earliest, ok, err := e.store.EarliestStart(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("find earliest start date: %w", err)
		}
		if !ok {
			lgr.Printf("[DEBUG] no bloggers registered, nothing to assign")
			return Result{}, nil
		}
		since = earliest
	}

	posts, err := e.store.UnassignedPosts(ctx, since, until)
	if err != nil {
		return Result{}, fmt.Errorf("load unassigned posts: %w", err)
	}

	var res Result
	var assignments []domain.Assignment

	// dues already satisfied per blogger, extended as the batch assigns more
	taken := make(map[int64]map[int64]int64)
	duesFor := func(bloggerID int64) (map[int64]int64, error) {
		if dues, ok := taken[bloggerID]; ok {
			return dues, nil
		}
		dues, err := e.store.AssignedDues(ctx, bloggerID)
		if err != nil {
			return nil, fmt.Errorf("load assigned rounds for blogger %d: %w", bloggerID, err)
		}
		taken[bloggerID] = dues
		return dues, nil
	}

	for _, post := range posts {
		dues, err := duesFor(post.BloggerID)
		if err != nil {
			return Result{}, err
		}

		due, ok := pickRound(dues, rounds.DueDate(post.Timestamp), rounds.DueDate(post.StartDate))
		if !ok {
			lgr.Printf("[WARN] no open round for post %q by %s (published %s), leaving unassigned",
				post.Title, post.BloggerName, post.Timestamp.Format("2006-01-02"))
			res.Unassigned++
			continue
		}

		dues[due.Unix()] = post.ID
		assignments = append(assignments, domain.Assignment{PostID: post.ID, Due: due})
		res.Assigned++
	}

	states, err := e.roundStates(ctx, until, duesFor)
	if err != nil {
		return Result{}, err
	}
	res.Rounds = len(states)

	if err := e.store.ApplyAssignments(ctx, assignments, states); err != nil {
		return Result{}, fmt.Errorf("apply assignments: %w", err)
	}

	lgr.Printf("[INFO] assignment run done: %d assigned, %d without open round, %d rounds refreshed",
		res.Assigned, res.Unassigned, res.Rounds)
	return res, nil
}

// pickRound finds the round a post counts for: its own round d when open, else
// the nearest earlier open round, walking one round at a time down to floor.
// Returns false when every candidate round already has a satisfying post.
func pickRound(dues map[int64]int64, d, floor time.Time) (time.Time, bool) {
	for due := d; !due.Before(floor); due = rounds.Prev(due) {
		if _, used := dues[due.Unix()]; !used {
			return due, true
		}
	}
	return time.Time{}, false
}

// roundStates derives the ledger round records for every blogger, from the
// round containing their start date through the last round closed before until.
func (e *Engine) roundStates(ctx context.Context, until time.Time, duesFor func(int64) (map[int64]int64, error)) ([]domain.RoundState, error) {
	bloggers, err := e.store.ListBloggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bloggers: %w", err)
	}

	lastDue := rounds.Prev(rounds.DueDate(until))

	var states []domain.RoundState
	for _, blogger := range bloggers {
		dues, err := duesFor(blogger.ID)
		if err != nil {
			return nil, err
		}
		for due := rounds.DueDate(blogger.StartDate); !due.After(lastDue); due = rounds.Next(due) {
			state := domain.RoundState{BloggerID: blogger.ID, Due: due}
			if postID, ok := dues[due.Unix()]; ok {
				id := postID
				state.PostID = &id
			}
			states = append(states, state)
		}
	}
	return states, nil
}
