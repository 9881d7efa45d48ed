package domain

import "time"

// Assignment credits a post to a round. Produced by the assignment engine and
// applied to storage as one atomic batch.
type Assignment struct {
	PostID int64
	Due    time.Time
}

// RoundState is the derived per-(blogger, round) outcome of an assignment run:
// which post, if any, satisfies the round identified by Due. Paid/Forgiven are
// not part of it, they are preserved by the store on refresh.
type RoundState struct {
	BloggerID int64
	Due       time.Time
	PostID    *int64
}

// PostWithBlogger is a post joined with the identity of the blogger it belongs
// to, the unit the assignment engine works on.
type PostWithBlogger struct {
	Post
	BloggerID   int64
	BloggerName string
	StartDate   time.Time
}
