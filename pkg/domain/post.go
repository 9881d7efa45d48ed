package domain

import "time"

// Post is a single blog post pulled from a feed. Summary is sanitized HTML and
// safe to render verbatim. CountsFor is the due-date of the round the post has
// been credited toward, nil until the assignment batch has processed it.
type Post struct {
	ID        int64
	BlogID    int64
	Timestamp time.Time
	Title     string
	Summary   string
	PageURL   string
	CountsFor *time.Time
	CreatedAt time.Time
}

// Round is a per-(blogger, round) ledger record. PostID links the post that
// satisfied the round, nil for a miss. Paid and Forgiven are currency units
// credited by an administrator; they are the only externally mutable fields.
type Round struct {
	ID        int64
	BloggerID int64
	Due       time.Time
	PostID    *int64
	Paid      int
	Forgiven  int
}
