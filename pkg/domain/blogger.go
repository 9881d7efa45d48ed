package domain

import "time"

// Blogger is an Iron Blogger participant. Bloggers are created at roster import
// time and are accountable for one post per round starting at StartDate.
type Blogger struct {
	ID        int64
	Name      string
	StartDate time.Time
	CreatedAt time.Time
}

// Blog is a single feed-backed blog owned by a blogger. Etag and Modified hold
// opaque HTTP caching hints returned by the feed server; they are the only fields
// mutated after import.
type Blog struct {
	ID        int64
	BloggerID int64
	Title     string
	PageURL   string // human readable web page
	FeedURL   string // atom/rss feed
	Etag      string
	Modified  string
	CreatedAt time.Time
}
