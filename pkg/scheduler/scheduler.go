// Package scheduler runs the periodic batch: fetch every blog's feed, append
// the genuinely new posts, then assign rounds. Blogs are fetched concurrently
// with per-blog failure isolation; assignment runs serialized after ingestion.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/mrcoles/iron-blogger2/pkg/assign"
	"github.com/mrcoles/iron-blogger2/pkg/domain"
	"github.com/mrcoles/iron-blogger2/pkg/feed"
)

// Database interface for scheduler operations
type Database interface {
	ListBlogs(ctx context.Context) ([]*domain.Blog, error)
	GetNewestPost(ctx context.Context, blogID int64) (*domain.Post, error)
	AppendPosts(ctx context.Context, blogID int64, posts []*domain.Post, etag, modified string) error
	UpdateCaching(ctx context.Context, blogID int64, etag, modified string) error
}

// Parser interface for feed fetching
type Parser interface {
	Fetch(ctx context.Context, feedURL, etag, modified string) (*feed.Result, error)
}

// Assigner interface for the round-assignment engine
type Assigner interface {
	AssignRounds(ctx context.Context, since, until time.Time) (assign.Result, error)
}

// Config holds scheduler configuration
type Config struct {
	SyncInterval time.Duration
	MaxWorkers   int
}

// Scheduler manages the periodic sync job
type Scheduler struct {
	db           Database
	parser       Parser
	assigner     Assigner
	syncInterval time.Duration
	maxWorkers   int
	wg           sync.WaitGroup
	cancel       context.CancelFunc
}

// NewScheduler creates a new scheduler instance
func NewScheduler(db Database, parser Parser, assigner Assigner, cfg Config) *Scheduler {
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = 30 * time.Minute
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 5
	}
	return &Scheduler{
		db:           db,
		parser:       parser,
		assigner:     assigner,
		syncInterval: cfg.SyncInterval,
		maxWorkers:   cfg.MaxWorkers,
	}
}

// Start begins the periodic sync loop, running one full sync immediately
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.syncWorker(ctx)

	lgr.Printf("[INFO] scheduler started with sync interval %v, %d workers", s.syncInterval, s.maxWorkers)
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	lgr.Printf("[INFO] stopping scheduler...")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	lgr.Printf("[INFO] scheduler stopped")
}

func (s *Scheduler) syncWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		lgr.Printf("[ERROR] sync run failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				lgr.Printf("[ERROR] sync run failed: %v", err)
			}
		}
	}
}

// RunOnce executes one full batch: sync all feeds, then assign rounds over the
// default window. Fetch faults are isolated per blog and never fail the batch;
// an assignment fault does.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.SyncAllFeeds(ctx)

	res, err := s.assigner.AssignRounds(ctx, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("assign rounds: %w", err)
	}
	if res.Assigned > 0 || res.Unassigned > 0 {
		lgr.Printf("[INFO] assigned %d posts, %d left without a round", res.Assigned, res.Unassigned)
	}
	return nil
}

// SyncAllFeeds fetches every blog's feed concurrently and appends new posts.
// A failure on one blog is logged and does not affect the others.
func (s *Scheduler) SyncAllFeeds(ctx context.Context) {
	blogs, err := s.db.ListBlogs(ctx)
	if err != nil {
		lgr.Printf("[ERROR] failed to list blogs: %v", err)
		return
	}

	lgr.Printf("[INFO] syncing %d blogs", len(blogs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxWorkers)

	for _, blog := range blogs {
		g.Go(func() error {
			added, err := s.SyncBlog(ctx, blog)
			if err != nil {
				lgr.Printf("[WARN] sync failed for blog %q: %v", blog.Title, err)
				return nil // isolated, keep the rest of the batch going
			}
			if added > 0 {
				lgr.Printf("[INFO] added %d new posts from blog %q", added, blog.Title)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		lgr.Printf("[ERROR] feed sync error: %v", err)
	}
	lgr.Printf("[INFO] feed sync completed")
}

// SyncBlog fetches one blog's feed and appends its new posts, updating the blog's
// caching hints in the same transaction. A changed feed with nothing new updates
// just the hints. On a not-modified response nothing is written. On a fetch fault
// nothing is written either, so the next run retries a full fetch.
func (s *Scheduler) SyncBlog(ctx context.Context, blog *domain.Blog) (int, error) {
	lgr.Printf("[DEBUG] syncing blog %q from %s", blog.Title, blog.FeedURL)

	res, err := s.parser.Fetch(ctx, blog.FeedURL, blog.Etag, blog.Modified)
	if err != nil {
		return 0, fmt.Errorf("fetch feed: %w", err)
	}
	if res.NotModified {
		lgr.Printf("[DEBUG] feed for blog %q was not modified", blog.Title)
		return 0, nil
	}

	last, err := s.db.GetNewestPost(ctx, blog.ID)
	if err != nil {
		return 0, fmt.Errorf("load newest post: %w", err)
	}

	fresh := feed.SelectNew(res.Candidates, last)
	if len(fresh) == 0 {
		// nothing new, refresh the caching hints only when they changed
		if res.Etag != blog.Etag || res.Modified != blog.Modified {
			if err := s.db.UpdateCaching(ctx, blog.ID, res.Etag, res.Modified); err != nil {
				return 0, fmt.Errorf("update caching hints: %w", err)
			}
			blog.Etag = res.Etag
			blog.Modified = res.Modified
		}
		return 0, nil
	}

	posts := make([]*domain.Post, len(fresh))
	for i, c := range fresh {
		posts[i] = &domain.Post{
			BlogID:    blog.ID,
			Timestamp: c.Timestamp,
			Title:     c.Title,
			Summary:   c.Summary,
			PageURL:   c.PageURL,
		}
	}

	if err := s.db.AppendPosts(ctx, blog.ID, posts, res.Etag, res.Modified); err != nil {
		return 0, fmt.Errorf("append posts: %w", err)
	}

	blog.Etag = res.Etag
	blog.Modified = res.Modified
	return len(posts), nil
}
