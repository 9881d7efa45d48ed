// Package service provides unified access to the repositories for the
// scheduler, the assignment engine and the HTTP server.
package service

import (
	"context"
	"time"

	"github.com/mrcoles/iron-blogger2/pkg/domain"
	"github.com/mrcoles/iron-blogger2/pkg/ledger"
	"github.com/mrcoles/iron-blogger2/pkg/repository"
)

// Store bundles the repositories behind the interfaces the rest of the system
// consumes
type Store struct {
	repos *repository.Repositories
}

// NewStore creates a new store service
func NewStore(repos *repository.Repositories) *Store {
	return &Store{repos: repos}
}

// Blogger methods

func (s *Store) CreateBlogger(ctx context.Context, blogger *domain.Blogger) error {
	return s.repos.Blogger.CreateBlogger(ctx, blogger)
}

func (s *Store) GetBloggerByName(ctx context.Context, name string) (*domain.Blogger, error) {
	return s.repos.Blogger.GetBloggerByName(ctx, name)
}

func (s *Store) ListBloggers(ctx context.Context) ([]*domain.Blogger, error) {
	return s.repos.Blogger.ListBloggers(ctx)
}

func (s *Store) EarliestStart(ctx context.Context) (time.Time, bool, error) {
	return s.repos.Blogger.EarliestStart(ctx)
}

// Blog methods

func (s *Store) CreateBlog(ctx context.Context, blog *domain.Blog) error {
	return s.repos.Blog.CreateBlog(ctx, blog)
}

func (s *Store) ListBlogs(ctx context.Context) ([]*domain.Blog, error) {
	return s.repos.Blog.ListBlogs(ctx)
}

func (s *Store) ListBlogsByBlogger(ctx context.Context, bloggerID int64) ([]*domain.Blog, error) {
	return s.repos.Blog.ListBlogsByBlogger(ctx, bloggerID)
}

func (s *Store) UpdateCaching(ctx context.Context, blogID int64, etag, modified string) error {
	return s.repos.Blog.UpdateCaching(ctx, blogID, etag, modified)
}

// Post methods

func (s *Store) GetNewestPost(ctx context.Context, blogID int64) (*domain.Post, error) {
	return s.repos.Post.GetNewestPost(ctx, blogID)
}

func (s *Store) AppendPosts(ctx context.Context, blogID int64, posts []*domain.Post, etag, modified string) error {
	return s.repos.Post.AppendPosts(ctx, blogID, posts, etag, modified)
}

func (s *Store) UnassignedPosts(ctx context.Context, since, until time.Time) ([]*domain.PostWithBlogger, error) {
	return s.repos.Post.UnassignedPosts(ctx, since, until)
}

func (s *Store) AssignedDues(ctx context.Context, bloggerID int64) (map[int64]int64, error) {
	return s.repos.Post.AssignedDues(ctx, bloggerID)
}

func (s *Store) ListPostsByBlogger(ctx context.Context, bloggerID int64) ([]*domain.Post, error) {
	return s.repos.Post.ListPostsByBlogger(ctx, bloggerID)
}

func (s *Store) ListRecentPosts(ctx context.Context, limit int) ([]*domain.PostWithBlogger, error) {
	return s.repos.Post.ListRecentPosts(ctx, limit)
}

// Assignment and ledger methods

func (s *Store) ApplyAssignments(ctx context.Context, assignments []domain.Assignment, states []domain.RoundState) error {
	return s.repos.ApplyAssignments(ctx, assignments, states)
}

func (s *Store) LedgerEntries(ctx context.Context, bloggerID int64) ([]ledger.Entry, []int64, error) {
	return s.repos.Round.LedgerEntries(ctx, bloggerID)
}

func (s *Store) RecordPayment(ctx context.Context, roundID int64, amount int) error {
	return s.repos.Round.RecordPayment(ctx, roundID, amount)
}

func (s *Store) RecordForgiveness(ctx context.Context, roundID int64, amount int) error {
	return s.repos.Round.RecordForgiveness(ctx, roundID, amount)
}
