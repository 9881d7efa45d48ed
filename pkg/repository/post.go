package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mrcoles/iron-blogger2/pkg/domain"
)

// PostRepository handles the append-only post history of blogs
type PostRepository struct {
	db *sqlx.DB
}

// postSQL represents a post row for SQL operations
type postSQL struct {
	ID        int64      `db:"id"`
	BlogID    int64      `db:"blog_id"`
	Timestamp time.Time  `db:"timestamp"`
	Title     string     `db:"title"`
	Summary   string     `db:"summary"`
	PageURL   string     `db:"page_url"`
	CountsFor *time.Time `db:"counts_for"`
	CreatedAt time.Time  `db:"created_at"`
}

// postWithBloggerSQL adds the owning blogger's identity to a post row
type postWithBloggerSQL struct {
	postSQL
	BloggerID   int64     `db:"blogger_id"`
	BloggerName string    `db:"blogger_name"`
	StartDate   time.Time `db:"start_date"`
}

// NewPostRepository creates a new post repository
func NewPostRepository(database *sqlx.DB) *PostRepository {
	return &PostRepository{db: database}
}

// AppendPosts stores new posts for a blog and updates the blog's feed-caching
// hints in the same transaction, so a crash never leaves posts without the
// matching etag/modified state. Retried on lock errors, blogs sync in parallel.
func (r *PostRepository) AppendPosts(ctx context.Context, blogID int64, posts []*domain.Post, etag, modified string) error {
	return inTxRetry(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, post := range posts {
			row := &postSQL{
				BlogID:    blogID,
				Timestamp: post.Timestamp.UTC(),
				Title:     post.Title,
				Summary:   post.Summary,
				PageURL:   post.PageURL,
			}
			query := `
				INSERT INTO posts (blog_id, timestamp, title, summary, page_url)
				VALUES (:blog_id, :timestamp, :title, :summary, :page_url)
			`
			result, err := tx.NamedExecContext(ctx, query, row)
			if err != nil {
				return fmt.Errorf("insert post %q: %w", post.Title, err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("get insert id: %w", err)
			}
			post.ID = id
			post.BlogID = blogID
		}

		_, err := tx.ExecContext(ctx, "UPDATE blogs SET etag = ?, modified = ? WHERE id = ?",
			etag, modified, blogID)
		if err != nil {
			return fmt.Errorf("update blog caching: %w", err)
		}
		return nil
	})
}

// GetNewestPost returns the most recently published post of a blog, nil when
// the blog has no posts yet.
func (r *PostRepository) GetNewestPost(ctx context.Context, blogID int64) (*domain.Post, error) {
	var row postSQL
	err := r.db.GetContext(ctx, &row,
		"SELECT * FROM posts WHERE blog_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1", blogID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get newest post: %w", err)
	}
	return toDomainPost(&row), nil
}

// UnassignedPosts returns posts without a round in the [since, until] window,
// joined with the owning blogger, ordered by timestamp ascending. Order matters
// to the assignment engine, later posts may resolve rounds earlier ones leave open.
func (r *PostRepository) UnassignedPosts(ctx context.Context, since, until time.Time) ([]*domain.PostWithBlogger, error) {
	query := `
		SELECT p.*, b.blogger_id AS blogger_id, bl.name AS blogger_name, bl.start_date AS start_date
		FROM posts p
		JOIN blogs b ON p.blog_id = b.id
		JOIN bloggers bl ON b.blogger_id = bl.id
		WHERE p.counts_for IS NULL
		AND p.timestamp >= ? AND p.timestamp <= ?
		ORDER BY p.timestamp ASC, p.id ASC
	`
	var rows []postWithBloggerSQL
	if err := r.db.SelectContext(ctx, &rows, query, since.UTC(), until.UTC()); err != nil {
		return nil, fmt.Errorf("unassigned posts: %w", err)
	}

	posts := make([]*domain.PostWithBlogger, len(rows))
	for i, row := range rows {
		posts[i] = &domain.PostWithBlogger{
			Post:        *toDomainPost(&row.postSQL),
			BloggerID:   row.BloggerID,
			BloggerName: row.BloggerName,
			StartDate:   row.StartDate.UTC(),
		}
	}
	return posts, nil
}

// AssignedDues returns the set of due-dates already satisfied for a blogger,
// keyed by unix seconds, with the satisfying post's ID as value.
func (r *PostRepository) AssignedDues(ctx context.Context, bloggerID int64) (map[int64]int64, error) {
	query := `
		SELECT p.id, p.counts_for
		FROM posts p
		JOIN blogs b ON p.blog_id = b.id
		WHERE b.blogger_id = ? AND p.counts_for IS NOT NULL
	`
	var rows []struct {
		ID        int64     `db:"id"`
		CountsFor time.Time `db:"counts_for"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, bloggerID); err != nil {
		return nil, fmt.Errorf("assigned dues: %w", err)
	}

	dues := make(map[int64]int64, len(rows))
	for _, row := range rows {
		dues[row.CountsFor.Unix()] = row.ID
	}
	return dues, nil
}

// ListPostsByBlogger returns all posts of a blogger ordered by timestamp
func (r *PostRepository) ListPostsByBlogger(ctx context.Context, bloggerID int64) ([]*domain.Post, error) {
	query := `
		SELECT p.* FROM posts p
		JOIN blogs b ON p.blog_id = b.id
		WHERE b.blogger_id = ?
		ORDER BY p.timestamp ASC, p.id ASC
	`
	var rows []postSQL
	if err := r.db.SelectContext(ctx, &rows, query, bloggerID); err != nil {
		return nil, fmt.Errorf("list posts for blogger %d: %w", bloggerID, err)
	}

	posts := make([]*domain.Post, len(rows))
	for i, row := range rows {
		posts[i] = toDomainPost(&row)
	}
	return posts, nil
}

// ListRecentPosts returns the newest posts across all blogs
func (r *PostRepository) ListRecentPosts(ctx context.Context, limit int) ([]*domain.PostWithBlogger, error) {
	query := `
		SELECT p.*, b.blogger_id AS blogger_id, bl.name AS blogger_name, bl.start_date AS start_date
		FROM posts p
		JOIN blogs b ON p.blog_id = b.id
		JOIN bloggers bl ON b.blogger_id = bl.id
		ORDER BY p.timestamp DESC, p.id DESC
		LIMIT ?
	`
	var rows []postWithBloggerSQL
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("recent posts: %w", err)
	}

	posts := make([]*domain.PostWithBlogger, len(rows))
	for i, row := range rows {
		posts[i] = &domain.PostWithBlogger{
			Post:        *toDomainPost(&row.postSQL),
			BloggerID:   row.BloggerID,
			BloggerName: row.BloggerName,
			StartDate:   row.StartDate.UTC(),
		}
	}
	return posts, nil
}

func toDomainPost(row *postSQL) *domain.Post {
	post := &domain.Post{
		ID:        row.ID,
		BlogID:    row.BlogID,
		Timestamp: row.Timestamp.UTC(),
		Title:     row.Title,
		Summary:   row.Summary,
		PageURL:   row.PageURL,
		CreatedAt: row.CreatedAt,
	}
	if row.CountsFor != nil {
		due := row.CountsFor.UTC()
		post.CountsFor = &due
	}
	return post
}
