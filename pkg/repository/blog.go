package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/mrcoles/iron-blogger2/pkg/domain"
)

// BlogRepository handles blog records and their feed-caching metadata
type BlogRepository struct {
	db *sqlx.DB
}

// blogSQL represents a blog row for SQL operations
type blogSQL struct {
	ID        int64     `db:"id"`
	BloggerID int64     `db:"blogger_id"`
	Title     string    `db:"title"`
	PageURL   string    `db:"page_url"`
	FeedURL   string    `db:"feed_url"`
	Etag      string    `db:"etag"`
	Modified  string    `db:"modified"`
	CreatedAt time.Time `db:"created_at"`
}

// NewBlogRepository creates a new blog repository
func NewBlogRepository(database *sqlx.DB) *BlogRepository {
	return &BlogRepository{db: database}
}

// CreateBlog inserts a new blog and sets its ID
func (r *BlogRepository) CreateBlog(ctx context.Context, blog *domain.Blog) error {
	row := &blogSQL{
		BloggerID: blog.BloggerID,
		Title:     blog.Title,
		PageURL:   blog.PageURL,
		FeedURL:   blog.FeedURL,
	}
	query := `
		INSERT INTO blogs (blogger_id, title, page_url, feed_url)
		VALUES (:blogger_id, :title, :page_url, :feed_url)
	`
	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("create blog: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get insert id: %w", err)
	}
	blog.ID = id
	return nil
}

// GetBlog retrieves a blog by ID
func (r *BlogRepository) GetBlog(ctx context.Context, id int64) (*domain.Blog, error) {
	var row blogSQL
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM blogs WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("get blog: %w", err)
	}
	return toDomainBlog(&row), nil
}

// ListBlogs retrieves all blogs ordered by title
func (r *BlogRepository) ListBlogs(ctx context.Context) ([]*domain.Blog, error) {
	var rows []blogSQL
	if err := r.db.SelectContext(ctx, &rows, "SELECT * FROM blogs ORDER BY title"); err != nil {
		return nil, fmt.Errorf("list blogs: %w", err)
	}
	return toDomainBlogs(rows), nil
}

// ListBlogsByBlogger retrieves the blogs owned by a blogger
func (r *BlogRepository) ListBlogsByBlogger(ctx context.Context, bloggerID int64) ([]*domain.Blog, error) {
	var rows []blogSQL
	err := r.db.SelectContext(ctx, &rows, "SELECT * FROM blogs WHERE blogger_id = ? ORDER BY title", bloggerID)
	if err != nil {
		return nil, fmt.Errorf("list blogs for blogger %d: %w", bloggerID, err)
	}
	return toDomainBlogs(rows), nil
}

// UpdateCaching stores the etag/modified hints returned by the feed server.
// Retried on lock errors, concurrent blog syncs share the connection.
func (r *BlogRepository) UpdateCaching(ctx context.Context, blogID int64, etag, modified string) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		_, err := r.db.ExecContext(ctx, "UPDATE blogs SET etag = ?, modified = ? WHERE id = ?",
			etag, modified, blogID)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("update blog caching: %w", err)}
		}
		return nil
	})
}

func toDomainBlog(row *blogSQL) *domain.Blog {
	return &domain.Blog{
		ID:        row.ID,
		BloggerID: row.BloggerID,
		Title:     row.Title,
		PageURL:   row.PageURL,
		FeedURL:   row.FeedURL,
		Etag:      row.Etag,
		Modified:  row.Modified,
		CreatedAt: row.CreatedAt,
	}
}

func toDomainBlogs(rows []blogSQL) []*domain.Blog {
	blogs := make([]*domain.Blog, len(rows))
	for i, row := range rows {
		blogs[i] = toDomainBlog(&row)
	}
	return blogs
}
