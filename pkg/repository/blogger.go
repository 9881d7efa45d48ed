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

// BloggerRepository handles participant records
type BloggerRepository struct {
	db *sqlx.DB
}

// bloggerSQL represents a blogger row for SQL operations
type bloggerSQL struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	StartDate time.Time `db:"start_date"`
	CreatedAt time.Time `db:"created_at"`
}

// NewBloggerRepository creates a new blogger repository
func NewBloggerRepository(database *sqlx.DB) *BloggerRepository {
	return &BloggerRepository{db: database}
}

// CreateBlogger inserts a new blogger and sets its ID
func (r *BloggerRepository) CreateBlogger(ctx context.Context, blogger *domain.Blogger) error {
	row := &bloggerSQL{Name: blogger.Name, StartDate: blogger.StartDate.UTC()}
	query := `INSERT INTO bloggers (name, start_date) VALUES (:name, :start_date)`
	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("create blogger: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get insert id: %w", err)
	}
	blogger.ID = id
	return nil
}

// GetBlogger retrieves a blogger by ID
func (r *BloggerRepository) GetBlogger(ctx context.Context, id int64) (*domain.Blogger, error) {
	var row bloggerSQL
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM bloggers WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("get blogger: %w", err)
	}
	return toDomainBlogger(&row), nil
}

// GetBloggerByName retrieves a blogger by its unique name
func (r *BloggerRepository) GetBloggerByName(ctx context.Context, name string) (*domain.Blogger, error) {
	var row bloggerSQL
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM bloggers WHERE name = ?", name); err != nil {
		return nil, fmt.Errorf("get blogger %q: %w", name, err)
	}
	return toDomainBlogger(&row), nil
}

// ListBloggers retrieves all bloggers ordered by name
func (r *BloggerRepository) ListBloggers(ctx context.Context) ([]*domain.Blogger, error) {
	var rows []bloggerSQL
	if err := r.db.SelectContext(ctx, &rows, "SELECT * FROM bloggers ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list bloggers: %w", err)
	}

	bloggers := make([]*domain.Blogger, len(rows))
	for i, row := range rows {
		bloggers[i] = toDomainBlogger(&row)
	}
	return bloggers, nil
}

// EarliestStart returns the earliest start date across all bloggers. The bool
// result is false when there are no bloggers at all.
func (r *BloggerRepository) EarliestStart(ctx context.Context) (time.Time, bool, error) {
	var start time.Time
	err := r.db.GetContext(ctx, &start, "SELECT start_date FROM bloggers ORDER BY start_date LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("earliest start date: %w", err)
	}
	return start.UTC(), true, nil
}

func toDomainBlogger(row *bloggerSQL) *domain.Blogger {
	return &domain.Blogger{
		ID:        row.ID,
		Name:      row.Name,
		StartDate: row.StartDate.UTC(),
		CreatedAt: row.CreatedAt,
	}
}
