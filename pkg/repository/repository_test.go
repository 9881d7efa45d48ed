package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcoles/iron-blogger2/pkg/domain"
	"github.com/mrcoles/iron-blogger2/pkg/ledger"
	"github.com/mrcoles/iron-blogger2/pkg/rounds"
)

func setupTestDB(t *testing.T) (*Repositories, func()) {
	t.Helper()

	cfg := Config{
		DSN:             ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 30 * time.Second,
	}

	repos, err := NewRepositories(context.Background(), cfg)
	require.NoError(t, err)

	return repos, func() {
		assert.NoError(t, repos.Close())
	}
}

func TestRepositories_Integration(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repos.Ping(ctx))

	alice := &domain.Blogger{Name: "alice", StartDate: time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC)}
	blog := &domain.Blog{Title: "Alice's Blog", PageURL: "http://alice.example.com/", FeedURL: "http://alice.example.com/feed"}

	t.Run("blogger operations", func(t *testing.T) {
		require.NoError(t, repos.Blogger.CreateBlogger(ctx, alice))
		assert.NotZero(t, alice.ID)

		retrieved, err := repos.Blogger.GetBlogger(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", retrieved.Name)
		assert.True(t, retrieved.StartDate.Equal(alice.StartDate))

		byName, err := repos.Blogger.GetBloggerByName(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byName.ID)

		// duplicate name rejected
		err = repos.Blogger.CreateBlogger(ctx, &domain.Blogger{Name: "alice", StartDate: alice.StartDate})
		require.Error(t, err)

		bob := &domain.Blogger{Name: "bob", StartDate: time.Date(2015, 4, 8, 0, 0, 0, 0, time.UTC)}
		require.NoError(t, repos.Blogger.CreateBlogger(ctx, bob))

		bloggers, err := repos.Blogger.ListBloggers(ctx)
		require.NoError(t, err)
		require.Len(t, bloggers, 2)
		assert.Equal(t, "alice", bloggers[0].Name)
		assert.Equal(t, "bob", bloggers[1].Name)

		earliest, ok, err := repos.Blogger.EarliestStart(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, earliest.Equal(alice.StartDate))
	})

	t.Run("blog operations", func(t *testing.T) {
		blog.BloggerID = alice.ID
		require.NoError(t, repos.Blog.CreateBlog(ctx, blog))
		assert.NotZero(t, blog.ID)

		retrieved, err := repos.Blog.GetBlog(ctx, blog.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice's Blog", retrieved.Title)
		assert.Empty(t, retrieved.Etag)
		assert.Empty(t, retrieved.Modified)

		byBlogger, err := repos.Blog.ListBlogsByBlogger(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, byBlogger, 1)
		assert.Equal(t, blog.ID, byBlogger[0].ID)

		require.NoError(t, repos.Blog.UpdateCaching(ctx, blog.ID, `"v1"`, "Wed, 01 Apr 2015 00:00:00 GMT"))
		retrieved, err = repos.Blog.GetBlog(ctx, blog.ID)
		require.NoError(t, err)
		assert.Equal(t, `"v1"`, retrieved.Etag)
		assert.Equal(t, "Wed, 01 Apr 2015 00:00:00 GMT", retrieved.Modified)

		all, err := repos.Blog.ListBlogs(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("post operations", func(t *testing.T) {
		newest, err := repos.Post.GetNewestPost(ctx, blog.ID)
		require.NoError(t, err)
		assert.Nil(t, newest, "blog with no posts yet")

		posts := []*domain.Post{
			{Timestamp: time.Date(2015, 4, 1, 12, 0, 0, 0, time.UTC), Title: "First", Summary: "<p>one</p>", PageURL: "http://alice.example.com/1"},
			{Timestamp: time.Date(2015, 4, 15, 12, 0, 0, 0, time.UTC), Title: "Second", Summary: "<p>two</p>", PageURL: "http://alice.example.com/2"},
		}
		require.NoError(t, repos.Post.AppendPosts(ctx, blog.ID, posts, `"v2"`, "Wed, 15 Apr 2015 12:00:00 GMT"))
		assert.NotZero(t, posts[0].ID)
		assert.NotZero(t, posts[1].ID)

		// caching hints updated in the same transaction
		updated, err := repos.Blog.GetBlog(ctx, blog.ID)
		require.NoError(t, err)
		assert.Equal(t, `"v2"`, updated.Etag)

		newest, err = repos.Post.GetNewestPost(ctx, blog.ID)
		require.NoError(t, err)
		require.NotNil(t, newest)
		assert.Equal(t, "Second", newest.Title)

		unassigned, err := repos.Post.UnassignedPosts(ctx,
			time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Len(t, unassigned, 2)
		assert.Equal(t, "First", unassigned[0].Title, "oldest first")
		assert.Equal(t, "alice", unassigned[0].BloggerName)
		assert.True(t, unassigned[0].StartDate.Equal(alice.StartDate))

		byBlogger, err := repos.Post.ListPostsByBlogger(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, byBlogger, 2)

		recent, err := repos.Post.ListRecentPosts(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "Second", recent[0].Title, "newest first")
	})

	firstDue := rounds.DueDate(time.Date(2015, 4, 1, 12, 0, 0, 0, time.UTC))   // 2015-04-05
	secondDue := rounds.DueDate(time.Date(2015, 4, 15, 12, 0, 0, 0, time.UTC)) // 2015-04-19

	t.Run("apply assignments", func(t *testing.T) {
		posts, err := repos.Post.ListPostsByBlogger(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, posts, 2)

		missedDue := rounds.Next(firstDue)
		assignments := []domain.Assignment{
			{PostID: posts[0].ID, Due: firstDue},
			{PostID: posts[1].ID, Due: secondDue},
		}
		states := []domain.RoundState{
			{BloggerID: alice.ID, Due: firstDue, PostID: &posts[0].ID},
			{BloggerID: alice.ID, Due: missedDue},
			{BloggerID: alice.ID, Due: secondDue, PostID: &posts[1].ID},
		}
		require.NoError(t, repos.ApplyAssignments(ctx, assignments, states))

		dues, err := repos.Post.AssignedDues(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int64{firstDue.Unix(): posts[0].ID, secondDue.Unix(): posts[1].ID}, dues)

		unassigned, err := repos.Post.UnassignedPosts(ctx,
			time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Empty(t, unassigned)

		allRounds, err := repos.Round.ListRounds(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, allRounds, 3)
		assert.True(t, allRounds[0].Due.Equal(firstDue))
		assert.Nil(t, allRounds[1].PostID, "missed round has no post")
		require.NotNil(t, allRounds[2].PostID)
		assert.Equal(t, posts[1].ID, *allRounds[2].PostID)

		// assigning an already-assigned post fails and rolls back
		err = repos.ApplyAssignments(ctx, []domain.Assignment{{PostID: posts[0].ID, Due: secondDue}}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already assigned")

		// re-upserting rounds keeps existing post links
		require.NoError(t, repos.ApplyAssignments(ctx, nil, []domain.RoundState{
			{BloggerID: alice.ID, Due: firstDue},
		}))
		round, err := repos.Round.GetRound(ctx, allRounds[0].ID)
		require.NoError(t, err)
		require.NotNil(t, round.PostID)
		assert.Equal(t, posts[0].ID, *round.PostID)
	})

	t.Run("ledger entries and credits", func(t *testing.T) {
		entries, ids, err := repos.Round.LedgerEntries(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		require.Len(t, ids, 3)

		require.NotNil(t, entries[0].Post)
		assert.Equal(t, "First", entries[0].Post.Title)
		owed, err := ledger.Owed(entries[0])
		require.NoError(t, err)
		assert.Zero(t, owed, "on-time post owes nothing")

		assert.Nil(t, entries[1].Post)
		owed, err = ledger.Owed(entries[1])
		require.NoError(t, err)
		assert.Equal(t, ledger.DebtPerRound, owed)

		missedID := ids[1]
		require.NoError(t, repos.Round.RecordPayment(ctx, missedID, 3))
		require.NoError(t, repos.Round.RecordForgiveness(ctx, missedID, 2))

		entries, _, err = repos.Round.LedgerEntries(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, entries[1].Paid)
		assert.Equal(t, 2, entries[1].Forgiven)
		owed, err = ledger.Owed(entries[1])
		require.NoError(t, err)
		assert.Zero(t, owed)

		// overpayment would drive owed negative, rejected and rolled back
		err = repos.Round.RecordPayment(ctx, missedID, 1)
		require.Error(t, err)
		var cerr *ledger.ConsistencyError
		require.ErrorAs(t, err, &cerr)

		entries, _, err = repos.Round.LedgerEntries(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, entries[1].Paid, "rejected payment not stored")
	})
}

func TestRepositories_EmptyDatabase(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	_, ok, err := repos.Blogger.EarliestStart(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	bloggers, err := repos.Blogger.ListBloggers(ctx)
	require.NoError(t, err)
	assert.Empty(t, bloggers)

	_, err = repos.Blogger.GetBloggerByName(ctx, "nobody")
	require.Error(t, err)

	err = repos.Round.RecordPayment(ctx, 42, 1)
	require.ErrorIs(t, err, ErrRoundNotFound)
}

func TestRepositories_BackfillIntoCreditedRound(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	blogger := &domain.Blogger{Name: "dave", StartDate: time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, repos.Blogger.CreateBlogger(ctx, blogger))
	blog := &domain.Blog{BloggerID: blogger.ID, Title: "Dave", PageURL: "http://d.example.com/", FeedURL: "http://d.example.com/feed"}
	require.NoError(t, repos.Blog.CreateBlog(ctx, blog))

	// a missed round, paid off in full by an administrator
	missedDue := rounds.DueDate(blogger.StartDate)
	require.NoError(t, repos.ApplyAssignments(ctx, nil, []domain.RoundState{
		{BloggerID: blogger.ID, Due: missedDue},
	}))
	allRounds, err := repos.Round.ListRounds(ctx, blogger.ID)
	require.NoError(t, err)
	require.Len(t, allRounds, 1)
	require.NoError(t, repos.Round.RecordPayment(ctx, allRounds[0].ID, ledger.DebtPerRound))

	// a late post backfilled into the paid round would owe below zero;
	// the whole batch must fault and roll back, not store bad books
	posts := []*domain.Post{{Timestamp: time.Date(2015, 4, 15, 12, 0, 0, 0, time.UTC), Title: "Late", Summary: "x", PageURL: "http://d.example.com/1"}}
	require.NoError(t, repos.Post.AppendPosts(ctx, blog.ID, posts, "", ""))

	err = repos.ApplyAssignments(ctx,
		[]domain.Assignment{{PostID: posts[0].ID, Due: missedDue}},
		[]domain.RoundState{{BloggerID: blogger.ID, Due: missedDue, PostID: &posts[0].ID}})
	require.Error(t, err)
	var cerr *ledger.ConsistencyError
	require.ErrorAs(t, err, &cerr)

	// nothing from the rejected batch is visible
	unassigned, err := repos.Post.UnassignedPosts(ctx,
		time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	round, err := repos.Round.GetRound(ctx, allRounds[0].ID)
	require.NoError(t, err)
	assert.Nil(t, round.PostID)
	assert.Equal(t, ledger.DebtPerRound, round.Paid)
}

func TestInTxRetry(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("retries lock errors until success", func(t *testing.T) {
		attempts := 0
		err := inTxRetry(ctx, repos.DB, func(tx *sqlx.Tx) error {
			attempts++
			if attempts < 3 {
				return fmt.Errorf("database is locked")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("non-lock errors come back intact", func(t *testing.T) {
		fault := &ledger.ConsistencyError{Due: time.Date(2015, 4, 5, 0, 0, 0, 0, time.UTC), Owed: -1}
		err := inTxRetry(ctx, repos.DB, func(tx *sqlx.Tx) error {
			return fault
		})
		require.Error(t, err)
		var cerr *ledger.ConsistencyError
		require.ErrorAs(t, err, &cerr, "typed errors survive the retrier")
	})

	t.Run("lock errors exhaust retries and surface", func(t *testing.T) {
		err := inTxRetry(ctx, repos.DB, func(tx *sqlx.Tx) error {
			return fmt.Errorf("database is locked")
		})
		require.Error(t, err)
	})
}

func TestRepositories_AppendPosts_EmptyStillUpdatesCaching(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	blogger := &domain.Blogger{Name: "carol", StartDate: time.Date(2015, 5, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, repos.Blogger.CreateBlogger(ctx, blogger))
	blog := &domain.Blog{BloggerID: blogger.ID, Title: "Carol", PageURL: "http://c.example.com/", FeedURL: "http://c.example.com/feed"}
	require.NoError(t, repos.Blog.CreateBlog(ctx, blog))

	require.NoError(t, repos.Post.AppendPosts(ctx, blog.ID, nil, `"fresh"`, "Fri, 01 May 2015 00:00:00 GMT"))

	updated, err := repos.Blog.GetBlog(ctx, blog.ID)
	require.NoError(t, err)
	assert.Equal(t, `"fresh"`, updated.Etag)
	assert.Equal(t, "Fri, 01 May 2015 00:00:00 GMT", updated.Modified)
}
