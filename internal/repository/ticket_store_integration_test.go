package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godilite/sentiment-sync/internal/domain"
	"github.com/godilite/sentiment-sync/internal/repository"
	"github.com/godilite/sentiment-sync/pkg/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// One connection, otherwise every pooled conn gets its own :memory: db.
	db, err := database.New(
		database.WithDataSource(":memory:"),
		database.WithMaxOpenConns(1),
		database.WithRetry(1, 0),
		database.WithMigrations(repository.Schema...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func newTicket(id string, created time.Time, score *float64) domain.Ticket {
	return domain.Ticket{
		ID:        id,
		Status:    domain.StatusOpen,
		Subject:   "ticket " + id,
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
		Score:     score,
		Requester: &domain.Person{ID: "r-" + id, Name: "Requester " + id},
	}
}

func ptr(f float64) *float64 { return &f }

func TestTicketStore_Integration(t *testing.T) {
	ctx := context.Background()
	store := repository.NewTicketStore(setupTestDB(t))
	base := time.Date(2025, 10, 18, 10, 0, 0, 0, time.UTC)

	t.Run("upsert and get round trip", func(t *testing.T) {
		in := newTicket("100", base, ptr(0.4))
		in.Assignee = &domain.Person{ID: "a-1", Name: "Agent"}
		require.NoError(t, store.Upsert(ctx, in))

		got, err := store.Get(ctx, "100")
		require.NoError(t, err)
		assert.Equal(t, "100", got.ID)
		assert.Equal(t, domain.StatusOpen, got.Status)
		assert.True(t, got.CreatedAt.Equal(base))
		require.NotNil(t, got.Score)
		assert.InDelta(t, 0.4, *got.Score, 1e-9)
		assert.Equal(t, &domain.Person{ID: "a-1", Name: "Agent"}, got.Assignee)
		assert.Equal(t, "r-100", got.Requester.ID)
	})

	t.Run("nil score keeps stored score", func(t *testing.T) {
		update := newTicket("100", base, nil)
		update.Status = domain.StatusPending
		require.NoError(t, store.Upsert(ctx, update))

		got, err := store.Get(ctx, "100")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
		require.NotNil(t, got.Score)
		assert.InDelta(t, 0.4, *got.Score, 1e-9)
	})

	t.Run("new score replaces stored score", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, newTicket("100", base, ptr(-0.8))))

		got, err := store.Get(ctx, "100")
		require.NoError(t, err)
		assert.InDelta(t, -0.8, *got.Score, 1e-9)
	})

	t.Run("list orders by creation time", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, newTicket("300", base.Add(2*time.Hour), nil)))
		require.NoError(t, store.Upsert(ctx, newTicket("200", base.Add(500*time.Millisecond), ptr(0.1))))

		list, err := store.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"100", "200", "300"}, []string{list[0].ID, list[1].ID, list[2].ID})
		assert.Nil(t, list[2].Score)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		ids, err := store.IDs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"100", "200", "300"}, ids)
	})

	t.Run("delete evicts and is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "200"))
		require.NoError(t, store.Delete(ctx, "200"))

		_, err := store.Get(ctx, "200")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestTicketStore_EmptyStore(t *testing.T) {
	ctx := context.Background()
	store := repository.NewTicketStore(setupTestDB(t))

	list, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
