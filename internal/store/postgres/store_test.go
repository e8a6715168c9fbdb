package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatspace/internal/domain"
)

// openTestDB connects to POSTGRES_TEST_DSN and truncates the schema. Tests
// are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	db, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, ""))
	_, err = db.ExecContext(ctx, `TRUNCATE messages, channel_members, channels, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, "general"))
	return db
}

func TestPostgresDirectChannelConverges(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	channels := NewChannelRepo(db)

	a := &domain.User{Username: "alice", HashedPassword: "x", Color: "#fff"}
	b := &domain.User{Username: "bob", HashedPassword: "x", Color: "#fff"}
	require.NoError(t, users.Create(ctx, a))
	require.NoError(t, users.Create(ctx, b))
	assert.ErrorIs(t, users.Create(ctx, &domain.User{Username: "alice", HashedPassword: "y"}), domain.ErrConflict)

	name := domain.DirectChannelName(a.ID, b.ID)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = channels.Create(ctx, &domain.Channel{Name: name, Kind: domain.KindDirect}, []int64{a.ID, b.ID})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict, fmt.Sprint(err))
	}
	assert.Equal(t, 1, created)
}

func TestPostgresMessages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	channels := NewChannelRepo(db)
	messages := NewMessageRepo(db)

	a := &domain.User{Username: "alice", HashedPassword: "x", Color: "#fff"}
	require.NoError(t, users.Create(ctx, a))
	general, err := channels.GetByName(ctx, "general", domain.KindPublic)
	require.NoError(t, err)
	require.NotNil(t, general)

	for i := 0; i < 5; i++ {
		require.NoError(t, messages.Create(ctx, &domain.Message{ChannelID: general.ID, UserID: a.ID, Content: fmt.Sprint(i)}))
	}
	views, err := messages.ListRecent(ctx, general.ID, 3)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "2", views[0].Content)
	assert.Equal(t, "4", views[2].Content)

	ok, err := messages.SoftDelete(ctx, views[0].ID, general.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := messages.GetByID(ctx, views[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeletedPlaceholder, got.Content)

	removed, err := users.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	n, err := messages.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
