//go:build integration
// +build integration

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatviz/chatviz/internal/log"
	"github.com/chatviz/chatviz/internal/testutil"
)

func setupIntegrationTest(t *testing.T) *Store {
	t.Helper()
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return NewStore(db.Pool, log.NewNop())
}

func TestStoreSessionLifecycle(t *testing.T) {
	store := setupIntegrationTest(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "Quarterly numbers")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, sess.ID)
	assert.Equal(t, "Quarterly numbers", sess.Title)
	assert.Zero(t, sess.MessageCount)

	got, err := store.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	require.NoError(t, store.RenameSession(ctx, sess.ID, "Q2 numbers"))
	got, err = store.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q2 numbers", got.Title)

	require.NoError(t, store.DeleteSession(ctx, sess.ID))
	_, err = store.Session(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStoreSessionNotFound(t *testing.T) {
	store := setupIntegrationTest(t)
	ctx := context.Background()

	_, err := store.Session(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.DeleteSession(ctx, uuid.New()), ErrSessionNotFound)
	assert.ErrorIs(t, store.RenameSession(ctx, uuid.New(), "x"), ErrSessionNotFound)

	_, err = store.AddMessage(ctx, &Message{
		SessionID: uuid.New(),
		Role:      RoleUser,
		Content:   "orphan",
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStoreMessages(t *testing.T) {
	store := setupIntegrationTest(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "")
	require.NoError(t, err)

	charts := json.RawMessage(`[{"type": "comparison", "categoryField": "region"}]`)
	first, err := store.AddMessage(ctx, &Message{
		SessionID: sess.ID,
		Role:      RoleUser,
		Content:   "show me sales by region",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.SequenceNumber)

	second, err := store.AddMessage(ctx, &Message{
		SessionID: sess.ID,
		Role:      RoleAssistant,
		Content:   "Here are the numbers.",
		Charts:    charts,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.SequenceNumber)

	messages, err := store.Messages(ctx, sess.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.JSONEq(t, string(charts), string(messages[1].Charts))

	got, err := store.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
}

func TestStoreConcurrentAddMessage(t *testing.T) {
	store := setupIntegrationTest(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "concurrent")
	require.NoError(t, err)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AddMessage(ctx, &Message{
				SessionID: sess.ID,
				Role:      RoleUser,
				Content:   fmt.Sprintf("message %d", i),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Row locking must produce a gapless, duplicate-free sequence.
	messages, err := store.Messages(ctx, sess.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, writers)
	for i, msg := range messages {
		assert.Equal(t, i+1, msg.SequenceNumber)
	}
}

func TestStoreSessionsOrdering(t *testing.T) {
	store := setupIntegrationTest(t)
	ctx := context.Background()

	a, err := store.CreateSession(ctx, "older")
	require.NoError(t, err)
	b, err := store.CreateSession(ctx, "newer")
	require.NoError(t, err)

	// Touching the older session moves it to the front.
	_, err = store.AddMessage(ctx, &Message{SessionID: a.ID, Role: RoleUser, Content: "hi"})
	require.NoError(t, err)

	sessions, err := store.Sessions(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, a.ID, sessions[0].ID)
	assert.Equal(t, b.ID, sessions[1].ID)
}
