package transcript

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-intake/internal/intake"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestAppendAndHistory(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "conv-1", intake.SenderBot, "Please provide your name."))
	require.NoError(t, store.Append(ctx, "conv-1", intake.SenderUser, "Asha"))

	history, err := store.History(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, []intake.ChatEntry{
		{Sender: intake.SenderBot, Message: "Please provide your name."},
		{Sender: intake.SenderUser, Message: "Asha"},
	}, history)

	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"conv-1"))

	mr.FastForward(2 * time.Hour)
	history, err = store.History(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryTrimsToMaxMessages(t *testing.T) {
	store, _ := newTestStore(t)
	store.WithMaxMessages(3)
	ctx := context.Background()

	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, store.Append(ctx, "conv-1", intake.SenderUser, msg))
	}
	history, err := store.History(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "c", history[0].Message)
	assert.Equal(t, "e", history[2].Message)
}

func TestHistorySkipsCorruptEntries(t *testing.T) {
	store, mr := newTestStore(t)
	_, err := mr.Push(keyPrefix+"conv-1", "not json")
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), "conv-1", intake.SenderBot, "hello"))

	history, err := store.History(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, []intake.ChatEntry{{Sender: intake.SenderBot, Message: "hello"}}, history)
}

func TestStoreErrors(t *testing.T) {
	store, mr := newTestStore(t)
	assert.Error(t, store.Append(context.Background(), "", intake.SenderBot, "x"))
	_, err := store.History(context.Background(), "")
	assert.Error(t, err)

	mr.Close()
	assert.Error(t, store.Append(context.Background(), "conv-1", intake.SenderBot, "x"))
}

func TestNilStoreIsNoop(t *testing.T) {
	var store *Store
	assert.Nil(t, NewStore(nil, time.Hour))
	assert.NoError(t, store.Append(context.Background(), "conv-1", intake.SenderBot, "x"))
	history, err := store.History(context.Background(), "conv-1")
	assert.NoError(t, err)
	assert.Nil(t, history)
}
