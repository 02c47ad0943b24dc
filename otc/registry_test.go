package otc

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/otcAuth/store"
)

func newRedisRegistry(t *testing.T, ttl time.Duration) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRegistry(store.NewRedisStore(client), ttl), mr
}

func TestIssueAndLoad(t *testing.T) {
	r, mr := newRedisRegistry(t, 0)
	ctx := context.Background()

	code, err := r.Issue(ctx, 11, ConfirmAccount{})
	require.NoError(t, err)
	require.Len(t, code, CodeLength)
	require.Equal(t, DefaultTTL, mr.TTL(store.OTCKey(code)))

	entry, err := r.Load(ctx, code)
	require.NoError(t, err)
	require.Equal(t, int64(11), entry.UserID)
	require.Equal(t, ActionConfirmAccount, entry.Pending.Action())

	// Load does not consume.
	_, err = r.Load(ctx, code)
	require.NoError(t, err)

	require.NoError(t, r.Consume(ctx, code))
	_, err = r.Load(ctx, code)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadNormalizesInput(t *testing.T) {
	r, _ := newRedisRegistry(t, time.Minute)
	ctx := context.Background()

	code, err := r.Issue(ctx, 3, DeleteAccount{})
	require.NoError(t, err)

	entry, err := r.Load(ctx, "  "+strings.ToLower(code)+" ")
	require.NoError(t, err)
	require.Equal(t, code, entry.Code)

	_, err = r.Load(ctx, "bad")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadAfterTTL(t *testing.T) {
	r, mr := newRedisRegistry(t, time.Second)
	ctx := context.Background()

	code, err := r.Issue(ctx, 5, ConfirmAccount{})
	require.NoError(t, err)

	mr.FastForward(1100 * time.Millisecond)

	_, err = r.Load(ctx, code)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadMalformedPayload(t *testing.T) {
	r, mr := newRedisRegistry(t, time.Minute)
	require.NoError(t, mr.Set(store.OTCKey("QWERTY"), `{"otc":"QWERTY","user_id":1,"action":"Nope"}`))

	_, err := r.Load(context.Background(), "QWERTY")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestIssueRetriesOnCollision(t *testing.T) {
	r, mr := newRedisRegistry(t, time.Minute)
	require.NoError(t, mr.Set(store.OTCKey("AAAAAA"), "taken"))

	draws := []string{"AAAAAA", "BBBBBB"}
	r.newCode = func(int) (string, error) {
		next := draws[0]
		draws = draws[1:]
		return next, nil
	}

	code, err := r.Issue(context.Background(), 9, ConfirmAccount{})
	require.NoError(t, err)
	require.Equal(t, "BBBBBB", code)

	taken, err := mr.Get(store.OTCKey("AAAAAA"))
	require.NoError(t, err)
	require.Equal(t, "taken", taken)
}

func TestIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	r, mr := newRedisRegistry(t, time.Minute)
	require.NoError(t, mr.Set(store.OTCKey("AAAAAA"), "taken"))
	r.newCode = func(int) (string, error) { return "AAAAAA", nil }

	_, err := r.Issue(context.Background(), 9, ConfirmAccount{})
	require.ErrorIs(t, err, ErrCodeSpaceExhausted)
}

// mapStore implements only the base TokenStore contract.
type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *mapStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestIssueOnPlainStore(t *testing.T) {
	ms := &mapStore{data: map[string]string{}}
	r := NewRegistry(ms, time.Minute)
	ctx := context.Background()

	code, err := r.Issue(ctx, 4, UpdateAccount{Name: strptr("Alice B")})
	require.NoError(t, err)

	entry, err := r.Load(ctx, code)
	require.NoError(t, err)
	update, ok := entry.Pending.(UpdateAccount)
	require.True(t, ok)
	require.Equal(t, "Alice B", *update.Name)
}
