package libkvstore_test

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	libkv "github.com/chainwork/chainwork/libkvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/valkey"
)

func SetupLocalValKeyInstance(ctx context.Context) (string, testcontainers.Container, func(), error) {
	cleanup := func() {}

	container, err := valkey.Run(ctx, "docker.io/valkey/valkey:7.2.5")
	if err != nil {
		return "", nil, cleanup, err
	}

	cleanup = func() {
		timeout := time.Second
		_ = container.Stop(ctx, &timeout)
	}

	conn, err := container.ConnectionString(ctx)
	if err != nil {
		return "", container, cleanup, err
	}
	return conn, container, cleanup, nil
}

func setupExecutor(t *testing.T) (context.Context, libkv.KVExec) {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	connStr, _, cleanup, err := SetupLocalValKeyInstance(ctx)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	u, err := url.Parse(connStr)
	require.NoError(t, err)

	manager, err := libkv.NewManager(libkv.Config{KVAddr: u.Host}, 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	kv, err := manager.Executor(ctx)
	require.NoError(t, err)
	return ctx, kv
}

func TestUnit_ValkeyCRUD(t *testing.T) {
	ctx, kv := setupExecutor(t)

	key := "testkey"
	value := []byte(`"testvalue"`)

	err := kv.Set(ctx, key, value)
	require.NoError(t, err)

	retrieved, err := kv.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, value, retrieved)

	exists, err := kv.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	err = kv.Delete(ctx, key)
	require.NoError(t, err)

	_, err = kv.Get(ctx, key)
	assert.ErrorIs(t, err, libkv.ErrNotFound)

	exists, err = kv.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUnit_ValkeyTTL(t *testing.T) {
	ctx, kv := setupExecutor(t)

	key := "ttlkey"
	err := kv.SetWithTTL(ctx, key, []byte(`"ttlvalue"`), 2*time.Second)
	require.NoError(t, err)

	time.Sleep(3 * time.Second)

	_, err = kv.Get(ctx, key)
	assert.ErrorIs(t, err, libkv.ErrNotFound)
}

func TestUnit_ValkeyListOperations(t *testing.T) {
	ctx, kv := setupExecutor(t)

	listKey := "testlist"
	values := [][]byte{
		[]byte(`"item1"`),
		[]byte(`"item2"`),
		[]byte(`"item3"`),
	}

	for _, v := range values {
		require.NoError(t, kv.ListPush(ctx, listKey, v))
	}

	items, err := kv.ListRange(ctx, listKey, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, len(values), len(items))

	// ListPush prepends, so items come back in reverse insertion order.
	for i, expected := range []string{"item3", "item2", "item1"} {
		var actual string
		require.NoError(t, json.Unmarshal(items[i], &actual))
		assert.Equal(t, expected, actual)
	}

	popped, err := kv.ListRPop(ctx, listKey)
	require.NoError(t, err)

	var poppedValue string
	require.NoError(t, json.Unmarshal(popped, &poppedValue))
	assert.Equal(t, "item1", poppedValue)

	length, err := kv.ListLength(ctx, listKey)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)

	require.NoError(t, kv.ListTrim(ctx, listKey, 0, 0))
	length, err = kv.ListLength(ctx, listKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestUnit_ValkeySetOperations(t *testing.T) {
	ctx, kv := setupExecutor(t)

	setKey := "testset"
	members := [][]byte{
		[]byte(`"member1"`),
		[]byte(`"member2"`),
		[]byte(`"member3"`),
	}

	for _, m := range members {
		require.NoError(t, kv.SetAdd(ctx, setKey, m))
	}
	// Adding a duplicate leaves the set unchanged.
	require.NoError(t, kv.SetAdd(ctx, setKey, members[0]))

	setMembers, err := kv.SetMembers(ctx, setKey)
	require.NoError(t, err)
	assert.Equal(t, len(members), len(setMembers))

	memberMap := make(map[string]bool)
	for _, m := range setMembers {
		var s string
		require.NoError(t, json.Unmarshal(m, &s))
		memberMap[s] = true
	}
	for _, expected := range []string{"member1", "member2", "member3"} {
		assert.True(t, memberMap[expected])
	}
}
