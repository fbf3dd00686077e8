package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinic-crm/internal/config"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true))
	assert.Nil(t, BuildRedisClient(context.Background(), nil, nil, true))
}

func TestBuildRedisClientVerifiesConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	require.NotNil(t, client)
	defer client.Close()
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestBuildRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &appconfig.Config{RedisAddr: addr}
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.New("error"), true))
	assert.NotNil(t, BuildRedisClient(context.Background(), cfg, logging.New("error"), false))
}

func TestConnectDatabaseSkippedWithoutURL(t *testing.T) {
	db, err := ConnectDatabase(context.Background(), &appconfig.Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, db)
	db.Close()
}

func TestBuildStoresInMemory(t *testing.T) {
	stores := BuildStores(nil)
	assert.Equal(t, "memory", stores.Backend)
	assert.NotNil(t, stores.Appointments)
	assert.NotNil(t, stores.Patients)
	assert.NotNil(t, stores.Notifications)
	assert.NotNil(t, stores.Processed)
}
