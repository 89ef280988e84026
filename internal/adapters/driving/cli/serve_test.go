package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

func TestApplyServeFlags(t *testing.T) {
	defer func() { serveAddr, serveStorage, serveDSN, serveRedis = "", "", "", "" }()

	s := domain.DefaultAppSettings()
	s.Storage.DSN = "old.db"
	serveAddr = ":9000"
	serveStorage = "memory"
	serveRedis = "localhost:6379"

	applyServeFlags(&s)

	assert.Equal(t, ":9000", s.Server.Addr)
	assert.Equal(t, domain.StorageMemory, s.Storage.Driver)
	assert.Empty(t, s.Storage.DSN)
	assert.Equal(t, "localhost:6379", s.Fanout.RedisAddr)
}

func TestApplyServeFlags_DSNOnly(t *testing.T) {
	defer func() { serveDSN = "" }()

	s := domain.DefaultAppSettings()
	serveDSN = "/tmp/other.db"

	applyServeFlags(&s)

	assert.Equal(t, domain.StorageSQLite, s.Storage.Driver)
	assert.Equal(t, "/tmp/other.db", s.Storage.DSN)
}

func TestBuildRelay_RequiresSecret(t *testing.T) {
	s := domain.DefaultAppSettings()
	s.Storage.Driver = domain.StorageMemory

	_, err := buildRelay(context.Background(), &s, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret is not set")
}

func TestBuildRelay_ShortSecret(t *testing.T) {
	s := domain.DefaultAppSettings()
	s.Server.JWTSecret = "short"

	_, err := buildRelay(context.Background(), &s, nil)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBuildRelay_Memory(t *testing.T) {
	s := domain.DefaultAppSettings()
	s.Server.JWTSecret = testSecret
	s.Storage.Driver = domain.StorageMemory

	r, err := buildRelay(context.Background(), &s, nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, r.Close()) }()

	srv := httptest.NewServer(r.server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuildRelay_UnknownDriver(t *testing.T) {
	s := domain.DefaultAppSettings()
	s.Server.JWTSecret = testSecret
	s.Storage.Driver = "mongo"

	_, err := buildRelay(context.Background(), &s, nil)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestOpenStorage_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")

	docs, members, closer, err := openStorage(context.Background(), domain.StorageSettings{
		Driver: domain.StorageSQLite,
		DSN:    path,
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, closer()) }()

	assert.NotNil(t, docs)
	assert.NotNil(t, members)
	assert.FileExists(t, path)
}

func TestOpenStorage_SQLiteDefaultPath(t *testing.T) {
	configDir = t.TempDir()
	defer func() { configDir = "" }()

	_, _, closer, err := openStorage(context.Background(), domain.StorageSettings{Driver: domain.StorageSQLite})
	require.NoError(t, err)
	defer func() { assert.NoError(t, closer()) }()

	assert.FileExists(t, filepath.Join(configDir, "data", "formsync.db"))
}

func TestOpenFanout_Memory(t *testing.T) {
	fan, err := openFanout(context.Background(), domain.FanoutSettings{})
	require.NoError(t, err)
	assert.NoError(t, fan.Close())
}

func TestRelay_CloseReportsErrors(t *testing.T) {
	var order []int
	r := &relay{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return assert.AnError },
	}}

	err := r.Close()

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []int{2, 1}, order)
}
