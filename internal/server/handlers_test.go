package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/config"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/database"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/events"
)

func newHealthTestServer(t *testing.T, databases []*database.DB) *Server {
	t.Helper()
	return New(Config{
		Log:       zerolog.Nop(),
		Config:    &config.Config{DataDir: t.TempDir()},
		EventBus:  events.NewBus(zerolog.Nop()),
		Databases: databases,
	})
}

func openTestDB(t *testing.T, name string) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestHandleHealthReportsDatabases(t *testing.T) {
	bars := openTestDB(t, "bars")
	cache := openTestDB(t, "groupcache")
	s := newHealthTestServer(t, []*database.DB{bars, cache})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string            `json:"status"`
		Databases map[string]string `json:"databases"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Databases["bars"])
	assert.Equal(t, "ok", body.Databases["groupcache"])
}

func TestHandleHealthDegradesOnDatabaseFailure(t *testing.T) {
	bars := openTestDB(t, "bars")
	broken := openTestDB(t, "groupcache")
	require.NoError(t, broken.Close())

	s := newHealthTestServer(t, []*database.DB{bars, broken})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status    string            `json:"status"`
		Databases map[string]string `json:"databases"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Databases["bars"])
	assert.NotEqual(t, "ok", body.Databases["groupcache"])
}
