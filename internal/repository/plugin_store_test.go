package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Detector/internal/domain/models"
)

func openStore(t *testing.T) *BoltPluginStore {
	t.Helper()
	s, err := OpenBoltPluginStore(filepath.Join(t.TempDir(), "nested", "installed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltPluginStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	rec := models.InstalledPlugin{GUID: "g-1", Name: "risk", Version: "1.0.0", Path: "/tmp/g-1.bundle", InstalledAt: 1700000000000}
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	rec.Version = "1.1.0"
	require.NoError(t, s.Save(ctx, rec))
	got, err = s.Get(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", got.Version)
}

func TestBoltPluginStoreMissing(t *testing.T) {
	_, err := openStore(t).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrPluginNotFound)
}

func TestBoltPluginStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Save(ctx, models.InstalledPlugin{GUID: "b"}))
	require.NoError(t, s.Save(ctx, models.InstalledPlugin{GUID: "a"}))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].GUID)
	assert.Equal(t, "b", list[1].GUID)

	require.NoError(t, s.Delete(ctx, "a"))
	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].GUID)
}

func TestBoltPluginStoreRejectsEmptyGUID(t *testing.T) {
	assert.Error(t, openStore(t).Save(context.Background(), models.InstalledPlugin{Name: "x"}))
}

func TestBoltPluginStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "installed.db")

	s, err := OpenBoltPluginStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, models.InstalledPlugin{GUID: "g"}))
	require.NoError(t, s.Close())

	s, err = OpenBoltPluginStore(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Get(ctx, "g")
	assert.NoError(t, err)
}
