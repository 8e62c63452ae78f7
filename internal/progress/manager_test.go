package progress

import (
	"io"
	"path/filepath"
	"testing"

	"eorc20-indexer/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, path string) *Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m, err := NewManager(path, logger)
	require.NoError(t, err)
	return m
}

func TestManager_EmptyStore(t *testing.T) {
	m := newTestManager(t, filepath.Join(t.TempDir(), "progress.db"))
	defer m.Close()

	assert.Nil(t, m.LoadCursor())
	assert.Nil(t, m.GetProgress().Cursor)
	assert.NotContains(t, m.GetStats(), "cursor")
}

func TestManager_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "progress.db")
	m := newTestManager(t, path)

	require.NoError(t, m.SaveCursor(&models.Cursor{Token: "c1", BlockNumber: 10, EOSBlockNumber: 300, Timestamp: 1700000000}))
	require.NoError(t, m.SaveCursor(&models.Cursor{Token: "c2", BlockNumber: 11, EOSBlockNumber: 302, Timestamp: 1700000001}))

	cursor := m.LoadCursor()
	require.NotNil(t, cursor)
	assert.Equal(t, "c2", cursor.Token)
	assert.False(t, cursor.UpdatedAt.IsZero())

	info := m.GetProgress()
	assert.Equal(t, uint64(2), info.TotalBlocks)
	assert.False(t, info.StartTime.IsZero())

	stats := m.GetStats()
	assert.Equal(t, "c2", stats["cursor"])
	assert.Equal(t, uint64(11), stats["block_number"])
	require.NoError(t, m.Close())

	// 重启后读取同一个游标
	m = newTestManager(t, path)
	defer m.Close()
	cursor = m.LoadCursor()
	require.NotNil(t, cursor)
	assert.Equal(t, "c2", cursor.Token)
	assert.Equal(t, uint64(11), cursor.BlockNumber)
	assert.Equal(t, uint64(302), cursor.EOSBlockNumber)
	assert.Equal(t, path, m.GetDBPath())
}

func TestManager_LoadCursorReturnsCopy(t *testing.T) {
	m := newTestManager(t, filepath.Join(t.TempDir(), "progress.db"))
	defer m.Close()

	require.NoError(t, m.SaveCursor(&models.Cursor{Token: "c1"}))
	c := m.LoadCursor()
	c.Token = "mutated"
	assert.Equal(t, "c1", m.LoadCursor().Token)
}

func TestManager_RejectsEmptyCursor(t *testing.T) {
	m := newTestManager(t, filepath.Join(t.TempDir(), "progress.db"))
	defer m.Close()

	assert.Error(t, m.SaveCursor(nil))
	assert.Error(t, m.SaveCursor(&models.Cursor{BlockNumber: 5}))
	assert.Nil(t, m.LoadCursor())
}

func TestManager_Reset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	m := newTestManager(t, path)

	require.NoError(t, m.SaveCursor(&models.Cursor{Token: "c1", BlockNumber: 1}))
	require.NoError(t, m.Reset())
	assert.Nil(t, m.LoadCursor())
	assert.Equal(t, uint64(0), m.GetProgress().TotalBlocks)
	require.NoError(t, m.Close())

	m = newTestManager(t, path)
	defer m.Close()
	assert.Nil(t, m.LoadCursor())
}

func TestManager_SaveAfterCloseFails(t *testing.T) {
	m := newTestManager(t, filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, m.SaveCursor(&models.Cursor{Token: "c1"}))
	require.NoError(t, m.Close())

	assert.Error(t, m.SaveCursor(&models.Cursor{Token: "c2"}))
	assert.Equal(t, "c1", m.LoadCursor().Token, "写入失败时缓存不变")
}
