package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/batteryview/batteryview/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportBackup(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2024, 1, 15, 14, 5, 0, 0, time.Local)
	s := New()
	s.Dispatch(ctx, AddDataPoint{BatteryID: "BAT-1", Point: rawPoint("BAT-1", ts, 80)})

	t.Run("writes both series", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, s.ExportBackup("BAT-1", &buf))

		var doc map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
		assert.Contains(t, doc, "batteryId")
		assert.Contains(t, doc, "exportedAt")
		assert.Contains(t, doc, "averagedData")
		assert.Contains(t, doc, "rawData")

		var backup types.Backup
		require.NoError(t, json.Unmarshal(buf.Bytes(), &backup))
		assert.Equal(t, "BAT-1", backup.BatteryID)
		require.Len(t, backup.AveragedData, 1)
		require.Len(t, backup.RawData, 1)
		assert.Equal(t, 80.0, backup.AveragedData[0].SOC)
	})

	t.Run("unknown battery errors", func(t *testing.T) {
		var buf bytes.Buffer
		err := s.ExportBackup("BAT-9", &buf)
		assert.Error(t, err)
	})
}

func TestBackupFilename(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 30, 5, 0, time.UTC)
	assert.Equal(t, "BAT-1_backup_2024-01-15T14-30-05Z.json", BackupFilename("BAT-1", now))
}

func TestClearBattery(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2024, 1, 15, 14, 5, 0, 0, time.Local)

	t.Run("backs up before clearing", func(t *testing.T) {
		s := New()
		s.Dispatch(ctx, AddDataPoint{BatteryID: "BAT-1", Point: rawPoint("BAT-1", ts, 80)})
		dir := t.TempDir()

		require.NoError(t, s.ClearBattery(ctx, "BAT-1", dir))
		assert.NotContains(t, s.State().Batteries, "BAT-1")

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
		require.NoError(t, err)
		var backup types.Backup
		require.NoError(t, json.Unmarshal(data, &backup))
		assert.Equal(t, "BAT-1", backup.BatteryID)
	})

	t.Run("failed backup skips the clear", func(t *testing.T) {
		s := New()
		s.Dispatch(ctx, AddDataPoint{BatteryID: "BAT-1", Point: rawPoint("BAT-1", ts, 80)})

		err := s.ClearBattery(ctx, "BAT-1", filepath.Join(t.TempDir(), "missing", "dir"))
		require.Error(t, err)
		assert.Contains(t, s.State().Batteries, "BAT-1")
	})

	t.Run("clear without backup dir", func(t *testing.T) {
		s := New()
		s.Dispatch(ctx, AddDataPoint{BatteryID: "BAT-1", Point: rawPoint("BAT-1", ts, 80)})
		require.NoError(t, s.ClearBattery(ctx, "BAT-1", ""))
		assert.NotContains(t, s.State().Batteries, "BAT-1")
	})
}
