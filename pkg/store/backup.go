package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/batteryview/batteryview/pkg/log"
	"github.com/batteryview/batteryview/pkg/types"
)

// ExportBackup writes the battery's averaged and raw series as an indented
// JSON document.
func (s *Store) ExportBackup(batteryID string, w io.Writer) error {
	state := s.State()
	averaged, ok := state.Batteries[batteryID]
	if !ok {
		return fmt.Errorf("unknown battery: %s", batteryID)
	}

	backup := types.Backup{
		BatteryID:    batteryID,
		ExportedAt:   time.Now(),
		AveragedData: averaged,
		RawData:      state.RawBatteries[batteryID],
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup for %s: %w", batteryID, err)
	}
	return nil
}

// BackupFilename returns the timestamped name the backup document is saved
// under before a clear.
func BackupFilename(batteryID string, now time.Time) string {
	return fmt.Sprintf("%s_backup_%s.json", batteryID, now.UTC().Format("2006-01-02T15-04-05Z"))
}

// ClearBattery removes all data for the battery, optionally exporting a
// backup file into backupDir first. The clear is skipped if the backup
// cannot be written.
func (s *Store) ClearBattery(ctx context.Context, batteryID, backupDir string) error {
	if backupDir != "" {
		path := filepath.Join(backupDir, BackupFilename(batteryID, time.Now()))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create backup file: %w", err)
		}
		if err := s.ExportBackup(batteryID, f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write backup file: %w", err)
		}
		log.Ctx(ctx).InfoContext(ctx, "exported battery backup",
			slog.String("batteryID", batteryID),
			slog.String("path", path),
		)
	}

	s.Dispatch(ctx, ClearBatteryData{ID: batteryID})
	return nil
}
