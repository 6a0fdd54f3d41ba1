package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Polkamarkets/particle-bundler-server/core/testutil"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

func TestBackup(t *testing.T) {
	t.Run("StartPeriodicBackup", func(t *testing.T) {
		db := testutil.TestMustDB()
		defer storage.Destroy(db.(*storage.BadgerStorage))

		service := NewService(testutil.GetLogger(), db, t.TempDir())

		if err := service.StartPeriodicBackup(1 * time.Hour); err != nil {
			t.Fatalf("Failed to start periodic backup: %v", err)
		}
		if !service.running {
			t.Error("service should be running after start")
		}

		// a second start must be rejected
		if err := service.StartPeriodicBackup(1 * time.Hour); err == nil {
			t.Error("starting twice should return an error")
		}

		service.StopPeriodicBackup()
		if service.running {
			t.Error("service should not be running after stop")
		}

		// stopping when not running is a no-op
		service.StopPeriodicBackup()
	})

	t.Run("PerformBackup", func(t *testing.T) {
		db := testutil.TestMustDB()
		defer storage.Destroy(db.(*storage.BadgerStorage))

		service := NewService(testutil.GetLogger(), db, t.TempDir())

		path, err := service.PerformBackup()
		if err != nil {
			t.Fatalf("Failed to perform backup: %v", err)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("backup file %s does not exist", path)
		}
	})

	t.Run("PruneKeepsNewest", func(t *testing.T) {
		db := testutil.TestMustDB()
		defer storage.Destroy(db.(*storage.BadgerStorage))

		dir := t.TempDir()
		service := NewService(testutil.GetLogger(), db, dir)

		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < keepSnapshots+3; i++ {
			name := base.Add(time.Duration(i) * time.Minute).Format(snapshotNameLayout)
			if err := os.MkdirAll(filepath.Join(dir, name), 0755); err != nil {
				t.Fatal(err)
			}
		}
		// unrelated directory must survive pruning
		if err := os.MkdirAll(filepath.Join(dir, "notes"), 0755); err != nil {
			t.Fatal(err)
		}

		if err := service.prune(); err != nil {
			t.Fatalf("prune: %v", err)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		snaps := 0
		sawNotes := false
		for _, e := range entries {
			if e.Name() == "notes" {
				sawNotes = true
				continue
			}
			snaps++
		}
		if snaps != keepSnapshots {
			t.Errorf("expected %d snapshots after prune, got %d", keepSnapshots, snaps)
		}
		if !sawNotes {
			t.Error("unrelated directory was removed by prune")
		}

		// oldest three must be the ones gone
		oldest := base.Format(snapshotNameLayout)
		if _, err := os.Stat(filepath.Join(dir, oldest)); !os.IsNotExist(err) {
			t.Errorf("oldest snapshot %s should have been pruned", oldest)
		}
	})
}
