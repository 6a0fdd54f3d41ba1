package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/Polkamarkets/particle-bundler-server/storage"
)

// keepSnapshots bounds how many timestamped snapshot directories survive a
// periodic run. Pre-migration snapshots taken through PerformBackup directly
// are pruned by the same rule on the next periodic pass.
const keepSnapshots = 10

const snapshotNameLayout = "20060102-150405"

// Service takes full badger snapshots into timestamped directories under a
// configured root. The migrator uses it for its pre-migration snapshot; the
// bundler can additionally run it on an interval.
type Service struct {
	logger logging.Logger
	db     storage.Storage
	dir    string

	running bool
	every   time.Duration
	done    chan struct{}
}

func NewService(logger logging.Logger, db storage.Storage, dir string) *Service {
	return &Service{
		logger: logger,
		db:     db,
		dir:    dir,
		done:   make(chan struct{}),
	}
}

func (s *Service) StartPeriodicBackup(interval time.Duration) error {
	if s.running {
		return fmt.Errorf("backup service already running")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create backup root %s: %w", s.dir, err)
	}

	s.every = interval
	s.running = true
	go s.loop()

	s.logger.Infof("periodic backup every %v into %s", interval, s.dir)
	return nil
}

func (s *Service) StopPeriodicBackup() {
	if !s.running {
		return
	}
	s.running = false
	close(s.done)
}

func (s *Service) loop() {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			path, err := s.PerformBackup()
			if err != nil {
				s.logger.Error("periodic backup failed", "error", err)
				continue
			}
			s.logger.Info("periodic backup written", "path", path)
			if err := s.prune(); err != nil {
				s.logger.Error("pruning old snapshots failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

// PerformBackup writes one full snapshot and returns the backup file path.
func (s *Service) PerformBackup() (string, error) {
	snapDir := filepath.Join(s.dir, time.Now().UTC().Format(snapshotNameLayout))
	if err := os.MkdirAll(snapDir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir %s: %w", snapDir, err)
	}

	path := filepath.Join(snapDir, "badger.backup")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()

	// since=0 requests every version, a self-contained snapshot
	if _, err := s.db.Backup(context.Background(), f, 0); err != nil {
		return "", fmt.Errorf("badger backup: %w", err)
	}

	s.logger.Info("snapshot complete", "path", path)
	return path, nil
}

// prune removes the oldest snapshot directories beyond keepSnapshots. The
// timestamped names sort chronologically.
func (s *Service) prune() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	var snaps []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(snapshotNameLayout, e.Name()); err != nil {
			continue
		}
		snaps = append(snaps, e.Name())
	}
	if len(snaps) <= keepSnapshots {
		return nil
	}

	sort.Strings(snaps)
	for _, name := range snaps[:len(snaps)-keepSnapshots] {
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			return err
		}
	}
	return nil
}
