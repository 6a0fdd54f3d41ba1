package migrator

import (
	"fmt"
	"sync"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/Polkamarkets/particle-bundler-server/core/backup"
	pkglogger "github.com/Polkamarkets/particle-bundler-server/pkg/logger"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

const completionKeyPrefix = "migration:"

// MigrationFunc rewrites stored data in place. It returns how many records it
// touched so the completion marker records the blast radius.
type MigrationFunc func(db storage.Storage) (int, error)

type Migration struct {
	Name     string
	Function MigrationFunc
}

// Migrator applies pending migrations once, at boot, before any store is
// built. When at least one migration is pending it snapshots the database
// first, so a bad migration is recoverable with the restore command.
// Completion markers live under migration:<name>.
type Migrator struct {
	db         storage.Storage
	migrations []Migration
	backup     *backup.Service
	logger     sdklogging.Logger
	mu         sync.Mutex
}

func NewMigrator(db storage.Storage, backup *backup.Service, migrations []Migration, logger sdklogging.Logger) *Migrator {
	return &Migrator{
		db:         db,
		migrations: migrations,
		backup:     backup,
		logger:     pkglogger.EnsureLogger(logger),
	}
}

// Register appends a migration. Order of registration is order of execution.
func (m *Migrator) Register(name string, fn MigrationFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.migrations = append(m.migrations, Migration{Name: name, Function: fn})
}

// Run applies every registered migration that has no completion marker yet.
// The first failure aborts the run; already-applied migrations keep their
// markers so a retry resumes where it stopped.
func (m *Migrator) Run() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	snapshot, err := m.backup.PerformBackup()
	if err != nil {
		return fmt.Errorf("pre-migration snapshot: %w", err)
	}
	m.logger.Info("pre-migration snapshot written", "path", snapshot, "pending", len(pending))

	for _, migration := range pending {
		m.logger.Info("applying migration", "name", migration.Name)

		updated, err := migration.Function(m.db)
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.Name, err)
		}

		marker := []byte(completionKeyPrefix + migration.Name)
		body := []byte(fmt.Sprintf("records=%d,ts=%d", updated, time.Now().UnixMilli()))
		if err := m.db.Set(marker, body); err != nil {
			return fmt.Errorf("record completion of %s: %w", migration.Name, err)
		}

		m.logger.Info("migration applied", "name", migration.Name, "records", updated)
	}

	return nil
}

func (m *Migrator) pending() ([]Migration, error) {
	var out []Migration
	for _, migration := range m.migrations {
		applied, err := m.db.Exist([]byte(completionKeyPrefix + migration.Name))
		if err != nil {
			return nil, fmt.Errorf("check completion of %s: %w", migration.Name, err)
		}
		if !applied {
			out = append(out, migration)
		}
	}
	return out, nil
}
