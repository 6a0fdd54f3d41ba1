package bundler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Polkamarkets/particle-bundler-server/core/backup"
	"github.com/Polkamarkets/particle-bundler-server/core/config"
	"github.com/Polkamarkets/particle-bundler-server/core/migrator"
	"github.com/Polkamarkets/particle-bundler-server/core/userop"
	"github.com/Polkamarkets/particle-bundler-server/metrics"
	"github.com/Polkamarkets/particle-bundler-server/migrations"
	"github.com/Polkamarkets/particle-bundler-server/storage"
	"github.com/Polkamarkets/particle-bundler-server/version"
)

type BundlerStatus string

const (
	initStatus     BundlerStatus = "init"
	runningStatus  BundlerStatus = "running"
	shutdownStatus BundlerStatus = "shutdown"
)

func RunWithConfig(configPath string) error {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		panic(fmt.Errorf("failed to parse config file %s, make sure it exists and is valid yaml: %w", configPath, err))
	}

	bundler, err := NewBundler(cfg)
	if err != nil {
		panic(fmt.Errorf("cannot initialize bundler from config: %w", err))
	}

	return bundler.Start(context.Background())
}

// Bundler owns the process lifecycle: storage, the operation lifecycle
// manager, the cleanup job and the metrics endpoint.
type Bundler struct {
	config *config.Config
	db     storage.Storage

	manager *userop.LifecycleManager
	txStore *userop.TransactionStore
	cleaner *userop.Cleaner

	metrics       *metrics.BundlerMetrics
	metricsServer *http.Server

	backup   *backup.Service
	migrator *migrator.Migrator

	cache *bigcache.BigCache

	status BundlerStatus
}

func NewBundler(c *config.Config) (*Bundler, error) {
	cache, err := bigcache.New(context.Background(), bigcache.Config{
		// number of shards (must be a power of 2)
		Shards: 1024,

		// time after which entry can be evicted
		LifeWindow: 120 * time.Minute,

		// Interval between removing expired entries (clean up).
		CleanWindow: 5 * time.Minute,

		// rps * lifeWindow, used only in initial memory allocation
		MaxEntriesInWindow: 1000 * 10 * 60,

		// max entry size in bytes, used only in initial memory allocation
		MaxEntrySize: 2048,

		// cache will not allocate more memory than this limit, value in MB
		HardMaxCacheSize: 1024,
	})
	if err != nil {
		panic("cannot initialize cache storage")
	}

	return &Bundler{
		config: c,
		cache:  cache,
		status: initStatus,
	}, nil
}

// Open and setup our database
func (b *Bundler) initDB() error {
	var err error
	b.db, err = storage.NewWithPath(b.config.DbPath)
	if err != nil {
		panic(err)
	}

	return b.db.Setup()
}

func (b *Bundler) initManager() error {
	b.txStore = userop.NewTransactionStore(b.db)
	b.metrics = metrics.NewBundlerMetrics(prometheus.DefaultRegisterer)

	b.manager = userop.NewLifecycleManager(b.db, b.config, b.txStore, b.config.Logger)
	b.manager.SetCache(b.cache)
	b.manager.SetMetrics(b.metrics)

	var err error
	b.cleaner, err = userop.NewCleaner(b.manager, b.db, b.config, b.config.Logger)
	return err
}

func (b *Bundler) migrate() {
	b.backup = backup.NewService(b.config.Logger, b.db, b.config.BackupDir)
	b.migrator = migrator.NewMigrator(b.db, b.backup, migrations.Migrations, b.config.Logger)
	if err := b.migrator.Run(); err != nil {
		b.config.Logger.Fatalf("failed to run migrations: %v", err)
	}
}

func (b *Bundler) startMetricsServer() {
	if b.config.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	b.metricsServer = &http.Server{Addr: b.config.MetricsAddr, Handler: mux}
	go func() {
		if err := b.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.config.Logger.Error("metrics server stopped", "error", err)
		}
	}()
	b.config.Logger.Infof("metrics exposed on %s/metrics", b.config.MetricsAddr)
}

// Manager exposes the lifecycle manager for embedding callers, the rpc and
// bundling pipelines run in a separate service and reach storage through it.
func (b *Bundler) Manager() *userop.LifecycleManager {
	return b.manager
}

func (b *Bundler) TransactionStore() *userop.TransactionStore {
	return b.txStore
}

func (b *Bundler) Start(ctx context.Context) error {
	logger := b.config.Logger
	logger.Infof("Starting bundler %s", version.Get())

	logger.Infof("Initialize Storage")
	if err := b.initDB(); err != nil {
		logger.Fatalf("failed to initialize storage: %v", err)
	}

	b.migrate()

	if err := b.initManager(); err != nil {
		logger.Fatalf("failed to initialize lifecycle manager: %v", err)
	}

	logger.Infof("Starting cleanup job")
	if err := b.cleaner.Start(); err != nil {
		logger.Fatalf("failed to start cleanup job: %v", err)
	}

	b.startMetricsServer()
	b.status = runningStatus

	// Setup wait signal
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan bool, 1)
	go func() {
		<-sigs
		done <- true
	}()

	<-done
	logger.Infof("Shutting down...")

	b.status = shutdownStatus
	if err := b.cleaner.Stop(); err != nil {
		logger.Error("cannot stop cleanup job", "error", err)
	}
	if b.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.metricsServer.Shutdown(shutdownCtx)
	}

	return b.db.Close()
}
