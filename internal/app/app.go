// Package app wires the local stores, the per-type sync engines, the
// migration engine and the backup pipeline into one orchestrator that the
// CLI commands and the daemon drive. The orchestrator owns the sync status.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/backup"
	"github.com/dmitrijs2005/carekeeper/internal/cloudsync"
	"github.com/dmitrijs2005/carekeeper/internal/config"
	"github.com/dmitrijs2005/carekeeper/internal/filex"
	"github.com/dmitrijs2005/carekeeper/internal/kv"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/metrics"
	"github.com/dmitrijs2005/carekeeper/internal/migration"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/objectstore"
	"github.com/dmitrijs2005/carekeeper/internal/records"
	"github.com/dmitrijs2005/carekeeper/internal/status"
)

var errNoAuth = errors.New("backup provider is not configured")

// Deps are the external systems the orchestrator runs against.
type Deps struct {
	KV       kv.Repository
	Objects  objectstore.Store
	Provider backup.Provider
	// Auth is optional; without it the OAuth operations fail.
	Auth    *backup.Authenticator
	Logger  logging.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type App struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	kv       kv.Repository
	stores   []*records.Store
	engines  map[models.RecordType]*cloudsync.Engine
	owners   *records.OwnerStore
	migrator *migration.Engine
	auth     *backup.Authenticator
	backups  *backup.FolderManager
	status   *status.Tracker

	backupGate  chan struct{}
	onBackupRun func(authenticated bool)

	closers []func() error
}

// New opens the configured local cache, object store and backup provider.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.New(logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
		Level:      cfg.LogLevel,
	})

	if cfg.DatabaseDriver == "sqlite" && cfg.DatabaseDSN != ":memory:" && !strings.HasPrefix(cfg.DatabaseDSN, "file:") {
		if err := filex.EnsureDir(filepath.Dir(cfg.DatabaseDSN)); err != nil {
			return nil, fmt.Errorf("local cache init error: %w", err)
		}
	}

	store, err := kv.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("local cache init error: %w", err)
	}

	objects, err := objectstore.NewS3(ctx, objectstore.S3Config{
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3RootUser,
		SecretKey:    cfg.S3RootPassword,
		BaseEndpoint: cfg.S3BaseEndpoint,
		Bucket:       cfg.S3Bucket,
		PresignTTL:   cfg.PresignTTL,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	tokens := backup.NewKVTokenStore(store, cfg.AppPrefix, cfg.SecretKey)
	auth := backup.NewAuthenticator(backup.AuthConfig{
		ClientID:     cfg.BackupClientID,
		ClientSecret: cfg.BackupClientSecret,
		AuthURL:      cfg.BackupAuthURL,
		TokenURL:     cfg.BackupTokenURL,
		RedirectURL:  cfg.BackupRedirectURL,
		StateSecret:  cfg.SecretKey,
	}, tokens, logger)

	a := Assemble(cfg, Deps{
		KV:       store,
		Objects:  objects,
		Provider: backup.NewDriveClient(cfg.BackupAPIBaseURL, auth),
		Auth:     auth,
		Logger:   logger,
		Metrics:  metrics.New(),
	})
	a.closers = append(a.closers, store.Close)
	return a, nil
}

// Assemble builds the orchestrator over already-opened dependencies.
func Assemble(cfg *config.Config, d Deps) *App {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	a := &App{
		cfg:        cfg,
		logger:     d.Logger.With("module", "app"),
		metrics:    d.Metrics,
		now:        d.Now,
		kv:         d.KV,
		engines:    make(map[models.RecordType]*cloudsync.Engine),
		auth:       d.Auth,
		status:     status.NewTracker(),
		backupGate: make(chan struct{}, 1),
	}

	for _, t := range models.RecordTypes() {
		s := records.NewStore(d.KV, cfg.AppPrefix, t, d.Logger, records.WithClock(d.Now))
		e := cloudsync.New(s, d.Objects, d.Logger, cloudsync.WithMetrics(d.Metrics), cloudsync.WithClock(d.Now))
		s.SetMirror(e)
		s.SetPuller(e)
		a.stores = append(a.stores, s)
		a.engines[t] = e
	}

	a.owners = records.NewOwnerStore(d.KV, d.Objects, cfg.AppPrefix, a.stores, d.Logger, records.WithClock(d.Now))
	a.migrator = migration.New(d.Objects, d.Logger, migration.WithMetrics(d.Metrics))
	a.backups = backup.NewFolderManager(d.Provider, cfg.BackupRootFolder, d.Logger,
		backup.WithSnapshotSource(a),
		backup.WithProgress(a.status.Update),
		backup.WithMetrics(d.Metrics),
		backup.WithClock(d.Now),
	)
	return a
}

// Store returns the record store for t.
func (a *App) Store(t models.RecordType) (*records.Store, error) {
	for _, s := range a.stores {
		if s.Type() == t {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", errUnknownType, t)
}

var errUnknownType = errors.New("no store for record type")

func (a *App) Engine(t models.RecordType) *cloudsync.Engine {
	return a.engines[t]
}

func (a *App) Owners() *records.OwnerStore {
	return a.owners
}

func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Status is the current backup sync status.
func (a *App) Status() models.SyncStatus {
	return a.status.Get()
}

// Flush waits for every background cloud mirror started so far.
func (a *App) Flush() {
	for _, s := range a.stores {
		s.Flush()
	}
	a.owners.Flush()
}

// Close flushes pending mirrors and releases the local cache.
func (a *App) Close() error {
	a.Flush()
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
