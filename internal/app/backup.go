package app

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/backup"
	"github.com/dmitrijs2005/carekeeper/internal/common"
	"github.com/dmitrijs2005/carekeeper/internal/models"
)

// Backup exports the local corpus to the backup provider. Only one run at
// a time is allowed per process; a concurrent call gets common.ErrBusy.
func (a *App) Backup(ctx context.Context) (backup.Result, error) {
	select {
	case a.backupGate <- struct{}{}:
	default:
		return backup.Result{}, common.ErrBusy
	}
	defer func() { <-a.backupGate }()

	res, err := a.backups.SyncAllData(ctx)
	if a.onBackupRun != nil {
		a.onBackupRun(!errors.Is(err, common.ErrNotAuthenticated))
	}
	return res, err
}

// InitBackup makes sure the root and users folders exist.
func (a *App) InitBackup(ctx context.Context) (backup.Folders, error) {
	return a.backups.InitializeSync(ctx)
}

// Restore reads the backup hierarchy. When apply is set the result is
// imported into the local stores.
func (a *App) Restore(ctx context.Context, apply bool) (models.Snapshot, error) {
	snap, err := a.backups.RestoreFromBackup(ctx)
	if err != nil {
		return snap, err
	}
	if apply {
		if err := a.Import(ctx, snap); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

// CleanupBackup removes duplicate folders and status files.
func (a *App) CleanupBackup(ctx context.Context) ([]backup.CleanupEntry, error) {
	return a.backups.CleanupHierarchy(ctx)
}

func (a *App) AuthCodeURL() (string, error) {
	if a.auth == nil {
		return "", errNoAuth
	}
	return a.auth.AuthCodeURL()
}

func (a *App) CompleteAuth(ctx context.Context, state, code string) error {
	if a.auth == nil {
		return errNoAuth
	}
	return a.auth.Exchange(ctx, state, code)
}

// Authenticated reports whether a backup provider session is stored.
func (a *App) Authenticated(ctx context.Context) (bool, error) {
	if a.auth == nil {
		return false, errNoAuth
	}
	return a.auth.Authenticated(ctx)
}

func (a *App) Logout(ctx context.Context) error {
	if a.auth == nil {
		return errNoAuth
	}
	return a.auth.Logout(ctx)
}

// runPeriodicBackup runs Backup every interval until ctx is done.
func (a *App) runPeriodicBackup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := a.Backup(ctx)
			switch {
			case err == nil:
				a.logger.Info(ctx, "periodic backup done", "users", res.TotalUsers, "records", res.TotalRecords)
			case errors.Is(err, common.ErrBusy):
				a.logger.Debug(ctx, "periodic backup skipped, previous run still active")
			case errors.Is(err, common.ErrNotAuthenticated):
				a.logger.Warn(ctx, "periodic backup needs re-authentication")
			default:
				a.logger.Error(ctx, "periodic backup failed", "error", err)
			}
		}
	}
}
