package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/carekeeper/internal/health"
	"github.com/dmitrijs2005/carekeeper/internal/httpapi"
	"github.com/dmitrijs2005/carekeeper/internal/models"
)

const shutdownTimeout = 5 * time.Second

func (a *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Serve runs the daemon: HTTP surface, gRPC health and the periodic backup,
// until ctx is done or a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	a.logger.Info(ctx, "Starting daemon...")
	a.initSignalHandler(ctx, cancelFunc)

	hs := health.NewServer(a.cfg.GRPCAddr, a.logger)
	a.onBackupRun = hs.SetBackupServing

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(a, a.metrics.Handler(), a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	updates, stop := a.status.Subscribe()
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logStatus(gctx, updates)
		return nil
	})

	g.Go(func() error {
		return hs.Run(gctx)
	})

	g.Go(func() error {
		go func() {
			<-gctx.Done()
			a.logger.Info(gctx, "Stopping HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		a.logger.Info(gctx, "Starting HTTP server", "address", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.runPeriodicBackup(gctx, a.cfg.BackupInterval)
		return nil
	})

	err := g.Wait()
	a.Flush()
	return err
}

// logStatus writes sync status changes to the log until ctx is done or
// updates is closed.
func (a *App) logStatus(ctx context.Context, updates <-chan models.SyncStatus) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			switch {
			case st.LastError != "":
				a.logger.Warn(ctx, "backup finished with errors", "error", st.LastError)
			case st.IsSyncing:
				a.logger.Debug(ctx, "backup progress", "progress", st.Progress)
			default:
				a.logger.Info(ctx, "backup finished", "last_sync", st.LastSyncTime)
			}
		}
	}
}
