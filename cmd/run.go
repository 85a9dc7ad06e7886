package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/focuscoin/internal/adapters/activity"
	"github.com/bnema/focuscoin/internal/adapters/scheduler"
	"github.com/bnema/focuscoin/internal/domain"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const sessionReloadInterval = time.Minute

func newRunCmd(app *app) *cobra.Command {
	var (
		activityPath  string
		syncListen    string
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the economy daemon",
		Long:  "Run the economy daemon: read classifier reports as JSON lines, earn and spend on schedule, reload CLI-started sessions, and optionally serve sync and metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			input, closeInput, err := openActivity(cmd, activityPath)
			if err != nil {
				return err
			}
			defer closeInput()

			return runDaemon(ctx, app, input, daemonOptions{
				SyncListen:    syncListen,
				MetricsListen: metricsListen,
			})
		},
	}

	cmd.Flags().StringVar(&activityPath, "activity", "-", "JSON-lines activity stream; - reads stdin")
	cmd.Flags().StringVar(&syncListen, "sync-listen", app.cfg.SyncListen, "Serve sync on this address")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", app.cfg.MetricsListen, "Serve Prometheus metrics on this address")
	return cmd
}

type daemonOptions struct {
	SyncListen    string
	MetricsListen string
}

func openActivity(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open activity stream: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func runDaemon(ctx context.Context, app *app, input io.Reader, opts daemonOptions) error {
	log := app.log
	cfg := app.economy.Config()

	if snapshot, err := app.ledger.Balance(ctx); err == nil {
		app.metrics.SetBalance(snapshot.Balance)
	}

	jobs := scheduler.New(log.WithField("component", "scheduler"))
	if err := registerJobs(jobs, app, cfg.EarnInterval, cfg.SpendInterval); err != nil {
		return err
	}
	jobs.Start(ctx)
	defer jobs.Stop()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	fail := func(err error) {
		errOnce.Do(func() {
			runErr = err
			cancel()
		})
	}

	if opts.SyncListen != "" {
		srv, err := newSyncHTTPServer(ctx, app, opts.SyncListen)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveUntilDone(ctx, app, srv); err != nil {
				fail(err)
			}
		}()
	}

	if opts.MetricsListen != "" {
		router := mux.NewRouter()
		router.Handle("/metrics", app.metrics.Handler()).Methods(http.MethodGet)
		srv := &http.Server{Addr: opts.MetricsListen, Handler: router, ReadHeaderTimeout: 10 * time.Second}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveUntilDone(ctx, app, srv); err != nil {
				fail(err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		reader := activity.NewReader(app.now, log.WithField("component", "activity"))
		n, err := reader.Run(ctx, input, func(report domain.ActivityReport) {
			app.economy.ReportActivity(report)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("activity stream failed")
			return
		}
		log.WithField("reports", n).Info("activity stream closed")
	}()

	log.WithFields(logrus.Fields{
		"earn_interval":  cfg.EarnInterval,
		"spend_interval": cfg.SpendInterval,
	}).Info("daemon started")

	<-ctx.Done()
	wg.Wait()
	return runErr
}

func registerJobs(jobs *scheduler.Scheduler, app *app, earnEvery, spendEvery time.Duration) error {
	if err := jobs.Every("earn", earnEvery, func(ctx context.Context) error {
		result, err := app.economy.EarnTick(ctx)
		if err != nil {
			return err
		}
		if !result.Skipped {
			app.log.WithFields(logrus.Fields{
				"destination": result.Destination,
				"earned":      result.Earned,
			}).Debug("earn tick")
		}
		return nil
	}); err != nil {
		return err
	}

	if err := jobs.Every("spend", spendEvery, func(ctx context.Context) error {
		result, err := app.economy.SpendTick(ctx)
		if err != nil {
			return err
		}
		if result.Tick.Failures > 0 {
			app.log.WithField("failures", result.Tick.Failures).Warn("spend tick had session failures")
		}
		return nil
	}); err != nil {
		return err
	}

	if err := jobs.Every("reload", sessionReloadInterval, app.paywall.Restore); err != nil {
		return err
	}

	if app.cfg.SyncPeer != "" && app.cfg.SyncPeerURL != "" {
		return jobs.Every("sync", app.cfg.SyncInterval, func(ctx context.Context) error {
			_, err := syncOnce(ctx, app, app.cfg.SyncPeer, app.cfg.SyncPeerURL)
			return err
		})
	}
	return nil
}
