package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bnema/focuscoin/internal/adapters/syncbridge"
	"github.com/bnema/focuscoin/internal/application"
	"github.com/bnema/focuscoin/internal/ports"
	"github.com/spf13/cobra"
)

var errNoSyncPeer = errors.New("no sync peer configured; pass --peer and --url or set sync.peer and sync.peer_url")

func newSyncCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Exchange ledger transactions with another device",
	}

	cmd.AddCommand(
		newSyncServeCmd(app),
		newSyncPullCmd(app),
		newSyncTokenCmd(app),
	)

	return cmd
}

func newSyncServeCmd(app *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve this device's ledger to paired peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				return errors.New("sync serve needs --listen or sync.listen")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := newSyncHTTPServer(ctx, app, listen)
			if err != nil {
				return err
			}
			return serveUntilDone(ctx, app, srv)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", app.cfg.SyncListen, "Address to listen on")
	return cmd
}

func newSyncPullCmd(app *app) *cobra.Command {
	var (
		peer   string
		url    string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Push local transactions to a peer and merge the peer's",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, client, err := dialSyncPeer(cmd.Context(), app, peer, url)
			if err != nil {
				return err
			}
			exchange := func(ctx context.Context, p ports.SyncPeer) (application.SyncReport, error) {
				return syncWith(ctx, app, name, p)
			}

			if asJSON {
				report, err := exchange(cmd.Context(), client)
				if err != nil {
					return err
				}
				return writeJSON(cmd, report)
			}

			report, err := runSyncProgress(cmd.Context(), cmd.ErrOrStderr(), name, client, exchange)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: pushed %d, applied %d, duplicates %d, dropped %d\n",
				report.Peer, report.Pushed, report.Pulled.Applied, report.Pulled.Duplicates, report.Pulled.Dropped)
			return err
		},
	}

	cmd.Flags().StringVar(&peer, "peer", app.cfg.SyncPeer, "Peer name, used for its token and cursor")
	cmd.Flags().StringVar(&url, "url", app.cfg.SyncPeerURL, "Peer base URL")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSyncTokenCmd(app *app) *cobra.Command {
	var rotate bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the token peers must present to this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				token string
				err   error
			)
			if rotate {
				token, err = app.pairing.RotateServerToken(cmd.Context())
			} else {
				token, err = app.pairing.ServerToken(cmd.Context())
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().BoolVar(&rotate, "rotate", false, "Replace the token; paired peers must be updated")
	cmd.AddCommand(&cobra.Command{
		Use:   "set-peer <peer> <token>",
		Short: "Store the token printed by a peer's `fc sync token`",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.pairing.SetPeerToken(cmd.Context(), args[0], args[1])
		},
	}, &cobra.Command{
		Use:   "forget-peer <peer>",
		Short: "Drop the stored token for a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.pairing.ForgetPeer(cmd.Context(), args[0])
		},
	})

	return cmd
}

func syncOnce(ctx context.Context, app *app, peer, url string) (application.SyncReport, error) {
	name, client, err := dialSyncPeer(ctx, app, peer, url)
	if err != nil {
		return application.SyncReport{}, err
	}
	return syncWith(ctx, app, name, client)
}

func dialSyncPeer(ctx context.Context, app *app, peer, url string) (string, ports.SyncPeer, error) {
	peer = strings.TrimSpace(peer)
	if peer == "" || strings.TrimSpace(url) == "" {
		return "", nil, errNoSyncPeer
	}

	token, err := app.pairing.PeerToken(ctx, peer)
	if err != nil {
		return "", nil, err
	}
	return peer, syncbridge.NewClient(url, token, nil), nil
}

func syncWith(ctx context.Context, app *app, name string, peer ports.SyncPeer) (application.SyncReport, error) {
	report, err := app.sync.SyncWith(ctx, name, peer)
	if err != nil {
		return application.SyncReport{}, err
	}
	app.metrics.RecordSync(report.Pulled.Applied, report.Pulled.Duplicates, report.Pulled.Dropped)
	return report, nil
}

func newSyncHTTPServer(ctx context.Context, app *app, listen string) (*http.Server, error) {
	token, err := app.pairing.ServerToken(ctx)
	if err != nil {
		return nil, err
	}

	handler := syncbridge.NewServer(app.sync, syncbridge.ServerOptions{
		Token: token,
		OnMerge: func(report application.MergeReport) {
			app.metrics.RecordSync(report.Applied, report.Duplicates, report.Dropped)
		},
		Log: app.log.WithField("component", "sync"),
	}).Handler()

	return &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down.
func serveUntilDone(ctx context.Context, app *app, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		app.log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
	}
	return nil
}
