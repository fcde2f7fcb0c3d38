package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/casualjim/errand/internal/demo"
	"github.com/casualjim/errand/internal/metrics"
	"github.com/casualjim/errand/isolate"
	"github.com/casualjim/errand/pkg/natsx"
	"github.com/casualjim/errand/pkg/slogx"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type hostOptions struct {
	natsURL     string
	name        string
	metricsAddr string
}

func newHostCmd() *cobra.Command {
	var o hostOptions
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Serve isolated contexts for remote agents over NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHost(cmd.Context(), o)
		},
	}
	cmd.Flags().StringVar(&o.natsURL, "nats-url", natsx.URL(), "NATS server URL")
	cmd.Flags().StringVar(&o.name, "name", envOr("ERRAND_HOST", isolate.DefaultHost), "host name agents address")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", envOr("ERRAND_METRICS_ADDR", ":9090"), "address of the /metrics endpoint, empty to disable")
	return cmd
}

func runHost(ctx context.Context, o hostOptions) error {
	demo.Register()
	metrics.Register()

	nc, err := natsx.NewClient(o.natsURL)
	if err != nil {
		return err
	}
	defer nc.Close()

	host, err := isolate.NATSHost(nc, isolate.WithHost(o.name))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := host.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		host.Stop()
		return nil
	})

	if o.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: o.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			slog.Info("serving metrics", slog.String("addr", o.metricsAddr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("host stopped with error", slogx.Error(err))
		return err
	}
	if err := nc.Drain(); err != nil {
		slog.Warn("failed to drain nats connection", slogx.Error(err))
	}
	return nil
}
