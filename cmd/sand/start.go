package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sand/internal/server"
	"sand/internal/transform"
)

func newStartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Serve the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().Int("port", 5524, "listen port (overrides server.addr)")
	return cmd
}

// serve runs the API until ctx is done, then drains in-flight requests for
// up to the configured shutdown timeout.
func (a *app) serve(ctx context.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	metricsHandler, flush, err := a.setupMetrics()
	if err != nil {
		return err
	}
	defer flush()

	c := a.cfg
	srv := server.New(server.Config{
		Addr:         c.Server.Addr,
		ReadTimeout:  c.Server.ReadTimeout.D(),
		WriteTimeout: c.Server.WriteTimeout.D(),
		MaxBodyBytes: c.Server.MaxBodyBytes,
		RateLimit:    c.Transform.RateLimit,
		Burst:        c.Transform.Burst,
		Metrics:      metricsHandler,
	}, st, transform.NewEngine(st, a.compiler(), a.log), a.log)
	hs := srv.HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening", "addr", hs.Addr, "storage", st.Kind())
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.Server.ShutdownTimeout.D())
		defer cancel()
		return hs.Shutdown(sctx)
	})
	return g.Wait()
}
