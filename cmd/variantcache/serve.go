package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/variant-cache/server"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve image variants over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	svc, ins, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := server.New(svc, cfg.Server, logger, ins.registry)
	logger.InfoContext(ctx, "server.start",
		"addr", cfg.Server.Addr,
		"route_prefix", cfg.Server.RoutePrefix,
		"image_root", cfg.ImageRoot,
		"cache_dir", cfg.CacheDir,
		"backend", cfg.Backend,
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	st := svc.Stats()
	logger.Info("server.stopped", "served", st.Served, "failed", st.Failed, "generated", st.Generated)
	return nil
}
