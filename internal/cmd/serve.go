package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/netmap/internal/datasource"
	"github.com/MeKo-Tech/netmap/internal/search"
	"github.com/MeKo-Tech/netmap/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve clustered renderables, filters and events over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for API responses")
	serveCmd.Flags().Duration("status-interval", 250*time.Millisecond, "Push interval of the status stream")
	serveCmd.Flags().Duration("load-timeout", 2*time.Minute, "Timeout for the initial load of a region")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "Grace period for in-flight requests on shutdown")
	serveCmd.Flags().Duration("session-idle", 30*time.Minute, "Close map views idle for this long")
	serveCmd.Flags().Int("max-sessions", 1024, "Maximum live map views; the least recently used is closed first")
	serveCmd.Flags().Duration("region-ttl", time.Minute, "How long a loaded region dataset is shared by new views")
	serveCmd.Flags().Bool("pretty", false, "Indent JSON responses")
	serveCmd.Flags().Int("search-max-results", 200, "Maximum locations returned by a search")

	mustBind(serveCmd, "serve.addr", "addr")
	mustBind(serveCmd, "serve.cache_control", "cache-control")
	mustBind(serveCmd, "serve.status_interval", "status-interval")
	mustBind(serveCmd, "serve.load_timeout", "load-timeout")
	mustBind(serveCmd, "serve.shutdown_timeout", "shutdown-timeout")
	mustBind(serveCmd, "serve.session_idle", "session-idle")
	mustBind(serveCmd, "serve.max_sessions", "max-sessions")
	mustBind(serveCmd, "serve.region_ttl", "region-ttl")
	mustBind(serveCmd, "serve.pretty", "pretty")
	mustBind(serveCmd, "search.max_results", "search-max-results")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scfg := storeConfig()
	store, err := datasource.Open(ctx, scfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close store", "error", err)
		}
	}()

	searcher := search.NewKeywordSearcher(store, search.Config{
		MaxResults: viper.GetInt("search.max_results"),
		MaxZoom:    viper.GetInt("engine.max_zoom"),
		Logger:     logger,
	})

	srv := server.New(store, searcher, server.Config{
		Engine:         engineConfig(),
		CacheControl:   viper.GetString("serve.cache_control"),
		StatusInterval: viper.GetDuration("serve.status_interval"),
		LoadTimeout:    viper.GetDuration("serve.load_timeout"),
		SessionIdle:    viper.GetDuration("serve.session_idle"),
		MaxSessions:    viper.GetInt("serve.max_sessions"),
		RegionTTL:      viper.GetDuration("serve.region_ttl"),
		PrettyJSON:     viper.GetBool("serve.pretty"),
	}, logger)
	defer srv.Close()

	addr := viper.GetString("serve.addr")
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// Status streams end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	logger.Info("netmap server listening",
		"addr", addr,
		"store", scfg.Driver,
		"cache", scfg.Cache,
		"zoom_threshold", viper.GetFloat64("engine.zoom_threshold"),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Received interrupt signal, shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("serve.shutdown_timeout"))
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
