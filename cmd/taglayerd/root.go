package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"taglayer/internal/client"
	"taglayer/internal/config"
	"taglayer/internal/httpapi"
	"taglayer/internal/loader"
	"taglayer/pkg/types"
)

func newRootCmd() *cobra.Command {
	var (
		cfgPath   string
		addr      string
		logLevel  string
		sourceIDs []string
	)

	root := &cobra.Command{
		Use:           "taglayerd",
		Short:         "Event layer and tag loading daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.Config
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			// Flags override file values.
			if addr != "" {
				cfg.Addr = addr
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			for _, id := range sourceIDs {
				cfg.Sources = append(cfg.Sources, types.Source{ID: id})
			}
			if cfg.Addr == "" {
				cfg.Addr = ":8080"
			}
			return runServe(cfg)
		},
	}

	root.Flags().StringVarP(&cfgPath, "config", "c", os.Getenv("TAGLAYER_CONFIG"), "Path to config file (.yaml/.json/.toml)")
	root.Flags().StringVar(&addr, "addr", os.Getenv("TAGLAYER_ADDR"), "HTTP listen address, e.g. :8080")
	root.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error")
	root.Flags().StringSliceVar(&sourceIDs, "source", nil, "Source id to load (repeatable)")
	return root
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
}

func runServe(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)

	c, err := client.New(client.Config{
		Sources:     cfg.Sources,
		LayerName:   cfg.LayerName,
		SizeCeiling: cfg.SizeCeiling,
		Host:        cfg.Host,
		Entrypoint:  cfg.Entrypoint,
		MaxRetries:  cfg.MaxRetries,
		Document:    loader.NewMemoryDocument(),
		Logger:      &log,
		OnLoadFailure: func(st types.LoadState) {
			log.Warn().Str("source", st.SourceID).Str("status", string(st.Status)).
				Str("error", st.Error).Msg("source load failed")
		},
	})
	if err != nil {
		return err
	}
	if err := c.Init(); err != nil {
		return err
	}
	c.OnReady(func(states []types.LoadState) {
		log.Info().Int("sources", len(states)).Msg("all sources settled")
	})

	httpapi.SetLogger(log)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)
	mux := httpapi.MetricsMiddleware(httpapi.NewMux(c))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("instance", c.InstanceID()).Msg("taglayerd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	c.NotifyUnload()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	c.Teardown()
	return nil
}
