package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/promptlane/promptlane/internal/batch"
	"github.com/promptlane/promptlane/internal/config"
	"github.com/promptlane/promptlane/internal/gateway"
	"github.com/promptlane/promptlane/internal/server"
	"github.com/promptlane/promptlane/internal/settings"
	"github.com/promptlane/promptlane/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the batching API server",
	Long: `Start the HTTP server: the priority-lane dispatcher, the upstream LLM
gateway and the query/settings/analytics endpoints.

The upstream API key comes from the settings store (PUT /v1/settings), the
config file, or the environment, checked in that order.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	st := settings.NewStore(filepath.Join(cfg.Storage.DataDir, config.SettingsFile), cfg.Upstream.APIKey)
	chats := store.NewChatStore(filepath.Join(cfg.Storage.DataDir, config.ChatsFile))
	trace := store.NewTraceLog(cfg.Storage.LogDir)

	gw := gateway.New(cfg.Upstream.Model, st)
	gw.SetTraceLogger(trace)
	if cfg.Upstream.RequestsPerMinute > 0 {
		limiter := gateway.NewRateLimiter(cfg.Upstream.RequestsPerMinute)
		defer limiter.Close()
		gw.SetRateLimiter(limiter)
	}

	processor := batch.NewProcessor(gw, st)
	processor.SetChatStore(chats)
	processor.SetRequestLogger(trace)
	processor.SetWorkerPool(batch.NewWorkerPool(cfg.Upstream.MaxConcurrentBatches))

	queue := batch.NewManager(processor)
	defer queue.Stop()

	srv := server.New(queue, st, chats, cfg.Server.StreamDelay.Duration, Version)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("model", cfg.Upstream.Model).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
