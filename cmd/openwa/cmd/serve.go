package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jdelaire/openwa/adapters/whatsapp_sender"
	"github.com/jdelaire/openwa/adapters/whatsapp_webhook"
	"github.com/jdelaire/openwa/core"
	"github.com/jdelaire/openwa/core/configwatch"
	"github.com/jdelaire/openwa/core/policy"
	"github.com/jdelaire/openwa/internal/config"
	"github.com/jdelaire/openwa/internal/echobot"
)

const (
	shutdownTimeout = 15 * time.Second
	reloadInterval  = 2 * time.Second
)

var (
	configPath string
	envFile    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook endpoint",
	Long: `Start the HTTP server that answers the Cloud API subscription handshake and
dispatches incoming messages to the bot's handlers.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "YAML config file (env vars override it)")
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := setupLogger(cfg.Env)

	bot := whatsapp_sender.New(cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneNumberID).
		WithBaseURL(cfg.WhatsApp.BaseURL).
		WithAPIVersion(cfg.WhatsApp.APIVersion)

	dispatcher := core.NewDispatcher(bot, logger,
		core.WithBackground(!cfg.Dispatch.Sync),
		core.WithMaxConcurrent(cfg.Dispatch.MaxConcurrent),
		core.WithCallbackTimeout(cfg.Dispatch.CallbackTimeout),
	)
	err = echobot.Register(dispatcher, logger,
		echobot.WithDownloadDir(cfg.Bot.DownloadDir),
		echobot.WithFlow(cfg.Bot.FlowID, cfg.Bot.FlowScreen),
	)
	if err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	pol, closeStore, err := buildPolicy(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	receiver := whatsapp_webhook.New(cfg.WhatsApp.VerifyToken, dispatcher, logger).
		WithAppSecret(cfg.WhatsApp.AppSecret).
		WithPolicy(pol)
	if cfg.WhatsApp.AppSecret == "" {
		logger.Warn("app secret not set, webhook signatures are not verified")
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.WebhookPath, receiver)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := core.NewServer(cfg.Addr(), mux, logger)
	if err := srv.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	logger.Info("openwa started",
		"version", Version,
		"path", cfg.WebhookPath,
		"background", !cfg.Dispatch.Sync,
		"phone_number_id", cfg.WhatsApp.PhoneNumberID,
	)

	if configPath != "" {
		reloader := core.NewReloader(pol, config.LoadAllowlist, cfg.Policy.AllowFrom, logger)
		watcher := configwatch.New(reloadInterval, logger)
		watcher.Watch(configPath, reloader.ReloadAllowlist)
		go watcher.Run(ctx)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("callbacks still running at shutdown")
	}

	logger.Info("openwa stopped")
	return nil
}

// buildPolicy creates the inbound policy with a Redis dedup store when
// configured. The returned func releases the store.
func buildPolicy(cfg *config.Config, logger *slog.Logger) (*policy.Policy, func(), error) {
	opts := []policy.Option{
		policy.WithAllowFrom(cfg.Policy.AllowFrom),
		policy.WithFreshnessWindow(cfg.Policy.FreshnessWindow),
	}
	closeStore := func() {}

	if cfg.Policy.RedisURL != "" {
		store, client, err := policy.NewRedisStoreFromURL(cfg.Policy.RedisURL, cfg.Policy.DedupTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis dedup store: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			// Dedup fails open, so an unreachable Redis only weakens it.
			logger.Warn("redis unreachable at startup", "error", err)
		}
		opts = append(opts, policy.WithSeenStore(store))
		closeStore = func() { client.Close() }
		logger.Info("dedup store", "backend", "redis", "ttl", cfg.Policy.DedupTTL)
	}

	if len(cfg.Policy.AllowFrom) == 0 {
		logger.Info("allowlist empty, accepting every sender")
	}
	return policy.New(opts...), closeStore, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setupLogger(env string) *slog.Logger {
	if env == config.EnvDev {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
