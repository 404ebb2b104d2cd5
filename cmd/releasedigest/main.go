package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/smckay/releasedigest/internal/adapter/driven/github"
	"github.com/smckay/releasedigest/internal/adapter/driven/llm"
	"github.com/smckay/releasedigest/internal/adapter/driven/llm/openai"
	"github.com/smckay/releasedigest/internal/adapter/driven/llm/zhipu"
	sqliteadapter "github.com/smckay/releasedigest/internal/adapter/driven/sqlite"
	httphandler "github.com/smckay/releasedigest/internal/adapter/driving/http"
	"github.com/smckay/releasedigest/internal/adapter/driving/web"
	"github.com/smckay/releasedigest/internal/application"
	"github.com/smckay/releasedigest/internal/config"
	"github.com/smckay/releasedigest/internal/domain/model"
	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"window_days", cfg.WindowDays,
		"llm_provider", cfg.LLMProvider,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	repoStore := sqliteadapter.NewRepoRepo(db)
	releaseStore := sqliteadapter.NewReleaseRepo(db)
	digestStore := sqliteadapter.NewDigestRepo(db)
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.EncryptionKey)

	// 6. Resolve credentials: stored credentials take priority over env vars.
	ghToken := resolveCredential(ctx, credentialStore, model.CredentialGitHubToken, cfg.GitHubToken)
	openaiKey := resolveCredential(ctx, credentialStore, model.CredentialOpenAIAPIKey, cfg.OpenAIAPIKey)
	zhipuKey := resolveCredential(ctx, credentialStore, model.CredentialZhipuAPIKey, cfg.ZhipuAPIKey)

	// 7. GitHub client. Without a token the client is anonymous, which GitHub
	// rate-limits to 60 requests per hour.
	ghProvider := application.NewGitHubClientProvider(githubadapter.NewClient(ghToken))
	if ghToken == "" {
		slog.Info("no github token configured, using anonymous client")
	}

	// 8. LLM summarizers. Providers without an API key stay unregistered
	// until a key is stored via the settings API.
	newSummarizer := func(provider, apiKey string) (driven.Summarizer, error) {
		switch provider {
		case "openai":
			return openai.NewClient(apiKey, cfg.OpenAIModel), nil
		case "zhipu":
			return zhipu.NewClient(apiKey, cfg.ZhipuModel), nil
		default:
			return nil, fmt.Errorf("unknown LLM provider %q", provider)
		}
	}
	summarizers := application.NewSummarizerProvider(cfg.LLMProvider)
	for provider, key := range map[string]string{"openai": openaiKey, "zhipu": zhipuKey} {
		if key == "" {
			continue
		}
		s, err := newSummarizer(provider, key)
		if err != nil {
			return err
		}
		summarizers.Replace(provider, s)
		slog.Info("llm provider configured", "provider", provider)
	}

	// 9. Application services.
	pollSvc := application.NewPollService(ghProvider, repoStore, releaseStore, cfg.PollInterval)
	go pollSvc.Start(ctx)

	digestSvc := application.NewDigestService(summarizers, releaseStore, digestStore, pollSvc, llm.Estimator{})
	digestSvc.Start(ctx, cfg.DigestWorkers)

	healthSvc := application.NewHealthService(db, repoStore, ghProvider, summarizers, pollSvc)

	credSvc := application.NewCredentialService(
		credentialStore,
		ghProvider,
		summarizers,
		func(token string) driven.GitHubClient { return githubadapter.NewClient(token) },
		newSummarizer,
	)

	// 10. HTTP handler: API routes plus the embedded front end.
	apiHandler := httphandler.NewHandler(
		ctx,
		repoStore, releaseStore, digestStore,
		digestSvc, pollSvc, healthSvc, credSvc,
		cfg.WindowDays, cfg.Language,
		slog.Default(),
	)
	mux := http.NewServeMux()
	httphandler.RegisterRoutes(mux, apiHandler)
	web.RegisterRoutes(mux)
	handler := httphandler.ApplyMiddleware(mux, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("releasedigest started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
		"digest_workers", cfg.DigestWorkers,
	)

	// 11. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// resolveCredential prefers a credential stored via the settings API over the
// environment value. Store errors (including a missing encryption key) fall
// back to the environment.
func resolveCredential(ctx context.Context, store driven.CredentialStore, service, envValue string) string {
	if stored, err := store.Get(ctx, service); err == nil && stored != "" {
		return stored
	}
	return envValue
}
