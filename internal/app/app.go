package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/farmappraiser/internal/appraisal"
	"github.com/hitoshi/farmappraiser/internal/cache"
	"github.com/hitoshi/farmappraiser/internal/config"
	"github.com/hitoshi/farmappraiser/internal/database"
	"github.com/hitoshi/farmappraiser/internal/handler"
	"github.com/hitoshi/farmappraiser/internal/identify"
	"github.com/hitoshi/farmappraiser/internal/listing"
	"github.com/hitoshi/farmappraiser/internal/logger"
	"github.com/hitoshi/farmappraiser/internal/market"
	"github.com/hitoshi/farmappraiser/internal/metrics"
	"github.com/hitoshi/farmappraiser/internal/repository"
	"github.com/hitoshi/farmappraiser/internal/security"
	"github.com/hitoshi/farmappraiser/internal/verify"
	"github.com/hitoshi/farmappraiser/internal/worker/cleanup"
)

// ErrDatabaseNotConfigured はDATABASE_URLが必要なコマンドで未設定の場合に返される。
var ErrDatabaseNotConfigured = errors.New("DATABASE_URL is not configured")

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルを反映する
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("invalid LOG_LEVEL, falling back to info", slog.String("error", err.Error()))
		_ = logger.SetLevel("info")
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("app_env", cfg.AppEnv),
		slog.Bool("identification_enabled", cfg.IdentificationEnabled()),
		slog.Bool("cache_enabled", cfg.CacheEnabled()),
		slog.Bool("verification_enabled", cfg.VerifyEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// components はserveモードで構築する依存関係一式。
type components struct {
	service  *appraisal.Service
	registry *prometheus.Registry
	metrics  *metrics.Collector
}

// buildComponents は設定に応じて各アダプタを構築し、査定サービスに組み立てる。
// 外部サービスの設定が欠けている場合は対応する無効化版を使用する。
// dbがnilの場合はキャッシュを無効化する。
func buildComponents(cfg *config.Config, db *sql.DB, log *slog.Logger) *components {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(registry)

	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	source := listing.NewYahooAuctions(ssrfGuard, ssrfGuard, sanitizer, listing.Config{
		Timeout:     cfg.ListingTimeout,
		MinDelay:    cfg.ListingMinDelay,
		MaxDelay:    cfg.ListingMaxDelay,
		RatePerSec:  cfg.ListingRatePerSec,
		IncludeSold: cfg.ListingIncludeSold,
	}, log, mc)

	var store cache.Store = cache.Disabled{}
	if db != nil {
		store = cache.NewRepoStore(repository.NewPostgresPriceCacheRepo(db), cfg.CacheTTL, log, mc)
	}

	var identifier identify.Identifier = identify.Disabled{}
	if cfg.IdentificationEnabled() {
		identifier = identify.NewGeminiClient(ssrfGuard, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.IdentifyTimeout, log)
	}

	var verifier verify.Verifier = verify.Disabled{}
	if cfg.VerifyEnabled {
		searcher := verify.NewDuckDuckGo(ssrfGuard, sanitizer, cfg.VerifyTimeout, log)
		verifier = verify.NewWebVerifier(searcher, cfg.VerifyMaxResults, log)
	}

	searcher := market.NewSearcher(source, store, log, mc)

	return &components{
		service:  appraisal.NewService(identifier, verifier, searcher, log, mc),
		registry: registry,
		metrics:  mc,
	}
}

// newRouter はcomponentsからHTTPルーターを構築する。
func newRouter(cfg *config.Config, c *components, log *slog.Logger) http.Handler {
	return handler.NewRouter(&handler.RouterDeps{
		Service:            c.service,
		MaxUploadSize:      cfg.MaxUploadSize,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             log,
		StatusRecorder:     c.metrics,
		MetricsHandler:     metrics.Handler(c.registry),
	})
}

// openCacheDB はキャッシュ用DB接続を開く。未設定の場合はnilを返す。
// 起動時に疎通できなくてもサーバーは起動し、キャッシュ操作は都度失敗してミス扱いになる。
func openCacheDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if !cfg.CacheEnabled() {
		slog.Info("cache store not configured, running without cache")
		return nil, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		slog.Warn("cache store is unreachable, continuing with degraded cache",
			slog.String("error", err.Error()),
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
	} else {
		slog.Info("cache store connection established")
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openCacheDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open cache store: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	log := slog.Default()
	router := newRouter(cfg, buildComponents(cfg, db, log), log)

	// 1リクエストで識別・検証・複数戦略の相場検索を逐次に行うため書き込みタイムアウトは長めに取る
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れキャッシュのクリーンアップをCLEANUP_INTERVAL間隔で実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if !cfg.CacheEnabled() {
		return ErrDatabaseNotConfigured
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(repository.NewPostgresPriceCacheRepo(db), cfg.CacheTTL, slog.Default())
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if !cfg.CacheEnabled() {
		return ErrDatabaseNotConfigured
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}
