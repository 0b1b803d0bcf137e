package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/farmappraiser/internal/middleware"
)

// APIVersion はルートエンドポイントで返すAPIバージョン。
const APIVersion = "1.0.0"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 査定
	Service       AppraisalServiceInterface
	MaxUploadSize int64

	// ミドルウェア依存
	CORSAllowedOrigins []string
	Logger             *slog.Logger
	StatusRecorder     middleware.StatusRecorder

	// MetricsHandler がnilの場合は/metricsを公開しない
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	h := NewAppraisalHandler(deps.Service, deps.MaxUploadSize, logger)

	r.Get("/", root)
	r.Get("/health", health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Post("/search", h.SearchPricesJSON)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search-prices", h.SearchPricesQuery)
		r.Post("/analyze-image", h.AnalyzeImage)
	})

	return r
}

func root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Farm Appraisal API is running",
		"version": APIVersion,
	})
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
