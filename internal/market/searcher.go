package market

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/farmappraiser/internal/cache"
	"github.com/hitoshi/farmappraiser/internal/listing"
	"github.com/hitoshi/farmappraiser/internal/metrics"
	"github.com/hitoshi/farmappraiser/internal/model"
)

// Searcher はキャッシュと検索戦略を組み合わせて出品一覧を取得する。
// 1リクエスト内の処理は逐次で、出品サイトへの通信は同時に1つまで。
type Searcher struct {
	source     listing.Source
	cache      cache.Store
	strategies []Strategy
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewSearcher はSearcherの新しいインスタンスを生成する。
func NewSearcher(source listing.Source, store cache.Store, logger *slog.Logger, mc metrics.MetricsCollector) *Searcher {
	if store == nil {
		store = cache.Disabled{}
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Searcher{
		source:     source,
		cache:      store,
		strategies: DefaultStrategies(),
		logger:     logger,
		metrics:    mc,
	}
}

// Search は (make, model) の出品一覧を返す。
//
// キャッシュにヒットした場合は通信せずにそのまま返す。ミスの場合は戦略を優先順に試し、
// 最初に1件以上得られた結果を採用してキャッシュに1回だけ書き込む。
// 現地語の識別情報を持つ検索（画像識別経由）では各戦略の結果にFilterを適用する。
// 出品サイトの取得失敗はその戦略の結果0件として扱い、次の戦略に進む。
// makeまたはmodelが空の場合は通信せずに空の一覧を返す。
func (s *Searcher) Search(ctx context.Context, q model.MarketQuery) []model.Listing {
	q = q.Normalize()
	if q.Make == "" || q.Model == "" {
		return []model.Listing{}
	}

	if cached, ok := s.cache.Get(ctx, q.Make, q.Model); ok && len(cached) > 0 {
		s.logger.Info("価格キャッシュにヒットしました",
			slog.String("make", q.Make),
			slog.String("model", q.Model),
			slog.Int("listing_count", len(cached)),
		)
		return cached
	}

	filtered := q.Localized()
	fc := filterContextOf(q)

	for _, st := range s.strategies {
		if ctx.Err() != nil {
			break
		}
		terms, ok := st.Terms(q)
		if !ok {
			continue
		}

		start := time.Now()
		raw, err := s.source.Search(ctx, terms)
		if err != nil {
			s.metrics.RecordStrategyOutcome(st.Name, metrics.OutcomeError)
			s.logger.Warn("検索戦略の実行に失敗しました（次の戦略に進みます）",
				slog.String("strategy", st.Name),
				slog.Any("terms", terms),
				slog.String("error", err.Error()),
			)
			continue
		}

		results := raw
		if filtered {
			results = Filter(raw, fc)
		}

		s.logger.Info("検索戦略を実行しました",
			slog.String("strategy", st.Name),
			slog.Any("terms", terms),
			slog.Int("raw_count", len(raw)),
			slog.Int("listing_count", len(results)),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)

		if len(results) == 0 {
			outcome := metrics.OutcomeEmpty
			if len(raw) > 0 {
				outcome = metrics.OutcomeFiltered
			}
			s.metrics.RecordStrategyOutcome(st.Name, outcome)
			continue
		}

		s.metrics.RecordStrategyOutcome(st.Name, metrics.OutcomeHit)
		s.cache.Put(ctx, q.Make, q.Model, results)
		return results
	}

	s.logger.Info("出品が見つかりませんでした",
		slog.String("make", q.Make),
		slog.String("model", q.Model),
	)
	return []model.Listing{}
}
