// Package cache は (make, model) 単位の出品一覧キャッシュを提供する。
// キャッシュ障害は検索を失敗させない。読み込み失敗はミス、書き込み失敗は無視として扱う。
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/farmappraiser/internal/metrics"
	"github.com/hitoshi/farmappraiser/internal/model"
	"github.com/hitoshi/farmappraiser/internal/repository"
)

// Store は出品一覧キャッシュのインターフェース。
type Store interface {
	// Get はキャッシュ済みの出品一覧を返す。ヒットした場合のみokがtrueになる。
	// 空の一覧が保存されていてもヒットとして扱う。
	Get(ctx context.Context, make, modelName string) (listings []model.Listing, ok bool)
	// Put は出品一覧を保存する。同じキーのエントリは置き換えられる。
	Put(ctx context.Context, make, modelName string, listings []model.Listing)
}

// RepoStore はPriceCacheRepositoryを使用したStore。
// TTLを超過したエントリはミスとして扱う。
type RepoStore struct {
	repo    repository.PriceCacheRepository
	ttl     time.Duration
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// DefaultTTL はTTL未指定時のキャッシュ有効期間。クリーンアップジョブの既定値と一致させる。
const DefaultTTL = 24 * time.Hour

// NewRepoStore はRepoStoreを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func NewRepoStore(repo repository.PriceCacheRepository, ttl time.Duration, logger *slog.Logger, mc metrics.MetricsCollector) *RepoStore {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RepoStore{
		repo:    repo,
		ttl:     ttl,
		logger:  logger,
		metrics: mc,
		now:     time.Now,
	}
}

// Get はキャッシュ済みの出品一覧を返す。
func (s *RepoStore) Get(ctx context.Context, make, modelName string) ([]model.Listing, bool) {
	entry, err := s.repo.Find(ctx, make, modelName)
	if err != nil {
		s.logger.Warn("価格キャッシュの読み込みに失敗しました（ミスとして扱います）",
			slog.String("make", make),
			slog.String("model", modelName),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}
	if entry == nil {
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}
	if s.now().Sub(entry.FetchedAt) > s.ttl {
		s.logger.Debug("価格キャッシュが期限切れです",
			slog.String("make", make),
			slog.String("model", modelName),
			slog.Time("fetched_at", entry.FetchedAt),
		)
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}

	s.metrics.RecordCacheLookup(true)
	listings := entry.Listings
	if listings == nil {
		listings = []model.Listing{}
	}
	return listings, true
}

// Put は出品一覧を保存する。失敗はログに記録して無視する。
func (s *RepoStore) Put(ctx context.Context, make, modelName string, listings []model.Listing) {
	if listings == nil {
		listings = []model.Listing{}
	}
	entry := &model.CacheEntry{
		Make:      make,
		Model:     modelName,
		Listings:  listings,
		FetchedAt: s.now(),
	}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		s.logger.Warn("価格キャッシュの書き込みに失敗しました",
			slog.String("make", make),
			slog.String("model", modelName),
			slog.Int("listing_count", len(listings)),
			slog.String("error", err.Error()),
		)
	}
}

// Disabled はキャッシュストア未設定時のStore。常にミスを返し、書き込みは破棄する。
type Disabled struct{}

// Get は常にミスを返す。
func (Disabled) Get(context.Context, string, string) ([]model.Listing, bool) { return nil, false }

// Put は何もしない。
func (Disabled) Put(context.Context, string, string, []model.Listing) {}

var (
	_ Store = (*RepoStore)(nil)
	_ Store = Disabled{}
)
