// Package cleanup は相場キャッシュの期限切れエントリ削除ジョブを提供する。
// 取得からTTLを超過した(make, model)の行を定期的に削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultTTL はTTL未指定時のキャッシュ有効期間。cache.RepoStoreの既定値と一致させる。
	DefaultTTL = 24 * time.Hour
	// DefaultInterval はinterval未指定時の実行間隔。
	DefaultInterval = time.Hour
)

// ExpiredEntryDeleter は取得日時が基準時刻より古いキャッシュ行を削除する。
// repository.PriceCacheRepository が満たす。
type ExpiredEntryDeleter interface {
	DeleteFetchedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は期限切れキャッシュの削除ジョブ。
// 削除は冪等で、対象がない場合もエラーにならない。
type CleanupJob struct {
	repo   ExpiredEntryDeleter
	logger *slog.Logger
	TTL    time.Duration // キャッシュの有効期間（デフォルト: 24時間）

	now func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// ttlが0以下の場合はDefaultTTLを使用する。
func NewCleanupJob(repo ExpiredEntryDeleter, ttl time.Duration, logger *slog.Logger) *CleanupJob {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CleanupJob{
		repo:   repo,
		logger: logger,
		TTL:    ttl,
		now:    time.Now,
	}
}

// Run はfetched_atがTTLより古いキャッシュ行を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.Add(-j.TTL)

	deletedCount, err := j.repo.DeleteFetchedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("キャッシュクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("ttl", j.TTL),
		)
		return fmt.Errorf("キャッシュクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("キャッシュクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("ttl", j.TTL),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、以後interval間隔でRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。個々の失敗はログに記録して継続する。
// intervalが0以下の場合はDefaultIntervalを使用する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		j.logger.Warn("クリーンアップ間隔が不正なため既定値を使用します",
			slog.Duration("interval", interval),
			slog.Duration("default", DefaultInterval),
		)
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("キャッシュクリーンアップを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("ttl", j.TTL),
	)

	j.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("キャッシュクリーンアップを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

// runLogged はRunを実行する。失敗はRun内でログ済みのため戻り値は捨てる。
func (j *CleanupJob) runLogged(ctx context.Context) {
	_ = j.Run(ctx)
}
