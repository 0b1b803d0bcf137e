// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/farmappraiser/internal/model"
)

// PriceCacheRepository は (make, model) ごとの出品一覧キャッシュの永続化インターフェース。
type PriceCacheRepository interface {
	// Find は (make, model) のキャッシュエントリを取得する。見つからない場合はnilを返す。
	// make と model は完全一致で比較する。
	Find(ctx context.Context, make, modelName string) (*model.CacheEntry, error)

	// Upsert はキャッシュエントリを書き込む。
	// 同じ (make, model) のエントリが存在する場合はマージせず全体を置き換える。
	Upsert(ctx context.Context, entry *model.CacheEntry) error

	// DeleteFetchedBefore はcutoffより前に取得されたエントリを削除し、削除件数を返す。
	DeleteFetchedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
