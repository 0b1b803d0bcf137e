package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/farmappraiser/internal/model"
)

// PostgresPriceCacheRepo はPostgreSQLのequipment_pricesテーブルを使用したキャッシュリポジトリ。
// 出品一覧はJSONBとしてそのまま保存する。
type PostgresPriceCacheRepo struct {
	db *sql.DB
}

// NewPostgresPriceCacheRepo はPostgresPriceCacheRepoを生成する。
func NewPostgresPriceCacheRepo(db *sql.DB) *PostgresPriceCacheRepo {
	return &PostgresPriceCacheRepo{db: db}
}

// Find は (make, model) のキャッシュエントリを取得する。見つからない場合はnilを返す。
func (r *PostgresPriceCacheRepo) Find(ctx context.Context, make, modelName string) (*model.CacheEntry, error) {
	entry := &model.CacheEntry{}
	var data []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT make, model, data, fetched_at
		 FROM equipment_prices
		 WHERE make = $1 AND model = $2`,
		make, modelName,
	).Scan(&entry.Make, &entry.Model, &data, &entry.FetchedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("価格キャッシュの取得に失敗しました: %w", err)
	}

	listings, err := decodeListings(data)
	if err != nil {
		return nil, err
	}
	entry.Listings = listings

	return entry, nil
}

// Upsert はキャッシュエントリを書き込む。既存エントリは全体を置き換える。
func (r *PostgresPriceCacheRepo) Upsert(ctx context.Context, entry *model.CacheEntry) error {
	data, err := json.Marshal(entry.Listings)
	if err != nil {
		return fmt.Errorf("出品一覧のエンコードに失敗しました: %w", err)
	}

	fetchedAt := entry.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO equipment_prices (make, model, data, fetched_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (make, model) DO UPDATE SET
		    data = EXCLUDED.data,
		    fetched_at = EXCLUDED.fetched_at`,
		entry.Make, entry.Model, data, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("価格キャッシュの書き込みに失敗しました: %w", err)
	}
	return nil
}

// DeleteFetchedBefore はcutoffより前に取得されたエントリを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (r *PostgresPriceCacheRepo) DeleteFetchedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM equipment_prices WHERE fetched_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れ価格キャッシュの削除に失敗しました: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// decodeListings はJSONBの出品一覧をデコードする。
func decodeListings(data []byte) ([]model.Listing, error) {
	var listings []model.Listing
	if len(data) == 0 {
		return listings, nil
	}
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("価格キャッシュのデコードに失敗しました: %w", err)
	}
	return listings, nil
}

// compile-time interface check
var _ PriceCacheRepository = (*PostgresPriceCacheRepo)(nil)
