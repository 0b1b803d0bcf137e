// Package listing はオークションサイトから出品一覧を取得するアダプタを提供する。
// 取得とHTML解析の失敗はエラーとして返し、呼び出し側（検索戦略）が空の結果として扱う。
package listing

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/farmappraiser/internal/model"
)

// Source は出品一覧取得のインターフェース。
type Source interface {
	// Search は検索語を空白で連結したクエリで出品一覧を取得する。
	// 空の検索語は無視される。結果はサイト上の表示順を保つ。
	Search(ctx context.Context, terms []string) ([]model.Listing, error)
}

// URLValidator はスクレイピングで得たURLの検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// TextSanitizer はスクレイピングで得たテキストの無害化インターフェース。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// ClientFactory は外向きHTTPクライアントの生成インターフェース。
type ClientFactory interface {
	NewSafeClient(timeout time.Duration) *http.Client
}

// Config は出品一覧取得の設定。
type Config struct {
	// Timeout は1回の取得（通信と解析）の上限時間。
	Timeout time.Duration
	// MinDelay / MaxDelay は取得前に挟むランダムな待機時間の範囲。
	MinDelay time.Duration
	MaxDelay time.Duration
	// RatePerSec はプロセス全体での取得ペース（回/秒）。
	RatePerSec float64
	// IncludeSold がtrueの場合、終了したオークション（落札相場）も取得する。
	IncludeSold bool
}
