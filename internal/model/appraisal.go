package model

import "time"

// PriceStats は正の価格を持つ出品から算出した価格統計。
type PriceStats struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Avg      float64 `json:"avg"`
	Median   float64 `json:"median"`
	Currency string  `json:"currency"`
}

// Verification はWeb検索による実在確認の結果を表す。
type Verification struct {
	// Ran は検証を実行したかどうか。メーカー・型式不明や無効化時はfalse。
	Ran      bool
	Verified bool
	Source   string
	Reason   string
}

// AppraisalResult は査定APIのレスポンスを表す。リクエストごとに生成し、永続化しない。
type AppraisalResult struct {
	Make                string      `json:"make,omitempty"`
	MakeJa              string      `json:"make_ja,omitempty"`
	Model               string      `json:"model,omitempty"`
	Type                string      `json:"type,omitempty"`
	TypeJa              string      `json:"type_ja,omitempty"`
	YearRange           string      `json:"year_range,omitempty"`
	Confidence          float64     `json:"confidence"`
	Verified            bool        `json:"verified"`
	VerificationWarning string      `json:"verification_warning,omitempty"`
	VerificationSource  string      `json:"verification_source,omitempty"`
	MarketData          []Listing   `json:"market_data"`
	PriceStats          *PriceStats `json:"price_stats,omitempty"`
	Error               string      `json:"error,omitempty"`
}

// CacheEntry は (make, model) ごとに保存される出品一覧。
type CacheEntry struct {
	Make      string
	Model     string
	Listings  []Listing
	FetchedAt time.Time
}
