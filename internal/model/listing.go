// Package model はドメインモデルを定義する。
package model

import "strings"

// CurrencyJPY は価格の通貨単位。日本円以外は扱わない。
const CurrencyJPY = "JPY"

// Listing の出品元ラベル。
const (
	// SourceYahooAuctions はヤフオクの出品中オークション。
	SourceYahooAuctions = "yahoo_auctions"
	// SourceYahooAuctionsSold はヤフオクの落札済みオークション。
	SourceYahooAuctionsSold = "yahoo_auctions_sold"
)

// Listing はオークションサイトの出品1件を表す。
// 出品元HTMLの1要素から生成され、以降は変更しない。
type Listing struct {
	Title    string `json:"title"`
	Price    int64  `json:"price"` // 円。0は価格の解析に失敗したことを示す
	Currency string `json:"currency"`
	URL      string `json:"url,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	SoldDate string `json:"sold_date,omitempty"` // 落札済みの場合のみ
	Source   string `json:"source"`
}

// HasValidPrice は価格統計の対象となる正の価格を持つかを返す。
func (l Listing) HasValidPrice() bool {
	return l.Price > 0
}

// MarketQuery は相場検索の入力を表す。
// Make と Model はキャッシュキーとなる英語（正規）表記。
type MarketQuery struct {
	Make   string
	Model  string
	Type   string
	MakeJa string
	TypeJa string
}

// Normalize は前後の空白を除去したクエリを返す。大文字小文字は保持する。
func (q MarketQuery) Normalize() MarketQuery {
	return MarketQuery{
		Make:   strings.TrimSpace(q.Make),
		Model:  strings.TrimSpace(q.Model),
		Type:   strings.TrimSpace(q.Type),
		MakeJa: strings.TrimSpace(q.MakeJa),
		TypeJa: strings.TrimSpace(q.TypeJa),
	}
}

// Localized は日本語表記のメーカー名または種別を持つかを返す。
func (q MarketQuery) Localized() bool {
	return q.MakeJa != "" || q.TypeJa != ""
}
