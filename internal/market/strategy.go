package market

import (
	"unicode/utf8"

	"github.com/hitoshi/farmappraiser/internal/model"
)

// Strategy は1つの検索戦略。適用条件を満たす場合のみ検索語を生成する。
type Strategy struct {
	// Name はログとメトリクスに使用する戦略名。
	Name string
	// Terms は検索語を返す。適用できない場合はokがfalseになる。
	Terms func(q model.MarketQuery) (terms []string, ok bool)
}

// minBroadModelLength は型式のみで検索する際の型式の最小文字数（これを超える必要がある）。
const minBroadModelLength = 3

// DefaultStrategies は既定の検索戦略を優先順に返す。
//  1. 現地語メーカー名 + 型式 + 現地語種別
//  2. 現地語メーカー名 + 型式
//  3. メーカー名 + 型式（メーカー名が現地語と異なる場合）
//  4. 現地語種別 + 型式
//  5. 型式のみ（3文字を超える場合）
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name: "make_ja_model_type_ja",
			Terms: func(q model.MarketQuery) ([]string, bool) {
				if q.MakeJa == "" || q.TypeJa == "" {
					return nil, false
				}
				return []string{q.MakeJa, q.Model, q.TypeJa}, true
			},
		},
		{
			Name: "make_ja_model",
			Terms: func(q model.MarketQuery) ([]string, bool) {
				if q.MakeJa == "" {
					return nil, false
				}
				return []string{q.MakeJa, q.Model}, true
			},
		},
		{
			Name: "make_model",
			Terms: func(q model.MarketQuery) ([]string, bool) {
				if q.Make == "" || q.Make == q.MakeJa {
					return nil, false
				}
				return []string{q.Make, q.Model}, true
			},
		},
		{
			Name: "type_ja_model",
			Terms: func(q model.MarketQuery) ([]string, bool) {
				if q.TypeJa == "" {
					return nil, false
				}
				return []string{q.TypeJa, q.Model}, true
			},
		},
		{
			Name: "model_only",
			Terms: func(q model.MarketQuery) ([]string, bool) {
				if utf8.RuneCountInString(q.Model) <= minBroadModelLength {
					return nil, false
				}
				return []string{q.Model}, true
			},
		},
	}
}
