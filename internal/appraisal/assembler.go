// Package appraisal は識別・検証・相場検索の結果から査定結果を組み立てる。
package appraisal

import (
	"sort"

	"github.com/hitoshi/farmappraiser/internal/model"
)

// VerificationWarning は検証を実施して実在を確認できなかった場合に付与する注意文。
const VerificationWarning = "Web検索で型式の実在を確認できませんでした。識別結果が正しいか確認してください。"

// Assemble は識別結果・検証結果・出品一覧から査定結果を組み立てる。
// vがnilまたは未実施の場合はverified=falseとし、注意文は付与しない。
// price_statsは価格が正の出品が1件以上ある場合のみ設定する。
func Assemble(id model.IdentificationResult, v *model.Verification, listings []model.Listing) *model.AppraisalResult {
	if listings == nil {
		listings = []model.Listing{}
	}

	result := &model.AppraisalResult{
		Make:       id.Make,
		MakeJa:     id.MakeJa,
		Model:      id.Model,
		Type:       id.Type,
		TypeJa:     id.TypeJa,
		YearRange:  id.YearRange,
		Confidence: id.Confidence,
		MarketData: listings,
		PriceStats: ComputePriceStats(listings),
		Error:      id.Error,
	}

	if v != nil && v.Ran {
		result.Verified = v.Verified
		if v.Verified {
			result.VerificationSource = v.Source
		} else {
			result.VerificationWarning = VerificationWarning
		}
	}

	return result
}

// ComputePriceStats は価格が正の出品から最小・最大・平均・中央値を算出する。
// 該当する出品がない場合はnilを返す。中央値は件数が偶数の場合は中央2値の平均。
func ComputePriceStats(listings []model.Listing) *model.PriceStats {
	prices := make([]float64, 0, len(listings))
	for _, l := range listings {
		if l.HasValidPrice() {
			prices = append(prices, float64(l.Price))
		}
	}
	if len(prices) == 0 {
		return nil
	}

	sort.Float64s(prices)

	var sum float64
	for _, p := range prices {
		sum += p
	}

	n := len(prices)
	median := prices[n/2]
	if n%2 == 0 {
		median = (prices[n/2-1] + prices[n/2]) / 2
	}

	return &model.PriceStats{
		Min:      prices[0],
		Max:      prices[n-1],
		Avg:      sum / float64(n),
		Median:   median,
		Currency: model.CurrencyJPY,
	}
}
