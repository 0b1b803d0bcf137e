// Package market は出品一覧の検索戦略と結果フィルタを提供する。
package market

import (
	"strings"
	"unicode"

	"github.com/hitoshi/farmappraiser/internal/model"
)

// FilterContext はフィルタ判定に使用する識別情報。空の項目は判定に使わない。
type FilterContext struct {
	Make   string
	MakeJa string
	Type   string
	TypeJa string
	Model  string
}

// filterContextOf は検索条件からFilterContextを生成する。
func filterContextOf(q model.MarketQuery) FilterContext {
	return FilterContext{
		Make:   q.Make,
		MakeJa: q.MakeJa,
		Type:   q.Type,
		TypeJa: q.TypeJa,
		Model:  q.Model,
	}
}

// Filter はタイトルがブランド・種別・型式のすべてに一致する出品のみを、元の順序で返す。
//   - ブランド: MakeJa または Make を含む（どちらも空なら無条件に一致）
//   - 種別: TypeJa または Type を含む（どちらも空なら無条件に一致）
//   - 型式: 空白とハイフンを除いて含む、または型式中の最初の2桁以上の数字列を含む
//
// 比較は大文字小文字を区別しない。
func Filter(listings []model.Listing, fc FilterContext) []model.Listing {
	brands := keywords(fc.MakeJa, fc.Make)
	types := keywords(fc.TypeJa, fc.Type)
	modelKey := squash(strings.ToLower(strings.TrimSpace(fc.Model)))
	digits := firstDigitRun(fc.Model)

	out := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		title := strings.ToLower(l.Title)
		if !containsAny(title, brands) {
			continue
		}
		if !containsAny(title, types) {
			continue
		}
		if !matchesModel(title, modelKey, digits) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// keywords は空でないキーワードを小文字化して返す。
func keywords(values ...string) []string {
	var out []string
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// containsAny はtitleがいずれかのキーワードを含むかを返す。キーワードが無い場合はtrue。
func containsAny(title string, kws []string) bool {
	if len(kws) == 0 {
		return true
	}
	for _, k := range kws {
		if strings.Contains(title, k) {
			return true
		}
	}
	return false
}

func matchesModel(title, modelKey, digits string) bool {
	if modelKey == "" {
		return true
	}
	if strings.Contains(squash(title), modelKey) {
		return true
	}
	return digits != "" && strings.Contains(title, digits)
}

// squash は空白とハイフンを取り除く。
func squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return r
	}, s)
}

// firstDigitRun は2桁以上の数字が連続する最初の部分を返す。該当がなければ空文字列を返す。
func firstDigitRun(s string) string {
	start := -1
	for i, r := range s {
		isDigit := r >= '0' && r <= '9'
		switch {
		case isDigit && start < 0:
			start = i
		case !isDigit && start >= 0:
			if run := longEnough(s[start:i]); run != "" {
				return run
			}
			start = -1
		}
	}
	if start >= 0 {
		return longEnough(s[start:])
	}
	return ""
}

func longEnough(run string) string {
	if len(run) > 1 {
		return run
	}
	return ""
}
