package market

import (
	"testing"

	"github.com/hitoshi/farmappraiser/internal/model"
)

func titles(ls []model.Listing) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Title
	}
	return out
}

func listingsOf(ts ...string) []model.Listing {
	out := make([]model.Listing, len(ts))
	for i, t := range ts {
		out[i] = model.Listing{Title: t, Price: int64(100000 * (i + 1)), Currency: model.CurrencyJPY}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFilter(t *testing.T) {
	kubota := FilterContext{Make: "Kubota", MakeJa: "クボタ", Type: "Tractor", TypeJa: "トラクター", Model: "L2501"}

	tests := []struct {
		name string
		in   []string
		fc   FilterContext
		want []string
	}{
		{
			name: "ブランド・種別・型式すべて一致",
			in:   []string{"クボタ トラクター L2501 4WD"},
			fc:   kubota,
			want: []string{"クボタ トラクター L2501 4WD"},
		},
		{
			name: "英語表記と大文字小文字の違い",
			in:   []string{"KUBOTA tractor l2501"},
			fc:   kubota,
			want: []string{"KUBOTA tractor l2501"},
		},
		{
			name: "ハイフン・空白の違いを無視",
			in:   []string{"クボタ トラクター L-25 01"},
			fc:   kubota,
			want: []string{"クボタ トラクター L-25 01"},
		},
		{
			name: "型式の数字列で一致",
			in:   []string{"クボタ トラクター 2501 整備済"},
			fc:   kubota,
			want: []string{"クボタ トラクター 2501 整備済"},
		},
		{
			name: "ブランド不一致は除外",
			in:   []string{"ヤンマー トラクター L2501"},
			fc:   kubota,
			want: []string{},
		},
		{
			name: "種別不一致は除外",
			in:   []string{"クボタ コンバイン L2501"},
			fc:   kubota,
			want: []string{},
		},
		{
			name: "型式不一致は除外（高額でも除外）",
			in:   []string{"クボタ トラクター GL320"},
			fc:   kubota,
			want: []string{},
		},
		{
			name: "順序を保持",
			in:   []string{"クボタ トラクター L2501 B", "ヤンマー", "クボタ トラクター L2501 A"},
			fc:   kubota,
			want: []string{"クボタ トラクター L2501 B", "クボタ トラクター L2501 A"},
		},
		{
			name: "種別が空なら種別条件は無条件に一致",
			in:   []string{"クボタ L2501"},
			fc:   FilterContext{MakeJa: "クボタ", Model: "L2501"},
			want: []string{"クボタ L2501"},
		},
		{
			name: "型式の数字が1桁のみなら数字一致を使わない",
			in:   []string{"クボタ トラクター 5 馬力"},
			fc:   FilterContext{MakeJa: "クボタ", TypeJa: "トラクター", Model: "B5"},
			want: []string{},
		},
		{
			name: "先頭の数字が1桁でも後続の2桁以上の数字列で一致",
			in:   []string{"クボタ トラクター 151 美品", "クボタ トラクター 7 美品"},
			fc:   FilterContext{MakeJa: "クボタ", TypeJa: "トラクター", Model: "M7-151"},
			want: []string{"クボタ トラクター 151 美品"},
		},
		{
			name: "空の入力",
			in:   []string{},
			fc:   kubota,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(listingsOf(tt.in...), tt.fc)
			if got == nil {
				t.Fatal("Filter must not return nil")
			}
			if !equalStrings(titles(got), tt.want) {
				t.Errorf("Filter() = %v, want %v", titles(got), tt.want)
			}
		})
	}
}

// TestFilter_IsSubsetAndIdempotent はフィルタ結果が入力の部分列であり、再適用しても変わらないことを検証する。
func TestFilter_IsSubsetAndIdempotent(t *testing.T) {
	fc := FilterContext{MakeJa: "ヤンマー", Make: "Yanmar", TypeJa: "トラクター", Model: "YT220"}
	in := listingsOf(
		"ヤンマー トラクター YT220",
		"ヤンマー トラクター EF352",
		"Yanmar YT-220 トラクター",
		"クボタ トラクター YT220",
		"ヤンマー 220 トラクター",
	)

	once := Filter(in, fc)
	twice := Filter(once, fc)
	if !equalStrings(titles(once), titles(twice)) {
		t.Errorf("not idempotent: %v vs %v", titles(once), titles(twice))
	}

	// 部分列であること
	j := 0
	for _, l := range once {
		for j < len(in) && in[j].Title != l.Title {
			j++
		}
		if j == len(in) {
			t.Fatalf("%q is not an ordered subset of the input", l.Title)
		}
		j++
	}

	want := []string{"ヤンマー トラクター YT220", "Yanmar YT-220 トラクター", "ヤンマー 220 トラクター"}
	if !equalStrings(titles(once), want) {
		t.Errorf("Filter() = %v, want %v", titles(once), want)
	}
}

func TestFirstDigitRun(t *testing.T) {
	tests := map[string]string{
		"L2501":   "2501",
		"YT220":   "220",
		"B5":      "",
		"Ke-7 15": "15",
		"M7-151":  "151",
		"A1B2":    "",
		"5075E":   "5075",
		"EF":      "",
		"":        "",
		"TG33-X1": "33",
	}
	for in, want := range tests {
		if got := firstDigitRun(in); got != want {
			t.Errorf("firstDigitRun(%q) = %q, want %q", in, got, want)
		}
	}
}
