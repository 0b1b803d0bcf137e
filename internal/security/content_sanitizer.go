package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はスクレイピングで得たテキストを無害化するインターフェースを定義する。
// 出品タイトルや検索結果スニペットをレスポンスに含める前に使用される。
type TextSanitizerService interface {
	// Sanitize はHTML断片からタグをすべて除去し、連続する空白を1つにまとめたプレーンテキストを返す。
	// 入力はマークアップとして扱う。テキストとしての「<」は「&lt;」で渡す必要がある。
	// 山かっこを含まない出力に対しては冪等。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// bluemondayのStrictPolicyですべてのタグを除去する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// StrictPolicyは&等をエスケープするため、JSONで返す前にアンエスケープする。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(cleaned), " ")
}
