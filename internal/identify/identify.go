// Package identify は画像から農機のメーカー・型式を識別するアダプタを提供する。
// 識別の失敗はエラーとして返さず、信頼度0とエラーマーカーを持つ結果に変換する。
package identify

import (
	"context"
	"strings"

	"github.com/hitoshi/farmappraiser/internal/model"
)

// FailureMarker は識別処理の内部失敗時に結果へ設定するエラーマーカー。
const FailureMarker = "analysis failed"

// Identifier は画像識別のインターフェース。
type Identifier interface {
	// Identify は画像を解析して識別結果を返す。失敗時もエラーは返さない。
	Identify(ctx context.Context, image []byte, mimeType string) model.IdentificationResult
	// Available は識別サービスが設定済みかを返す。
	Available() bool
}

// supportedImageTypes は受け付ける画像のMIMEタイプ。
var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
}

// IsSupportedImageType はMIMEタイプが識別対象として受け付け可能かを返す。
// パラメータ（; charset=...等）と大文字小文字は無視する。
func IsSupportedImageType(mimeType string) bool {
	mt, _, _ := strings.Cut(mimeType, ";")
	return supportedImageTypes[strings.ToLower(strings.TrimSpace(mt))]
}

// failed は内部失敗時の識別結果を返す。
func failed() model.IdentificationResult {
	return model.IdentificationResult{Confidence: 0, Error: FailureMarker}
}

// Disabled はAPIキー未設定時のIdentifier。
type Disabled struct{}

// Identify は常に失敗結果を返す。
func (Disabled) Identify(context.Context, []byte, string) model.IdentificationResult {
	return failed()
}

// Available は常にfalseを返す。
func (Disabled) Available() bool { return false }

var _ Identifier = Disabled{}
