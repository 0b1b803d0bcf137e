package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest            = "INVALID_REQUEST"
	ErrCodeMissingField              = "MISSING_FIELD"
	ErrCodeInvalidFileType           = "INVALID_FILE_TYPE"
	ErrCodeImageTooLarge             = "IMAGE_TOO_LARGE"
	ErrCodeIdentificationUnavailable = "IDENTIFICATION_UNAVAILABLE"
	ErrCodeInternal                  = "INTERNAL_ERROR"
)

// 外部サービス呼び出しの失敗分類。アダプタ内部でのみ使用し、境界の外には出さない。
var (
	// ErrUpstreamTimeout は外部呼び出しがタイムアウトしたことを示す。再試行可能な一時的失敗。
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamStatus は外部サービスが異常なHTTPステータスを返したことを示す。
	ErrUpstreamStatus = errors.New("upstream returned unexpected status")
)

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストの解析に失敗しました。",
		Category: "validation",
		Action:   "正しい形式でリクエストしてください。",
	}
}

// NewMissingFieldError は必須項目の欠落エラーを生成する。
func NewMissingFieldError(fields ...string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingField,
		Message:  fmt.Sprintf("必須項目が指定されていません: %s", strings.Join(fields, ", ")),
		Category: "validation",
		Action:   "必須項目を入力してください。",
	}
}

// NewInvalidFileTypeError は非対応の画像形式エラーを生成する。
func NewInvalidFileTypeError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFileType,
		Message:  fmt.Sprintf("対応していない画像形式です: %s", contentType),
		Category: "validation",
		Action:   "JPEG、PNG、WEBP、HEICのいずれかの画像をアップロードしてください。",
	}
}

// NewImageTooLargeError は画像サイズ超過エラーを生成する。
func NewImageTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeImageTooLarge,
		Message:  fmt.Sprintf("画像サイズが上限（%dバイト）を超えています。", limit),
		Category: "validation",
		Action:   "画像を縮小してから再度アップロードしてください。",
	}
}

// NewIdentificationUnavailableError は画像識別サービスが利用できない場合のエラーを生成する。
func NewIdentificationUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentificationUnavailable,
		Message:  "画像識別サービスが利用できません。",
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しいただくか、メーカーと型式を入力して検索してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
