package listing

// FetchResult はHTTPステータスコードに基づく取得結果の分類。
type FetchResult int

const (
	// FetchResultOK は取得成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultParseAnyway は異常ステータスだが本文を解析するもの（404など）。
	// 出品サイトは結果0件の検索に404を返すことがある。
	FetchResultParseAnyway
	// FetchResultFail は取得失敗として扱うステータス（401/403/429/5xx）。
	FetchResultFail
)

// ClassifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 401 || statusCode == 403:
		return FetchResultFail
	case statusCode == 429:
		return FetchResultFail
	case statusCode >= 500:
		return FetchResultFail
	default:
		return FetchResultParseAnyway
	}
}
