package model

// MinConfidence は識別結果を採用する最低信頼度。
const MinConfidence = 0.5

// IdentificationResult は画像識別の結果を表す。
type IdentificationResult struct {
	Make       string  `json:"make"`
	MakeJa     string  `json:"make_ja"`
	Model      string  `json:"model"`
	Type       string  `json:"type"`
	TypeJa     string  `json:"type_ja"`
	YearRange  string  `json:"year_range"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// IsTerminal は識別できなかった結果かを返す。
// trueの場合、検証と相場検索は行わない。
func (r IdentificationResult) IsTerminal() bool {
	return r.Confidence < MinConfidence || r.Error != ""
}

// HasMakeAndModel はメーカーと型式の両方が判明しているかを返す。
func (r IdentificationResult) HasMakeAndModel() bool {
	return r.Make != "" && r.Model != ""
}
