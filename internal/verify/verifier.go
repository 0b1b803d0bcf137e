// Package verify はWeb検索による型式の実在確認を提供する。
// 検証の失敗は呼び出し元に伝播させず、未検証（Verified=false）と理由として返す。
package verify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hitoshi/farmappraiser/internal/model"
)

// 検証結果の理由
const (
	ReasonMissingFields = "missing make or model"
	ReasonNoResults     = "no search results found"
	ReasonFound         = "model found in web search"
	ReasonNotFound      = "model not explicitly found in top search results"
	ReasonTimeout       = "search timed out"
	ReasonUnavailable   = "search unavailable"
)

// Verifier は型式の実在確認のインターフェース。
type Verifier interface {
	Verify(ctx context.Context, make, model, equipmentType string) model.Verification
}

// WebVerifier はWeb検索結果に型式が現れるかで実在を判定するVerifier。
type WebVerifier struct {
	searcher   WebSearcher
	maxResults int
	logger     *slog.Logger
}

// NewWebVerifier はWebVerifierの新しいインスタンスを生成する。
func NewWebVerifier(searcher WebSearcher, maxResults int, logger *slog.Logger) *WebVerifier {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebVerifier{
		searcher:   searcher,
		maxResults: maxResults,
		logger:     logger,
	}
}

// Verify は「make model type」で検索し、上位結果のタイトルまたはスニペットに
// 型式（大文字小文字を区別しない）が含まれる場合に検証済みとする。
func (v *WebVerifier) Verify(ctx context.Context, make, modelName, equipmentType string) model.Verification {
	make = strings.TrimSpace(make)
	modelName = strings.TrimSpace(modelName)
	if make == "" || modelName == "" {
		return model.Verification{Ran: false, Reason: ReasonMissingFields}
	}

	query := strings.TrimSpace(strings.Join([]string{make, modelName, strings.TrimSpace(equipmentType)}, " "))
	results, err := v.searcher.Search(ctx, query, v.maxResults)
	if err != nil {
		reason := ReasonUnavailable
		if errors.Is(err, model.ErrUpstreamTimeout) {
			reason = ReasonTimeout
		}
		v.logger.Warn("型式の実在確認に失敗しました",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return model.Verification{Ran: true, Verified: false, Reason: reason}
	}

	if len(results) == 0 {
		return model.Verification{Ran: true, Verified: false, Reason: ReasonNoResults}
	}

	needle := strings.ToLower(modelName)
	for _, r := range results {
		if strings.Contains(strings.ToLower(r.Title), needle) || strings.Contains(strings.ToLower(r.Snippet), needle) {
			return model.Verification{Ran: true, Verified: true, Source: r.URL, Reason: ReasonFound}
		}
	}
	return model.Verification{Ran: true, Verified: false, Reason: ReasonNotFound}
}

// Disabled はVERIFY_ENABLED=false時のVerifier。常に未実施を返す。
type Disabled struct{}

// Verify は検証を行わない。
func (Disabled) Verify(context.Context, string, string, string) model.Verification {
	return model.Verification{Ran: false, Reason: "verification disabled"}
}

var (
	_ Verifier = (*WebVerifier)(nil)
	_ Verifier = Disabled{}
)
