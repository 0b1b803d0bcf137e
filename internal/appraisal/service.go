package appraisal

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/farmappraiser/internal/identify"
	"github.com/hitoshi/farmappraiser/internal/metrics"
	"github.com/hitoshi/farmappraiser/internal/model"
	"github.com/hitoshi/farmappraiser/internal/verify"
)

// 識別・検証の結果ラベル
const (
	outcomeUnavailable   = "unavailable"
	outcomeFailed        = "failed"
	outcomeLowConfidence = "low_confidence"
	outcomeIdentified    = "identified"
	outcomeVerified      = "verified"
	outcomeUnverified    = "unverified"
	outcomeSkipped       = "skipped"
)

// unidentifiedMessage は低信頼度で識別できなかった場合のエラーマーカー。
const unidentifiedMessage = "could not identify equipment"

// unknownYear は年式未指定時のyear_range。
const unknownYear = "Unknown"

// MarketSearcher は相場検索のインターフェース。
type MarketSearcher interface {
	Search(ctx context.Context, q model.MarketQuery) []model.Listing
}

// SearchRequest はメーカー・型式指定の相場検索リクエスト。
type SearchRequest struct {
	Make  string
	Model string
	Type  string
	Year  string
}

// Service は査定処理のパイプライン。1リクエスト内の処理は逐次に行う。
type Service struct {
	identifier identify.Identifier
	verifier   verify.Verifier
	searcher   MarketSearcher
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	identifier identify.Identifier,
	verifier verify.Verifier,
	searcher MarketSearcher,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *Service {
	if identifier == nil {
		identifier = identify.Disabled{}
	}
	if verifier == nil {
		verifier = verify.Disabled{}
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		identifier: identifier,
		verifier:   verifier,
		searcher:   searcher,
		logger:     logger,
		metrics:    mc,
	}
}

// IdentificationAvailable は画像識別が利用可能かを返す。
func (s *Service) IdentificationAvailable() bool {
	return s.identifier.Available()
}

// AnalyzeImage は画像から農機を識別し、実在確認と相場検索を行って査定結果を返す。
// 識別サービスが利用できない場合はIDENTIFICATION_UNAVAILABLEエラーを返す。
// 識別結果が終端（低信頼度またはエラー）の場合は検証・検索を行わず、最小限の結果を返す。
func (s *Service) AnalyzeImage(ctx context.Context, image []byte, mimeType string) (*model.AppraisalResult, error) {
	if !s.identifier.Available() {
		s.metrics.RecordIdentification(outcomeUnavailable)
		return nil, model.NewIdentificationUnavailableError()
	}

	id := s.identifier.Identify(ctx, image, mimeType)

	if id.IsTerminal() {
		outcome := outcomeLowConfidence
		if id.Error == identify.FailureMarker {
			outcome = outcomeFailed
		}
		s.metrics.RecordIdentification(outcome)
		s.logger.Info("機器を識別できませんでした",
			slog.String("outcome", outcome),
			slog.Float64("confidence", id.Confidence),
			slog.String("error", id.Error),
		)
		errMsg := id.Error
		if errMsg == "" {
			errMsg = unidentifiedMessage
		}
		return &model.AppraisalResult{
			Confidence: id.Confidence,
			Error:      errMsg,
			MarketData: []model.Listing{},
		}, nil
	}
	s.metrics.RecordIdentification(outcomeIdentified)

	var verification *model.Verification
	listings := []model.Listing{}

	if id.HasMakeAndModel() {
		v := s.verifier.Verify(ctx, id.Make, id.Model, id.Type)
		s.recordVerification(v)
		verification = &v

		listings = s.searcher.Search(ctx, model.MarketQuery{
			Make:   id.Make,
			Model:  id.Model,
			Type:   id.Type,
			MakeJa: id.MakeJa,
			TypeJa: id.TypeJa,
		})
	} else {
		s.logger.Info("メーカーまたは型式が不明のため相場検索を省略します",
			slog.String("make", id.Make),
			slog.String("model", id.Model),
		)
	}

	result := Assemble(id, verification, listings)
	s.logger.Info("画像査定が完了しました",
		slog.String("make", result.Make),
		slog.String("model", result.Model),
		slog.Bool("verified", result.Verified),
		slog.Int("listing_count", len(result.MarketData)),
	)
	return result, nil
}

// SearchPrices はメーカー・型式指定で相場を検索する。
// 型式が空の場合は検索を行わず、market_dataは空になる。実在確認は行わない。
func (s *Service) SearchPrices(ctx context.Context, req SearchRequest) (*model.AppraisalResult, error) {
	req.Make = strings.TrimSpace(req.Make)
	req.Model = strings.TrimSpace(req.Model)
	req.Type = strings.TrimSpace(req.Type)
	req.Year = strings.TrimSpace(req.Year)

	if req.Make == "" {
		return nil, model.NewMissingFieldError("make")
	}

	year := req.Year
	if year == "" {
		year = unknownYear
	}

	id := model.IdentificationResult{
		Make:       req.Make,
		Model:      req.Model,
		Type:       req.Type,
		YearRange:  year,
		Confidence: 1.0,
	}

	listings := []model.Listing{}
	if req.Model != "" {
		listings = s.searcher.Search(ctx, model.MarketQuery{
			Make:  req.Make,
			Model: req.Model,
			Type:  req.Type,
		})
	}

	return Assemble(id, nil, listings), nil
}

func (s *Service) recordVerification(v model.Verification) {
	switch {
	case !v.Ran:
		s.metrics.RecordVerification(outcomeSkipped)
	case v.Verified:
		s.metrics.RecordVerification(outcomeVerified)
	default:
		s.metrics.RecordVerification(outcomeUnverified)
	}
}
