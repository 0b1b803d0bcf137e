package handler

import (
	"context"

	"github.com/hitoshi/farmappraiser/internal/appraisal"
	"github.com/hitoshi/farmappraiser/internal/model"
)

// mockAppraisalService はAppraisalServiceInterfaceのテスト用モック。
type mockAppraisalService struct {
	analyzeImageFn func(ctx context.Context, image []byte, mimeType string) (*model.AppraisalResult, error)
	searchPricesFn func(ctx context.Context, req appraisal.SearchRequest) (*model.AppraisalResult, error)

	analyzeCalls int
	searchCalls  int
	lastImage    []byte
	lastMimeType string
	lastSearch   appraisal.SearchRequest
}

func (m *mockAppraisalService) AnalyzeImage(ctx context.Context, image []byte, mimeType string) (*model.AppraisalResult, error) {
	m.analyzeCalls++
	m.lastImage = image
	m.lastMimeType = mimeType
	if m.analyzeImageFn != nil {
		return m.analyzeImageFn(ctx, image, mimeType)
	}
	return &model.AppraisalResult{MarketData: []model.Listing{}}, nil
}

func (m *mockAppraisalService) SearchPrices(ctx context.Context, req appraisal.SearchRequest) (*model.AppraisalResult, error) {
	m.searchCalls++
	m.lastSearch = req
	if m.searchPricesFn != nil {
		return m.searchPricesFn(ctx, req)
	}
	return &model.AppraisalResult{MarketData: []model.Listing{}}, nil
}
