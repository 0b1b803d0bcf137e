package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/hitoshi/farmappraiser/internal/appraisal"
	"github.com/hitoshi/farmappraiser/internal/middleware"
	"github.com/hitoshi/farmappraiser/internal/model"
)

var (
	jpegBytes = append([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), bytes.Repeat([]byte{0x01}, 64)...)
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x02}, 64)...)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newUploadRequest はfieldにファイルを添付したmultipartリクエストを生成する。
// contentTypeが空の場合はパートにContent-Typeを付けない。
func newUploadRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("part.Write() error = %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart close error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/analyze-image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeErrorBody(t *testing.T, resp *http.Response) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestAnalyzeImage_Success(t *testing.T) {
	svc := &mockAppraisalService{
		analyzeImageFn: func(ctx context.Context, image []byte, mimeType string) (*model.AppraisalResult, error) {
			return &model.AppraisalResult{
				Make:       "Kubota",
				MakeJa:     "クボタ",
				Model:      "L2501",
				Confidence: 0.9,
				Verified:   true,
				MarketData: []model.Listing{{Title: "クボタ L2501", Price: 1500000, Currency: "JPY", Source: "Yahoo Auctions"}},
			}, nil
		},
	}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := newUploadRequest(t, "file", "tractor.jpg", "image/jpeg", jpegBytes)
	w := httptest.NewRecorder()
	h.AnalyzeImage(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if svc.lastMimeType != "image/jpeg" {
		t.Errorf("mimeType = %q, want %q", svc.lastMimeType, "image/jpeg")
	}
	if !bytes.Equal(svc.lastImage, jpegBytes) {
		t.Error("image bytes were not passed through unchanged")
	}

	var got model.AppraisalResult
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if got.Make != "Kubota" || got.Model != "L2501" {
		t.Errorf("make/model = %q/%q, want Kubota/L2501", got.Make, got.Model)
	}
	if len(got.MarketData) != 1 {
		t.Errorf("len(market_data) = %d, want 1", len(got.MarketData))
	}
}

func TestAnalyzeImage_SniffsOctetStream(t *testing.T) {
	svc := &mockAppraisalService{}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := newUploadRequest(t, "file", "upload.bin", "application/octet-stream", pngBytes)
	w := httptest.NewRecorder()
	h.AnalyzeImage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if svc.lastMimeType != "image/png" {
		t.Errorf("mimeType = %q, want %q", svc.lastMimeType, "image/png")
	}
}

func TestAnalyzeImage_UnsupportedType_Returns400(t *testing.T) {
	svc := &mockAppraisalService{}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := newUploadRequest(t, "file", "note.txt", "text/plain", []byte("not an image"))
	w := httptest.NewRecorder()
	h.AnalyzeImage(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeInvalidFileType {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidFileType)
	}
	if svc.analyzeCalls != 0 {
		t.Error("service should not be called for unsupported file type")
	}
}

func TestAnalyzeImage_FileTooLarge_Returns413(t *testing.T) {
	svc := &mockAppraisalService{}
	h := NewAppraisalHandler(svc, 1024, discardLogger())

	data := append([]byte("\xff\xd8\xff"), bytes.Repeat([]byte{0x03}, 2048)...)
	req := newUploadRequest(t, "file", "big.jpg", "image/jpeg", data)
	w := httptest.NewRecorder()
	h.AnalyzeImage(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusRequestEntityTooLarge)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeImageTooLarge {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeImageTooLarge)
	}
	if svc.analyzeCalls != 0 {
		t.Error("service should not be called for oversized upload")
	}
}

func TestAnalyzeImage_BodyTooLarge_Returns413(t *testing.T) {
	svc := &mockAppraisalService{}
	h := NewAppraisalHandler(svc, 1024, discardLogger())

	data := bytes.Repeat([]byte{0x04}, multipartOverhead+4096)
	req := newUploadRequest(t, "file", "huge.jpg", "image/jpeg", data)
	w := httptest.NewRecorder()
	h.AnalyzeImage(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestAnalyzeImage_MissingFile_Returns400(t *testing.T) {
	svc := &mockAppraisalService{}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := newUploadRequest(t, "image", "tractor.jpg", "image/jpeg", jpegBytes)
	w := httptest.NewRecorder()
	h.AnalyzeImage(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeMissingField {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeMissingField)
	}
}

func TestAnalyzeImage_NotMultipart_Returns400(t *testing.T) {
	svc := &mockAppraisalService{}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze-image", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.AnalyzeImage(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAnalyzeImage_IdentificationUnavailable_Returns503(t *testing.T) {
	svc := &mockAppraisalService{
		analyzeImageFn: func(ctx context.Context, image []byte, mimeType string) (*model.AppraisalResult, error) {
			return nil, model.NewIdentificationUnavailableError()
		},
	}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := newUploadRequest(t, "file", "tractor.jpg", "image/jpeg", jpegBytes)
	w := httptest.NewRecorder()
	h.AnalyzeImage(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeIdentificationUnavailable {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeIdentificationUnavailable)
	}
}

func TestAnalyzeImage_TerminalResult_Returns200WithError(t *testing.T) {
	svc := &mockAppraisalService{
		analyzeImageFn: func(ctx context.Context, image []byte, mimeType string) (*model.AppraisalResult, error) {
			return &model.AppraisalResult{Confidence: 0, Error: "analysis failed", MarketData: []model.Listing{}}, nil
		},
	}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := newUploadRequest(t, "file", "blurry.png", "image/png", pngBytes)
	w := httptest.NewRecorder()
	h.AnalyzeImage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if raw["error"] != "analysis failed" {
		t.Errorf("error = %v, want %q", raw["error"], "analysis failed")
	}
	if raw["confidence"] != float64(0) {
		t.Errorf("confidence = %v, want 0", raw["confidence"])
	}
}

func TestAnalyzeImage_UnexpectedError_Returns500(t *testing.T) {
	svc := &mockAppraisalService{
		analyzeImageFn: func(ctx context.Context, image []byte, mimeType string) (*model.AppraisalResult, error) {
			return nil, errors.New("db: connection refused")
		},
	}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := newUploadRequest(t, "file", "tractor.jpg", "image/jpeg", jpegBytes)
	w := httptest.NewRecorder()
	h.AnalyzeImage(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	body := decodeErrorBody(t, resp)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	// 内部エラーの詳細はレスポンスに含めない
	if strings.Contains(body.Message, "connection refused") {
		t.Error("internal error detail leaked into response")
	}
}

func TestSearchPricesQuery_PassesParameters(t *testing.T) {
	svc := &mockAppraisalService{
		searchPricesFn: func(ctx context.Context, req appraisal.SearchRequest) (*model.AppraisalResult, error) {
			return &model.AppraisalResult{Make: req.Make, Model: req.Model, YearRange: "Unknown", Confidence: 1.0, MarketData: []model.Listing{}}, nil
		},
	}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/search-prices?make=Kubota&model=L2501&type=Tractor", nil)
	w := httptest.NewRecorder()
	h.SearchPricesQuery(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	want := appraisal.SearchRequest{Make: "Kubota", Model: "L2501", Type: "Tractor"}
	if svc.lastSearch != want {
		t.Errorf("search request = %+v, want %+v", svc.lastSearch, want)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if md, ok := raw["market_data"].([]interface{}); !ok || len(md) != 0 {
		t.Errorf("market_data = %v, want empty array", raw["market_data"])
	}
	if raw["confidence"] != 1.0 {
		t.Errorf("confidence = %v, want 1.0", raw["confidence"])
	}
}

func TestSearchPricesQuery_MissingMake_Returns400(t *testing.T) {
	svc := &mockAppraisalService{
		searchPricesFn: func(ctx context.Context, req appraisal.SearchRequest) (*model.AppraisalResult, error) {
			return nil, model.NewMissingFieldError("make")
		},
	}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/search-prices?model=L2501", nil)
	w := httptest.NewRecorder()
	h.SearchPricesQuery(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeMissingField {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeMissingField)
	}
}

func TestSearchPricesJSON_DecodesBody(t *testing.T) {
	svc := &mockAppraisalService{}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/search",
		strings.NewReader(`{"make":"Yanmar","model":"EF352","type":"Tractor","year":"2015"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.SearchPricesJSON(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	want := appraisal.SearchRequest{Make: "Yanmar", Model: "EF352", Type: "Tractor", Year: "2015"}
	if svc.lastSearch != want {
		t.Errorf("search request = %+v, want %+v", svc.lastSearch, want)
	}
}

func TestSearchPricesJSON_InvalidBody_Returns400(t *testing.T) {
	svc := &mockAppraisalService{}
	h := NewAppraisalHandler(svc, 1<<20, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"make":`))
	w := httptest.NewRecorder()
	h.SearchPricesJSON(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidRequest)
	}
	if svc.searchCalls != 0 {
		t.Error("service should not be called for invalid body")
	}
}

func TestDetectImageType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		filename string
		data     []byte
		want     string
	}{
		{"宣言されたContent-Typeを優先", "image/webp", "a.webp", []byte("RIFF"), "image/webp"},
		{"octet-streamは内容判定", "application/octet-stream", "a", pngBytes, "image/png"},
		{"未指定は内容判定", "", "a", jpegBytes, "image/jpeg"},
		{"HEICは拡張子で補う", "", "IMG_0001.HEIC", []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c'}, "image/heic"},
		{"判定不能", "", "blob", []byte{0x00, 0x01, 0x02}, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectImageType(tt.declared, tt.filename, tt.data); got != tt.want {
				t.Errorf("detectImageType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewInvalidRequestError(), http.StatusBadRequest},
		{model.NewMissingFieldError("make"), http.StatusBadRequest},
		{model.NewInvalidFileTypeError("text/plain"), http.StatusBadRequest},
		{model.NewImageTooLargeError(10), http.StatusRequestEntityTooLarge},
		{model.NewIdentificationUnavailableError(), http.StatusServiceUnavailable},
		{model.NewInternalError(), http.StatusInternalServerError},
		{&model.APIError{Code: "UNKNOWN"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.err.Code, got, tt.want)
			}
		})
	}
}
