package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/hitoshi/farmappraiser/internal/appraisal"
	"github.com/hitoshi/farmappraiser/internal/identify"
	"github.com/hitoshi/farmappraiser/internal/middleware"
	"github.com/hitoshi/farmappraiser/internal/model"
)

// multipartOverhead はファイル本体以外に許容するmultipartボディのバイト数。
const multipartOverhead = 1 << 20

// uploadFieldName は画像ファイルを受け取るフォームフィールド名。
const uploadFieldName = "file"

// AppraisalServiceInterface は査定サービスのインターフェース。
type AppraisalServiceInterface interface {
	AnalyzeImage(ctx context.Context, image []byte, mimeType string) (*model.AppraisalResult, error)
	SearchPrices(ctx context.Context, req appraisal.SearchRequest) (*model.AppraisalResult, error)
}

// AppraisalHandler は査定関連のHTTPハンドラー。
type AppraisalHandler struct {
	service       AppraisalServiceInterface
	maxUploadSize int64
	logger        *slog.Logger
}

// NewAppraisalHandler はAppraisalHandlerの新しいインスタンスを生成する。
func NewAppraisalHandler(service AppraisalServiceInterface, maxUploadSize int64, logger *slog.Logger) *AppraisalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppraisalHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// searchRequest はPOST /searchのリクエストボディ。
type searchRequest struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Type  string `json:"type"`
	Year  string `json:"year"`
}

// SearchPricesQuery はクエリパラメータ指定の相場検索を処理する。
// GET /api/search-prices?make=&model=&type=&year=
func (h *AppraisalHandler) SearchPricesQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.searchPrices(w, r, appraisal.SearchRequest{
		Make:  q.Get("make"),
		Model: q.Get("model"),
		Type:  q.Get("type"),
		Year:  q.Get("year"),
	})
}

// SearchPricesJSON はJSONボディ指定の相場検索を処理する。
// POST /search
func (h *AppraisalHandler) SearchPricesJSON(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	h.searchPrices(w, r, appraisal.SearchRequest{
		Make:  req.Make,
		Model: req.Model,
		Type:  req.Type,
		Year:  req.Year,
	})
}

func (h *AppraisalHandler) searchPrices(w http.ResponseWriter, r *http.Request, req appraisal.SearchRequest) {
	result, err := h.service.SearchPrices(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AnalyzeImage はアップロード画像から機械を識別し査定結果を返す。
// POST /api/analyze-image (multipart/form-data, field: file)
func (h *AppraisalHandler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	bodyLimit := h.maxUploadSize + multipartOverhead
	if r.ContentLength > bodyLimit {
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewImageTooLargeError(h.maxUploadSize))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewImageTooLargeError(h.maxUploadSize))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadFieldName)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldError(uploadFieldName))
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewImageTooLargeError(h.maxUploadSize))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if int64(len(data)) > h.maxUploadSize {
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewImageTooLargeError(h.maxUploadSize))
		return
	}

	mimeType := detectImageType(header.Header.Get("Content-Type"), header.Filename, data)
	if !identify.IsSupportedImageType(mimeType) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidFileTypeError(mimeType))
		return
	}

	result, err := h.service.AnalyzeImage(r.Context(), data, mimeType)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// detectImageType はパートヘッダーのContent-Typeを優先し、
// 未指定やoctet-streamの場合は内容から判定する。
// HEICは内容判定できないため拡張子で補う。
func detectImageType(declared, filename string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	sniffed := http.DetectContentType(data)
	if sniffed != "application/octet-stream" {
		return sniffed
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".heic", ".heif":
		return "image/heic"
	}
	return sniffed
}
