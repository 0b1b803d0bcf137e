package identify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/hitoshi/farmappraiser/internal/model"
)

// prompt は画像識別の指示文。
const prompt = `You are an expert farm equipment appraiser. Analyze this image and identify the farm equipment.
Return ONLY a raw JSON object (no markdown formatting) with the following fields:
- make: The manufacturer (e.g., John Deere, Kubota, Case IH)
- make_ja: The manufacturer in Japanese Katakana/Kanji (e.g., クボタ, ヤンマー).
- model: The model number/name (e.g., 5075E, L2501). Be as specific as possible.
- year_range: Estimated manufacturing year range (e.g., "2015-2020").
- type: The type of equipment (e.g., Tractor, Combine, Baler).
- type_ja: The type of equipment in Japanese (e.g., トラクター, コンバイン).
- confidence: A number between 0.0 and 1.0 indicating your confidence in the identification.

If you cannot identify the equipment with at least 0.5 confidence, return {"error": "Could not identify equipment", "confidence": <low_score>}.
If the model number is unclear or partially obscured, return the closest known valid model series or just the series prefix (e.g., 'Ke Series') rather than guessing a specific number.`

// ClientFactory は外向きHTTPクライアントの生成インターフェース。
type ClientFactory interface {
	NewSafeClient(timeout time.Duration) *http.Client
}

// GeminiClient はGemini API（generateContent）を使用するIdentifier。
// 通信はClientFactoryが返すSSRF対策済みのクライアントで行う。
type GeminiClient struct {
	client    *genai.Client
	initErr   error
	apiKey    string
	modelName string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGeminiClient はGeminiClientの新しいインスタンスを生成する。
func NewGeminiClient(clients ClientFactory, apiKey, modelName string, timeout time.Duration, logger *slog.Logger) *GeminiClient {
	return newGeminiClient(clients.NewSafeClient(timeout), apiKey, modelName, timeout, logger, "")
}

// newGeminiClient はAPIのベースURLを指定してGeminiClientを生成する。baseURLが空なら既定のURLを使う。
func newGeminiClient(httpClient *http.Client, apiKey, modelName string, timeout time.Duration, logger *slog.Logger, baseURL string) *GeminiClient {
	c := &GeminiClient{
		apiKey:    apiKey,
		modelName: modelName,
		timeout:   timeout,
		logger:    logger,
	}
	if apiKey == "" {
		return c
	}
	cfg := &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	}
	c.client, c.initErr = genai.NewClient(context.Background(), cfg)
	return c
}

// Available はAPIキーが設定されているかを返す。
func (c *GeminiClient) Available() bool {
	return c.apiKey != ""
}

// Identify は画像をAPIに送信し、回答のJSONを識別結果に変換する。
// 通信失敗・異常ステータス・回答の解析失敗はすべて失敗結果として返す。
func (c *GeminiClient) Identify(ctx context.Context, image []byte, mimeType string) model.IdentificationResult {
	if len(image) == 0 {
		return failed()
	}

	start := time.Now()
	text, err := c.generate(ctx, image, mimeType)
	if err != nil {
		c.logger.Error("画像識別APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("mime_type", mimeType),
			slog.Int("image_bytes", len(image)),
		)
		return failed()
	}

	result, err := parseAnswer(text)
	if err != nil {
		c.logger.Error("画像識別APIの回答の解析に失敗しました",
			slog.String("error", err.Error()),
		)
		return failed()
	}

	c.logger.Info("画像識別が完了しました",
		slog.String("make", result.Make),
		slog.String("make_ja", result.MakeJa),
		slog.String("model", result.Model),
		slog.Float64("confidence", result.Confidence),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result
}

func (c *GeminiClient) generate(ctx context.Context, image []byte, mimeType string) (string, error) {
	if c.client == nil {
		if c.initErr != nil {
			return "", fmt.Errorf("APIクライアントの初期化に失敗しました: %w", c.initErr)
		}
		return "", errors.New("APIキーが設定されていません")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, config)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", model.ErrUpstreamTimeout, err)
		}
		return "", fmt.Errorf("画像識別APIへのリクエストに失敗しました: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("回答が空です")
	}
	return text, nil
}

// answer はモデルが返すJSON。
type answer struct {
	Make       string     `json:"make"`
	MakeJa     string     `json:"make_ja"`
	Model      string     `json:"model"`
	YearRange  string     `json:"year_range"`
	Type       string     `json:"type"`
	TypeJa     string     `json:"type_ja"`
	Confidence *flexFloat `json:"confidence"`
	Error      string     `json:"error"`
}

// flexFloat は数値と数値文字列の両方を受け付ける。
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("confidenceが数値ではありません: %s", s)
	}
	*f = flexFloat(v)
	return nil
}

// parseAnswer はモデルの回答テキストを識別結果に変換する。
// Markdownのコードフェンスや前後の説明文は取り除く。confidenceが無い場合は0とみなす。
func parseAnswer(text string) (model.IdentificationResult, error) {
	raw := extractJSON(text)
	if raw == "" {
		return model.IdentificationResult{}, errors.New("回答にJSONオブジェクトが含まれていません")
	}

	var a answer
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return model.IdentificationResult{}, fmt.Errorf("回答JSONのパースに失敗しました: %w", err)
	}

	result := model.IdentificationResult{
		Make:      strings.TrimSpace(a.Make),
		MakeJa:    strings.TrimSpace(a.MakeJa),
		Model:     strings.TrimSpace(a.Model),
		Type:      strings.TrimSpace(a.Type),
		TypeJa:    strings.TrimSpace(a.TypeJa),
		YearRange: strings.TrimSpace(a.YearRange),
		Error:     strings.TrimSpace(a.Error),
	}
	if a.Confidence != nil {
		result.Confidence = clamp(float64(*a.Confidence))
	}
	return result, nil
}

// extractJSON はコードフェンスを除去し、最初の'{'から最後の'}'までを取り出す。
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// compile-time interface check
var _ Identifier = (*GeminiClient)(nil)
