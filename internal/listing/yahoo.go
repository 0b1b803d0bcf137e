package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/hitoshi/farmappraiser/internal/metrics"
	"github.com/hitoshi/farmappraiser/internal/model"
)

const (
	// defaultSearchEndpoint は出品中オークションの検索エンドポイント。
	defaultSearchEndpoint = "https://auctions.yahoo.co.jp/search/search"
	// defaultClosedEndpoint は終了したオークションの検索エンドポイント。
	defaultClosedEndpoint = "https://auctions.yahoo.co.jp/closedsearch/closedsearch"
	// pageSize は1回の検索で取得する件数。
	pageSize = "20"
	// maxBodySize は検索結果ページの最大読み込みサイズ。
	maxBodySize = 5 * 1024 * 1024

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// YahooAuctions はヤフオク!の検索結果ページから出品一覧を取得するSource。
// 取得前にプロセス全体のレート制限とランダムな待機を挟む。
type YahooAuctions struct {
	httpClient *http.Client
	validator  URLValidator
	sanitizer  TextSanitizer
	limiter    *rate.Limiter
	config     Config
	logger     *slog.Logger
	metrics    metrics.MetricsCollector

	// テスト用に差し替え可能
	searchEndpoint string
	closedEndpoint string
}

// NewYahooAuctions はYahooAuctionsの新しいインスタンスを生成する。
// 1つのプロセスで1つだけ生成し、全リクエストで共有する。
func NewYahooAuctions(
	clients ClientFactory,
	validator URLValidator,
	sanitizer TextSanitizer,
	cfg Config,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *YahooAuctions {
	if mc == nil {
		mc = metrics.Nop{}
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &YahooAuctions{
		httpClient:     clients.NewSafeClient(cfg.Timeout),
		validator:      validator,
		sanitizer:      sanitizer,
		limiter:        rate.NewLimiter(limit, 1),
		config:         cfg,
		logger:         logger,
		metrics:        mc,
		searchEndpoint: defaultSearchEndpoint,
		closedEndpoint: defaultClosedEndpoint,
	}
}

// Search は出品中のオークションを検索する。IncludeSoldが有効な場合は落札済みの結果を後ろに連結する。
// 落札済み検索の失敗は出品中の結果を捨てずにログのみ記録する。
func (y *YahooAuctions) Search(ctx context.Context, terms []string) ([]model.Listing, error) {
	query := buildQuery(terms)
	if query == "" {
		return []model.Listing{}, nil
	}

	listings, err := y.fetch(ctx, y.searchEndpoint, query, model.SourceYahooAuctions)
	if err != nil {
		return nil, err
	}

	if !y.config.IncludeSold {
		return listings, nil
	}

	sold, err := y.fetch(ctx, y.closedEndpoint, query, model.SourceYahooAuctionsSold)
	if err != nil {
		y.logger.Warn("落札済みオークションの取得に失敗しました",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return listings, nil
	}
	return append(listings, sold...), nil
}

// fetch は1ページ分の検索結果を取得して解析する。
func (y *YahooAuctions) fetch(ctx context.Context, endpoint, query, source string) ([]model.Listing, error) {
	if err := y.pace(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	listings, err := y.fetchPage(ctx, endpoint, query, source)
	y.metrics.RecordListingFetch(source, time.Since(start), err)

	if err != nil {
		y.logger.Warn("出品一覧の取得に失敗しました",
			slog.String("source", source),
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	y.logger.Debug("出品一覧を取得しました",
		slog.String("source", source),
		slog.String("query", query),
		slog.Int("listing_count", len(listings)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return listings, nil
}

func (y *YahooAuctions) fetchPage(ctx context.Context, endpoint, query, source string) ([]model.Listing, error) {
	if y.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.config.Timeout)
		defer cancel()
	}

	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	q := reqURL.Query()
	q.Set("p", query)
	q.Set("exflg", "1")
	q.Set("b", "1")
	q.Set("n", pageSize)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Referer", "https://auctions.yahoo.co.jp/")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultFail:
		return nil, fmt.Errorf("%w: %d", model.ErrUpstreamStatus, resp.StatusCode)
	case FetchResultParseAnyway:
		y.logger.Warn("出品サイトが異常ステータスを返しました（本文を解析します）",
			slog.Int("http_status", resp.StatusCode),
			slog.String("query", query),
		)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBodySize), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("文字コードの判定に失敗しました: %w", err)
	}

	p := &parser{
		base:      resp.Request.URL,
		source:    source,
		validator: y.validator,
		sanitizer: y.sanitizer,
	}
	listings, err := p.parse(body)
	if err != nil {
		return nil, classifyTransportError(ctx, fmt.Errorf("検索結果ページの解析に失敗しました: %w", err))
	}
	return listings, nil
}

// pace はレート制限とランダムな待機を行う。コンテキストのキャンセルで中断する。
func (y *YahooAuctions) pace(ctx context.Context) error {
	if err := y.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("レート制限の待機が中断されました: %w", err)
	}

	d := jitter(y.config.MinDelay, y.config.MaxDelay)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitter は[lo, hi]の範囲でランダムな待機時間を返す。
func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

// buildQuery は空の検索語を除いて空白で連結する。
func buildQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// classifyTransportError はタイムアウトをErrUpstreamTimeoutとして分類する。
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", model.ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", model.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("出品サイトへのリクエストに失敗しました: %w", err)
}

// compile-time interface check
var _ Source = (*YahooAuctions)(nil)
