package verify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/hitoshi/farmappraiser/internal/model"
)

const (
	// defaultSearchEndpoint はDuckDuckGoのHTML版検索エンドポイント。
	defaultSearchEndpoint = "https://html.duckduckgo.com/html/"
	// maxBodySize は検索結果ページの最大読み込みサイズ。
	maxBodySize = 2 * 1024 * 1024

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// SearchResult はWeb検索結果の1件。
type SearchResult struct {
	Title   string
	Snippet string
	URL     string
}

// WebSearcher は汎用Web検索のインターフェース。
type WebSearcher interface {
	// Search はクエリで検索し、上位limit件までの結果を返す。
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// TextSanitizer は検索結果テキストの無害化インターフェース。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// ClientFactory は外向きHTTPクライアントの生成インターフェース。
type ClientFactory interface {
	NewSafeClient(timeout time.Duration) *http.Client
}

// DuckDuckGo はDuckDuckGoのHTML版を使用するWebSearcher。
type DuckDuckGo struct {
	httpClient *http.Client
	sanitizer  TextSanitizer
	timeout    time.Duration
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewDuckDuckGo はDuckDuckGoの新しいインスタンスを生成する。
func NewDuckDuckGo(clients ClientFactory, sanitizer TextSanitizer, timeout time.Duration, logger *slog.Logger) *DuckDuckGo {
	return &DuckDuckGo{
		httpClient: clients.NewSafeClient(timeout),
		sanitizer:  sanitizer,
		timeout:    timeout,
		logger:     logger,
		endpoint:   defaultSearchEndpoint,
	}
}

// Search はクエリで検索し、上位limit件までの結果を返す。
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	form := url.Values{}
	form.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ja;q=0.8")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", model.ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("検索エンジンへのリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", model.ErrUpstreamStatus, resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBodySize), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("文字コードの判定に失敗しました: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("検索結果ページの解析に失敗しました: %w", err)
	}

	results := []SearchResult{}
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find(".result__a").First()
		title := d.sanitizer.Sanitize(innerHTML(link))
		if title == "" {
			return true
		}
		href, _ := link.Attr("href")
		results = append(results, SearchResult{
			Title:   title,
			Snippet: d.sanitizer.Sanitize(innerHTML(s.Find(".result__snippet").First())),
			URL:     resolveRedirect(href),
		})
		return limit <= 0 || len(results) < limit
	})

	d.logger.Debug("Web検索が完了しました",
		slog.String("query", query),
		slog.Int("result_count", len(results)),
	)
	return results, nil
}

// resolveRedirect はDuckDuckGoのリダイレクトリンク（/l/?uddg=...）から遷移先URLを取り出す。
func resolveRedirect(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		dest, err := url.Parse(target)
		if err != nil {
			return ""
		}
		u = dest
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

// compile-time interface check
var _ WebSearcher = (*DuckDuckGo)(nil)

// innerHTML は要素の内部HTMLを返す。取得に失敗した場合はテキストをエスケープして返す。
func innerHTML(s *goquery.Selection) string {
	h, err := s.Html()
	if err != nil {
		return html.EscapeString(s.Text())
	}
	return h
}
