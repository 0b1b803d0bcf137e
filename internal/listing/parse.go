package listing

import (
	"html"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/farmappraiser/internal/model"
)

// 検索結果ページのセレクタ
const (
	selectorItem  = ".Product"
	selectorTitle = ".Product__titleLink"
	selectorPrice = ".Product__priceValue"
	selectorImage = ".Product__imageData"
	selectorTime  = ".Product__time"
)

// parser は検索結果ページから出品一覧を抽出する。
type parser struct {
	base      *url.URL
	source    string
	validator URLValidator
	sanitizer TextSanitizer
}

// parse はHTMLを解析して出品一覧を返す。
// タイトルまたは価格要素を欠く項目はスキップする。項目が1件もない場合は空スライスを返す。
func (p *parser) parse(r io.Reader) ([]model.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	listings := []model.Listing{}
	doc.Find(selectorItem).Each(func(_ int, s *goquery.Selection) {
		if l, ok := p.parseItem(s); ok {
			listings = append(listings, l)
		}
	})
	return listings, nil
}

func (p *parser) parseItem(s *goquery.Selection) (model.Listing, bool) {
	titleEl := s.Find(selectorTitle).First()
	priceEl := s.Find(selectorPrice).First()
	if titleEl.Length() == 0 || priceEl.Length() == 0 {
		return model.Listing{}, false
	}

	title := p.sanitizer.Sanitize(innerHTML(titleEl))
	if title == "" {
		return model.Listing{}, false
	}

	l := model.Listing{
		Title:    title,
		Price:    ParsePrice(priceEl.Text()),
		Currency: model.CurrencyJPY,
		Source:   p.source,
	}

	if href, ok := titleEl.Attr("href"); ok {
		l.URL = p.resolve(href)
	}

	imageEl := s.Find(selectorImage).First()
	src, ok := imageEl.Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		src, _ = imageEl.Attr("data-src")
	}
	l.ImageURL = p.resolve(src)

	if p.source == model.SourceYahooAuctionsSold {
		l.SoldDate = strings.Join(strings.Fields(s.Find(selectorTime).First().Text()), " ")
	}

	return l, true
}

// resolve は相対URLをページURLで解決し、安全でないURLは空文字列にする。
func (p *parser) resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if p.base != nil {
		u = p.base.ResolveReference(u)
	}
	resolved := u.String()
	if err := p.validator.ValidateURL(resolved); err != nil {
		return ""
	}
	return resolved
}

// ParsePrice は価格表示から円記号・カンマ・空白を除いて整数に変換する。
// 数字以外が残る場合（「〜」を含む範囲表示など）は0を返す。
func ParsePrice(text string) int64 {
	cleaned := strings.NewReplacer("円", "", ",", "", "，", "", "¥", "", "￥", "").Replace(text)
	cleaned = strings.Join(strings.Fields(cleaned), "")
	if cleaned == "" {
		return 0
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return 0
		}
	}
	price, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0
	}
	return price
}

// innerHTML は要素の内部HTMLを返す。テキストノード中の「<」等はエンティティのまま残るため、
// サニタイザがタグとして除去することはない。取得に失敗した場合はテキストをエスケープして返す。
func innerHTML(s *goquery.Selection) string {
	h, err := s.Html()
	if err != nil {
		return html.EscapeString(s.Text())
	}
	return h
}
