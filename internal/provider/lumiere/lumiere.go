package lumiere

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/John-Robertt/lumiscrape/internal/domain"
	providerx "github.com/John-Robertt/lumiscrape/internal/provider"
	"github.com/John-Robertt/lumiscrape/internal/provider/labels"
)

// DefaultBaseURL 是 Lumiere 站点根地址。
const DefaultBaseURL = "https://lumiere.berkeley.edu"

const (
	itemsPath    = "/students/items/"
	filmInfoPath = "/film_info"
)

var (
	titleClassRE = regexp.MustCompile(`(page-title)\s.*`)
	subtitleRE   = regexp.MustCompile(`(?i)(subtitle:)\s*`)
	domainRE     = regexp.MustCompile(`(?:https?://)?(?:www\.)?([\w-]+\.(?:com|net|org|co|us))\b`)
	newlineRunRE = regexp.MustCompile(`[\r\n]+`)
)

// Source 实现 Lumiere 条目页 + film_info 子页的抓取与解析。
//
// 约束：
// - Fetch 不做缓存/重试/限速（由上层统一控制）
// - Parse 必须是纯函数（只依赖输入 Pages）
type Source struct {
	BaseURL string
	Labels  labels.Parser
}

// New 返回一个 Source；baseURL 为空时使用 DefaultBaseURL，parser 为空时使用 positional。
func New(baseURL string, parser labels.Parser) *Source {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if parser == nil {
		parser = labels.Positional{}
	}
	return &Source{BaseURL: baseURL, Labels: parser}
}

func (s *Source) Name() string { return "lumiere" }

func (s *Source) ItemURL(id domain.ItemID) string {
	return s.base() + itemsPath + id.String()
}

func (s *Source) base() string {
	b := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if b == "" {
		return DefaultBaseURL
	}
	return b
}

// Fetch 顺序请求详情页与 film_info 子页。
func (s *Source) Fetch(ctx context.Context, id domain.ItemID, c *http.Client) (providerx.Pages, error) {
	if c == nil {
		return providerx.Pages{}, errors.New("http client 不能为空")
	}
	if !id.Valid() {
		return providerx.Pages{}, fmt.Errorf("id 超出范围：%d", int(id))
	}

	itemURL := s.ItemURL(id)
	main, err := fetchURL(ctx, c, itemURL)
	if err != nil {
		return providerx.Pages{}, err
	}
	info, err := fetchURL(ctx, c, itemURL+filmInfoPath)
	if err != nil {
		return providerx.Pages{}, err
	}
	return providerx.Pages{ItemURL: itemURL, Main: main, Info: info}, nil
}

// Parse 把两份 HTML 解析为 Extract（不含时长）。
//
// 判定：
// - 标题缺失：解析失败（致命）
// - <video> 缺失或 src 为空：条目不存在（可继续）
func (s *Source) Parse(id domain.ItemID, p providerx.Pages) (providerx.Extract, error) {
	if len(p.Main) == 0 {
		return providerx.Extract{}, errors.New("详情页 html 为空")
	}
	pageURL := strings.TrimSpace(p.ItemURL)
	if pageURL == "" {
		pageURL = s.ItemURL(id)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Main))
	if err != nil {
		return providerx.Extract{}, err
	}

	title, ok := findTitle(doc)
	if !ok {
		return providerx.Extract{}, errors.New("未找到 page-title 元素（疑似返回了非详情页内容）")
	}

	src, _ := doc.Find("video").First().Attr("src")
	src = strings.TrimSpace(src)
	if src == "" {
		return providerx.Extract{}, &providerx.NotFoundError{URL: pageURL, Reason: "页面中没有 video 元素"}
	}

	hasSubs, subs := parseSubtitles(doc)

	ex := providerx.Extract{
		URL:          pageURL,
		Title:        title,
		MediaURL:     s.mediaURL(src),
		HasSubtitles: hasSubs,
		Subtitles:    subs,
	}

	if len(p.Info) == 0 {
		return providerx.Extract{}, errors.New("film_info html 为空")
	}
	info, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Info))
	if err != nil {
		return providerx.Extract{}, err
	}
	dk := info.Find("span.dk").First()
	if dk.Length() == 0 {
		return providerx.Extract{}, errors.New("film_info 中未找到 label 区块（span.dk）")
	}
	ex.Provenance = s.provenance(dk.Parent())
	ex.Synopsis = parseSynopsis(info)
	return ex, nil
}

func (s *Source) provenance(block *goquery.Selection) domain.Fields {
	parser := s.Labels
	if parser == nil {
		parser = labels.Positional{}
	}
	var out domain.Fields
	for _, pair := range parser.Parse(block) {
		if pair.Name == "" {
			continue
		}
		switch {
		case pair.Missing:
			out.Set(pair.Name, domain.Absent())
		case pair.Name == domain.AttrPurchasedAt:
			out.Set(pair.Name, domain.List(PurchaseDomains(pair.Raw)))
		default:
			out.Set(pair.Name, labels.SplitValue(pair.Raw))
		}
	}
	return out
}

func (s *Source) mediaURL(src string) string {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src
	}
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	if !strings.HasPrefix(src, "/") {
		src = "/" + src
	}
	return s.base() + src
}

// PurchaseDomains 从原始文本中提取域名（去重，保持出现顺序）。
// 例如 "http://example.com/x" => ["example.com"]。
func PurchaseDomains(raw string) []string {
	ms := domainRE.FindAllStringSubmatch(raw, -1)
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		if len(m) > 1 && m[1] != "" {
			out = append(out, m[1])
		}
	}
	return lo.Uniq(out)
}

func findTitle(doc *goquery.Document) (string, bool) {
	sel := doc.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return titleClassRE.MatchString(class)
	}).First()
	if sel.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(sel.Text()), true
}

func parseSubtitles(doc *goquery.Document) (bool, mo.Option[string]) {
	dk := doc.Find(".dk").First()
	if dk.Length() == 0 {
		return false, mo.None[string]()
	}
	rest := strings.TrimSpace(subtitleRE.ReplaceAllString(dk.Text(), ""))
	if rest == "" {
		return false, mo.None[string]()
	}
	return true, mo.Some(rest)
}

// parseSynopsis 取 "Synopsis" 标题父元素文本的第三段（按换行最多切两次）。
func parseSynopsis(doc *goquery.Document) mo.Option[string] {
	h := doc.Find("h3").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == "Synopsis"
	}).First()
	if h.Length() == 0 {
		return mo.None[string]()
	}
	parts := strings.SplitN(h.Parent().Text(), "\n", 3)
	if len(parts) < 3 {
		return mo.None[string]()
	}
	txt := newlineRunRE.ReplaceAllString(parts[2], " ")
	txt = strings.ReplaceAll(txt, `\`, "")
	txt = strings.Join(strings.Fields(txt), " ")
	return mo.Some(txt)
}

func fetchURL(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// 未认证时站点会把请求重定向到 CAS 登录页；不尝试绕过。
	if resp.Request != nil && resp.Request.URL != nil && isLoginPath(resp.Request.URL.Path) {
		return nil, &providerx.BlockedError{URL: resp.Request.URL.String(), Reason: "login"}
	}

	loc := strings.TrimSpace(resp.Header.Get("Location"))
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &providerx.NotFoundError{URL: u, Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: loc}
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}

func isLoginPath(p string) bool {
	p = strings.ToLower(p)
	return strings.Contains(p, "/cas/login") || strings.HasSuffix(strings.TrimRight(p, "/"), "/login")
}
