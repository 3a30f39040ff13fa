package labels

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"github.com/John-Robertt/lumiscrape/internal/domain"
)

// Pair 是从 label 区块解析出的一组 “字段名 + 原始值”。
// Missing=true 表示 label 后没有值（只有 keyed 解析器会给出）。
type Pair struct {
	Name    string
	Raw     string
	Missing bool
}

// Parser 把 film_info 页面的 label 区块解析为有序的 Pair 列表。
//
// 约束：Parse 必须是纯函数，且对任何输入都不能 panic（格式错误只会得到错位/缺失的值）。
type Parser interface {
	Name() string
	Parse(block *goquery.Selection) []Pair
}

var (
	wsRE        = regexp.MustCompile(`\s`)
	listDelimRE = regexp.MustCompile(`,|\b/\b`)
	splitRE     = regexp.MustCompile(`[,/]`)
)

// FieldName 把 "Purchased At:" 规范化为 "purchased_at"。
func FieldName(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, ":")
	return wsRE.ReplaceAllString(strings.ToLower(label), "_")
}

// IsLabel 判断 token 是否是 label（以 ':' 结尾）。
func IsLabel(token string) bool { return strings.HasSuffix(token, ":") }

// SplitValue 把含 ',' 或词间 '/' 的值拆成列表，其它保持为文本。
func SplitValue(raw string) domain.Value {
	if !listDelimRE.MatchString(raw) {
		return domain.Text(raw)
	}
	parts := lo.Map(splitRE.Split(raw, -1), func(s string, _ int) string { return strings.TrimSpace(s) })
	return domain.List(lo.Compact(parts))
}

// Tokens 把区块文本按行拆分，去掉首尾空白与空行。
func Tokens(text string) []string {
	lines := lo.Map(strings.Split(text, "\n"), func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Compact(lines)
}

// Positional 是按位置扫描的解析器：遇到以 ':' 结尾的 token，就把紧随其后的 token 当作值。
//
// 注意：窗口每次只前移一格；label 后缺值时，后续字段会整体错位（不会报错）。
type Positional struct{}

func (Positional) Name() string { return "positional" }

func (Positional) Parse(block *goquery.Selection) []Pair {
	if block == nil {
		return nil
	}
	tokens := Tokens(block.Text())
	out := make([]Pair, 0, len(tokens)/2)
	for i := 0; i+1 < len(tokens); i++ {
		if !IsLabel(tokens[i]) {
			continue
		}
		out = append(out, Pair{Name: FieldName(tokens[i]), Raw: tokens[i+1]})
	}
	return out
}

// Keyed 按 span.dk 标签逐个取值：值是该标签到下一个标签之间的全部文本。
// 缺值的标签得到 Missing=true，不会影响其它字段。
type Keyed struct{}

func (Keyed) Name() string { return "keyed" }

func (Keyed) Parse(block *goquery.Selection) []Pair {
	if block == nil {
		return nil
	}
	out := make([]Pair, 0, 8)
	var (
		cur   *Pair
		value strings.Builder
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Raw = strings.Join(strings.Fields(value.String()), " ")
		cur.Missing = cur.Raw == ""
		out = append(out, *cur)
		cur = nil
		value.Reset()
	}
	block.Contents().Each(func(_ int, s *goquery.Selection) {
		if s.Is("span.dk") {
			flush()
			cur = &Pair{Name: FieldName(s.Text())}
			return
		}
		if cur != nil {
			value.WriteString(" ")
			value.WriteString(s.Text())
		}
	})
	flush()
	return out
}
