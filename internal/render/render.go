package render

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/lumiscrape/internal/domain"
)

// Separator 是控制台输出中条目之间的分隔线。
const Separator = "-----------------------------------------------------------------------"

// Text 把记录渲染为 "KEY: value" 行（按 ledger 列顺序）。
//
// 规则：
// - 列表按 ", " 拼接
// - absent 输出为空值（保留 "KEY: "，便于肉眼对齐字段）
func Text(rec *domain.MediaRecord) string {
	if rec == nil {
		return ""
	}
	var b strings.Builder
	for _, f := range rec.Attributes() {
		b.WriteString(strings.ToUpper(f.Name))
		b.WriteString(": ")
		b.WriteString(f.Value.Raw())
		b.WriteByte('\n')
	}
	return b.String()
}

// Item 是单个成功条目的完整控制台块：分隔线 + 请求行 + 属性数 + 属性。
func Item(rec *domain.MediaRecord) string {
	if rec == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(Separator)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Requested %q from %s\n", rec.Title(), rec.URL())
	fmt.Fprintf(&b, "Number of Attributes: %d\n", rec.AttrCount())
	b.WriteString(Text(rec))
	return b.String()
}
