package domain

import (
	"strconv"
	"strings"

	"github.com/samber/mo"
)

// Disclaimer 是 Lumiere 对所有条目统一展示的版权声明。
// 它属于“类级别”常量：不计入属性数，也不写入 ledger 列。
const Disclaimer = "The copyright law of the United States (Title 17 U.S. Code) governs the making of photocopies or " +
	"other reproductions of copyrighted material. This content is provided exclusively by streaming for " +
	"course assigned viewing during the current semester or quarter. Users are liable for any " +
	"infringement, including reproduction, capture, download, copying or redistribution. "

// ExpectedAttrCount 是一条“结构完整”的记录应有的属性数（软约束，只告警）。
const ExpectedAttrCount = 14

// 固定属性名（ledger 列名）。provenance 字段名来自页面，不在此列。
const (
	AttrURL             = "url"
	AttrID              = "id"
	AttrTitle           = "title"
	AttrMediaURL        = "media_url"
	AttrDurationMinutes = "duration_minutes"
	AttrHasSubtitles    = "has_subtitles"
	AttrSubtitles       = "subtitles"
	AttrSynopsis        = "synopsis"
	AttrPurchasedAt     = "purchased_at"
)

// RecordInput 是构造 MediaRecord 的参数集合（只在构造时使用）。
type RecordInput struct {
	URL             string
	Title           string
	MediaURL        string
	DurationMinutes int
	HasSubtitles    bool
	Subtitles       mo.Option[string]
	Provenance      Fields
	Synopsis        mo.Option[string]
}

// MediaRecord 是一个条目的完整元数据。
//
// 约束：
// - 构造后不可变（字段不导出，只读访问）
// - 常用字段是强类型成员；页面上的 label:value 字段放在有序的 provenance 中
type MediaRecord struct {
	url             string
	id              string
	title           string
	mediaURL        string
	durationMinutes int
	hasSubtitles    bool
	subtitles       mo.Option[string]
	provenance      Fields
	synopsis        mo.Option[string]
}

func NewMediaRecord(in RecordInput) *MediaRecord {
	return &MediaRecord{
		url:             in.URL,
		id:              trailingSegment(in.URL),
		title:           in.Title,
		mediaURL:        in.MediaURL,
		durationMinutes: in.DurationMinutes,
		hasSubtitles:    in.HasSubtitles,
		subtitles:       in.Subtitles,
		provenance:      in.Provenance.Clone(),
		synopsis:        in.Synopsis,
	}
}

func (r *MediaRecord) URL() string                  { return r.url }
func (r *MediaRecord) ID() string                   { return r.id }
func (r *MediaRecord) Title() string                { return r.title }
func (r *MediaRecord) MediaURL() string             { return r.mediaURL }
func (r *MediaRecord) DurationMinutes() int         { return r.durationMinutes }
func (r *MediaRecord) HasSubtitles() bool           { return r.hasSubtitles }
func (r *MediaRecord) Subtitles() mo.Option[string] { return r.subtitles }
func (r *MediaRecord) Synopsis() mo.Option[string]  { return r.synopsis }
func (r *MediaRecord) Provenance() Fields           { return r.provenance.Clone() }
func (r *MediaRecord) Disclaimer() string           { return Disclaimer }

// Attributes 按 ledger 列顺序返回全部属性。
//
// provenance 字段与固定属性同名时（例如页面上的 "Title:"），以 provenance 的值为准，
// 位置保持固定属性的位置，不会产生重复列。同名的 "synopsis" 字段只占位，
// 值仍取简介段落。
func (r *MediaRecord) Attributes() []Field {
	out := make([]Field, 0, 8+r.provenance.Len())
	out = append(out,
		Field{Name: AttrURL, Value: Text(r.url)},
		Field{Name: AttrID, Value: Text(r.id)},
		Field{Name: AttrTitle, Value: Text(r.title)},
		Field{Name: AttrMediaURL, Value: Text(r.mediaURL)},
		Field{Name: AttrDurationMinutes, Value: Text(strconv.Itoa(r.durationMinutes))},
		Field{Name: AttrHasSubtitles, Value: Text(strconv.FormatBool(r.hasSubtitles))},
		Field{Name: AttrSubtitles, Value: optionValue(r.subtitles)},
	)
	fixed := len(out)
	synopsisPlaced := false
	for _, f := range r.provenance.All() {
		if i := indexOfField(out[:fixed], f.Name); i >= 0 {
			out[i].Value = f.Value
			continue
		}
		if f.Name == AttrSynopsis {
			f.Value = optionValue(r.synopsis)
			synopsisPlaced = true
		}
		out = append(out, f)
	}
	if !synopsisPlaced {
		out = append(out, Field{Name: AttrSynopsis, Value: optionValue(r.synopsis)})
	}
	return out
}

func indexOfField(fs []Field, name string) int {
	for i, f := range fs {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Attr 按名称查找属性；不存在返回 absent + false。
func (r *MediaRecord) Attr(name string) (Value, bool) {
	for _, f := range r.Attributes() {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (r *MediaRecord) AttrNames() []string {
	attrs := r.Attributes()
	out := make([]string, 0, len(attrs))
	for _, f := range attrs {
		out = append(out, f.Name)
	}
	return out
}

// AttrCount 是属性数（同名覆盖不重复计数）。
func (r *MediaRecord) AttrCount() int { return len(r.Attributes()) }

func (r *MediaRecord) String() string { return r.title + " from " + r.url }

func optionValue(o mo.Option[string]) Value {
	if s, ok := o.Get(); ok {
		return Text(s)
	}
	return Absent()
}

func trailingSegment(u string) string {
	u = strings.TrimSpace(u)
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
