package domain

import (
	"slices"
	"strings"
)

// ValueKind 标记 Value 的变体。
type ValueKind int

const (
	KindAbsent ValueKind = iota
	KindText
	KindList
)

// ListSep 是列表值写入 ledger / 文本渲染时的分隔符。
const ListSep = ", "

// Value 是记录字段的变体值：absent | string | []string。
// 零值即 absent。
type Value struct {
	kind ValueKind
	text string
	list []string
}

func Absent() Value { return Value{} }

func Text(s string) Value { return Value{kind: KindText, text: s} }

// List 复制输入切片；nil 与空切片都得到“空列表”（不是 absent）。
func List(xs []string) Value {
	return Value{kind: KindList, list: append([]string{}, xs...)}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// AsText 仅在 KindText 时返回 ok=true。
func (v Value) AsText() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// AsList 仅在 KindList 时返回 ok=true（返回副本）。
func (v Value) AsList() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]string{}, v.list...), true
}

// Raw 返回原始文本：列表按 ListSep 拼接，absent 为空串。
func (v Value) Raw() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindList:
		return strings.Join(v.list, ListSep)
	default:
		return ""
	}
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindList:
		return slices.Equal(v.list, o.list)
	default:
		return true
	}
}

// Field 是一个具名字段。
type Field struct {
	Name  string
	Value Value
}

// Fields 是保持首次出现顺序的字段集合。
// 同名字段再次 Set 时覆盖值，但保留首次出现的位置。
type Fields struct {
	items []Field
	index map[string]int
}

func (f *Fields) Set(name string, v Value) {
	if f.index == nil {
		f.index = make(map[string]int, 8)
	}
	if i, ok := f.index[name]; ok {
		f.items[i].Value = v
		return
	}
	f.index[name] = len(f.items)
	f.items = append(f.items, Field{Name: name, Value: v})
}

func (f Fields) Get(name string) (Value, bool) {
	i, ok := f.index[name]
	if !ok {
		return Value{}, false
	}
	return f.items[i].Value, true
}

func (f Fields) Len() int { return len(f.items) }

// All 返回字段副本（按顺序）。
func (f Fields) All() []Field { return append([]Field(nil), f.items...) }

func (f Fields) Names() []string {
	out := make([]string, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, it.Name)
	}
	return out
}

// Clone 深拷贝（值内的切片在 Value 构造时已复制，这里只复制索引）。
func (f Fields) Clone() Fields {
	out := Fields{}
	for _, it := range f.items {
		out.Set(it.Name, it.Value)
	}
	return out
}
