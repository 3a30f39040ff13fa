package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/John-Robertt/lumiscrape/internal/domain"
)

// Mode 决定去重时比对的范围。
type Mode string

const (
	// ModeHistory：与 ledger 中已有的全部行、以及本批次中更早的行比对。
	ModeHistory Mode = "history"
	// ModeBatch：只在本批次内部去重，不读取历史行。
	ModeBatch Mode = "batch"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeHistory, "":
		return ModeHistory, true
	case ModeBatch:
		return ModeBatch, true
	default:
		return "", false
	}
}

// Format 是 ledger 的存储后端。
type Format string

const (
	FormatCSV    Format = "csv"
	FormatSQLite Format = "sqlite"
)

// InferFormat 优先使用显式格式；为空时按扩展名推断（.db/.sqlite/.sqlite3 => sqlite，其它 => csv）。
func InferFormat(path, explicit string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(explicit))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatSQLite:
		return FormatSQLite, nil
	case "":
	default:
		return "", fmt.Errorf("不支持的 ledger 格式：%q（可选：csv、sqlite）", explicit)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	default:
		return FormatCSV, nil
	}
}

// AppendResult 是一次 Append 的统计。
type AppendResult struct {
	Appended       int
	Skipped        []string // 因重复被跳过的条目 id
	WroteHeader    bool
	HeaderMismatch bool
}

// Writer 把一批记录追加到 ledger，并按 Mode 去重。
//
// 约束：
// - 列来自第一条记录的属性名（按顺序）
// - 一次 Append 最多打开/写入一次存储
// - 空批次不产生任何写入
type Writer interface {
	Append(ctx context.Context, recs []*domain.MediaRecord) (AppendResult, error)
	Path() string
	Format() Format
}

// Options 是 Open 的参数。
type Options struct {
	Path   string
	Format string
	Mode   Mode
	Fs     afero.Fs // 仅 CSV 使用；为空时使用 OS 文件系统
	RunID  string   // 仅 SQLite 使用
}

// Open 按格式返回对应的 Writer。
func Open(opts Options) (Writer, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("ledger 路径不能为空")
	}
	f, err := InferFormat(path, opts.Format)
	if err != nil {
		return nil, err
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeHistory
	}
	if _, ok := ParseMode(string(mode)); !ok {
		return nil, fmt.Errorf("不支持的去重模式：%q（可选：history、batch）", mode)
	}
	switch f {
	case FormatSQLite:
		return NewSQLite(path, mode, opts.RunID), nil
	default:
		return NewCSV(opts.Fs, path, mode), nil
	}
}

// Columns 返回一批记录的列名（来自第一条记录）。
func Columns(recs []*domain.MediaRecord) []string {
	for _, r := range recs {
		if r != nil {
			return r.AttrNames()
		}
	}
	return nil
}

// Cells 按列取出记录的单元格文本：列表按 ", " 拼接，absent/缺列为空串。
// '\r' 会被去掉（CSV 以 CRLF 换行，读回时无法区分）；文本会先转为 ISO-8859-1 可表示的形式（其余字符变为 '?'），保证比对与写入使用同一形式。
func Cells(rec *domain.MediaRecord, columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		v, ok := rec.Attr(c)
		if !ok {
			continue
		}
		out[i] = Latin1(strings.ReplaceAll(v.Raw(), "\r", ""))
	}
	return out
}

func latin1Encoder() *encoding.Encoder { return charmap.ISO8859_1.NewEncoder() }

// Latin1 把 ISO-8859-1 无法表示的字符替换为 '?'。
func Latin1(s string) string {
	return strings.Map(func(r rune) rune {
		if _, ok := charmap.ISO8859_1.EncodeRune(r); ok {
			return r
		}
		return '?'
	}, s)
}

func rowKey(cells []string) string { return strings.Join(cells, "\x1f") }
