package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/John-Robertt/lumiscrape/internal/domain"
)

// CSV 是逗号分隔、ISO-8859-1 编码的 ledger 文件。
type CSV struct {
	fs   afero.Fs
	path string
	mode Mode
}

func NewCSV(fs afero.Fs, path string, mode Mode) *CSV {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if mode == "" {
		mode = ModeHistory
	}
	return &CSV{fs: fs, path: path, mode: mode}
}

func (c *CSV) Path() string   { return c.path }
func (c *CSV) Format() Format { return FormatCSV }

// ReadRows 读取 ledger 的全部行（含表头），文件不存在时返回空。
func (c *CSV) ReadRows() ([][]string, error) {
	b, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	r := csv.NewReader(transform.NewReader(bytes.NewReader(b), charmap.ISO8859_1.NewDecoder()))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("读取 ledger 失败：%s: %w", c.path, err)
	}
	return rows, nil
}

func (c *CSV) Append(ctx context.Context, recs []*domain.MediaRecord) (AppendResult, error) {
	var res AppendResult
	columns := Columns(recs)
	if len(columns) == 0 {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	existing, err := c.ReadRows()
	if err != nil {
		return res, err
	}

	seen := make(map[string]struct{}, len(existing)+len(recs))
	if len(existing) > 0 {
		header := existing[0]
		if !slices.Equal(header, columns) {
			res.HeaderMismatch = true
			log.Warn().Str("ledger", c.path).Strs("header", header).Strs("columns", columns).
				Msg("ledger 表头与本批次列不一致，按原表头逐列映射追加（缺失列留空，多余列丢弃）")
			columns = header
		}
		if c.mode == ModeHistory {
			for _, row := range existing[1:] {
				seen[rowKey(row)] = struct{}{}
			}
		}
	}

	additions := make([][]string, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		cells := Cells(rec, columns)
		k := rowKey(cells)
		if _, dup := seen[k]; dup {
			res.Skipped = append(res.Skipped, rec.ID())
			log.Warn().Str("id", rec.ID()).Str("ledger", c.path).
				Msgf("%s already present in %q", rec.ID(), c.path)
			continue
		}
		seen[k] = struct{}{}
		additions = append(additions, cells)
	}

	writeHeader := len(existing) == 0
	if len(additions) == 0 && !writeHeader {
		return res, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if writeHeader {
		if err := w.Write(columns); err != nil {
			return res, err
		}
		res.WroteHeader = true
	}
	if err := w.WriteAll(additions); err != nil {
		return res, err
	}

	if err := c.appendBytes(buf.Bytes()); err != nil {
		return AppendResult{}, err
	}
	res.Appended = len(additions)
	return res, nil
}

func (c *CSV) appendBytes(b []byte) error {
	f, err := c.fs.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w := transform.NewWriter(f, latin1Encoder())
	if _, err := io.Copy(w, bytes.NewReader(b)); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
