package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/John-Robertt/lumiscrape/internal/domain"
)

// SQLite 是把 ledger 行存进单表的后端。
// 同一 fingerprint 在 batch 模式下允许重复出现（与 CSV 行为一致），因此它不是主键。
type SQLite struct {
	path  string
	mode  Mode
	runID string
}

func NewSQLite(path string, mode Mode, runID string) *SQLite {
	if mode == "" {
		mode = ModeHistory
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	return &SQLite{path: path, mode: mode, runID: runID}
}

func (s *SQLite) Path() string   { return s.path }
func (s *SQLite) Format() Format { return FormatSQLite }

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT NOT NULL,
	item_id TEXT NOT NULL,
	columns TEXT NOT NULL,
	cells TEXT NOT NULL,
	run_id TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_fingerprint ON records(fingerprint);
`

// Fingerprint 是一行单元格的 SHA-256（十六进制）。
func Fingerprint(cells []string) string {
	sum := sha256.Sum256([]byte(rowKey(cells)))
	return hex.EncodeToString(sum[:])
}

func (s *SQLite) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, fmt.Errorf("打开 ledger 数据库失败：%w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化 ledger 表失败：%w", err)
	}
	return db, nil
}

func (s *SQLite) Append(ctx context.Context, recs []*domain.MediaRecord) (AppendResult, error) {
	var res AppendResult
	columns := Columns(recs)
	if len(columns) == 0 {
		return res, nil
	}

	db, err := s.open(ctx)
	if err != nil {
		return res, err
	}
	defer db.Close()

	colsJSON, err := json.Marshal(columns)
	if err != nil {
		return res, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback() }()

	seen := make(map[string]struct{}, len(recs))
	now := time.Now().UTC().Format(time.RFC3339)
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		cells := Cells(rec, columns)
		fp := Fingerprint(cells)

		dup := false
		if _, ok := seen[fp]; ok {
			dup = true
		} else if s.mode == ModeHistory {
			var n int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM records WHERE fingerprint = ?`, fp).Scan(&n); err != nil {
				return AppendResult{}, err
			}
			dup = n > 0
		}
		if dup {
			res.Skipped = append(res.Skipped, rec.ID())
			log.Warn().Str("id", rec.ID()).Str("ledger", s.path).
				Msgf("%s already present in %q", rec.ID(), s.path)
			continue
		}
		seen[fp] = struct{}{}

		cellsJSON, err := json.Marshal(cells)
		if err != nil {
			return AppendResult{}, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (fingerprint, item_id, columns, cells, run_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			fp, rec.ID(), string(colsJSON), string(cellsJSON), s.runID, now,
		); err != nil {
			return AppendResult{}, err
		}
		res.Appended++
	}

	if err := tx.Commit(); err != nil {
		return AppendResult{}, err
	}
	return res, nil
}

// Row 是 records 表中的一行（用于查询/测试）。
type Row struct {
	ItemID string
	Cells  []string
	RunID  string
}

// Rows 按写入顺序返回全部行。
func (s *SQLite) Rows(ctx context.Context) ([]Row, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT item_id, cells, run_id FROM records ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r     Row
			cells string
		)
		if err := rows.Scan(&r.ItemID, &cells, &r.RunID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cells), &r.Cells); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
