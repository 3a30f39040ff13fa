package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
)

const (
	ErrCodeNotFound      = "not_found"
	ErrCodeNetworkFailed = "network_failed"
	ErrCodeParseFailed   = "parse_failed"
	ErrCodeProbeFailed   = "probe_failed"
	ErrCodeLedgerFailed  = "ledger_failed"
	ErrCodeIOFailed      = "io_failed"
	ErrCodeCanceled      = "canceled"
	ErrCodeConfigInvalid = "config_invalid"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID   string `json:"run_id"`
	BaseURL string `json:"base_url"`
	Start   int    `json:"start"`
	Stop    int    `json:"stop"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Aborted 表示运行因非 not_found 错误提前终止（此时 ledger 不会写入）。
	Aborted     bool   `json:"aborted"`
	AbortCode   string `json:"abort_code"`
	AbortReason string `json:"abort_reason"`

	Summary   ReportSummary `json:"summary"`
	Ledger    LedgerSummary `json:"ledger"`
	FailedIDs []string      `json:"failed_ids"`
	Items     []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Succeeded int `json:"succeeded"`
	NotFound  int `json:"not_found"`
	Failed    int `json:"failed"`
}

// Failures 是“失败查询数”：not_found + failed。
func (s ReportSummary) Failures() int { return s.NotFound + s.Failed }

type LedgerSummary struct {
	Path     string `json:"path"`
	Format   string `json:"format"`
	Saved    bool   `json:"saved"`
	Appended int    `json:"appended"`
	Skipped  int    `json:"skipped"`
}

type ItemResult struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	AttrCount       int `json:"attr_count"`
	DurationMinutes int `json:"duration_minutes"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 id 字典序；id=="" 的条目排在最后
// 3) summary 与 failed_ids 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].ID
		b := r.Items[j].ID
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	failed := make([]string, 0, 8)
	for _, it := range r.Items {
		switch it.Status {
		case StatusOK:
			s.Succeeded++
		case StatusNotFound:
			s.NotFound++
		case StatusFailed:
			s.Failed++
		}
		if it.Status != StatusOK && it.ID != "" {
			failed = append(failed, it.ID)
		}
	}
	r.Summary = s
	r.FailedIDs = failed
}

// Elapsed 返回运行耗时（FinishedAt 为零值时返回 0）。
func (r RunReport) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// MarshalJSON 仅用于集中约束输出的稳定性：nil 切片统一输出为 []。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	if a.Items == nil {
		a.Items = []ItemResult{}
	}
	if a.FailedIDs == nil {
		a.FailedIDs = []string{}
	}
	return json.Marshal(a)
}
