package run

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/John-Robertt/lumiscrape/internal/config"
	"github.com/John-Robertt/lumiscrape/internal/domain"
	"github.com/John-Robertt/lumiscrape/internal/infra/fsx"
	"github.com/John-Robertt/lumiscrape/internal/ledger"
	"github.com/John-Robertt/lumiscrape/internal/provider"
)

// Deps 是一次 run 需要的外部依赖（由 CLI 组装，测试可替换）。
type Deps struct {
	RunID  string
	Source provider.Source
	Client *http.Client
	Prober provider.Prober

	// Ledger 为空表示不保存（save=false）。
	Ledger ledger.Writer
	// Fs 用于写 failed_ids；为空时使用 OS 文件系统。
	Fs afero.Fs

	// Sleep 用于测试注入；为空时使用可被 ctx 取消的真实等待。
	Sleep func(ctx context.Context, d time.Duration) error
}

// AbortError 表示 run 因非 not_found 错误提前终止。
type AbortError struct {
	Code string
	ID   string
	Err  error
}

func (e *AbortError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s：id=%s：%v", e.Code, e.ID, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// Execute 顺序处理 [Start, Stop) 内的每个 ID，并返回对外稳定的 RunReport。
//
// 规则：
// - not_found：记入失败列表，告警后继续
// - 其它失败：终止整个 run（continue_on_error=true 时降级为失败并继续）
// - 正常结束后：保存 ledger（有成功条目时）、写 failed_ids、等待 delay 一次
// - 终止时不写 ledger / failed_ids
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) (domain.RunReport, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	runID := deps.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	started := time.Now().UTC()

	rr := domain.RunReport{
		RunID:     runID,
		BaseURL:   eff.BaseURL,
		Start:     eff.Start,
		Stop:      eff.Stop,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, max(eff.Stop-eff.Start, 0)),
	}
	if deps.Ledger != nil {
		rr.Ledger = domain.LedgerSummary{Path: deps.Ledger.Path(), Format: string(deps.Ledger.Format())}
	}

	finish := func(err error) (domain.RunReport, error) {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr, err
	}
	abort := func(code, id string, err error) (domain.RunReport, error) {
		rr.Aborted = true
		rr.AbortCode = code
		rr.AbortReason = err.Error()
		return finish(&AbortError{Code: code, ID: id, Err: err})
	}

	if deps.Source == nil || deps.Client == nil {
		return abort(domain.ErrCodeConfigInvalid, "", errors.New("source/http client 未配置"))
	}

	total := max(eff.Stop-eff.Start, 0)
	obs.OnStart(eff, total)

	successes := make([]*domain.MediaRecord, 0, total)
	failed := make([]string, 0, 8)

	for i := 0; i < total; i++ {
		id := domain.ItemID(eff.Start + i)
		if err := ctx.Err(); err != nil {
			return abort(domain.ErrCodeCanceled, id.String(), err)
		}

		itemStarted := time.Now()
		res := provider.Scrape(ctx, deps.Source, id, deps.Client, deps.Prober)
		item := itemResult(res)
		rr.Items = append(rr.Items, item)
		obs.OnItemDone(i+1, total, res, item, time.Since(itemStarted))

		switch res.Kind {
		case provider.KindOK:
			successes = append(successes, res.Record)
		case provider.KindNotFound:
			failed = append(failed, id.String())
			log.Warn().Str("id", id.String()).Err(res.Err).Msgf("Lumiere media item %q not found", id.String())
		default:
			if ctx.Err() != nil {
				return abort(domain.ErrCodeCanceled, id.String(), ctx.Err())
			}
			if !eff.ContinueOnError {
				return abort(res.Kind.ErrorCode(), id.String(), res.Err)
			}
			failed = append(failed, id.String())
			log.Error().Str("id", id.String()).Str("kind", res.Kind.String()).Err(res.Err).Msg("条目处理失败，继续下一个")
		}
	}

	if deps.Ledger != nil {
		phaseStarted := time.Now()
		if len(successes) > 0 {
			ar, err := deps.Ledger.Append(ctx, successes)
			if err != nil {
				return abort(domain.ErrCodeLedgerFailed, "", fmt.Errorf("写入 ledger 失败：%w", err))
			}
			rr.Ledger.Saved = true
			rr.Ledger.Appended = ar.Appended
			rr.Ledger.Skipped = len(ar.Skipped)
		} else {
			log.Warn().Str("ledger", deps.Ledger.Path()).Msg("没有成功条目，跳过 ledger 写入")
		}

		if eff.FailedIDsPath != "" {
			if err := fsx.WriteLines(deps.Fs, eff.FailedIDsPath, failed); err != nil {
				return abort(domain.ErrCodeIOFailed, "", fmt.Errorf("写入 failed_ids 失败：%w", err))
			}
		}
		obs.OnPhaseDone("save", map[string]any{
			"appended": rr.Ledger.Appended,
			"skipped":  rr.Ledger.Skipped,
			"failed":   len(failed),
		}, time.Since(phaseStarted))
	}

	if eff.Delay > 0 {
		sleep := deps.Sleep
		if sleep == nil {
			sleep = sleepCtx
		}
		if err := sleep(ctx, eff.Delay); err != nil {
			return abort(domain.ErrCodeCanceled, "", err)
		}
	}

	return finish(nil)
}

func itemResult(res provider.Result) domain.ItemResult {
	it := domain.ItemResult{
		ID:  res.ID.String(),
		URL: res.URL,
	}
	switch res.Kind {
	case provider.KindOK:
		it.Status = domain.StatusOK
		it.Title = res.Record.Title()
		it.AttrCount = res.Record.AttrCount()
		it.DurationMinutes = res.Record.DurationMinutes()
		return it
	case provider.KindNotFound:
		it.Status = domain.StatusNotFound
	default:
		it.Status = domain.StatusFailed
	}
	it.ErrorCode = res.Kind.ErrorCode()
	if res.Err != nil {
		it.ErrorMsg = res.Err.Error()
	}
	return it
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SummaryLines 返回运行结束时的计时摘要。
//
// 总耗时 = 实际处理耗时 + 成功数 * delay；单条耗时 = 实际处理耗时 / 成功数。
// 实际处理耗时不含最后一次 delay 等待。
func SummaryLines(rr domain.RunReport, delay time.Duration) []string {
	n := rr.Summary.Succeeded
	if n == 0 {
		return []string{"Failed to process any queries."}
	}
	work := rr.Elapsed()
	if !rr.Aborted && delay > 0 && work >= delay {
		work -= delay
	}
	total := work.Seconds() + float64(n)*delay.Seconds()
	per := work.Seconds() / float64(n)
	return []string{
		fmt.Sprintf("Successfully processed %d queries in %ss (%ss per query).", n, round3(total), round3(per)),
		fmt.Sprintf("Failed to process %d queries.", rr.Summary.Failures()),
	}
}

func round3(f float64) string {
	return strconv.FormatFloat(math.Round(f*1000)/1000, 'f', -1, 64)
}
