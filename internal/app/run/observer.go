package run

import (
	"time"

	"github.com/John-Robertt/lumiscrape/internal/config"
	"github.com/John-Robertt/lumiscrape/internal/domain"
	"github.com/John-Robertt/lumiscrape/internal/provider"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件只来自驱动循环所在的 goroutine；实现若自带 ticker，需自行加锁。
type Observer interface {
	// OnStart 在 Execute 开始时调用（total 为区间内的 ID 数）。
	OnStart(eff config.EffectiveConfig, total int)
	// OnItemDone 在某个 ID 处理完成时调用。
	OnItemDone(idx, total int, res provider.Result, item domain.ItemResult, dur time.Duration)
	// OnPhaseDone 在收尾阶段（ledger/failed_ids/delay）结束时调用。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig, int) {}
func (nopObserver) OnItemDone(int, int, provider.Result, domain.ItemResult, time.Duration) {
}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
