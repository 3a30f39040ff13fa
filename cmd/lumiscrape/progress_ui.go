package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/John-Robertt/lumiscrape/internal/app/run"
	"github.com/John-Robertt/lumiscrape/internal/config"
	"github.com/John-Robertt/lumiscrape/internal/domain"
	"github.com/John-Robertt/lumiscrape/internal/provider"
	"github.com/John-Robertt/lumiscrape/internal/render"
)

var _ run.Observer = (*progressUI)(nil)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

// progressUI 是交互终端下的进度输出。
//
// 成功条目输出完整属性块；not_found 与失败各一行。
// 单条 ffprobe 可能很慢：长时间无输出时由 ticker 定期补一行进度。
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total    int
	done     int
	ok       int
	notFound int
	fail     int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig, total int) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	p.total = total

	fmt.Fprintf(p.w, "[%s] lumiscrape run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintf(p.w, "  base_url: %s\n", truncate(eff.BaseURL, 120))
	fmt.Fprintf(p.w, "  range: [%d, %d) items=%d\n", eff.Start, eff.Stop, total)
	fmt.Fprintf(p.w, "  labels: %s\n", eff.Labels)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  continue_on_error: %s\n", onOff(eff.ContinueOnError))
	if eff.Delay > 0 {
		fmt.Fprintf(p.w, "  delay: %s\n", eff.Delay)
	}
	fmt.Fprintln(p.w, "输出:")
	if eff.Save {
		fmt.Fprintf(p.w, "  ledger: %s (dedup=%s)\n", eff.LedgerPath, eff.Dedup)
		fmt.Fprintf(p.w, "  failed_ids: %s\n", eff.FailedIDsPath)
	} else {
		fmt.Fprintln(p.w, "  save: off (不写入 ledger / failed_ids)")
	}
	if eff.ReportPath != "" {
		fmt.Fprintf(p.w, "  report: %s\n", eff.ReportPath)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	if total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnItemDone(idx, total int, res provider.Result, item domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	switch res.Kind {
	case provider.KindOK:
		p.ok++
		fmt.Fprint(p.w, render.Item(res.Record))
	case provider.KindNotFound:
		p.notFound++
		fmt.Fprintf(p.w, "[%d/%d] %s %s (%s)\n",
			idx, total, item.ID, warnColor.Sprint("NOT_FOUND"), formatShortDuration(dur),
		)
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, item.ID, failColor.Sprint("FAIL"), item.ErrorCode, truncate(item.ErrorMsg, 160), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "save":
		fmt.Fprintf(p.w, "%s appended=%d skipped=%d failed_ids=%d (%s)\n",
			okColor.Sprint("保存:"),
			intField(fields, "appended"), intField(fields, "skipped"), intField(fields, "failed"),
			formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

// Close 停止 keepalive（run 提前终止时 OnItemDone 不会走到最后一条）。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	stop := make(chan struct{})
	p.stopCh = stop
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintln(p.w, p.progressLineLocked())
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) progressLineLocked() string {
	return fmt.Sprintf("进度: done=%d/%d ok=%d not_found=%d fail=%d elapsed=%s",
		p.done, p.total, p.ok, p.notFound, p.fail, formatElapsed(time.Since(p.startedAt)),
	)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
