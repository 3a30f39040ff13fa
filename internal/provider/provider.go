package provider

import (
	"context"
	"net/http"

	"github.com/samber/mo"

	"github.com/John-Robertt/lumiscrape/internal/domain"
)

// Pages 是一个条目抓取到的两份原始 HTML：详情页 + film_info 子页。
type Pages struct {
	ItemURL string
	Main    []byte
	Info    []byte
}

// Extract 是解析阶段的产物：除 duration 以外的全部字段。
// duration 需要打开视频流，由 Scrape 在 probe 阶段补齐。
type Extract struct {
	URL          string
	Title        string
	MediaURL     string
	HasSubtitles bool
	Subtitles    mo.Option[string]
	Provenance   domain.Fields
	Synopsis     mo.Option[string]
}

// Record 用探测到的时长构造不可变记录。
func (e Extract) Record(durationMinutes int) *domain.MediaRecord {
	return domain.NewMediaRecord(domain.RecordInput{
		URL:             e.URL,
		Title:           e.Title,
		MediaURL:        e.MediaURL,
		DurationMinutes: durationMinutes,
		HasSubtitles:    e.HasSubtitles,
		Subtitles:       e.Subtitles,
		Provenance:      e.Provenance,
		Synopsis:        e.Synopsis,
	})
}

// Source 把“站点变化”限制在 provider 包内部；驱动循环只依赖统一接口。
//
// 约束：
// - Fetch 不做缓存、不做重试、不做限速
// - Parse 必须是纯函数：相同输入 => 相同输出
type Source interface {
	Name() string
	ItemURL(id domain.ItemID) string
	Fetch(ctx context.Context, id domain.ItemID, c *http.Client) (Pages, error)
	Parse(id domain.ItemID, p Pages) (Extract, error)
}

// Prober 负责从视频流 URL 得到整分钟时长。
type Prober interface {
	Minutes(ctx context.Context, mediaURL string) (int, error)
}
