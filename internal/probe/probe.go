package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
)

// ErrDurationUnavailable 表示视频流给不出可用的帧率/帧数（例如帧率为 0）。
var ErrDurationUnavailable = errors.New("无法从视频流计算时长")

// Error 是一次探测失败（带 URL）。
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return "probe error"
	}
	return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DurationMinutes 计算 floor(frames / fps / 60)。
// fps 为 0（或非法）时返回 ErrDurationUnavailable，而不是产出 Inf/NaN。
func DurationMinutes(frames int64, fps float64) (int, error) {
	if frames < 0 || fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0, ErrDurationUnavailable
	}
	return int(math.Floor(float64(frames) / fps / 60)), nil
}

// StreamInfo 是 ffprobe 元数据中我们关心的视频流字段。
type StreamInfo struct {
	AvgFrameRate   string
	Duration       string // 流时长（秒）
	FormatDuration string // 容器时长（秒），流时长缺失时使用
}

// streamInfo 取第一个视频流；没有视频流时返回 false。
func streamInfo(md transcoder.Metadata) (StreamInfo, bool) {
	if md == nil {
		return StreamInfo{}, false
	}
	formatDuration := ""
	if f := md.GetFormat(); f != nil {
		formatDuration = f.GetDuration()
	}
	for _, st := range md.GetStreams() {
		if st == nil || st.GetCodecType() != "video" {
			continue
		}
		return StreamInfo{
			AvgFrameRate:   st.GetAvgFrameRate(),
			Duration:       st.GetDuration(),
			FormatDuration: formatDuration,
		}, true
	}
	return StreamInfo{}, false
}

// Seconds 优先使用流时长，"N/A"/缺失时回退容器时长。
func (s StreamInfo) Seconds() (float64, bool) {
	for _, v := range []string{s.Duration, s.FormatDuration} {
		v = strings.TrimSpace(v)
		if v == "" || v == "N/A" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && f >= 0 && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

func (s StreamInfo) FPS() float64 { return parseRate(s.AvgFrameRate) }

// Frames 由时长 × 帧率估算帧数（四舍五入）。
func (s StreamInfo) Frames() (int64, bool) {
	sec, ok := s.Seconds()
	fps := s.FPS()
	if !ok || fps <= 0 {
		return 0, false
	}
	return int64(math.Round(sec * fps)), true
}

func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// FFprobe 通过 ffprobe 读取视频流的帧率与时长。
type FFprobe struct {
	Path string

	// metadata 用于测试注入；为空时调用真实 ffprobe。
	metadata func(path, mediaURL string) (transcoder.Metadata, error)
}

func NewFFprobe(path string) *FFprobe {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "ffprobe"
	}
	return &FFprobe{Path: path}
}

// Stream 返回第一个视频流的信息。
func (f *FFprobe) Stream(ctx context.Context, mediaURL string) (StreamInfo, error) {
	if strings.TrimSpace(mediaURL) == "" {
		return StreamInfo{}, &Error{URL: mediaURL, Err: errors.New("media url 为空")}
	}
	if err := ctx.Err(); err != nil {
		return StreamInfo{}, &Error{URL: mediaURL, Err: err}
	}
	probe := f.metadata
	if probe == nil {
		probe = probeMetadata
	}
	md, err := probe(f.path(), mediaURL)
	if err != nil {
		return StreamInfo{}, &Error{URL: mediaURL, Err: err}
	}
	st, ok := streamInfo(md)
	if !ok {
		return StreamInfo{}, &Error{URL: mediaURL, Err: errors.New("没有视频流")}
	}
	return st, nil
}

// Minutes 实现 provider.Prober。
func (f *FFprobe) Minutes(ctx context.Context, mediaURL string) (int, error) {
	st, err := f.Stream(ctx, mediaURL)
	if err != nil {
		return 0, err
	}
	fps := st.FPS()
	if fps <= 0 {
		return 0, &Error{URL: mediaURL, Err: ErrDurationUnavailable}
	}
	frames, ok := st.Frames()
	if !ok {
		return 0, &Error{URL: mediaURL, Err: ErrDurationUnavailable}
	}
	m, err := DurationMinutes(frames, fps)
	if err != nil {
		return 0, &Error{URL: mediaURL, Err: err}
	}
	return m, nil
}

func (f *FFprobe) path() string {
	if f == nil || strings.TrimSpace(f.Path) == "" {
		return "ffprobe"
	}
	return f.Path
}

func probeMetadata(path, mediaURL string) (transcoder.Metadata, error) {
	md, err := ffmpeg.New(&ffmpeg.Config{FfprobeBinPath: path}).Input(mediaURL).GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("ffprobe 读取元数据失败：%w", err)
	}
	return md, nil
}
