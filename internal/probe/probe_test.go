package probe

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationMinutes(t *testing.T) {
	m, err := DurationMinutes(24*60*95+10, 24)
	require.NoError(t, err)
	assert.Equal(t, 95, m)

	m, err = DurationMinutes(1439, 24)
	require.NoError(t, err)
	assert.Equal(t, 0, m, "不足一分钟向下取整")
}

func TestDurationMinutes_ZeroFPS(t *testing.T) {
	_, err := DurationMinutes(1000, 0)
	require.ErrorIs(t, err, ErrDurationUnavailable)
}

func TestParseRate(t *testing.T) {
	assert.InDelta(t, 29.97, parseRate("30000/1001"), 0.001)
	assert.Equal(t, 25.0, parseRate("25"))
	assert.Equal(t, 0.0, parseRate("0/0"))
	assert.Equal(t, 0.0, parseRate(""))
}

// metadataJSON 把 ffprobe 风格的 JSON 解码为元数据（与 GetMetadata 的解码路径一致）。
func metadataJSON(t *testing.T, raw string) transcoder.Metadata {
	t.Helper()
	var md ffmpeg.Metadata
	require.NoError(t, json.Unmarshal([]byte(raw), &md))
	return &md
}

func stubMetadata(md transcoder.Metadata, err error) func(string, string) (transcoder.Metadata, error) {
	return func(path, mediaURL string) (transcoder.Metadata, error) {
		return md, err
	}
}

func TestFFprobe_Minutes(t *testing.T) {
	var gotPath, gotURL string
	md := metadataJSON(t, `{"format":{"duration":"6600.000000"},"streams":[
		{"codec_type":"audio","avg_frame_rate":"0/0","duration":"6600.0"},
		{"codec_type":"video","avg_frame_rate":"24/1","duration":"N/A"}]}`)

	f := NewFFprobe("")
	f.metadata = func(path, mediaURL string) (transcoder.Metadata, error) {
		gotPath, gotURL = path, mediaURL
		return md, nil
	}

	m, err := f.Minutes(context.Background(), "https://example.test/m.mp4")
	require.NoError(t, err)
	assert.Equal(t, 110, m, "流时长缺失时回退容器时长")
	assert.Equal(t, "ffprobe", gotPath)
	assert.Equal(t, "https://example.test/m.mp4", gotURL)
}

func TestStreamInfo_FramesFromStreamDuration(t *testing.T) {
	st := StreamInfo{AvgFrameRate: "30000/1001", Duration: "5400.4", FormatDuration: "9999"}
	frames, ok := st.Frames()
	require.True(t, ok)
	assert.Equal(t, int64(161850), frames)

	m, err := DurationMinutes(frames, st.FPS())
	require.NoError(t, err)
	assert.Equal(t, 90, m)

	_, ok = StreamInfo{AvgFrameRate: "24/1", Duration: "N/A"}.Frames()
	assert.False(t, ok)
}

func TestFFprobe_ZeroFrameRate(t *testing.T) {
	f := NewFFprobe("")
	f.metadata = stubMetadata(metadataJSON(t,
		`{"format":{"duration":"100"},"streams":[{"codec_type":"video","avg_frame_rate":"0/0","duration":"100"}]}`), nil)

	_, err := f.Minutes(context.Background(), "https://example.test/m.mp4")
	require.ErrorIs(t, err, ErrDurationUnavailable)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "https://example.test/m.mp4", pe.URL)
}

func TestFFprobe_Failures(t *testing.T) {
	ctx := context.Background()

	f := NewFFprobe("/opt/ffprobe")
	f.metadata = stubMetadata(nil, errors.New("exit status 1"))
	_, err := f.Minutes(ctx, "https://example.test/m.mp4")
	var pe *Error
	require.ErrorAs(t, err, &pe)

	f.metadata = stubMetadata(metadataJSON(t, `{"streams":[{"codec_type":"audio"}]}`), nil)
	_, err = f.Minutes(ctx, "https://example.test/m.mp4")
	require.Error(t, err, "没有视频流")

	f.metadata = stubMetadata(metadataJSON(t, `{"streams":[{"codec_type":"video","avg_frame_rate":"24/1"}]}`), nil)
	_, err = f.Minutes(ctx, "https://example.test/m.mp4")
	require.ErrorIs(t, err, ErrDurationUnavailable, "没有任何时长")

	_, err = f.Minutes(ctx, "  ")
	require.Error(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.Minutes(canceled, "https://example.test/m.mp4")
	require.ErrorIs(t, err, context.Canceled)
}
