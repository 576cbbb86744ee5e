package transcode

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/feldberlin/timething-web/pkg/media"
	"github.com/feldberlin/timething-web/pkg/models"
	"github.com/feldberlin/timething-web/pkg/pipeline"
)

// newFakeTranscoder 用计数假实现替换 ffprobe/ffmpeg
// 返回探测和编码的调用计数，探测恒给出 10 秒的 Track
func newFakeTranscoder(t *testing.T, withOutput bool) (*Transcoder, *models.Transcription, *int, *int) {
	t.Helper()

	blobs, err := media.NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	rec := &models.Transcription{ID: "abc"}
	if err := os.WriteFile(blobs.Path(rec.ID), []byte("raw"), 0644); err != nil {
		t.Fatal(err)
	}
	if withOutput {
		if err := os.WriteFile(blobs.TranscodedPath(rec.ID), []byte("wav"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	probes, encodes := 0, 0
	tc := NewTranscoder(blobs, 16000)
	tc.probe = func(path string) (*models.Track, error) {
		probes++
		return &models.Track{Duration: 10}, nil
	}
	tc.encode = func(ctx context.Context, in, out string, duration float64, onPercent func(int)) error {
		encodes++
		onPercent(100)
		return nil
	}
	return tc, rec, &probes, &encodes
}

func drainStage(updates <-chan pipeline.StageUpdate) []pipeline.StageUpdate {
	var got []pipeline.StageUpdate
	for u := range updates {
		got = append(got, u)
	}
	return got
}

// 已有合法产物时第二次调用只发 Percent(100) + Result，不重新编码
func TestTranscodeReusesValidOutput(t *testing.T) {
	tc, rec, probes, encodes := newFakeTranscoder(t, true)

	got := drainStage(tc.Transcode(context.Background(), rec, false))

	if *encodes != 0 {
		t.Errorf("复用路径不应编码, encodes=%d", *encodes)
	}
	if *probes != 2 {
		t.Errorf("应探测原始文件和产物各一次, probes=%d", *probes)
	}
	if len(got) != 2 {
		t.Fatalf("updates = %+v", got)
	}
	if got[0].Kind != pipeline.KindPercent || got[0].Percent != 100 {
		t.Errorf("第一个更新应为 Percent(100): %+v", got[0])
	}
	if got[1].Kind != pipeline.KindResult || got[1].Track == nil {
		t.Errorf("第二个更新应为 Track Result: %+v", got[1])
	}
}

// force 为 true 时忽略已有产物，重新编码
func TestTranscodeForceReencodes(t *testing.T) {
	tc, rec, _, encodes := newFakeTranscoder(t, true)

	got := drainStage(tc.Transcode(context.Background(), rec, true))

	if *encodes != 1 {
		t.Errorf("force 应重新编码, encodes=%d", *encodes)
	}
	last := got[len(got)-1]
	if last.Kind != pipeline.KindResult || last.Track == nil {
		t.Errorf("最后一个更新应为 Track Result: %+v", last)
	}
}

// 残缺产物（探测失败）静默重新编码
func TestTranscodeCorruptOutputReencodes(t *testing.T) {
	tc, rec, _, encodes := newFakeTranscoder(t, true)
	realProbe := tc.probe
	tc.probe = func(path string) (*models.Track, error) {
		if path == tc.blobs.TranscodedPath(rec.ID) {
			return nil, &Error{ExitCode: 1, Stderr: "truncated"}
		}
		return realProbe(path)
	}

	got := drainStage(tc.Transcode(context.Background(), rec, false))

	if *encodes != 1 {
		t.Errorf("残缺产物应重新编码, encodes=%d", *encodes)
	}
	last := got[len(got)-1]
	if last.Kind != pipeline.KindResult {
		t.Errorf("最后一个更新应为 Result: %+v", last)
	}
}

// 测试进度流解析：换算、end 重发、EOF 补 100
func TestParseProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=100",
		"out_time_ms=2500000",
		"progress=continue",
		"out_time_ms=5000000",
		"out_time_ms=10000000",
		"progress=end",
	}, "\n")

	var got []int
	parseProgress(strings.NewReader(input), 10.0, func(p int) {
		got = append(got, p)
	})

	want := []int{25, 50, 100, 100, 100}
	if len(got) != len(want) {
		t.Fatalf("percents = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("percents = %v, want %v", got, want)
		}
	}
}

// 输出时间略超总时长时夹到 100
func TestParseProgressClamp(t *testing.T) {
	var got []int
	parseProgress(strings.NewReader("out_time_ms=10500000\n"), 10.0, func(p int) {
		got = append(got, p)
	})
	for _, p := range got {
		if p < 0 || p > 100 {
			t.Errorf("百分比越界: %d", p)
		}
	}
}

// 无法解析的行直接跳过，流结束后仍补发 100
func TestParseProgressMalformed(t *testing.T) {
	var got []int
	parseProgress(strings.NewReader("garbage\nout_time_ms=abc\n"), 10.0, func(p int) {
		got = append(got, p)
	})
	if len(got) != 1 || got[0] != 100 {
		t.Errorf("percents = %v", got)
	}
}

func TestTrackFromProbe(t *testing.T) {
	data := []byte(`{
		"format": {
			"duration": "10.88",
			"tags": {
				"TITLE": "one",
				"artist": "rany",
				"album": "fixtures",
				"comment": "test file",
				"date": "2023",
				"encoder": "Lavf59.27.100"
			}
		}
	}`)

	track, err := trackFromProbe(data)
	if err != nil {
		t.Fatal(err)
	}
	if track.Duration != 10.88 {
		t.Errorf("duration = %v", track.Duration)
	}
	if track.Title != "one" || track.Artist != "rany" {
		t.Errorf("标签解析错误: %+v", track)
	}
	if track.Album != "fixtures" || track.Comment != "test file" || track.Date != "2023" {
		t.Errorf("标签解析错误: %+v", track)
	}
}

// 时长缺失视为探测失败
func TestTrackFromProbeNoDuration(t *testing.T) {
	if _, err := trackFromProbe([]byte(`{"format": {"tags": {}}}`)); err == nil {
		t.Error("缺少时长应报错")
	}
}

func TestTrackFromProbeInvalidJSON(t *testing.T) {
	if _, err := trackFromProbe([]byte("not json")); err == nil {
		t.Error("非法 JSON 应报错")
	}
}
