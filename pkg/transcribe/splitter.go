package transcribe

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
)

// Segment 待识别的音频片段
type Segment struct {
	Index int
	Path  string
	Start float64 // 在原始音频中的偏移（秒）
	End   float64
}

// Splitter 长音频分片器
// Whisper API 对单次请求的体积有限制，长音频先切成固定时长的片段
type Splitter struct {
	segmentDuration int // 每片时长（秒）
}

// NewSplitter 创建分片器
func NewSplitter(segmentDuration int) *Splitter {
	if segmentDuration <= 0 {
		segmentDuration = 600 // 默认 10 分钟
	}
	return &Splitter{segmentDuration: segmentDuration}
}

// Split 把音频切分成多个片段；短于单片时长的直接原样返回
func (s *Splitter) Split(audioPath string, duration float64) ([]Segment, error) {
	if duration <= float64(s.segmentDuration) {
		log.Printf("✓ 音频较短，无需切分")
		return []Segment{{Index: 0, Path: audioPath, Start: 0, End: duration}}, nil
	}

	segmentCount := s.segmentCount(duration)
	log.Printf("✂️  音频将被切分为 %d 个片段 (每片 %d 秒)", segmentCount, s.segmentDuration)

	segmentsDir := filepath.Join(filepath.Dir(audioPath), "segments")
	if err := os.MkdirAll(segmentsDir, 0755); err != nil {
		return nil, fmt.Errorf("创建片段目录失败: %v", err)
	}

	segments := make([]Segment, 0, segmentCount)
	for i := 0; i < segmentCount; i++ {
		start := float64(i * s.segmentDuration)
		end := start + float64(s.segmentDuration)
		if end > duration {
			end = duration
		}

		segmentPath := filepath.Join(segmentsDir, fmt.Sprintf("segment_%03d.wav", i))
		if err := extractSegment(audioPath, segmentPath, start, float64(s.segmentDuration)); err != nil {
			return nil, fmt.Errorf("切分片段 %d 失败: %v", i, err)
		}

		segments = append(segments, Segment{
			Index: i,
			Path:  segmentPath,
			Start: start,
			End:   end,
		})
	}

	return segments, nil
}

// segmentCount 覆盖整段音频所需的片段数（向上取整）
// 整除时不会产生多余的零长度片段
func (s *Splitter) segmentCount(duration float64) int {
	return int(math.Ceil(duration / float64(s.segmentDuration)))
}

// extractSegment 用 ffmpeg 提取一个片段
// 输入已经是 pcm wav，直接流拷贝，不重新编码
func extractSegment(inputPath, outputPath string, startTime, duration float64) error {
	// ffmpeg -i input.wav -ss 0 -t 600 -acodec copy -y output.wav
	cmd := exec.Command("ffmpeg",
		"-i", inputPath,
		"-ss", fmt.Sprintf("%.2f", startTime),
		"-t", fmt.Sprintf("%.2f", duration),
		"-acodec", "copy",
		"-y",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg 执行失败: %v (stderr: %s)", err, stderr.String())
	}
	return nil
}

// Cleanup 清理临时片段文件
// 只删除切分时创建的 segments 目录，不碰原始媒体目录
func (s *Splitter) Cleanup(segments []Segment) {
	if len(segments) == 0 {
		return
	}
	segmentsDir := filepath.Dir(segments[0].Path)
	if filepath.Base(segmentsDir) == "segments" {
		log.Printf("🧹 清理临时片段目录: %s", segmentsDir)
		os.RemoveAll(segmentsDir)
	}
}
