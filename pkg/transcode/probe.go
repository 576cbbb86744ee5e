package transcode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/feldberlin/timething-web/pkg/models"
)

// probeResult ffprobe JSON 输出中我们关心的部分
type probeResult struct {
	Format struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

// Probe 用 ffprobe 探测媒体文件，返回时长和标签元数据
// 时长缺失视为错误：后续进度换算和对齐都依赖它
func Probe(path string) (*models.Track, error) {
	// ffprobe -v error -show_entries format -of json input.mp3
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format",
		"-of", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe 执行失败: %v (stderr: %s)", err, stderr.String())
	}

	return trackFromProbe(stdout.Bytes())
}

// trackFromProbe 解析 ffprobe 的 JSON 输出
func trackFromProbe(data []byte) (*models.Track, error) {
	var result probeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("解析 ffprobe 输出失败: %v", err)
	}

	if result.Format.Duration == "" {
		return nil, fmt.Errorf("ffprobe 未返回时长信息")
	}
	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("解析时长失败: %v (output: %s)", err, result.Format.Duration)
	}

	track := &models.Track{Duration: duration}
	// 标签键大小写因容器格式而异，统一按小写匹配
	for k, v := range result.Format.Tags {
		switch strings.ToLower(k) {
		case "title":
			track.Title = v
		case "artist":
			track.Artist = v
		case "album":
			track.Album = v
		case "comment":
			track.Comment = v
		case "date":
			track.Date = v
		}
	}
	return track, nil
}
