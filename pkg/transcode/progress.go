package transcode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// parseProgress 逐行读取 ffmpeg 的进度流（key=value 格式），
// 把 out_time_ms 按总时长换算成百分比回调出去
// progress=end 重发当前百分比；流结束后保证回调一次 100
func parseProgress(r io.Reader, totalDuration float64, onPercent func(int)) {
	percent := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_ms":
			us, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			if totalDuration > 0 {
				percent = clampPercent(int(100 * (us / 1e6) / totalDuration))
			}
			onPercent(percent)
		case "progress":
			if value == "end" {
				onPercent(percent)
			}
		}
	}
	onPercent(100)
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
