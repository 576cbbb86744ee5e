// Package transcode 把上传的任意音视频转成统一的识别输入格式：
// 单声道 16kHz pcm_s16le wav。通过 unix socket 读取 ffmpeg 的
// 实时进度，换算成百分比向流水线汇报。
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/feldberlin/timething-web/pkg/media"
	"github.com/feldberlin/timething-web/pkg/models"
	"github.com/feldberlin/timething-web/pkg/pipeline"
)

// Error ffmpeg 非零退出
type Error struct {
	ExitCode int
	Stderr   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ffmpeg 退出码 %d (stderr: %s)", e.ExitCode, e.Stderr)
}

// Transcoder 转码阶段，实现 pipeline.Transcoder
type Transcoder struct {
	blobs      *media.BlobStore
	sampleRate int

	// 探测和编码的具体实现，默认走 ffprobe/ffmpeg，测试注入假实现
	probe  func(path string) (*models.Track, error)
	encode func(ctx context.Context, in, out string, duration float64, onPercent func(int)) error
}

// NewTranscoder 创建转码器
func NewTranscoder(blobs *media.BlobStore, sampleRate int) *Transcoder {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	tc := &Transcoder{
		blobs:      blobs,
		sampleRate: sampleRate,
	}
	tc.probe = Probe
	tc.encode = tc.runFFmpeg
	return tc
}

// Transcode 启动一次转码，返回更新流
// 已存在且可通过探测的 wav 产物直接复用（force 为 true 时忽略）；
// 探测失败的残缺产物静默重新转码
func (tc *Transcoder) Transcode(ctx context.Context, rec *models.Transcription, force bool) <-chan pipeline.StageUpdate {
	out := make(chan pipeline.StageUpdate, 1)
	go func() {
		defer close(out)
		tc.run(ctx, rec, force, out)
	}()
	return out
}

func (tc *Transcoder) run(ctx context.Context, rec *models.Transcription, force bool, out chan<- pipeline.StageUpdate) {
	in := tc.blobs.Path(rec.ID)
	wav := tc.blobs.TranscodedPath(rec.ID)

	// 探测原始文件：拿到时长（进度换算依赖）和标签元数据
	track, err := tc.probe(in)
	if err != nil {
		send(ctx, out, pipeline.Failure(err))
		return
	}
	track.Path = wav

	if !force {
		if _, err := os.Stat(wav); err == nil {
			if _, err := tc.probe(wav); err == nil {
				log.Printf("✓ 转码产物已存在且有效，直接复用 (id=%s)", rec.ID)
				send(ctx, out, pipeline.Percent(100))
				send(ctx, out, pipeline.TrackResult(track))
				return
			}
			// 残缺的 wav（上次运行中断），重新转码
			log.Printf("⚠️ 转码产物损坏，重新转码 (id=%s)", rec.ID)
		}
	}

	if err := tc.encode(ctx, in, wav, track.Duration, func(percent int) {
		send(ctx, out, pipeline.Percent(percent))
	}); err != nil {
		send(ctx, out, pipeline.Failure(err))
		return
	}

	log.Printf("✓ 转码完成 (id=%s, duration=%.2fs)", rec.ID, track.Duration)
	send(ctx, out, pipeline.TrackResult(track))
}

// runFFmpeg 执行 ffmpeg 重编码，通过 unix socket 接收进度
func (tc *Transcoder) runFFmpeg(ctx context.Context, in, out string, duration float64, onPercent func(int)) error {
	sockDir, err := os.MkdirTemp("", "transcode-*")
	if err != nil {
		return fmt.Errorf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(sockDir)

	sockPath := filepath.Join(sockDir, "progress.sock")
	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("监听进度 socket 失败: %v", err)
	}
	defer listener.Close()

	// ffmpeg -nostdin -i input -f wav -ac 1 -acodec pcm_s16le -ar 16000
	//        -progress unix://sock -y output.wav
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-nostdin",
		"-i", in,
		"-f", "wav",
		"-ac", "1",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(tc.sampleRate),
		"-progress", "unix://"+sockPath,
		"-y",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg 启动失败: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		parseProgress(conn, duration, onPercent)
	}()

	waitErr := cmd.Wait()
	// 关闭监听器解除 Accept 阻塞（ffmpeg 启动即失败时不会连过来）
	listener.Close()
	<-done

	if waitErr != nil {
		if exit, ok := waitErr.(*exec.ExitError); ok {
			return &Error{ExitCode: exit.ExitCode(), Stderr: stderr.String()}
		}
		return fmt.Errorf("ffmpeg 执行失败: %v (stderr: %s)", waitErr, stderr.String())
	}
	return nil
}

func send(ctx context.Context, out chan<- pipeline.StageUpdate, u pipeline.StageUpdate) {
	select {
	case out <- u:
	case <-ctx.Done():
	}
}
