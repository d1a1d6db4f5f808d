package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/TIANLI0/DieCutKit/utils"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// FFmpegTranscoder 把 HEIC、AVIF 等内置解码器不支持的格式转成单帧 PNG
type FFmpegTranscoder struct {
	binary string
}

func NewFFmpegTranscoder(binary string) *FFmpegTranscoder {
	return &FFmpegTranscoder{binary: binary}
}

// Transcode 通过管道输入原始字节，输出 PNG
func (t *FFmpegTranscoder) Transcode(ctx context.Context, data []byte) ([]byte, error) {
	var out, stderr bytes.Buffer

	stream := ffmpeg.Input("pipe:0").
		Output("pipe:1", ffmpeg.KwArgs{
			"format":   "image2pipe",
			"vcodec":   "png",
			"frames:v": 1,
		}).
		WithInput(bytes.NewReader(data)).
		WithOutput(&out).
		WithErrorOutput(&stderr)
	if t.binary != "" {
		stream = stream.SetFfmpegPath(t.binary)
	}
	stream.Context = ctx

	if err := stream.Run(); err != nil {
		utils.Logger.Warn("ffmpeg transcode failed",
			zap.Int("input_bytes", len(data)),
			zap.String("stderr", lastLine(stderr.String())))
		return nil, fmt.Errorf("ffmpeg transcode: %w", err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg transcode: empty output")
	}
	return out.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
