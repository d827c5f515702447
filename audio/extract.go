package audio

import (
	"bytes"
	"context"
	"fmt"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/subprocess"
)

// Extractor converts a local media file into mono 16kHz mp3 suitable for
// speech recognition.
type Extractor interface {
	Extract(ctx context.Context, srcPath, dstPath string) error
}

// FFmpegExtractor extracts audio by shelling out to ffmpeg.
type FFmpegExtractor struct{}

func (FFmpegExtractor) Extract(ctx context.Context, srcPath, dstPath string) error {
	ffmpegErr := bytes.Buffer{}
	cmd := ffmpeg.Input(srcPath).
		Output(dstPath, ffmpeg.KwArgs{
			"ac":  1,
			"ar":  16000,
			"b:a": "64k",
			"f":   "mp3",
		}).
		OverWriteOutput().
		WithErrorOutput(&ffmpegErr).
		Compile()

	if err := subprocess.RunWithContext(ctx, cmd); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.E(errors.KindSplitFailed, "failed to extract audio track", fmt.Errorf("%w [%s]", err, ffmpegErr.String()))
	}
	return nil
}
