package audio

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/fsutil"
	"github.com/zhuguadundan/videowhisper/subprocess"
)

// Segment is one contiguous slice of the source audio. Start and End are
// absolute offsets into the source, so transcript timestamps can be shifted
// without re-probing anything.
type Segment struct {
	Index        int
	Path         string
	StartSeconds float64
	EndSeconds   float64
}

func (s Segment) Duration() float64 {
	return s.EndSeconds - s.StartSeconds
}

// Span is a planned cut before any file exists for it.
type Span struct {
	Start float64
	End   float64
}

// Cutter extracts a single time range of an audio file. The pipeline is
// tested against fakes so the suite does not need ffmpeg on PATH.
type Cutter interface {
	Cut(ctx context.Context, srcPath, dstPath string, startSeconds, durationSeconds float64) error
}

// FFmpegCutter cuts segments by shelling out to ffmpeg, stream-copying the
// audio so the boundaries stay where the plan put them.
type FFmpegCutter struct{}

func (FFmpegCutter) Cut(ctx context.Context, srcPath, dstPath string, startSeconds, durationSeconds float64) error {
	ffmpegErr := bytes.Buffer{}
	cmd := ffmpeg.Input(srcPath, ffmpeg.KwArgs{"ss": formatSeconds(startSeconds)}).
		Output(dstPath, ffmpeg.KwArgs{
			"t":   formatSeconds(durationSeconds),
			"c:a": "copy",
		}).
		OverWriteOutput().
		WithErrorOutput(&ffmpegErr).
		Compile()

	if err := subprocess.RunWithContext(ctx, cmd); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.E(errors.KindSplitFailed, "failed to cut audio segment", fmt.Errorf("%w [%s]", err, ffmpegErr.String()))
	}
	return nil
}

// PlanSegments lays out contiguous spans of at most segmentSeconds covering
// the whole duration: each span ends exactly where the next begins and the
// last one ends at totalSeconds. A sub-second tail folds into the previous
// span rather than producing a segment too short to transcribe.
func PlanSegments(totalSeconds, segmentSeconds float64) []Span {
	if totalSeconds <= 0 {
		return nil
	}
	if segmentSeconds <= 0 || totalSeconds <= segmentSeconds {
		return []Span{{Start: 0, End: totalSeconds}}
	}
	var spans []Span
	for start := 0.0; start < totalSeconds; start += segmentSeconds {
		end := start + segmentSeconds
		if end > totalSeconds {
			end = totalSeconds
		}
		spans = append(spans, Span{Start: start, End: end})
	}
	if n := len(spans); n >= 2 && spans[n-1].End-spans[n-1].Start < 1.0 {
		spans[n-2].End = spans[n-1].End
		spans = spans[:n-1]
	}
	return spans
}

// SingleSegment wraps an audio file that is short enough to transcribe whole.
func SingleSegment(path string, durationSeconds float64) []Segment {
	return []Segment{{Index: 0, Path: path, StartSeconds: 0, EndSeconds: durationSeconds}}
}

// Split cuts srcPath into planned segments inside workdir. Segment files keep
// the source extension and are numbered segment_0000, segment_0001, ...; when
// the plan holds a single span the source file is reused untouched.
func Split(ctx context.Context, cutter Cutter, srcPath, workdir string, totalSeconds, segmentSeconds float64) ([]Segment, error) {
	spans := PlanSegments(totalSeconds, segmentSeconds)
	if len(spans) == 0 {
		return nil, errors.E(errors.KindSplitFailed, "audio has no duration to split", nil)
	}
	if len(spans) == 1 {
		return SingleSegment(srcPath, spans[0].End), nil
	}

	ext := filepath.Ext(srcPath)
	segments := make([]Segment, 0, len(spans))
	for i, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dstPath, err := fsutil.SafeJoin(workdir, fmt.Sprintf("segment_%04d%s", i, ext))
		if err != nil {
			return nil, err
		}
		if err := cutter.Cut(ctx, srcPath, dstPath, span.Start, span.End-span.Start); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, errors.Ef(errors.KindSplitFailed, err, "failed to cut segment %d of %d", i, len(spans))
		}
		segments = append(segments, Segment{
			Index:        i,
			Path:         dstPath,
			StartSeconds: span.Start,
			EndSeconds:   span.End,
		})
	}
	return segments, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
