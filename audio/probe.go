package audio

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/vansante/go-ffprobe.v2"

	"github.com/zhuguadundan/videowhisper/errors"
)

// Info describes the parts of a probed media file the pipeline cares about.
type Info struct {
	DurationSeconds float64
	FormatName      string
	HasVideo        bool
	HasAudio        bool
	SizeBytes       int64
}

// Prober inspects a local media file. The pipeline is tested against fakes so
// that ffprobe does not need to be installed.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// FFProbe probes files by shelling out to ffprobe.
type FFProbe struct{}

func (FFProbe) Probe(ctx context.Context, path string) (Info, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, probeCancel := context.WithTimeout(ctx, 60*time.Second)
		defer probeCancel()
		var err error
		data, err = ffprobe.ProbeURL(probeCtx, path, "-loglevel", "error")
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0 // no overall timeout, the per-attempt context handles it

	err := backoff.Retry(operation, backoff.WithMaxRetries(backoff.WithContext(backOff, ctx), 3))
	if err != nil {
		return Info{}, errors.E(errors.KindProbeFailed, "error probing media file", err)
	}
	return parseProbeOutput(data)
}

func parseProbeOutput(data *ffprobe.ProbeData) (Info, error) {
	if data == nil || data.Format == nil {
		return Info{}, errors.E(errors.KindProbeFailed, "probe output missing format information", nil)
	}
	info := Info{
		DurationSeconds: data.Format.DurationSeconds,
		FormatName:      data.Format.FormatName,
		HasVideo:        data.FirstVideoStream() != nil,
		HasAudio:        data.FirstAudioStream() != nil,
	}
	if data.Format.Size != "" {
		if size, err := strconv.ParseInt(data.Format.Size, 10, 64); err == nil {
			info.SizeBytes = size
		}
	}
	if info.DurationSeconds <= 0 {
		return Info{}, errors.E(errors.KindProbeFailed, "could not determine media duration", nil)
	}
	if !info.HasAudio {
		return Info{}, errors.E(errors.KindProbeFailed, "media file contains no audio stream", nil)
	}
	return info, nil
}
