package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/zhuguadundan/videowhisper/audio"
	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/metrics"
)

// DefaultSTTModel is the SiliconFlow transcription model used when the
// vendor config does not name one.
const DefaultSTTModel = "FunAudioLLM/SenseVoiceSmall"

// eventMarkers matches SenseVoice control tokens such as <|zh|>, <|HAPPY|>
// and <|Speech|> that the vendor leaves inline in transcribed text.
var eventMarkers = regexp.MustCompile(`<\|[^|>]*\|>`)

// TranscribedSegment is one transcribed slice with absolute timestamps.
type TranscribedSegment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is the outcome of transcribing every segment of a task.
type TranscriptionResult struct {
	Segments []TranscribedSegment `json:"segments"`
	FullText string               `json:"full_text"`
}

// SpeechTranscriber turns ordered audio segments into a transcript. The
// pipeline is tested against fakes so no vendor traffic happens in the suite.
type SpeechTranscriber interface {
	TranscribeAll(ctx context.Context, taskID string, segments []audio.Segment, onSegment func(done, total int)) (TranscriptionResult, error)
}

// SpeechClient transcribes audio through a SiliconFlow-compatible
// /audio/transcriptions endpoint.
type SpeechClient struct {
	httpClient *retryablehttp.Client
	clk        clock.Clock
	vendor     config.VendorConfig
	proc       config.Processing
	host       string
}

func NewSpeechClient(vendor config.VendorConfig, proc config.Processing, requestTimeout time.Duration, clk clock.Clock) *SpeechClient {
	client := retryablehttp.NewClient()
	// The segment loop owns all retrying so the consecutive-failure counter
	// sees every failed attempt.
	client.RetryMax = 0
	client.Logger = log.NewRetryableHTTPLogger()
	client.HTTPClient = &http.Client{
		Timeout: requestTimeout,
	}
	return &SpeechClient{
		httpClient: client,
		clk:        clk,
		vendor:     vendor,
		proc:       proc,
		host:       hostLabel(vendor.BaseURL),
	}
}

func (c *SpeechClient) sttModel() string {
	if c.vendor.STTModel != "" {
		return c.vendor.STTModel
	}
	return DefaultSTTModel
}

// TranscribeAll uploads segments in order. After each failed attempt a
// consecutive-failure counter is bumped; it resets on any success. In the
// multi-segment path crossing the configured limit aborts the whole run,
// which is the only way long jobs against a dead vendor stop burning quota.
// The single-file path instead caps attempts at ShortAudioMaxRetries and
// surfaces the last error as-is.
func (c *SpeechClient) TranscribeAll(ctx context.Context, taskID string, segments []audio.Segment, onSegment func(done, total int)) (TranscriptionResult, error) {
	total := len(segments)
	if total == 0 {
		return TranscriptionResult{}, errors.E(errors.KindInternal, "no audio segments to transcribe", nil)
	}
	single := total == 1
	sleepShort := secondsToDuration(c.proc.RetrySleepShortSeconds)
	sleepLong := secondsToDuration(c.proc.RetrySleepLongSeconds)

	consecutive := 0
	out := make([]TranscribedSegment, 0, total)
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return TranscriptionResult{}, err
		}
		if i > 0 {
			// Pacing between segments keeps the vendor's burst limiter quiet.
			if err := sleepWithClock(ctx, c.clk, sleepShort); err != nil {
				return TranscriptionResult{}, err
			}
		}

		for attempt := 1; ; attempt++ {
			tseg, err := c.transcribeSegment(ctx, taskID, seg)
			if err == nil {
				consecutive = 0
				out = append(out, tseg)
				metrics.Metrics.SegmentsTranscribed.Inc()
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return TranscriptionResult{}, ctxErr
			}
			if !retryableKind(err) {
				return TranscriptionResult{}, err
			}
			consecutive++
			log.LogError(taskID, "transcription attempt failed", err,
				"segment", seg.Index, "attempt", attempt, "consecutive_failures", consecutive)
			if single {
				if attempt >= c.proc.ShortAudioMaxRetries {
					return TranscriptionResult{}, err
				}
			} else if consecutive >= c.proc.MaxConsecutiveFailures {
				metrics.Metrics.STTConsecutiveAbort.Inc()
				return TranscriptionResult{}, errors.E(errors.KindSTTConsecutiveFailures,
					fmt.Sprintf("aborting transcription after %d consecutive failures", consecutive), err)
			}
			metrics.Metrics.STTClient.RetryCount.WithLabelValues(c.host).Inc()
			if err := sleepWithClock(ctx, c.clk, sleepLong); err != nil {
				return TranscriptionResult{}, err
			}
		}

		if onSegment != nil {
			onSegment(i+1, total)
		}
	}

	texts := make([]string, 0, len(out))
	for _, seg := range out {
		if seg.Text != "" {
			texts = append(texts, seg.Text)
		}
	}
	return TranscriptionResult{
		Segments: out,
		FullText: strings.Join(texts, "\n\n"),
	}, nil
}

// transcribeSegment posts one segment's bytes to the vendor. SiliconFlow
// returns no word offsets, so the whole segment span is attributed to the
// returned text, shifted to absolute time by the segment's start.
func (c *SpeechClient) transcribeSegment(ctx context.Context, taskID string, seg audio.Segment) (TranscribedSegment, error) {
	start := time.Now()
	text, err := c.postAudio(ctx, seg.Path)
	duration := time.Since(start)
	metrics.Metrics.STTClient.RequestDuration.WithLabelValues(c.host).Observe(duration.Seconds())
	if err != nil {
		metrics.Metrics.STTClient.FailureCount.WithLabelValues(c.host, errors.Kind(err)).Inc()
		return TranscribedSegment{}, err
	}
	log.Log(taskID, "transcribed segment", "segment", seg.Index, "chars", len(text), "duration", duration)
	return TranscribedSegment{
		Index: seg.Index,
		Start: seg.StartSeconds,
		End:   seg.EndSeconds,
		Text:  CleanTranscript(text),
	}, nil
}

func (c *SpeechClient) postAudio(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.E(errors.KindInternal, "failed to open audio segment", err)
	}
	defer f.Close()

	body := bytes.Buffer{}
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", errors.E(errors.KindInternal, "failed to build transcription request", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", errors.E(errors.KindInternal, "failed to read audio segment", err)
	}
	if err := form.WriteField("model", c.sttModel()); err != nil {
		return "", errors.E(errors.KindInternal, "failed to build transcription request", err)
	}
	if err := form.Close(); err != nil {
		return "", errors.E(errors.KindInternal, "failed to build transcription request", err)
	}

	url := strings.TrimSuffix(c.vendor.BaseURL, "/") + "/audio/transcriptions"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body.Bytes())
	if err != nil {
		return "", errors.E(errors.KindInternal, "failed to build transcription request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.vendor.APIKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", errors.E(errors.KindNetwork, "transcription request failed to reach the vendor", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", errors.E(errors.KindNetwork, "failed to read transcription response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", vendorStatusError("transcription vendor", resp.StatusCode, raw)
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", errors.E(errors.KindVendorError, "transcription vendor returned an unparseable response", err)
	}
	return decoded.Text, nil
}

// CleanTranscript strips vendor event markers and normalizes whitespace
// while keeping newlines, which mark sentence boundaries in SenseVoice
// output.
func CleanTranscript(text string) string {
	text = eventMarkers.ReplaceAllString(text, "")
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
