package clients

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/metrics"
)

// chatCompleter is the slice of *openai.Client the provider needs, split out
// so tests can inject a fake.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// openAICompatProvider serves every vendor speaking the OpenAI chat wire
// format, which covers both OpenAI itself and SiliconFlow.
type openAICompatProvider struct {
	name   string
	client chatCompleter
	model  string
	clk    clock.Clock
	proc   config.Processing
	host   string
}

func newOpenAICompatProvider(name string, vendor config.VendorConfig, proc config.Processing, requestTimeout time.Duration, clk clock.Clock) *openAICompatProvider {
	cfg := openai.DefaultConfig(vendor.APIKey)
	if vendor.BaseURL != "" {
		cfg.BaseURL = vendor.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: requestTimeout}
	return &openAICompatProvider{
		name:   name,
		client: openai.NewClientWithConfig(cfg),
		model:  vendor.Model,
		clk:    clk,
		proc:   proc,
		host:   hostLabel(cfg.BaseURL),
	}
}

func (p *openAICompatProvider) Name() string { return p.name }

func (p *openAICompatProvider) Polish(ctx context.Context, taskID, transcript string) (string, error) {
	windows := SplitWindows(transcript, polishWindowRunes, polishWindowShared)
	if len(windows) > 1 {
		log.Log(taskID, "polishing transcript in windows", "windows", len(windows), "provider", p.name)
	}
	pieces := make([]string, 0, len(windows))
	for i, window := range windows {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if i > 0 {
			if err := sleepWithClock(ctx, p.clk, secondsToDuration(p.proc.RetrySleepShortSeconds)); err != nil {
				return "", err
			}
		}
		piece, err := p.complete(ctx, taskID, "polish", polishSystemPrompt, window)
		if err != nil {
			return "", err
		}
		pieces = append(pieces, piece)
	}
	return StitchWindows(pieces, polishWindowShared), nil
}

func (p *openAICompatProvider) Summarize(ctx context.Context, taskID, transcript string) (SummaryResult, error) {
	reply, err := p.complete(ctx, taskID, "summary", summarySystemPrompt, truncateForPrompt(transcript))
	if err != nil {
		return SummaryResult{}, err
	}
	var result SummaryResult
	if err := decodeModelJSON(reply, &result); err != nil {
		return SummaryResult{}, errors.E(errors.KindVendorError, "summary reply was not valid JSON", err)
	}
	return result, nil
}

func (p *openAICompatProvider) Analyze(ctx context.Context, taskID, transcript string) (AnalysisResult, error) {
	reply, err := p.complete(ctx, taskID, "analysis", analysisSystemPrompt, truncateForPrompt(transcript))
	if err != nil {
		return AnalysisResult{}, err
	}
	var result AnalysisResult
	if err := decodeModelJSON(reply, &result); err != nil {
		return AnalysisResult{}, errors.E(errors.KindVendorError, "analysis reply was not valid JSON", err)
	}
	return result, nil
}

func (p *openAICompatProvider) Translate(ctx context.Context, taskID, transcript, targetLanguage string) (string, error) {
	// No overlap here: windows are translated independently and concatenated,
	// a shared seam would duplicate translated paragraphs.
	windows := SplitWindows(transcript, polishWindowRunes, 0)
	pieces := make([]string, 0, len(windows))
	for i, window := range windows {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if i > 0 {
			if err := sleepWithClock(ctx, p.clk, secondsToDuration(p.proc.RetrySleepShortSeconds)); err != nil {
				return "", err
			}
		}
		piece, err := p.complete(ctx, taskID, "translate", translateSystemPrompt(targetLanguage), window)
		if err != nil {
			return "", err
		}
		pieces = append(pieces, piece)
	}
	return strings.Join(pieces, "\n\n"), nil
}

// complete runs one chat completion with a single bounded retry for
// transient vendor failures.
func (p *openAICompatProvider) complete(ctx context.Context, taskID, operation, system, user string) (string, error) {
	policy := RetryPolicy{
		MaxAttempts: 2,
		Sleep:       secondsToDuration(p.proc.RetrySleepLongSeconds),
		Retryable:   retryableKind,
	}
	attempt := 0
	return retryWithSleep(ctx, p.clk, policy, func() (string, error) {
		attempt++
		if attempt > 1 {
			metrics.Metrics.LLMClient.RetryCount.WithLabelValues(p.host).Inc()
		}
		start := time.Now()
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature: 0.3,
		})
		metrics.Metrics.LLMClient.RequestDuration.WithLabelValues(p.host, operation).Observe(time.Since(start).Seconds())
		if err != nil {
			err = classifyOpenAIError(err)
			metrics.Metrics.LLMClient.FailureCount.WithLabelValues(p.host, errors.Kind(err)).Inc()
			log.LogError(taskID, "llm request failed", err, "operation", operation, "provider", p.name)
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.E(errors.KindVendorError, "llm reply contained no choices", nil)
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// classifyOpenAIError maps go-openai errors onto the error kind vocabulary.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return vendorStatusError("llm vendor", apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return vendorStatusError("llm vendor", reqErr.HTTPStatusCode, []byte(reqErr.Error()))
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.E(errors.KindTimeout, "llm request timed out", err)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.E(errors.KindNetwork, "llm request failed to reach the vendor", err)
}

// truncateForPrompt bounds single-call operations. Long transcripts keep
// their head and tail with the middle elided; openings and conclusions carry
// most of what a summary needs.
func truncateForPrompt(text string) string {
	const (
		limit = 8000
		head  = 6000
		tail  = 1500
	)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:head]) + "\n\n（中间内容已省略）\n\n" + string(runes[len(runes)-tail:])
}
