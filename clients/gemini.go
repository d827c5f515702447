package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/metrics"
)

// geminiProvider talks to the generativelanguage generateContent endpoint.
// The key travels in a header, never in the URL, so request logs stay clean.
type geminiProvider struct {
	httpClient *retryablehttp.Client
	vendor     config.VendorConfig
	clk        clock.Clock
	proc       config.Processing
	host       string
}

func newGeminiProvider(vendor config.VendorConfig, proc config.Processing, requestTimeout time.Duration, clk clock.Clock) *geminiProvider {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = log.NewRetryableHTTPLogger()
	client.HTTPClient = &http.Client{
		Timeout: requestTimeout,
	}
	return &geminiProvider{
		httpClient: client,
		vendor:     vendor,
		clk:        clk,
		proc:       proc,
		host:       hostLabel(vendor.BaseURL),
	}
}

func (p *geminiProvider) Name() string { return config.ProviderGemini }

func (p *geminiProvider) Polish(ctx context.Context, taskID, transcript string) (string, error) {
	windows := SplitWindows(transcript, polishWindowRunes, polishWindowShared)
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
		piece, err := p.generate(ctx, taskID, "polish", polishSystemPrompt, window)
		if err != nil {
			return "", err
		}
		pieces = append(pieces, piece)
	}
	return StitchWindows(pieces, polishWindowShared), nil
}

func (p *geminiProvider) Summarize(ctx context.Context, taskID, transcript string) (SummaryResult, error) {
	reply, err := p.generate(ctx, taskID, "summary", summarySystemPrompt, truncateForPrompt(transcript))
	if err != nil {
		return SummaryResult{}, err
	}
	var result SummaryResult
	if err := decodeModelJSON(reply, &result); err != nil {
		return SummaryResult{}, errors.E(errors.KindVendorError, "summary reply was not valid JSON", err)
	}
	return result, nil
}

func (p *geminiProvider) Analyze(ctx context.Context, taskID, transcript string) (AnalysisResult, error) {
	reply, err := p.generate(ctx, taskID, "analysis", analysisSystemPrompt, truncateForPrompt(transcript))
	if err != nil {
		return AnalysisResult{}, err
	}
	var result AnalysisResult
	if err := decodeModelJSON(reply, &result); err != nil {
		return AnalysisResult{}, errors.E(errors.KindVendorError, "analysis reply was not valid JSON", err)
	}
	return result, nil
}

func (p *geminiProvider) Translate(ctx context.Context, taskID, transcript, targetLanguage string) (string, error) {
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
		piece, err := p.generate(ctx, taskID, "translate", translateSystemPrompt(targetLanguage), window)
		if err != nil {
			return "", err
		}
		pieces = append(pieces, piece)
	}
	return strings.Join(pieces, "\n\n"), nil
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (p *geminiProvider) generate(ctx context.Context, taskID, operation, system, user string) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: system + "\n\n" + user}}},
		},
	}
	payload.GenerationConfig.Temperature = 0.3
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.E(errors.KindInternal, "failed to build gemini request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimSuffix(p.vendor.BaseURL, "/"), p.vendor.Model)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", errors.E(errors.KindInternal, "failed to build gemini request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.vendor.APIKey)

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	metrics.Metrics.LLMClient.RequestDuration.WithLabelValues(p.host, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		err = errors.E(errors.KindNetwork, "gemini request failed to reach the vendor", err)
		metrics.Metrics.LLMClient.FailureCount.WithLabelValues(p.host, errors.Kind(err)).Inc()
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", errors.E(errors.KindNetwork, "failed to read gemini response", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := vendorStatusError("gemini", resp.StatusCode, raw)
		metrics.Metrics.LLMClient.FailureCount.WithLabelValues(p.host, errors.Kind(err)).Inc()
		log.LogError(taskID, "llm request failed", err, "operation", operation, "provider", config.ProviderGemini)
		return "", err
	}

	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", errors.E(errors.KindVendorError, "gemini returned an unparseable response", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", errors.E(errors.KindVendorError, "gemini reply contained no candidates", nil)
	}
	texts := make([]string, 0, len(decoded.Candidates[0].Content.Parts))
	for _, part := range decoded.Candidates[0].Content.Parts {
		texts = append(texts, part.Text)
	}
	return strings.Join(texts, ""), nil
}
