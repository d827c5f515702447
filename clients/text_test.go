package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/errors"
)

// chatEcho answers the OpenAI chat completions wire format with the user
// message content, so window handling can be asserted end to end.
func chatEcho(t *testing.T, requests *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		require.Equal(t, "/chat/completions", r.URL.Path)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		chatReply(req.Messages[1].Content)(w, r)
	}
}

func chatReply(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}
}

func newTestChatProvider(t *testing.T, baseURL string) *openAICompatProvider {
	t.Helper()
	vendor := config.VendorConfig{APIKey: "sk-test", BaseURL: baseURL, Model: "Qwen/Qwen2.5-7B-Instruct"}
	return newOpenAICompatProvider(config.ProviderSiliconFlow, vendor, testProcessing(), 5*time.Second, clock.New())
}

func TestPolishStitchesWindowsBackTogether(t *testing.T) {
	var requests int32
	ts := httptest.NewServer(chatEcho(t, &requests))
	defer ts.Close()

	transcript := strings.Repeat("今天讲第一个要点。", 600) // 5400 runes, two windows
	p := newTestChatProvider(t, ts.URL)
	out, err := p.Polish(context.Background(), "task1", transcript)
	require.NoError(t, err)
	require.Equal(t, transcript, out, "echoed windows stitch back to the input")
	require.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestPolishShortTranscriptSingleCall(t *testing.T) {
	var requests int32
	ts := httptest.NewServer(chatEcho(t, &requests))
	defer ts.Close()

	p := newTestChatProvider(t, ts.URL)
	out, err := p.Polish(context.Background(), "task1", "短文本。")
	require.NoError(t, err)
	require.Equal(t, "短文本。", out)
	require.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestSummarizeParsesFencedJSON(t *testing.T) {
	reply := "```json\n{\"brief_summary\":\"简要\",\"keywords\":[\"a\",\"b\"],\"detailed_summary\":\"## 详细\"}\n```"
	ts := httptest.NewServer(chatReply(reply))
	defer ts.Close()

	p := newTestChatProvider(t, ts.URL)
	result, err := p.Summarize(context.Background(), "task1", "逐字稿内容")
	require.NoError(t, err)
	require.Equal(t, "简要", result.BriefSummary)
	require.Equal(t, []string{"a", "b"}, result.Keywords)
	require.Equal(t, "## 详细", result.DetailedSummary)
}

func TestSummarizeRejectsNonJSONReply(t *testing.T) {
	ts := httptest.NewServer(chatReply("抱歉，我无法总结这段内容。"))
	defer ts.Close()

	p := newTestChatProvider(t, ts.URL)
	_, err := p.Summarize(context.Background(), "task1", "逐字稿内容")
	require.Error(t, err)
	require.Equal(t, errors.KindVendorError, errors.Kind(err))
}

func TestAnalyzeParsesStructuredReply(t *testing.T) {
	reply := `{"content_type":"教程","sentiment":"中性","language_style":"口语",` +
		`"estimated_difficulty":"入门","target_audience":"初学者","main_topics":["Go","测试"]}`
	ts := httptest.NewServer(chatReply(reply))
	defer ts.Close()

	p := newTestChatProvider(t, ts.URL)
	result, err := p.Analyze(context.Background(), "task1", "逐字稿内容")
	require.NoError(t, err)
	require.Equal(t, "教程", result.ContentType)
	require.Equal(t, []string{"Go", "测试"}, result.MainTopics)
}

func TestCompleteRetriesTransientFailureOnce(t *testing.T) {
	var requests int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			http.Error(w, `{"error":{"message":"upstream exploded"}}`, http.StatusInternalServerError)
			return
		}
		chatReply("恢复后的回复")(w, r)
	}))
	defer ts.Close()

	p := newTestChatProvider(t, ts.URL)
	out, err := p.complete(context.Background(), "task1", "polish", polishSystemPrompt, "内容")
	require.NoError(t, err)
	require.Equal(t, "恢复后的回复", out)
	require.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestCompleteUnauthorizedFailsFast(t *testing.T) {
	var requests int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	p := newTestChatProvider(t, ts.URL)
	_, err := p.complete(context.Background(), "task1", "polish", polishSystemPrompt, "内容")
	require.Error(t, err)
	require.Equal(t, errors.KindUnauthorized, errors.Kind(err))
	require.Equal(t, int32(1), atomic.LoadInt32(&requests), "bad credentials are not retried")
}

func TestTranslateJoinsWindowsWithoutSeam(t *testing.T) {
	ts := httptest.NewServer(chatReply("译文段落"))
	defer ts.Close()

	transcript := strings.Repeat("原文。", 3000) // 9000 runes, three windows
	p := newTestChatProvider(t, ts.URL)
	out, err := p.Translate(context.Background(), "task1", transcript, "English")
	require.NoError(t, err)
	require.Equal(t, "译文段落\n\n译文段落\n\n译文段落", out)
}

func TestGeminiGenerateSendsKeyInHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		require.Equal(t, "gm-test", r.Header.Get("x-goog-api-key"))
		require.NotContains(t, r.URL.RawQuery, "gm-test", "key travels in the header only")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{"parts": []map[string]string{{"text": "双语"}, {"text": "对照"}}}},
			},
		})
	}))
	defer ts.Close()

	vendor := config.VendorConfig{APIKey: "gm-test", BaseURL: ts.URL, Model: "gemini-1.5-flash"}
	p := newGeminiProvider(vendor, testProcessing(), 5*time.Second, clock.New())
	out, err := p.generate(context.Background(), "task1", "translate", "system", "user")
	require.NoError(t, err)
	require.Equal(t, "双语对照", out, "parts concatenate")
}

func TestGeminiGenerateMapsVendorErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"API key not valid"}}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	vendor := config.VendorConfig{APIKey: "bad", BaseURL: ts.URL, Model: "gemini-1.5-flash"}
	p := newGeminiProvider(vendor, testProcessing(), 5*time.Second, clock.New())
	_, err := p.generate(context.Background(), "task1", "summary", "system", "user")
	require.Error(t, err)
	require.Equal(t, errors.KindVendorError, errors.Kind(err))
}

func TestNewTextProviderSelection(t *testing.T) {
	vendor := config.VendorConfig{APIKey: "key", BaseURL: "https://example.com/v1", Model: "m"}

	p, err := NewTextProvider(config.ProviderSiliconFlow, vendor, testProcessing(), time.Second, clock.New())
	require.NoError(t, err)
	require.IsType(t, &openAICompatProvider{}, p)
	require.Equal(t, config.ProviderSiliconFlow, p.Name())

	p, err = NewTextProvider(config.ProviderGemini, vendor, testProcessing(), time.Second, clock.New())
	require.NoError(t, err)
	require.IsType(t, &geminiProvider{}, p)

	_, err = NewTextProvider("claude", vendor, testProcessing(), time.Second, clock.New())
	require.Error(t, err)
	require.Equal(t, errors.KindBadRequest, errors.Kind(err))

	_, err = NewTextProvider(config.ProviderOpenAI, config.VendorConfig{BaseURL: "https://example.com"}, testProcessing(), time.Second, clock.New())
	require.Error(t, err)
	require.Equal(t, errors.KindBadRequest, errors.Kind(err), "missing api key")
}

func TestSplitWindowsRuneSafe(t *testing.T) {
	text := strings.Repeat("汉", 10)
	windows := SplitWindows(text, 4, 1)
	require.Equal(t, []string{"汉汉汉汉", "汉汉汉汉", "汉汉汉汉"}, windows)

	require.Equal(t, []string{"短"}, SplitWindows("短", 4000, 200))
	require.Equal(t, []string{""}, SplitWindows("", 4000, 200))
}

func TestStitchWindowsDropsSharedSeam(t *testing.T) {
	seam := strings.Repeat("衔接", 15) // 30 runes, above the minimum probe
	a := "第一段内容" + seam
	b := seam + "第二段内容"
	require.Equal(t, "第一段内容"+seam+"第二段内容", StitchWindows([]string{a, b}, 200))
}

func TestStitchWindowsFallsBackToParagraphBreak(t *testing.T) {
	require.Equal(t, "甲部分\n\n乙部分", StitchWindows([]string{"甲部分", "乙部分"}, 200))
	require.Equal(t, "", StitchWindows(nil, 200))
}

func TestTruncateForPromptKeepsHeadAndTail(t *testing.T) {
	short := "保持原样"
	require.Equal(t, short, truncateForPrompt(short))

	long := strings.Repeat("头", 5000) + strings.Repeat("尾", 5000)
	got := truncateForPrompt(long)
	require.Less(t, len([]rune(got)), 8000)
	require.True(t, strings.HasPrefix(got, "头头"))
	require.True(t, strings.HasSuffix(got, "尾尾"))
	require.Contains(t, got, "（中间内容已省略）")
}
