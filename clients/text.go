package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/errors"
)

// Window sizing for long transcripts. Vendor context limits vary, 4000 runes
// with a 200-rune overlap stays inside all three supported vendors.
const (
	polishWindowRunes  = 4000
	polishWindowShared = 200
)

// SummaryResult is the structured summary persisted into data.json.
type SummaryResult struct {
	BriefSummary    string   `json:"brief_summary"`
	Keywords        []string `json:"keywords"`
	DetailedSummary string   `json:"detailed_summary"`
}

// AnalysisResult is the structured content analysis persisted into data.json.
type AnalysisResult struct {
	ContentType         string   `json:"content_type"`
	Sentiment           string   `json:"sentiment"`
	LanguageStyle       string   `json:"language_style"`
	EstimatedDifficulty string   `json:"estimated_difficulty"`
	TargetAudience      string   `json:"target_audience"`
	MainTopics          []string `json:"main_topics"`
}

// TextProvider is the capability set the pipeline needs from a text vendor.
type TextProvider interface {
	Name() string
	Polish(ctx context.Context, taskID, transcript string) (string, error)
	Summarize(ctx context.Context, taskID, transcript string) (SummaryResult, error)
	Analyze(ctx context.Context, taskID, transcript string) (AnalysisResult, error)
	Translate(ctx context.Context, taskID, transcript, targetLanguage string) (string, error)
}

// NewTextProvider maps a provider name to its implementation. SiliconFlow
// speaks the OpenAI chat wire format, so both share the OpenAI-compatible
// client and only Gemini gets its own endpoint shape.
func NewTextProvider(provider string, vendor config.VendorConfig, proc config.Processing, requestTimeout time.Duration, clk clock.Clock) (TextProvider, error) {
	if vendor.APIKey == "" {
		return nil, errors.E(errors.KindBadRequest, fmt.Sprintf("no API key configured for provider %q", provider), nil)
	}
	switch provider {
	case config.ProviderSiliconFlow, config.ProviderOpenAI:
		return newOpenAICompatProvider(provider, vendor, proc, requestTimeout, clk), nil
	case config.ProviderGemini:
		return newGeminiProvider(vendor, proc, requestTimeout, clk), nil
	default:
		return nil, errors.E(errors.KindBadRequest, fmt.Sprintf("unknown llm provider %q", provider), nil)
	}
}

const (
	polishSystemPrompt = "你是一名专业的文字编辑。请把下面的语音识别文本整理成通顺的逐字稿：修正标点和错别字，按语义合理分段。不得删减内容，不得改变原意，直接输出整理后的文本。"

	summarySystemPrompt = "你是一名内容总结助手。阅读用户提供的逐字稿，输出 JSON 对象，字段为：" +
		`brief_summary（100字以内的摘要）、keywords（3到8个关键词的数组）、detailed_summary（Markdown 格式的详细总结）。` +
		"只输出 JSON，不要附加其他文字。"

	analysisSystemPrompt = "你是一名内容分析助手。阅读用户提供的逐字稿，输出 JSON 对象，字段为：" +
		`content_type（内容类型）、sentiment（情感倾向）、language_style（语言风格）、estimated_difficulty（理解难度）、target_audience（目标受众）、main_topics（主要话题的数组）。` +
		"只输出 JSON，不要附加其他文字。"
)

func translateSystemPrompt(targetLanguage string) string {
	return fmt.Sprintf("你是一名专业译者。请将用户提供的文本逐段翻译成%s：每个原文段落之后紧跟对应译文段落，保留原文，不要省略任何段落。直接输出对照文本。", targetLanguage)
}

// decodeModelJSON parses a JSON object out of a model reply, tolerating the
// markdown code fences and prose some models wrap around it.
func decodeModelJSON(reply string, v interface{}) error {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model reply")
	}
	return json.Unmarshal([]byte(reply[start:end+1]), v)
}
