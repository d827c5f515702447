package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"sigs.k8s.io/yaml"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/netutil"
)

// Version is set at build time via -ldflags.
var Version = "unknown"

// Provider names accepted in llm_provider fields.
const (
	ProviderSiliconFlow = "siliconflow"
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"
)

type VendorConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	// STTModel is only meaningful for the siliconflow vendor; empty means
	// the client's built-in default. Settable per request via api_config.
	STTModel string `json:"stt_model,omitempty"`
}

type APIs struct {
	SiliconFlow VendorConfig `json:"siliconflow"`
	OpenAI      VendorConfig `json:"openai"`
	Gemini      VendorConfig `json:"gemini"`
}

type System struct {
	TempDir                  string `json:"temp_dir"`
	OutputDir                string `json:"output_dir"`
	LogDir                   string `json:"log_dir"`
	MaxFileSizeMB            int    `json:"max_file_size_mb"`
	ProcessingTimeoutSeconds int    `json:"processing_timeout_seconds"`
	RequestTimeoutSeconds    int    `json:"request_timeout_seconds"`
	KeepTempFiles            bool   `json:"keep_temp_files"`
	MaxConcurrentTasks       int    `json:"max_concurrent_tasks"`
	MaxQueuedTasks           int    `json:"max_queued_tasks"`
}

type Processing struct {
	LongAudioThresholdSeconds int     `json:"long_audio_threshold_seconds"`
	SegmentDurationSeconds    int     `json:"segment_duration_seconds"`
	MaxConsecutiveFailures    int     `json:"max_consecutive_failures"`
	ShortAudioMaxRetries      int     `json:"short_audio_max_retries"`
	RetrySleepShortSeconds    float64 `json:"retry_sleep_short_seconds"`
	RetrySleepLongSeconds     float64 `json:"retry_sleep_long_seconds"`
}

type Security struct {
	AllowInsecureHTTP        bool     `json:"allow_insecure_http"`
	AllowPrivateAddresses    bool     `json:"allow_private_addresses"`
	AllowedAPIHosts          []string `json:"allowed_api_hosts"`
	EnforceAPIHostsWhitelist bool     `json:"enforce_api_hosts_whitelist"`
}

type AppConfig struct {
	APIs       APIs       `json:"apis"`
	System     System     `json:"system"`
	Processing Processing `json:"processing"`
	Security   Security   `json:"security"`
}

// Default returns the configuration used when the YAML file is absent or
// leaves keys unset.
func Default() AppConfig {
	return AppConfig{
		APIs: APIs{
			SiliconFlow: VendorConfig{
				BaseURL: "https://api.siliconflow.cn/v1",
				Model:   "Qwen/Qwen2.5-7B-Instruct",
			},
			OpenAI: VendorConfig{
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
			Gemini: VendorConfig{
				BaseURL: "https://generativelanguage.googleapis.com/v1beta",
				Model:   "gemini-1.5-flash",
			},
		},
		System: System{
			TempDir:                  "temp",
			OutputDir:                "output",
			LogDir:                   "logs",
			MaxFileSizeMB:            500,
			ProcessingTimeoutSeconds: 3600,
			RequestTimeoutSeconds:    120,
			MaxConcurrentTasks:       2,
			MaxQueuedTasks:           20,
		},
		Processing: Processing{
			LongAudioThresholdSeconds: 300,
			SegmentDurationSeconds:    300,
			MaxConsecutiveFailures:    3,
			ShortAudioMaxRetries:      3,
			RetrySleepShortSeconds:    1.0,
			RetrySleepLongSeconds:     2.0,
		},
	}
}

// Load reads the YAML config at path (missing file is fine), then applies
// environment overrides on top. Environment always wins over the file.
func Load(path string) (AppConfig, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}
	applyEnvOverrides(&cfg)
	cfg.registerSecrets()
	return cfg, nil
}

// Validate checks every configured vendor base URL against the security
// policy before the service starts taking traffic.
func (c *AppConfig) Validate(ctx context.Context) error {
	policy := c.Policy()
	for name, v := range map[string]VendorConfig{
		ProviderSiliconFlow: c.APIs.SiliconFlow,
		ProviderOpenAI:      c.APIs.OpenAI,
		ProviderGemini:      c.APIs.Gemini,
	} {
		if v.BaseURL == "" {
			continue
		}
		if err := netutil.CheckBaseURL(ctx, v.BaseURL, policy); err != nil {
			return fmt.Errorf("apis.%s.base_url: %w", name, err)
		}
	}
	if c.System.TempDir == "" || c.System.OutputDir == "" {
		return fmt.Errorf("system.temp_dir and system.output_dir must be set")
	}
	return nil
}

// Policy builds the outbound URL policy from the security section.
func (c *AppConfig) Policy() netutil.Policy {
	return netutil.Policy{
		AllowInsecureHTTP:     c.Security.AllowInsecureHTTP,
		AllowPrivateAddresses: c.Security.AllowPrivateAddresses,
		AllowedHosts:          c.Security.AllowedAPIHosts,
		EnforceAllowedHosts:   c.Security.EnforceAPIHostsWhitelist,
	}
}

// ProviderFor resolves an llm_provider name to its vendor config.
func (c *AppConfig) ProviderFor(name string) (VendorConfig, error) {
	switch name {
	case ProviderSiliconFlow, "":
		return c.APIs.SiliconFlow, nil
	case ProviderOpenAI:
		return c.APIs.OpenAI, nil
	case ProviderGemini:
		return c.APIs.Gemini, nil
	}
	return VendorConfig{}, errors.Ef(errors.KindBadRequest, nil, "unknown llm_provider %q", name)
}

// RequestTimeout is the per-call budget for outbound vendor HTTP requests.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.System.RequestTimeoutSeconds) * time.Second
}

// ProcessingTimeout is the wall-clock budget for a whole task.
func (c *AppConfig) ProcessingTimeout() time.Duration {
	return time.Duration(c.System.ProcessingTimeoutSeconds) * time.Second
}

func (c *AppConfig) registerSecrets() {
	log.RegisterSecret(c.APIs.SiliconFlow.APIKey)
	log.RegisterSecret(c.APIs.OpenAI.APIKey)
	log.RegisterSecret(c.APIs.Gemini.APIKey)
}

// Loggable returns a redacted copy of the config for boot-time logging.
func (c *AppConfig) Loggable() interface{} {
	return log.RedactValue(map[string]interface{}{
		"apis": map[string]interface{}{
			ProviderSiliconFlow: vendorMap(c.APIs.SiliconFlow),
			ProviderOpenAI:      vendorMap(c.APIs.OpenAI),
			ProviderGemini:      vendorMap(c.APIs.Gemini),
		},
		"system": map[string]interface{}{
			"temp_dir":                   c.System.TempDir,
			"output_dir":                 c.System.OutputDir,
			"log_dir":                    c.System.LogDir,
			"max_file_size_mb":           c.System.MaxFileSizeMB,
			"processing_timeout_seconds": c.System.ProcessingTimeoutSeconds,
			"request_timeout_seconds":    c.System.RequestTimeoutSeconds,
			"keep_temp_files":            c.System.KeepTempFiles,
			"max_concurrent_tasks":       c.System.MaxConcurrentTasks,
			"max_queued_tasks":           c.System.MaxQueuedTasks,
		},
		"security": map[string]interface{}{
			"allow_insecure_http":         c.Security.AllowInsecureHTTP,
			"allow_private_addresses":     c.Security.AllowPrivateAddresses,
			"allowed_api_hosts":           strings.Join(c.Security.AllowedAPIHosts, ","),
			"enforce_api_hosts_whitelist": c.Security.EnforceAPIHostsWhitelist,
		},
	})
}

func vendorMap(v VendorConfig) map[string]interface{} {
	return map[string]interface{}{
		"api_key":  v.APIKey,
		"base_url": v.BaseURL,
		"model":    v.Model,
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	setString(&cfg.APIs.SiliconFlow.APIKey, "VW_APIS_SILICONFLOW_API_KEY", "SILICONFLOW_API_KEY")
	setString(&cfg.APIs.SiliconFlow.BaseURL, "VW_APIS_SILICONFLOW_BASE_URL")
	setString(&cfg.APIs.SiliconFlow.Model, "VW_APIS_SILICONFLOW_MODEL")
	setString(&cfg.APIs.OpenAI.APIKey, "VW_APIS_OPENAI_API_KEY", "OPENAI_API_KEY")
	setString(&cfg.APIs.OpenAI.BaseURL, "VW_APIS_OPENAI_BASE_URL")
	setString(&cfg.APIs.OpenAI.Model, "VW_APIS_OPENAI_MODEL")
	setString(&cfg.APIs.Gemini.APIKey, "VW_APIS_GEMINI_API_KEY", "GEMINI_API_KEY")
	setString(&cfg.APIs.Gemini.BaseURL, "VW_APIS_GEMINI_BASE_URL")
	setString(&cfg.APIs.Gemini.Model, "VW_APIS_GEMINI_MODEL")

	setString(&cfg.System.TempDir, "VW_SYSTEM_TEMP_DIR")
	setString(&cfg.System.OutputDir, "VW_SYSTEM_OUTPUT_DIR")
	setString(&cfg.System.LogDir, "VW_SYSTEM_LOG_DIR")
	setInt(&cfg.System.MaxFileSizeMB, "VW_SYSTEM_MAX_FILE_SIZE_MB")
	setInt(&cfg.System.ProcessingTimeoutSeconds, "VW_SYSTEM_PROCESSING_TIMEOUT_SECONDS")
	setInt(&cfg.System.RequestTimeoutSeconds, "VW_SYSTEM_REQUEST_TIMEOUT_SECONDS")
	setBool(&cfg.System.KeepTempFiles, "VW_SYSTEM_KEEP_TEMP_FILES")
	setInt(&cfg.System.MaxConcurrentTasks, "VW_SYSTEM_MAX_CONCURRENT_TASKS")
	setInt(&cfg.System.MaxQueuedTasks, "VW_SYSTEM_MAX_QUEUED_TASKS")

	setInt(&cfg.Processing.LongAudioThresholdSeconds, "VW_PROCESSING_LONG_AUDIO_THRESHOLD_SECONDS")
	setInt(&cfg.Processing.SegmentDurationSeconds, "VW_PROCESSING_SEGMENT_DURATION_SECONDS")
	setInt(&cfg.Processing.MaxConsecutiveFailures, "VW_PROCESSING_MAX_CONSECUTIVE_FAILURES")
	setInt(&cfg.Processing.ShortAudioMaxRetries, "VW_PROCESSING_SHORT_AUDIO_MAX_RETRIES")
	setFloat(&cfg.Processing.RetrySleepShortSeconds, "VW_PROCESSING_RETRY_SLEEP_SHORT_SECONDS")
	setFloat(&cfg.Processing.RetrySleepLongSeconds, "VW_PROCESSING_RETRY_SLEEP_LONG_SECONDS")

	setBool(&cfg.Security.AllowInsecureHTTP, "VW_SECURITY_ALLOW_INSECURE_HTTP")
	setBool(&cfg.Security.AllowPrivateAddresses, "VW_SECURITY_ALLOW_PRIVATE_ADDRESSES")
	setStringSlice(&cfg.Security.AllowedAPIHosts, "VW_SECURITY_ALLOWED_API_HOSTS")
	setBool(&cfg.Security.EnforceAPIHostsWhitelist, "VW_SECURITY_ENFORCE_API_HOSTS_WHITELIST")
}

func setString(dst *string, keys ...string) {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			*dst = v
			return
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
