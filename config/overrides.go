package config

import (
	"github.com/mitchellh/mapstructure"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
)

// apiConfigOverride is the shape of the per-request api_config object.
// Unknown keys are rejected so typos fail loudly instead of silently using
// defaults.
type apiConfigOverride struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	STTModel string `mapstructure:"stt_model"`
}

// WithOverrides layers a request's api_config map over the configured vendor
// defaults. Override keys supplied by the caller are registered as secrets
// so they can never surface in logs.
func (v VendorConfig) WithOverrides(raw map[string]interface{}) (VendorConfig, error) {
	if len(raw) == 0 {
		return v, nil
	}

	var o apiConfigOverride
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &o,
		ErrorUnused: true,
	})
	if err != nil {
		return v, errors.E(errors.KindInternal, "building api_config decoder", err)
	}
	if err := dec.Decode(raw); err != nil {
		return v, errors.E(errors.KindBadRequest, "invalid api_config", err)
	}

	out := v
	if o.APIKey != "" {
		out.APIKey = o.APIKey
		log.RegisterSecret(o.APIKey)
	}
	if o.BaseURL != "" {
		out.BaseURL = o.BaseURL
	}
	if o.Model != "" {
		out.Model = o.Model
	}
	if o.STTModel != "" {
		out.STTModel = o.STTModel
	}
	return out, nil
}
