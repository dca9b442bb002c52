// Package provider selects a model.Model implementation from service
// configuration.
package provider

import (
	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/model"
	"github.com/cyberx-ai/supplymesh/model/anthropic"
	"github.com/cyberx-ai/supplymesh/model/openai"
)

// New returns the model for the named provider. The API keys must already
// have been validated; "mock" returns an offline model for demos and tests.
func New(providerName, modelName, openaiKey, anthropicKey string) (model.Model, error) {
	switch providerName {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if modelName != "" {
				o.Model = modelName
			}
			o.APIKey = openaiKey
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if modelName != "" {
				o.Model = sdkanthropic.Model(modelName)
			}
			o.APIKey = anthropicKey
		}), nil
	case "mock":
		name := modelName
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name, "mock"), nil
	default:
		return nil, core.NewFailure(core.FailureConfiguration,
			"unknown generation provider %q", providerName)
	}
}
