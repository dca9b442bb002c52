// Package config loads service configuration from the environment. All keys
// live under the SUPPLYMESH_ prefix; wallet and provider credentials are
// always injected, never embedded in source.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cyberx-ai/supplymesh/core"
)

// Config carries the runtime settings shared by the coordinator and supplier
// services.
type Config struct {
	Host string
	Port int

	LogLevel  string
	LogFormat string

	// Generation provider: "openai", "anthropic" or "mock".
	Provider        string
	ModelName       string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Simulated blockchain and agent registry endpoints.
	ChainBaseURL    string
	RegistryBaseURL string

	// Wallet parameters for the simulated transfer.
	SenderAddress    string
	SenderPrivateKey string
	DestAddress      string
	TransferAmount   int64
	GasPrice         int64
	FeeLimit         int64

	SessionTTL time.Duration
}

// Load reads configuration from SUPPLYMESH_-prefixed environment variables,
// falling back to the given defaults. Provider API keys additionally fall
// back to the conventional OPENAI_API_KEY / ANTHROPIC_API_KEY variables.
func Load(defaultPort int) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SUPPLYMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", defaultPort)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("provider", "openai")
	v.SetDefault("model_name", "")
	v.SetDefault("chain_base_url", "http://localhost:8080")
	v.SetDefault("registry_base_url", "http://localhost:8081")
	v.SetDefault("transfer_amount", int64(1))
	v.SetDefault("gas_price", int64(1))
	v.SetDefault("fee_limit", int64(100))
	v.SetDefault("session_ttl", "1h")

	if err := v.BindEnv("openai_api_key", "SUPPLYMESH_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("anthropic_api_key", "SUPPLYMESH_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, err
	}

	cfg := &Config{
		Host:             v.GetString("host"),
		Port:             v.GetInt("port"),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		Provider:         strings.ToLower(v.GetString("provider")),
		ModelName:        v.GetString("model_name"),
		OpenAIAPIKey:     v.GetString("openai_api_key"),
		AnthropicAPIKey:  v.GetString("anthropic_api_key"),
		ChainBaseURL:     strings.TrimRight(v.GetString("chain_base_url"), "/"),
		RegistryBaseURL:  strings.TrimRight(v.GetString("registry_base_url"), "/"),
		SenderAddress:    v.GetString("sender_address"),
		SenderPrivateKey: v.GetString("sender_private_key"),
		DestAddress:      v.GetString("dest_address"),
		TransferAmount:   v.GetInt64("transfer_amount"),
		GasPrice:         v.GetInt64("gas_price"),
		FeeLimit:         v.GetInt64("fee_limit"),
		SessionTTL:       v.GetDuration("session_ttl"),
	}
	return cfg, nil
}

// ValidateCredentials verifies the generation credential for the selected
// provider is present. The mock provider needs none. A missing credential is
// a fatal ConfigurationError: services must exit nonzero before serving.
func (c *Config) ValidateCredentials() error {
	switch c.Provider {
	case "mock":
		return nil
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return core.NewFailure(core.FailureConfiguration,
				"ANTHROPIC_API_KEY is not set (provider %q)", c.Provider)
		}
		return nil
	case "openai":
		if c.OpenAIAPIKey == "" {
			return core.NewFailure(core.FailureConfiguration,
				"OPENAI_API_KEY is not set (provider %q)", c.Provider)
		}
		return nil
	default:
		return core.NewFailure(core.FailureConfiguration,
			"unknown generation provider %q", c.Provider)
	}
}
