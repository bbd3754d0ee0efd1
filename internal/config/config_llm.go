package config

// LLMConfig configures the planner's language-model facade: which
// provider adapter (openai, anthropic, bedrock, gemini) is the
// default, per-provider credentials, and the fallback order the
// planner's state machine walks when the default provider errors.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain specifies provider IDs to try, in order, if the
	// default provider fails. Example: ["openai", "anthropic"].
	FallbackChain []string `yaml:"fallback_chain"`

	// Bedrock configures AWS Bedrock foundation-model discovery (see
	// planner/llm/bedrock.Client.ListModels).
	Bedrock BedrockConfig `yaml:"bedrock"`
}

// LLMProviderConfig is one provider's credentials and defaults. Which
// fields apply depends on the provider: bedrock uses
// AccessKeyID/SecretAccessKey/Region, the rest use APIKey.
type LLMProviderConfig struct {
	APIKey          string `yaml:"api_key"`
	DefaultModel    string `yaml:"default_model"`
	BaseURL         string `yaml:"base_url"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// BedrockConfig configures AWS Bedrock foundation-model discovery.
type BedrockConfig struct {
	// Region is the AWS region to query for models. Default: us-east-1.
	Region string `yaml:"region"`

	// ProviderFilter limits discovery to specific model providers
	// (e.g. ["anthropic", "meta"]). Empty means all providers.
	ProviderFilter []string `yaml:"provider_filter"`
}
