package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const DefaultFile = "./config.yaml"

type Config struct {
	ServerPort         string
	DBPath             string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins string
	RateLimitAuthRPS   float64
	RateLimitChatRPS   float64
	LogLevel           string
	LogFormat          string
	File               string

	Provider ProviderConfig
	Policy   PolicyConfig
	Pricing  PricingConfig
	// GiftCodes maps a redeemable code to its USD credit.
	GiftCodes map[string]float64
}

type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Referer string
	Title   string
}

type PolicyConfig struct {
	MinBalanceUSD       float64 `yaml:"min_balance_usd"`
	MaxPromptChars      int     `yaml:"max_prompt_chars"`
	MinOutputTokens     int64   `yaml:"min_output_tokens"`
	HardCapOutputTokens int64   `yaml:"hard_cap_output_tokens"`
	SafetyMultiplier    float64 `yaml:"safety_multiplier"`
	DefaultSessionModel string  `yaml:"default_session_model"`
}

// PriceEntry is expressed in USD per token.
type PriceEntry struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

type PricingConfig struct {
	Default PriceEntry            `yaml:"default"`
	Models  map[string]PriceEntry `yaml:"models"`
}

// fileConfig is the on-disk YAML layout.
type fileConfig struct {
	Policy    *PolicyConfig      `yaml:"policy"`
	Pricing   *PricingConfig     `yaml:"pricing"`
	GiftCodes map[string]float64 `yaml:"gift_codes"`
}

func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		MinBalanceUSD:       0.001,
		MaxPromptChars:      12000,
		MinOutputTokens:     32,
		HardCapOutputTokens: 800,
		SafetyMultiplier:    1.2,
		DefaultSessionModel: "xiaomi/mimo-v2-flash",
	}
}

func DefaultPricing() PricingConfig {
	return PricingConfig{
		Default: PriceEntry{Input: 1.0 / 1_000_000, Output: 2.0 / 1_000_000},
		Models: map[string]PriceEntry{
			"google/gemini-3-flash-preview": {Input: 1.0 / 1_000_000, Output: 2.0 / 1_000_000},
			"openai/gpt-4o-mini":            {Input: 1.0 / 1_000_000, Output: 2.0 / 1_000_000},
		},
	}
}

// Load reads the environment and overlays the YAML file named by CONFIG_FILE.
// A missing file is not an error.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "3000"),
		DBPath:             getEnv("DB_PATH", "./data/ultichat.db"),
		JWTSecret:          getEnv("JWT_SECRET", "ultichat-default-secret-change-in-production"),
		JWTIssuer:          getEnv("JWT_ISSUER", "ultichat"),
		JWTAudience:        getEnv("JWT_AUDIENCE", "ultichat-web"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		RateLimitAuthRPS:   getEnvFloat("RATE_LIMIT_AUTH_RPS", 5),
		RateLimitChatRPS:   getEnvFloat("RATE_LIMIT_CHAT_RPS", 2),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		File:               getEnv("CONFIG_FILE", DefaultFile),
		Provider: ProviderConfig{
			APIKey:  os.Getenv("OPENROUTER_API_KEY"),
			BaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			Referer: getEnv("OPENROUTER_REFERER", "https://ultichat-winter.com"),
			Title:   getEnv("OPENROUTER_TITLE", "UltiChat Winter"),
		},
		Policy:    DefaultPolicy(),
		Pricing:   DefaultPricing(),
		GiftCodes: map[string]float64{},
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.ServerPort = port
	}

	if err := cfg.applyFile(cfg.File); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	fc, err := readFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if fc.Policy != nil {
		c.Policy = mergePolicy(c.Policy, *fc.Policy)
	}
	if fc.Pricing != nil {
		c.Pricing = mergePricing(c.Pricing, *fc.Pricing)
	}
	for code, amount := range fc.GiftCodes {
		c.GiftCodes[code] = amount
	}
	return nil
}

// LoadPricing re-reads only the pricing section of path on top of the
// built-in defaults. Used by the price table when the file changes.
func LoadPricing(path string) (PricingConfig, error) {
	pricing := DefaultPricing()
	fc, err := readFile(path)
	if err != nil {
		return pricing, err
	}
	if fc.Pricing != nil {
		pricing = mergePricing(pricing, *fc.Pricing)
	}
	return pricing, nil
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &fc, nil
}

func mergePolicy(base, override PolicyConfig) PolicyConfig {
	if override.MinBalanceUSD > 0 {
		base.MinBalanceUSD = override.MinBalanceUSD
	}
	if override.MaxPromptChars > 0 {
		base.MaxPromptChars = override.MaxPromptChars
	}
	if override.MinOutputTokens > 0 {
		base.MinOutputTokens = override.MinOutputTokens
	}
	if override.HardCapOutputTokens > 0 {
		base.HardCapOutputTokens = override.HardCapOutputTokens
	}
	if override.SafetyMultiplier > 1 {
		base.SafetyMultiplier = override.SafetyMultiplier
	}
	if override.DefaultSessionModel != "" {
		base.DefaultSessionModel = override.DefaultSessionModel
	}
	return base
}

func mergePricing(base, override PricingConfig) PricingConfig {
	if override.Default.Input > 0 || override.Default.Output > 0 {
		base.Default = override.Default
	}
	models := make(map[string]PriceEntry, len(base.Models)+len(override.Models))
	for id, p := range base.Models {
		models[id] = p
	}
	for id, p := range override.Models {
		models[id] = p
	}
	base.Models = models
	return base
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
