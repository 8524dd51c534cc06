package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// LLM provider names accepted by LLM_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	LLM       LLMConfig
	Predictor PredictorConfig
	Chat      ChatConfig
	Session   SessionConfig
	Audit     AuditConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	predictor, err := loadPredictorConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	ttl, err := parseDurationEnv("SESSION_TTL", 60*time.Minute)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %s", ttl)
	}

	return &Config{
		Server:    server,
		Log:       LogConfig{Level: strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))},
		LLM:       llm,
		Predictor: predictor,
		Chat:      chat,
		Session:   SessionConfig{TTL: ttl},
		Audit:     AuditConfig{DBPath: strings.TrimSpace(os.Getenv("AUDIT_DB_PATH"))},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr          string
	CORSOrigins   []string
	SecureCookies bool
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))
	secure, err := parseBoolEnv("COOKIE_SECURE", false)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, CORSOrigins: origins, SecureCookies: secure}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigins: origins, SecureCookies: secure}, nil
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Level string
}

// Development reports whether the human-readable development logger should be used.
func (c LogConfig) Development() bool {
	return c.Level == "debug"
}

// LLMConfig 描述大模型相关配置。
type LLMConfig struct {
	Provider string
	// AllowSessionKey lets a user paste an API key into the settings field.
	AllowSessionKey bool
	Gemini          GeminiConfig
	Ark             ArkConfig
}

// GeminiConfig configures the Gemini chat provider.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature *float64
}

// ArkConfig configures the Volcengine Ark chat provider.
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadLLMConfig() (LLMConfig, error) {
	geminiTemp, err := parseOptionalFloatEnv("GEMINI_TEMPERATURE")
	if err != nil {
		return LLMConfig{}, err
	}

	arkTemp, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return LLMConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return LLMConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return LLMConfig{}, err
	}

	allowSessionKey, err := parseBoolEnv("ALLOW_SESSION_API_KEY", true)
	if err != nil {
		return LLMConfig{}, err
	}

	cfg := LLMConfig{
		Provider:        strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER"))),
		AllowSessionKey: allowSessionKey,
		Gemini: GeminiConfig{
			APIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:       getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
			Temperature: geminiTemp,
		},
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: arkTemp,
			TopP:        topP,
			MaxTokens:   maxTokens,
		},
	}

	switch cfg.Provider {
	case ProviderGemini, ProviderArk:
	case "":
		// 未显式指定时：有 Gemini 密钥用 Gemini，否则 Ark 配齐用 Ark，最后回落到 Gemini（可通过会话内填写密钥启用）。
		switch {
		case cfg.Gemini.APIKey != "":
			cfg.Provider = ProviderGemini
		case cfg.Ark.Enabled():
			cfg.Provider = ProviderArk
		default:
			cfg.Provider = ProviderGemini
		}
	default:
		return LLMConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", cfg.Provider)
	}

	return cfg, nil
}

// PredictorConfig points at the price model.
type PredictorConfig struct {
	ArtifactPath string
	RemoteURL    string
	Timeout      time.Duration
}

func loadPredictorConfig() (PredictorConfig, error) {
	timeout, err := parseDurationEnv("PREDICTOR_TIMEOUT", 10*time.Second)
	if err != nil {
		return PredictorConfig{}, err
	}
	return PredictorConfig{
		ArtifactPath: getEnvOrDefault("PREDICTOR_ARTIFACT", "model.yaml"),
		RemoteURL:    strings.TrimSpace(os.Getenv("PREDICTOR_URL")),
		Timeout:      timeout,
	}, nil
}

// ChatConfig tunes the chat surface.
type ChatConfig struct {
	TypingDelay time.Duration
	RateLimit   float64
	RateBurst   int
}

func loadChatConfig() (ChatConfig, error) {
	delay, err := parseDurationEnv("CHAT_TYPING_DELAY", time.Second)
	if err != nil {
		return ChatConfig{}, err
	}
	if delay < 0 {
		delay = 0
	}

	rateLimit := 1.0
	if v, err := parseOptionalFloatEnv("CHAT_RATE_LIMIT"); err != nil {
		return ChatConfig{}, err
	} else if v != nil {
		rateLimit = *v
	}

	burst := 5
	if v, err := parseOptionalIntEnv("CHAT_RATE_BURST"); err != nil {
		return ChatConfig{}, err
	} else if v != nil {
		if *v < 1 {
			burst = 1
		} else {
			burst = *v
		}
	}

	return ChatConfig{TypingDelay: delay, RateLimit: rateLimit, RateBurst: burst}, nil
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	TTL time.Duration
}

// AuditConfig enables the prediction audit log when DBPath is set.
type AuditConfig struct {
	DBPath string
}

// Enabled reports whether audit logging is on.
func (c AuditConfig) Enabled() bool {
	return c.DBPath != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
