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

	"github.com/zhouzirui/wingchat/backend/internal/service/inference"
	"github.com/zhouzirui/wingchat/backend/internal/service/reply"
)

// Provider names the completion backend.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderArk    Provider = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Provider Provider
	Ollama   OllamaConfig
	AI       AIConfig
	Chat     FlowConfig
	Feedback FlowConfig
	Reply    ReplyConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	provider, err := parseProvider(os.Getenv("AI_PROVIDER"))
	if err != nil {
		return nil, err
	}

	ollama, err := loadOllamaConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadFlowConfig("CHAT", FlowConfig{
		Model:    "my-custom-llama3",
		Endpoint: inference.EndpointGenerate,
		Options:  inference.Options{Temperature: 0.2, TopP: 0.7, RepeatPenalty: 1.15, NumPredict: 60},
	})
	if err != nil {
		return nil, err
	}

	feedback, err := loadFlowConfig("FEEDBACK", FlowConfig{
		Model:    chat.Model,
		Endpoint: inference.EndpointChat,
		Options:  inference.Options{Temperature: 0.3, TopP: 0.9, RepeatPenalty: 1.1, NumPredict: 512},
	})
	if err != nil {
		return nil, err
	}

	replyCfg, err := loadReplyConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Log:      LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info"), Format: getEnvOrDefault("LOG_FORMAT", "json")},
		Provider: provider,
		Ollama:   ollama,
		AI:       ai,
		Chat:     chat,
		Feedback: feedback,
		Reply:    replyCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

// OllamaConfig 描述本地 Ollama 服务。
type OllamaConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

func loadOllamaConfig() (OllamaConfig, error) {
	connect, err := parseDurationEnv("OLLAMA_CONNECT_TIMEOUT", inference.DefaultConnectTimeout)
	if err != nil {
		return OllamaConfig{}, err
	}
	read, err := parseDurationEnv("OLLAMA_READ_TIMEOUT", inference.DefaultReadTimeout)
	if err != nil {
		return OllamaConfig{}, err
	}
	return OllamaConfig{
		BaseURL:        strings.TrimRight(getEnvOrDefault("OLLAMA_BASE_URL", inference.DefaultBaseURL), "/"),
		ConnectTimeout: connect,
		ReadTimeout:    read,
	}, nil
}

// FlowConfig 描述单个流程（回复或反馈）使用的模型与取样参数。
type FlowConfig struct {
	Model    string
	Endpoint inference.Endpoint
	Options  inference.Options
}

func loadFlowConfig(prefix string, defaults FlowConfig) (FlowConfig, error) {
	cfg := defaults
	cfg.Model = getEnvOrDefault(prefix+"_MODEL_NAME", defaults.Model)

	if raw := strings.TrimSpace(os.Getenv(prefix + "_ENDPOINT")); raw != "" {
		endpoint, err := inference.ParseEndpoint(raw)
		if err != nil {
			return FlowConfig{}, fmt.Errorf("invalid %s_ENDPOINT: %w", prefix, err)
		}
		cfg.Endpoint = endpoint
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{prefix + "_TEMPERATURE", &cfg.Options.Temperature},
		{prefix + "_TOP_P", &cfg.Options.TopP},
		{prefix + "_REPEAT_PENALTY", &cfg.Options.RepeatPenalty},
	}
	for _, f := range floats {
		val, err := parseOptionalFloatEnv(f.key)
		if err != nil {
			return FlowConfig{}, err
		}
		if val != nil {
			*f.dst = *val
		}
	}

	numPredict, err := parseOptionalIntEnv(prefix + "_NUM_PREDICT")
	if err != nil {
		return FlowConfig{}, err
	}
	if numPredict != nil {
		cfg.Options.NumPredict = *numPredict
	}
	return cfg, nil
}

// ReplyConfig 描述回复清理与提示词模板。
type ReplyConfig struct {
	Policy        reply.PunctuationPolicy
	BotName       string
	TemplatesFile string
}

func loadReplyConfig() (ReplyConfig, error) {
	policy, err := reply.ParsePolicy(os.Getenv("PUNCTUATION_POLICY"))
	if err != nil {
		return ReplyConfig{}, fmt.Errorf("invalid PUNCTUATION_POLICY: %w", err)
	}
	return ReplyConfig{
		Policy:        policy,
		BotName:       getEnvOrDefault("BOT_NAME", "話翼"),
		TemplatesFile: strings.TrimSpace(os.Getenv("PROMPT_TEMPLATES_FILE")),
	}, nil
}

// AIConfig 描述 Ark 大模型相关配置。
type AIConfig struct {
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
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
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

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func parseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ProviderOllama:
		return ProviderOllama, nil
	case ProviderArk:
		return ProviderArk, nil
	default:
		return "", fmt.Errorf("invalid AI_PROVIDER value %q", raw)
	}
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
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDurationEnv 接受 Go duration（"90s"）或纯秒数（"90"）。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
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
