package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/config"
)

const arkHistoryLimit = 20

// ArkProvider opens chat sessions on Volcengine Ark through an eino chain.
type ArkProvider struct {
	cfg    config.ArkConfig
	logger *zap.Logger
}

// NewArkProvider prepares a provider for the configured Ark model.
func NewArkProvider(cfg config.ArkConfig, logger *zap.Logger) *ArkProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArkProvider{cfg: cfg, logger: logger}
}

// Name implements Provider.
func (p *ArkProvider) Name() string {
	return "ark:" + p.cfg.Model
}

// HasCredential implements Provider.
func (p *ArkProvider) HasCredential() bool {
	return p.cfg.Enabled()
}

// Open implements Provider. A non-empty apiKey replaces ARK_API_KEY for this conversation.
func (p *ArkProvider) Open(ctx context.Context, apiKey string) (Conversation, error) {
	cfg := p.cfg
	if key := strings.TrimSpace(apiKey); key != "" {
		cfg.APIKey = key
	}
	if !cfg.Enabled() {
		return nil, ErrCredentialMissing
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	conv, err := newArkConversation(ctx, chatModel, p.logger)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("ark chat opened", zap.String("model", cfg.Model))
	return conv, nil
}

// arkConversation keeps the turn history locally because the Ark chat
// completion API is stateless.
type arkConversation struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *zap.Logger

	mu      sync.Mutex
	history []*schema.Message
}

func newArkConversation(ctx context.Context, chatModel model.ChatModel, logger *zap.Logger) (*arkConversation, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &arkConversation{chain: runnable, logger: logger}, nil
}

func (c *arkConversation) Send(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	input := map[string]any{
		"system":  SystemInstruction,
		"history": append([]*schema.Message(nil), c.history...),
		"query":   text,
	}

	response, err := c.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("ark returned an empty reply")
	}

	c.history = append(c.history, schema.UserMessage(text), schema.AssistantMessage(response.Content, nil))
	if len(c.history) > arkHistoryLimit {
		c.history = c.history[len(c.history)-arkHistoryLimit:]
	}

	c.logger.Debug("ark reply generated", zap.Int("length", len(response.Content)), zap.Int("history", len(c.history)))
	return response.Content, nil
}
