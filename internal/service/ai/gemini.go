package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/car-advisor/backend/internal/config"
)

// GeminiProvider opens chat sessions on the Gemini API.
type GeminiProvider struct {
	cfg    config.GeminiConfig
	logger *zap.Logger

	mu     sync.Mutex
	shared *genai.Client
}

// NewGeminiProvider prepares a provider. The client for the process key is
// created lazily and reused; clients for per-session keys are not retained.
func NewGeminiProvider(cfg config.GeminiConfig, logger *zap.Logger) *GeminiProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiProvider{
		cfg:    cfg,
		logger: logger,
	}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string {
	return "gemini:" + p.cfg.Model
}

// HasCredential implements Provider.
func (p *GeminiProvider) HasCredential() bool {
	return p.cfg.APIKey != ""
}

// Open implements Provider.
func (p *GeminiProvider) Open(ctx context.Context, apiKey string) (Conversation, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = p.cfg.APIKey
	}
	if key == "" {
		return nil, ErrCredentialMissing
	}

	client, err := p.client(ctx, key)
	if err != nil {
		return nil, err
	}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction, genai.RoleUser),
	}
	if p.cfg.Temperature != nil {
		genCfg.Temperature = genai.Ptr(float32(*p.cfg.Temperature))
	}

	chat, err := client.Chats.Create(ctx, p.cfg.Model, genCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("start gemini chat: %w", err)
	}

	p.logger.Debug("gemini chat opened", zap.String("model", p.cfg.Model))
	return &geminiConversation{chat: chat}, nil
}

// client returns the shared client for the process key. A user-supplied key
// gets its own client, reachable only through the chat it backs, so it is
// released with the session.
func (p *GeminiProvider) client(ctx context.Context, key string) (*genai.Client, error) {
	if key != p.cfg.APIKey {
		return newGeminiClient(ctx, key)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shared == nil {
		c, err := newGeminiClient(ctx, key)
		if err != nil {
			return nil, err
		}
		p.shared = c
	}
	return p.shared, nil
}

func newGeminiClient(ctx context.Context, key string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

type geminiConversation struct {
	chat *genai.Chat
}

func (c *geminiConversation) Send(ctx context.Context, text string) (string, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return "", fmt.Errorf("gemini returned an empty reply")
	}
	return reply, nil
}
