package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const generateContentAction = "generateContent"

// ModelInfo describes one model exposed to the account.
type ModelInfo struct {
	Name        string
	DisplayName string
	Actions     []string
}

// SupportsChat reports whether the model can back a conversation.
func (m ModelInfo) SupportsChat() bool {
	for _, a := range m.Actions {
		if a == generateContentAction {
			return true
		}
	}
	return false
}

// ListModels returns the Gemini models that support content generation, sorted by name.
func ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrCredentialMissing
	}

	client, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	var models []ModelInfo
	for m, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list gemini models: %w", err)
		}
		info := ModelInfo{Name: m.Name, DisplayName: m.DisplayName, Actions: m.SupportedActions}
		if info.SupportsChat() {
			models = append(models, info)
		}
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}
