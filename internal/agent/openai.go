package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// OpenAIAdapter drives an OpenAI-compatible chat-completions endpoint. When
// the agent's Spec names a reasoning effort, the request switches from
// temperature/max_tokens to the reasoning payload shape.
type OpenAIAdapter struct{}

func (OpenAIAdapter) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model               string           `json:"model"`
	Messages            []chatMessage    `json:"messages"`
	Temperature         *float64         `json:"temperature,omitempty"`
	MaxTokens           int              `json:"max_tokens,omitempty"`
	MaxCompletionTokens int              `json:"max_completion_tokens,omitempty"`
	Reasoning           *reasoningConfig `json:"reasoning,omitempty"`
}

type reasoningConfig struct {
	Effort string `json:"effort"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (OpenAIAdapter) SendScenario(ctx context.Context, client *Client, spec Spec, req ScenarioRequest) (Reply, error) {
	cfg := spec.OpenAI
	if cfg == nil || strings.TrimSpace(cfg.Model) == "" {
		return Reply{}, fmt.Errorf("openai adapter requires a model name")
	}
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(cfg.SystemPrompt) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: cfg.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload := chatCompletionRequest{
		Model:    cfg.Model,
		Messages: messages,
	}
	if strings.TrimSpace(cfg.ReasoningEffort) != "" {
		payload.Reasoning = &reasoningConfig{Effort: cfg.ReasoningEffort}
		payload.MaxCompletionTokens = cfg.MaxTokens
	} else {
		payload.Temperature = cfg.Temperature
		payload.MaxTokens = cfg.MaxTokens
	}

	path := cfg.Path
	if strings.TrimSpace(path) == "" {
		path = "/v1/chat/completions"
	}
	raw, err := client.PostJSON(ctx, path, payload)
	if err != nil {
		return Reply{}, err
	}
	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw.Body, &parsed); err != nil {
		return Reply{}, fmt.Errorf("decode chat completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Reply{}, fmt.Errorf("chat completion has no choices")
	}
	reply := Reply{Text: parsed.Choices[0].Message.Content}
	if parsed.Usage.PromptTokens > 0 || parsed.Usage.CompletionTokens > 0 {
		reply.Usage = &Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		}
	}
	return reply, nil
}

// Discover lists models as a liveness/metadata probe.
func (OpenAIAdapter) Discover(ctx context.Context, client *Client, spec Spec) (*Card, error) {
	raw, err := client.Get(ctx, "/v1/models")
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Data []struct {
			ID      string `json:"id"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	card := &Card{Name: spec.Name}
	if spec.OpenAI != nil {
		for _, model := range parsed.Data {
			if model.ID == spec.OpenAI.Model {
				card.Name = model.ID
				card.Provider = model.OwnedBy
				break
			}
		}
	}
	return card, nil
}
