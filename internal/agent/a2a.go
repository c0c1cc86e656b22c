package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// A2AAdapter speaks JSON-RPC 2.0 against an A2A agent endpoint. The RPC
// method name comes from the agent's Spec so non-standard agents can still
// be driven.
type A2AAdapter struct{}

func (A2AAdapter) Name() string { return "a2a" }

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonRPCError   `json:"error"`
}

func (A2AAdapter) SendScenario(ctx context.Context, client *Client, spec Spec, req ScenarioRequest) (Reply, error) {
	cfg := spec.A2A
	if cfg == nil {
		cfg = &A2AConfig{Method: "message/send", Path: "/"}
	}
	rpc := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  cfg.Method,
		Params: map[string]any{
			"scenario_id": req.ScenarioID,
			"scenario":    req.Scenario,
			"question":    req.Question,
			"message":     req.Prompt,
		},
	}
	raw, err := client.PostJSON(ctx, cfg.Path, rpc)
	if err != nil {
		return Reply{}, err
	}
	var parsed jsonRPCResponse
	if err := json.Unmarshal(raw.Body, &parsed); err != nil {
		return Reply{}, fmt.Errorf("decode json-rpc response: %w", err)
	}
	if parsed.Error != nil {
		return Reply{}, fmt.Errorf("json-rpc error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Result) == 0 {
		return Reply{}, fmt.Errorf("json-rpc response has no result")
	}
	return Reply{Text: extractA2AText(parsed.Result)}, nil
}

// extractA2AText prefers result.response, then result.answer, then a bare
// string result, then the stringified result object.
func extractA2AText(result json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(result, &asString); err == nil {
		return asString
	}
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(result, &asObject); err == nil {
		for _, key := range []string{"response", "answer"} {
			value, ok := asObject[key]
			if !ok {
				continue
			}
			var text string
			if err := json.Unmarshal(value, &text); err == nil && strings.TrimSpace(text) != "" {
				return text
			}
		}
	}
	return string(result)
}

// Discover fetches the well-known agent card.
func (A2AAdapter) Discover(ctx context.Context, client *Client, spec Spec) (*Card, error) {
	raw, err := client.Get(ctx, "/.well-known/agent.json")
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Name     string `json:"name"`
		Version  string `json:"version"`
		Provider struct {
			Organization string `json:"organization"`
		} `json:"provider"`
		Skills []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"skills"`
		DID string `json:"did"`
	}
	if err := json.Unmarshal(raw.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decode agent card: %w", err)
	}
	card := &Card{
		Name:     parsed.Name,
		Version:  parsed.Version,
		Provider: parsed.Provider.Organization,
		DID:      parsed.DID,
	}
	for _, skill := range parsed.Skills {
		name := skill.Name
		if name == "" {
			name = skill.ID
		}
		if name != "" {
			card.Skills = append(card.Skills, name)
		}
	}
	return card, nil
}
