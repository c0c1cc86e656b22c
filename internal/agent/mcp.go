package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MCPAdapter drives an MCP server's tools/call endpoint with a fixed tool
// name carrying the scenario as arguments.
type MCPAdapter struct{}

func (MCPAdapter) Name() string { return "mcp" }

func (MCPAdapter) SendScenario(ctx context.Context, client *Client, spec Spec, req ScenarioRequest) (Reply, error) {
	cfg := spec.MCP
	if cfg == nil {
		cfg = &MCPConfig{ToolName: "evaluate_scenario", Path: "/mcp"}
	}
	rpc := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "tools/call",
		Params: map[string]any{
			"name": cfg.ToolName,
			"arguments": map[string]any{
				"scenario_id": req.ScenarioID,
				"scenario":    req.Scenario,
				"question":    req.Question,
			},
		},
	}
	raw, err := client.PostJSON(ctx, cfg.Path, rpc)
	if err != nil {
		return Reply{}, err
	}
	var parsed jsonRPCResponse
	if err := json.Unmarshal(raw.Body, &parsed); err != nil {
		return Reply{}, fmt.Errorf("decode mcp response: %w", err)
	}
	if parsed.Error != nil {
		return Reply{}, fmt.Errorf("mcp error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	text, err := extractMCPText(parsed.Result)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text}, nil
}

// extractMCPText reads result.content[0].text, falling back to a bare string
// result field.
func extractMCPText(result json.RawMessage) (string, error) {
	if len(result) == 0 {
		return "", fmt.Errorf("mcp response has no result")
	}
	var envelope struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Result  string `json:"result"`
		IsError bool   `json:"isError"`
	}
	if err := json.Unmarshal(result, &envelope); err == nil {
		if envelope.IsError {
			message := envelope.Result
			if message == "" && len(envelope.Content) > 0 {
				message = envelope.Content[0].Text
			}
			return "", fmt.Errorf("mcp tool error: %s", firstN(message, 200))
		}
		for _, block := range envelope.Content {
			if strings.TrimSpace(block.Text) != "" {
				return block.Text, nil
			}
		}
		if strings.TrimSpace(envelope.Result) != "" {
			return envelope.Result, nil
		}
	}
	var asString string
	if err := json.Unmarshal(result, &asString); err == nil && strings.TrimSpace(asString) != "" {
		return asString, nil
	}
	return "", fmt.Errorf("mcp response has no text content")
}

func (MCPAdapter) Discover(ctx context.Context, client *Client, spec Spec) (*Card, error) {
	return nil, nil
}
