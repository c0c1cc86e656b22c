package agent

import (
	"context"
	"fmt"
)

// ScenarioRequest is the protocol-independent unit of work an adapter
// translates into one wire call.
type ScenarioRequest struct {
	ScenarioID string
	Scenario   string
	Question   string
	// Prompt is the full composite prompt (question + scenario) for
	// chat-style protocols.
	Prompt string
}

// Reply is the extracted free text plus whatever metadata the envelope
// happened to carry.
type Reply struct {
	Text  string
	Usage *Usage
}

// Adapter sends one scenario to the agent and extracts the textual answer.
// Expected failures (transport errors, HTTP error statuses, malformed
// envelopes) are returned as errors, never panics; the caller records them as
// per-scenario failures and does not retry.
type Adapter interface {
	Name() string
	SendScenario(ctx context.Context, client *Client, spec Spec, req ScenarioRequest) (Reply, error)
	// Discover fetches agent-card metadata once per batch. A nil card with a
	// nil error means the protocol has nothing to discover.
	Discover(ctx context.Context, client *Client, spec Spec) (*Card, error)
}

// Registry maps protocols to adapter implementations. It is built once at
// startup and passed by value; adding a protocol means adding an enum case
// here, not mutating global state.
type Registry map[Protocol]Adapter

func DefaultRegistry() Registry {
	return Registry{
		ProtocolA2A:    A2AAdapter{},
		ProtocolMCP:    MCPAdapter{},
		ProtocolREST:   RESTAdapter{},
		ProtocolOpenAI: OpenAIAdapter{},
	}
}

func (r Registry) ForProtocol(p Protocol) (Adapter, error) {
	adapter, ok := r[p]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for protocol %q", p)
	}
	return adapter, nil
}
