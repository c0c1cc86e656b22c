package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Protocol string

const (
	ProtocolA2A    Protocol = "a2a"
	ProtocolMCP    Protocol = "mcp"
	ProtocolREST   Protocol = "rest"
	ProtocolOpenAI Protocol = "openai"
)

const (
	MinTimeoutSec = 5
	MaxTimeoutSec = 300
)

// Spec describes the remote agent under evaluation. It is built once per
// batch and read-only afterwards, so concurrent evaluation tasks may share it.
type Spec struct {
	Name       string         `json:"name" yaml:"name"`
	URL        string         `json:"url" yaml:"url"`
	Protocol   Protocol       `json:"protocol" yaml:"protocol"`
	A2A        *A2AConfig     `json:"a2a,omitempty" yaml:"a2a,omitempty"`
	MCP        *MCPConfig     `json:"mcp,omitempty" yaml:"mcp,omitempty"`
	REST       *RESTConfig    `json:"rest,omitempty" yaml:"rest,omitempty"`
	OpenAI     *OpenAIConfig  `json:"openai,omitempty" yaml:"openai,omitempty"`
	Auth       Auth           `json:"auth" yaml:"auth"`
	TLS        TLSConfig      `json:"tls" yaml:"tls"`
	TimeoutSec int            `json:"timeout_sec" yaml:"timeout_sec"`
}

type A2AConfig struct {
	Method string `json:"method" yaml:"method"`
	Path   string `json:"path" yaml:"path"`
}

type MCPConfig struct {
	ToolName string `json:"tool_name" yaml:"tool_name"`
	Path     string `json:"path" yaml:"path"`
}

type RESTConfig struct {
	Path         string `json:"path" yaml:"path"`
	Method       string `json:"method" yaml:"method"`
	BodyTemplate string `json:"body_template" yaml:"body_template"`
	ResponsePath string `json:"response_path" yaml:"response_path"`
}

type OpenAIConfig struct {
	Model           string   `json:"model" yaml:"model"`
	Path            string   `json:"path" yaml:"path"`
	SystemPrompt    string   `json:"system_prompt" yaml:"system_prompt"`
	MaxTokens       int      `json:"max_tokens" yaml:"max_tokens"`
	Temperature     *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort" yaml:"reasoning_effort"`
}

type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "api_key"
	AuthOAuth  AuthType = "oauth_client_credentials"
)

// Auth is a tagged union: Type selects which sub-config is consulted.
type Auth struct {
	Type   AuthType     `json:"type" yaml:"type"`
	Bearer *BearerAuth  `json:"bearer,omitempty" yaml:"bearer,omitempty"`
	APIKey *APIKeyAuth  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	OAuth  *OAuthConfig `json:"oauth,omitempty" yaml:"oauth,omitempty"`
}

type BearerAuth struct {
	Token string `json:"token" yaml:"token"`
}

type APIKeyAuth struct {
	Key    string `json:"key" yaml:"key"`
	Header string `json:"header" yaml:"header"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

type OAuthConfig struct {
	TokenURL     string `json:"token_url" yaml:"token_url"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	Scope        string `json:"scope" yaml:"scope"`
}

type TLSConfig struct {
	Verify         *bool  `json:"verify,omitempty" yaml:"verify,omitempty"`
	CACertPath     string `json:"ca_cert_path" yaml:"ca_cert_path"`
	ClientCertPath string `json:"client_cert_path" yaml:"client_cert_path"`
	ClientKeyPath  string `json:"client_key_path" yaml:"client_key_path"`
}

func (t TLSConfig) VerifyEnabled() bool {
	if t.Verify == nil {
		return true
	}
	return *t.Verify
}

// Usage carries token counts reported by the remote agent, when available.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u *Usage) Add(other *Usage) {
	if u == nil || other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Card is discovered agent metadata. Enrichment only; a nil card never
// affects scoring.
type Card struct {
	Name     string   `json:"name,omitempty"`
	Version  string   `json:"version,omitempty"`
	Provider string   `json:"provider,omitempty"`
	Skills   []string `json:"skills,omitempty"`
	DID      string   `json:"did,omitempty"`
}

func (s *Spec) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("agent url is required")
	}
	switch s.Protocol {
	case ProtocolA2A, ProtocolMCP, ProtocolREST, ProtocolOpenAI:
	default:
		return fmt.Errorf("unsupported protocol %q", s.Protocol)
	}
	if s.Protocol == ProtocolOpenAI && (s.OpenAI == nil || strings.TrimSpace(s.OpenAI.Model) == "") {
		return fmt.Errorf("openai protocol requires a model name")
	}
	if s.Protocol == ProtocolREST && (s.REST == nil || strings.TrimSpace(s.REST.Path) == "") {
		return fmt.Errorf("rest protocol requires a path template")
	}
	switch s.Auth.Type {
	case "", AuthNone:
	case AuthBearer:
		if s.Auth.Bearer == nil || strings.TrimSpace(s.Auth.Bearer.Token) == "" {
			return fmt.Errorf("bearer auth requires a token")
		}
	case AuthAPIKey:
		if s.Auth.APIKey == nil || strings.TrimSpace(s.Auth.APIKey.Key) == "" {
			return fmt.Errorf("api_key auth requires a key")
		}
	case AuthOAuth:
		if s.Auth.OAuth == nil || strings.TrimSpace(s.Auth.OAuth.TokenURL) == "" {
			return fmt.Errorf("oauth auth requires a token_url")
		}
	default:
		return fmt.Errorf("unsupported auth type %q", s.Auth.Type)
	}
	return nil
}

// Normalize fills defaults and clamps the timeout to the supported window.
func (s *Spec) Normalize() {
	s.URL = strings.TrimRight(strings.TrimSpace(s.URL), "/")
	if s.TimeoutSec < MinTimeoutSec {
		s.TimeoutSec = 60
	}
	if s.TimeoutSec > MaxTimeoutSec {
		s.TimeoutSec = MaxTimeoutSec
	}
	if s.Auth.Type == "" {
		s.Auth.Type = AuthNone
	}
	switch s.Protocol {
	case ProtocolA2A:
		if s.A2A == nil {
			s.A2A = &A2AConfig{}
		}
		if strings.TrimSpace(s.A2A.Method) == "" {
			s.A2A.Method = "message/send"
		}
		if strings.TrimSpace(s.A2A.Path) == "" {
			s.A2A.Path = "/"
		}
	case ProtocolMCP:
		if s.MCP == nil {
			s.MCP = &MCPConfig{}
		}
		if strings.TrimSpace(s.MCP.ToolName) == "" {
			s.MCP.ToolName = "evaluate_scenario"
		}
		if strings.TrimSpace(s.MCP.Path) == "" {
			s.MCP.Path = "/mcp"
		}
	case ProtocolREST:
		if s.REST != nil && strings.TrimSpace(s.REST.Method) == "" {
			s.REST.Method = "POST"
		}
	case ProtocolOpenAI:
		if s.OpenAI == nil {
			s.OpenAI = &OpenAIConfig{}
		}
		if strings.TrimSpace(s.OpenAI.Path) == "" {
			s.OpenAI.Path = "/v1/chat/completions"
		}
		if s.OpenAI.MaxTokens <= 0 {
			s.OpenAI.MaxTokens = 512
		}
	}
	if s.Auth.Type == AuthAPIKey && s.Auth.APIKey != nil && strings.TrimSpace(s.Auth.APIKey.Header) == "" {
		s.Auth.APIKey.Header = "X-API-Key"
	}
}

// LoadSpec reads an agent spec from a YAML file, normalizes and validates it.
func LoadSpec(path string) (Spec, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Spec{}, fmt.Errorf("read agent spec: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, fmt.Errorf("parse agent spec: %w", err)
	}
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}
