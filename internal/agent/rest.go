package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RESTAdapter drives an arbitrary HTTP endpoint described by templates: the
// path and body may contain {{scenario_id}}, {{scenario}} and {{question}}
// placeholders, and the answer is pulled out of the JSON response with a
// dotted-path expression ($.a.b.c only, no wildcards or filters).
type RESTAdapter struct{}

func (RESTAdapter) Name() string { return "rest" }

func (RESTAdapter) SendScenario(ctx context.Context, client *Client, spec Spec, req ScenarioRequest) (Reply, error) {
	cfg := spec.REST
	if cfg == nil || strings.TrimSpace(cfg.Path) == "" {
		return Reply{}, fmt.Errorf("rest adapter requires a path template")
	}
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	path := substitutePlaceholders(cfg.Path, req, url.PathEscape)
	var payload []byte
	if strings.TrimSpace(cfg.BodyTemplate) != "" {
		payload = []byte(substitutePlaceholders(cfg.BodyTemplate, req, jsonEscapeString))
	}
	raw, err := client.Do(ctx, method, path, payload)
	if err != nil {
		return Reply{}, err
	}
	text, err := extractRESTText(raw.Body, cfg.ResponsePath)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text}, nil
}

// substitutePlaceholders fills the template, escaping each value for its
// destination (URL path segment or JSON string body).
func substitutePlaceholders(template string, req ScenarioRequest, escape func(string) string) string {
	pairs := map[string]string{
		"{{scenario_id}}": req.ScenarioID,
		"{{scenario}}":    req.Scenario,
		"{{question}}":    req.Question,
	}
	out := template
	for placeholder, value := range pairs {
		out = strings.ReplaceAll(out, placeholder, escape(value))
	}
	return out
}

func jsonEscapeString(s string) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return s
	}
	// Strip the surrounding quotes; templates supply their own.
	return string(encoded[1 : len(encoded)-1])
}

func extractRESTText(body []byte, responsePath string) (string, error) {
	path := strings.TrimSpace(responsePath)
	if path == "" {
		return extractRESTDefault(body)
	}
	value, err := lookupDottedPath(body, path)
	if err != nil {
		return "", err
	}
	return stringifyJSONValue(value), nil
}

// lookupDottedPath walks a $.a.b.c expression through nested JSON objects.
func lookupDottedPath(body []byte, path string) (any, error) {
	trimmed := strings.TrimPrefix(path, "$")
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" {
		var root any
		if err := json.Unmarshal(body, &root); err != nil {
			return nil, fmt.Errorf("decode rest response: %w", err)
		}
		return root, nil
	}
	var current any
	if err := json.Unmarshal(body, &current); err != nil {
		return nil, fmt.Errorf("decode rest response: %w", err)
	}
	for _, segment := range strings.Split(trimmed, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("response path %s: %q is not an object", path, segment)
		}
		next, ok := object[segment]
		if !ok {
			return nil, fmt.Errorf("response path %s: key %q not found", path, segment)
		}
		current = next
	}
	return current, nil
}

func extractRESTDefault(body []byte) (string, error) {
	var object map[string]any
	if err := json.Unmarshal(body, &object); err == nil {
		for _, key := range []string{"response", "answer", "text", "output", "result"} {
			if value, ok := object[key]; ok {
				if text := stringifyJSONValue(value); strings.TrimSpace(text) != "" {
					return text, nil
				}
			}
		}
	}
	var asString string
	if err := json.Unmarshal(body, &asString); err == nil {
		return asString, nil
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", fmt.Errorf("rest response body is empty")
	}
	return string(body), nil
}

func stringifyJSONValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

func (RESTAdapter) Discover(ctx context.Context, client *Client, spec Spec) (*Card, error) {
	return nil, nil
}
