package adapters

import (
	"context"
	"encoding/json"
	"fmt"
)

// New creates an adapter based on kind and a generic configuration map.
// This is the central extension point for adding new history sources.
//
// Supported kinds and their configuration keys:
//   - "file": path
//   - "http": url, method, body, headers (JSON), templateVars (JSON),
//     timestampPath, labelPath, timestampFormat
//   - "prometheus", "victoriametrics": url, query
//   - "postgres": dsn, table
//
// resource is the plug or slot being forecast; adapters that query shared
// backends use it to select rows.
func New(ctx context.Context, kind string, config map[string]string, resource string) (Adapter, error) {
	switch kind {
	case "file":
		return newFile(config)
	case "http":
		return newHTTP(config, resource)
	case "prometheus":
		return newPrometheus(config, "prometheus", "http://localhost:9090")
	case "victoriametrics":
		return newPrometheus(config, "victoriametrics", "http://localhost:8428")
	case "postgres":
		return newPostgres(ctx, config, resource)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be file, http, prometheus, victoriametrics, or postgres)", kind)
	}
}

func newFile(config map[string]string) (Adapter, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("file adapter requires 'path' config")
	}
	return &FileAdapter{Path: path}, nil
}

func newPrometheus(config map[string]string, kind, defaultURL string) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("%s adapter requires 'query' config", kind)
	}

	url := config["url"]
	if url == "" {
		url = defaultURL
	}

	return &PrometheusAdapter{
		ServerURL: url,
		Query:     query,
		Kind:      kind,
	}, nil
}

func newHTTP(config map[string]string, resource string) (Adapter, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http adapter requires 'url' config")
	}

	timestampPath := config["timestampPath"]
	labelPath := config["labelPath"]
	if timestampPath == "" || labelPath == "" {
		return nil, fmt.Errorf("http adapter requires 'timestampPath' and 'labelPath' config")
	}

	method := config["method"]
	if method == "" {
		method = "GET"
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	adapter := &HTTPAdapter{
		URL:             url,
		Resource:        resource,
		Method:          method,
		Headers:         headers,
		Body:            config["body"],
		TimestampPath:   timestampPath,
		LabelPath:       labelPath,
		TimestampFormat: config["timestampFormat"],
		TemplateVars:    templateVars,
	}
	if err := adapter.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return adapter, nil
}

func newPostgres(ctx context.Context, config map[string]string, resource string) (Adapter, error) {
	if resource == "" {
		return nil, fmt.Errorf("postgres adapter requires a resource")
	}
	return NewPostgresAdapter(ctx, config["dsn"], config["table"], resource)
}
