package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/plugcast/pkg/series"
)

// HTTPAdapter calls a REST endpoint and extracts occupancy history from the
// JSON response using gjson paths.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Template-based request body and headers with variables:
//     {{.Resource}}, {{.WindowSeconds}}, {{.Start}}, {{.End}}, {{.StartRFC3339}}, {{.EndRFC3339}}
//   - JSON path extraction for timestamps and labels using gjson syntax
//   - Timestamps as "2006-01-02 15:04:05" strings, RFC3339, Unix seconds or Unix milliseconds
//   - Labels as numbers (0/1), numeric strings or booleans
//
// Example configuration for a charge point management API:
//
//	adapter := &HTTPAdapter{
//	    URL:           "https://cpms.example.com/api/plugs/{{.Resource}}/history",
//	    Resource:      "plug-17",
//	    TimestampPath: "sessions.#.ts",
//	    LabelPath:     "sessions.#.occupied",
//	}
type HTTPAdapter struct {
	// URL is the endpoint to call (required). It may reference template variables.
	URL string

	// Resource identifies the plug or slot; exposed to templates as {{.Resource}}.
	Resource string

	// Method is the HTTP method. Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers; values may use template variables.
	Headers map[string]string

	// Body is the request body template (for POST/PUT).
	Body string

	// TimestampPath is the gjson path to the timestamps, e.g. "data.#.ts".
	TimestampPath string

	// LabelPath is the gjson path to the labels. It must return as many
	// elements as TimestampPath.
	LabelPath string

	// TimestampFormat selects how timestamps are parsed:
	//   "layout"     - "2006-01-02 15:04:05" and the other history layouts (default)
	//   "rfc3339"    - RFC3339 strings
	//   "unix"       - Unix seconds (float or int)
	//   "unix_milli" - Unix milliseconds (float or int)
	TimestampFormat string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom variables available in URL, Body and Headers.
	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Collect implements Adapter. windowSeconds in templates is 0 when window is 0.
func (h *HTTPAdapter) Collect(ctx context.Context, window time.Duration) ([]series.Observation, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-window)

	templateData := map[string]any{
		"Resource":      h.Resource,
		"WindowSeconds": int(window.Seconds()),
		"Start":         start.Unix(),
		"End":           now.Unix(),
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	url, err := renderTemplate(h.URL, templateData)
	if err != nil {
		return nil, fmt.Errorf("render url template: %w", err)
	}

	var bodyReader io.Reader
	if h.Body != "" {
		renderedBody, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(renderedBody)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return h.extract(respBody)
}

func (h *HTTPAdapter) extract(body []byte) ([]series.Observation, error) {
	timestamps := gjson.GetBytes(body, h.TimestampPath)
	labels := gjson.GetBytes(body, h.LabelPath)

	if !timestamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}
	if !labels.Exists() {
		return nil, fmt.Errorf("label path %q not found in response", h.LabelPath)
	}

	tsArray := timestamps.Array()
	labelArray := labels.Array()

	if len(labelArray) != len(tsArray) {
		return nil, fmt.Errorf("label count (%d) != timestamp count (%d)", len(labelArray), len(tsArray))
	}

	obs := make([]series.Observation, 0, len(tsArray))
	for i := range tsArray {
		ts, err := h.parseTimestamp(tsArray[i])
		if err != nil {
			return nil, &series.MalformedInputError{
				Field:  "timestamp",
				Value:  tsArray[i].String(),
				Reason: fmt.Sprintf("element %d: %v", i, err),
			}
		}

		label, err := parseLabel(labelArray[i])
		if err != nil {
			return nil, &series.MalformedInputError{
				Field:  "label",
				Value:  labelArray[i].String(),
				Reason: fmt.Sprintf("element %d: %v", i, err),
			}
		}

		obs = append(obs, series.Observation{Timestamp: ts, Label: label})
	}

	return obs, nil
}

func (h *HTTPAdapter) parseTimestamp(value gjson.Result) (time.Time, error) {
	switch h.TimestampFormat {
	case "", "layout":
		return series.ParseTimestamp(value.String())
	case "rfc3339":
		return time.Parse(time.RFC3339, value.String())
	case "unix":
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	case "unix_milli":
		return time.UnixMilli(int64(value.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

func parseLabel(value gjson.Result) (int, error) {
	switch value.Type {
	case gjson.True:
		return 1, nil
	case gjson.False:
		return 0, nil
	case gjson.Number:
		switch value.Float() {
		case 0:
			return 0, nil
		case 1:
			return 1, nil
		}
		return 0, errors.New("must be 0 or 1")
	case gjson.String:
		return series.ParseLabel(value.String())
	default:
		return 0, fmt.Errorf("unexpected JSON type %s", value.Type)
	}
}

// renderTemplate renders a text template with the given data
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// ValidateConfig checks if the adapter configuration is valid
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}
	if h.LabelPath == "" {
		return errors.New("labelPath is required")
	}

	switch h.TimestampFormat {
	case "", "layout", "rfc3339", "unix", "unix_milli":
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be layout, rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}

	return nil
}
