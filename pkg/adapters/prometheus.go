package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/HatiCode/plugcast/pkg/series"
)

// PrometheusAdapter reads occupancy history from the Prometheus HTTP API, or
// any compatible API such as VictoriaMetrics. It issues a /api/v1/query_range
// call at the series interval and maps each sample to a label:
// occupied when the value is greater than zero.
//
// If multiple series are returned, a timestamp is occupied when any series
// reports occupancy, e.g. for `plug_occupied{station="s1"}` across connectors.
type PrometheusAdapter struct {
	// ServerURL is the base URL, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL/MetricsQL expression to evaluate.
	Query string
	// Kind names the backend in errors and logs. Defaults to "prometheus".
	Kind string
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (p *PrometheusAdapter) Name() string {
	if p.Kind != "" {
		return p.Kind
	}
	return "prometheus"
}

// Collect implements Adapter. A zero window queries the last 7 days, the
// longest range most Prometheus deployments retain at full resolution.
func (p *PrometheusAdapter) Collect(ctx context.Context, window time.Duration) ([]series.Observation, error) {
	if p.ServerURL == "" || p.Query == "" {
		return nil, fmt.Errorf("%s adapter: ServerURL and Query are required", p.Name())
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}

	step := int(series.Interval.Seconds())
	now := time.Now().UTC().Truncate(series.Interval)
	start := now.Add(-window)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(now.Unix(), 10))
	q.Set("step", strconv.Itoa(step))
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", p.Name(), resp.StatusCode)
	}

	var pr PrometheusRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.Name(), err)
	}
	if pr.Status != "success" {
		return nil, fmt.Errorf("%s status: %s", p.Name(), pr.Status)
	}

	return MergeOccupancy(pr.Data.Result)
}

// PrometheusRangeResponse represents the response from Prometheus (and compatible systems).
type PrometheusRangeResponse struct {
	Status string              `json:"status"`
	Data   PrometheusRangeData `json:"data"`
}

// PrometheusRangeData contains the result data from a range query.
type PrometheusRangeData struct {
	ResultType string                 `json:"resultType"`
	Result     []PrometheusRangeSerie `json:"result"`
}

// PrometheusRangeSerie represents a single time series in the result.
type PrometheusRangeSerie struct {
	Metric map[string]string `json:"metric"`
	// Values is an array of [ <unix_time_float>, "<value_string>" ]
	Values [][]any `json:"values"`
}

// MergeOccupancy folds every series into one observation per timestamp,
// sorted by time. A timestamp is occupied if any series has a value > 0.
func MergeOccupancy(result []PrometheusRangeSerie) ([]series.Observation, error) {
	if len(result) == 0 {
		return nil, errors.New("query returned no series")
	}

	acc := make(map[int64]int)
	for _, s := range result {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}

			tsSec, ok := pair[0].(float64)
			if !ok {
				return nil, fmt.Errorf("unexpected timestamp type %T", pair[0])
			}

			raw, ok := pair[1].(string)
			if !ok {
				return nil, fmt.Errorf("unexpected value type %T", pair[1])
			}
			val, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("parse value: %w", err)
			}

			label := 0
			if val > 0 {
				label = 1
			}
			ts := int64(tsSec)
			if cur, seen := acc[ts]; !seen || label > cur {
				acc[ts] = label
			}
		}
	}

	obs := make([]series.Observation, 0, len(acc))
	for ts, label := range acc {
		obs = append(obs, series.Observation{
			Timestamp: time.Unix(ts, 0).UTC(),
			Label:     label,
		})
	}
	sort.Slice(obs, func(i, j int) bool {
		return obs[i].Timestamp.Before(obs[j].Timestamp)
	})

	return obs, nil
}
