// weather is the example HTTP-backed adapter named in SPEC_FULL.md's
// config section: a typed input struct in the teacher's style
// (tools/bash.go, tools/read.go) hitting a configurable endpoint, with its
// own result cached by the shared tool-result cache rather than a private
// TTL cache (spec.md marks it cacheable).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type weatherInput struct {
	Location string `json:"location"`
	Units    string `json:"units"`
	Lang     string `json:"lang"`
}

// WeatherConfig configures the weather tool's HTTP adapter.
type WeatherConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// WithWeatherConfig attaches the HTTP adapter configuration for the
// weather tool.
func (r *Registry) WithWeatherConfig(cfg WeatherConfig) *Registry {
	r.weatherConfig = cfg
	return r
}

func (r *Registry) weatherTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[weatherInput](input)
	if err != nil {
		return "", err
	}
	if params.Location == "" {
		return "", newToolError(ErrInvalidArgs, "location is required")
	}
	if r.weatherConfig.BaseURL == "" {
		return "", newToolError(ErrNoTool, "weather tool not configured (missing weather.base_url)")
	}

	units := params.Units
	if units == "" {
		units = "metric"
	}
	lang := params.Lang
	if lang == "" {
		lang = "en"
	}

	q := url.Values{}
	q.Set("q", params.Location)
	q.Set("units", units)
	q.Set("lang", lang)
	if r.weatherConfig.APIKey != "" {
		q.Set("appid", r.weatherConfig.APIKey)
	}

	timeout := r.weatherConfig.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, r.weatherConfig.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", newToolError(ErrTool, "build request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return "", newToolError(ErrTimeout, "weather request timed out: %v", err)
		}
		return "", newToolError(ErrTool, "weather request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", newToolError(ErrTool, "read weather response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", newToolError(ErrTool, "weather API returned %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Sprintf("Weather for %s: %s", params.Location, string(body)), nil
}
