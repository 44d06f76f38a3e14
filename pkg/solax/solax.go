package solax

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/common"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/log"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
)

const (
	realtimeInfoOperation = "getRealtimeInfo"
	inverterInfoOperation = "getInverterInfo"

	defaultErrorMessage = "Solax API reported an error"
)

// APIError is returned for every failure talking to the Solax API except
// malformed JSON, which is returned as the decoder's error.
type APIError struct {
	// StatusCode is set when the API answered with a non-2xx status.
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Client talks to the Solax Cloud API.
type Client struct {
	client common.Doer
	config types.SolaxConfig
}

// NewClient returns a Client for the given configuration. If doer is nil a
// default HTTP client using the configured timeout is used.
func NewClient(cfg types.SolaxConfig, doer common.Doer) *Client {
	if doer == nil {
		doer = common.HTTPClient(cfg.TimeoutDuration())
	}
	return &Client{
		client: doer,
		config: cfg,
	}
}

// RequestParams returns the query parameters for the configured API version.
func RequestParams(cfg types.SolaxConfig) url.Values {
	params := url.Values{}
	params.Set("sn", cfg.SerialNumber)
	if cfg.APIVersion == types.APIVersionV1 {
		params.Set("tokenId", cfg.APIKey)
		if cfg.SiteID != "" {
			params.Set("plantId", cfg.SiteID)
		}
	} else {
		params.Set("accessToken", cfg.APIKey)
		if cfg.SiteID != "" {
			params.Set("uid", cfg.SiteID)
		}
	}
	return params
}

// GetRealtimeData fetches the latest realtime metrics.
func (c *Client) GetRealtimeData(ctx context.Context) (types.RawMetrics, error) {
	return c.request(ctx, realtimeInfoOperation)
}

// GetInverterInfo fetches static inverter information. Not every account is
// allowed to call it.
func (c *Client) GetInverterInfo(ctx context.Context) (types.RawMetrics, error) {
	return c.request(ctx, inverterInfoOperation)
}

func (c *Client) newGetRequest(ctx context.Context, operation string) (*http.Request, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, err
	}
	version := strings.Trim(c.config.APIVersion, "/")
	u.Path, err = url.JoinPath(u.Path, "api", version, operation)
	if err != nil {
		return nil, err
	}
	u.RawQuery = RequestParams(c.config).Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) request(ctx context.Context, operation string) (types.RawMetrics, error) {
	req, err := c.newGetRequest(ctx, operation)
	if err != nil {
		return types.RawMetrics{}, err
	}

	log.Ctx(ctx).DebugContext(ctx, "requesting solax api", slog.String("operation", operation))
	resp, err := c.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "could not reach solax api", slog.Any("error", err))
		return types.RawMetrics{}, &APIError{Message: "could not reach Solax API", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Ctx(ctx).ErrorContext(
			ctx,
			"solax api http error",
			slog.Int("status", resp.StatusCode),
			slog.String("body", common.ReadErrorBody(resp)),
		)
		return types.RawMetrics{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP error %d from Solax API", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.RawMetrics{}, &APIError{Message: "failed to read Solax API response", Err: err}
	}

	raw, err := unwrapEnvelope(body)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "solax api error", slog.Any("error", err), slog.String("body", string(body)))
		return types.RawMetrics{}, err
	}
	return raw, nil
}

// unwrapEnvelope extracts the payload from the Solax response wrapper.
func unwrapEnvelope(body []byte) (types.RawMetrics, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return types.RawMetrics{}, fmt.Errorf("failed to decode solax response: %w", err)
	}
	if _, ok := payload.(map[string]any); !ok {
		return types.RawMetrics{}, &APIError{Message: "Unexpected response format from Solax API"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return types.RawMetrics{}, fmt.Errorf("failed to decode solax response: %w", err)
	}

	if flag, ok := fields["success"]; ok && isFalsy(flag) {
		msg := defaultErrorMessage
		if exc, ok := fields["exception"]; ok {
			if s := exceptionText(exc); s != "" {
				msg = s
			}
		}
		return types.RawMetrics{}, &APIError{Message: msg}
	}

	for _, name := range []string{"result", "data"} {
		if inner, ok := fields[name]; ok && isObject(inner) {
			var raw types.RawMetrics
			if err := json.Unmarshal(inner, &raw); err != nil {
				return types.RawMetrics{}, fmt.Errorf("failed to decode solax %s: %w", name, err)
			}
			return raw, nil
		}
	}

	var raw types.RawMetrics
	if err := json.Unmarshal(body, &raw); err != nil {
		return types.RawMetrics{}, fmt.Errorf("failed to decode solax response: %w", err)
	}
	return raw, nil
}

// isFalsy matches false, 0, "false" and "0".
func isFalsy(raw json.RawMessage) bool {
	var v types.Value
	if err := v.UnmarshalJSON(raw); err != nil {
		return false
	}
	if b, ok := v.Bool(); ok {
		return !b
	}
	if f, ok := v.Float(); ok {
		return f == 0
	}
	if s, ok := v.Text(); ok {
		return s == "false" || s == "0"
	}
	return false
}

func exceptionText(raw json.RawMessage) string {
	var v types.Value
	if err := v.UnmarshalJSON(raw); err != nil || v.IsNull() {
		return ""
	}
	if s, ok := v.Text(); ok {
		return s
	}
	if b, ok := v.Bool(); ok && !b {
		return ""
	}
	return v.String()
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
