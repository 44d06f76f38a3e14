package cantao

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/common"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/log"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
)

const metricsPath = "api/v1/metrics"

// PushError is returned when metrics could not be delivered to CANTAO.
type PushError struct {
	// StatusCode is set when CANTAO rejected the request.
	StatusCode int
	Message    string
	Err        error
}

func (e *PushError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PushError) Unwrap() error {
	return e.Err
}

// Client pushes normalized metrics to the CANTAO ingestion API.
type Client struct {
	client common.Doer
	config types.CantaoConfig
}

// NewClient returns a Client. If doer is nil a default HTTP client with the
// given timeout is used.
func NewClient(cfg types.CantaoConfig, doer common.Doer, timeout time.Duration) *Client {
	if doer == nil {
		doer = common.HTTPClient(timeout)
	}
	return &Client{
		client: doer,
		config: cfg,
	}
}

type pushRequest struct {
	Metrics types.Metrics `json:"metrics"`
}

func (c *Client) newPostJSONRequest(ctx context.Context, data any) (*http.Request, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, metricsPath)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	return req, nil
}

// PushMetrics posts metrics to CANTAO. It fails without any network call when
// push is not configured.
func (c *Client) PushMetrics(ctx context.Context, metrics types.Metrics) error {
	if !c.config.IsPushEnabled() {
		return &PushError{Message: "CANTAO push is not configured. Please set base_url and api_token."}
	}

	if metrics == nil {
		metrics = types.Metrics{}
	}
	req, err := c.newPostJSONRequest(ctx, pushRequest{Metrics: metrics})
	if err != nil {
		return &PushError{Message: "failed to build CANTAO request", Err: err}
	}

	log.Ctx(ctx).DebugContext(ctx, "pushing metrics to cantao", slog.Int("count", len(metrics)))
	resp, err := c.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "connection error while pushing to cantao", slog.Any("error", err))
		return &PushError{Message: "could not reach CANTAO endpoint", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Ctx(ctx).ErrorContext(
			ctx,
			"failed to push metrics to cantao",
			slog.Int("status", resp.StatusCode),
			slog.String("body", common.ReadErrorBody(resp)),
		)
		return &PushError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("CANTAO responded with %d", resp.StatusCode),
		}
	}
	return nil
}
