package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/router-for-me/ChannelHub/internal/config"
)

const (
	defaultPageSize       = 100
	defaultRequestTimeout = 15 * time.Second
)

// ErrNotConfigured indicates the upstream endpoint is missing from config.
var ErrNotConfigured = errors.New("upstream: endpoint not configured")

// StatusError carries the HTTP status of a failed upstream call so batch
// records can report it.
type StatusError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("upstream: status %d: %s", e.Code, e.Message)
}

// HTTPStatus extracts the HTTP status from an error chain, or 0.
func HTTPStatus(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return 0
}

// Client calls the channel-management API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient constructs an upstream client from resolved configuration.
// Returns ErrNotConfigured when the endpoint is absent, so callers can
// distinguish configuration errors from transport failures.
func NewClient(cfg config.UpstreamConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	token := strings.TrimSpace(cfg.Token)
	if baseURL == "" || token == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// envelope is the common upstream response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// channelPayload is the upstream channel wire shape; models arrive as a
// comma-separated string.
type channelPayload struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Status    int     `json:"status"`
	Priority  int     `json:"priority"`
	Weight    int     `json:"weight"`
	UsedQuota float64 `json:"used_quota"`
	Models    string  `json:"models"`
}

// ListChannels fetches every configured channel, following pagination.
func (c *Client) ListChannels(ctx context.Context) (ChannelList, error) {
	if c == nil {
		return ChannelList{}, ErrNotConfigured
	}

	result := ChannelList{TypeCounts: map[string]int{}}
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/api/channel/?p=%d&page_size=%d", c.baseURL, page, defaultPageSize)
		data, errGet := c.get(ctx, url)
		if errGet != nil {
			return ChannelList{}, fmt.Errorf("upstream: list channels: %w", errGet)
		}

		var pagePayload struct {
			Items      []channelPayload `json:"items"`
			Total      int              `json:"total"`
			TypeCounts map[string]int   `json:"type_counts"`
		}
		if errDecode := json.Unmarshal(data, &pagePayload); errDecode != nil {
			return ChannelList{}, fmt.Errorf("upstream: decode channel list: %w", errDecode)
		}

		for _, item := range pagePayload.Items {
			result.Items = append(result.Items, Channel{
				ID:        item.ID,
				Name:      item.Name,
				Status:    ChannelStatus(item.Status),
				Priority:  item.Priority,
				Weight:    item.Weight,
				UsedQuota: item.UsedQuota,
				Models:    SplitModels(item.Models),
			})
		}
		result.Total = pagePayload.Total
		if len(pagePayload.TypeCounts) > 0 {
			result.TypeCounts = pagePayload.TypeCounts
		}

		if len(pagePayload.Items) < defaultPageSize {
			break
		}
	}
	return result, nil
}

// FetchChannelModels fetches the live model list for one channel.
func (c *Client) FetchChannelModels(ctx context.Context, channelID int64) ([]string, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}

	url := fmt.Sprintf("%s/api/channel/fetch_models/%d", c.baseURL, channelID)
	data, errGet := c.get(ctx, url)
	if errGet != nil {
		return nil, fmt.Errorf("upstream: fetch models for channel %d: %w", channelID, errGet)
	}

	var names []string
	if errDecode := json.Unmarshal(data, &names); errDecode != nil {
		return nil, fmt.Errorf("upstream: decode model list for channel %d: %w", channelID, errDecode)
	}

	seen := make(map[string]struct{}, len(names))
	models := make([]string, 0, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		models = append(models, trimmed)
	}
	return models, nil
}

// UpdateChannel pushes a partial channel update (used by the apply step
// that rewrites redirect configs; not called during synchronization).
func (c *Client) UpdateChannel(ctx context.Context, payload map[string]any) error {
	if c == nil {
		return ErrNotConfigured
	}
	if payload == nil {
		return fmt.Errorf("upstream: nil update payload")
	}

	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return fmt.Errorf("upstream: marshal channel update: %w", errMarshal)
	}

	url := c.baseURL + "/api/channel/"
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPut, url, strings.NewReader(string(body)))
	if errReq != nil {
		return fmt.Errorf("upstream: build update request: %w", errReq)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := c.client.Do(req)
	if errDo != nil {
		return fmt.Errorf("upstream: update channel: %w", errDo)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if _, errEnvelope := readEnvelope(resp); errEnvelope != nil {
		return fmt.Errorf("upstream: update channel: %w", errEnvelope)
	}
	return nil
}

// get performs an authorized GET and unwraps the response envelope.
func (c *Client) get(ctx context.Context, url string) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if errReq != nil {
		return nil, fmt.Errorf("build request: %w", errReq)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, errDo := c.client.Do(req)
	if errDo != nil {
		return nil, errDo
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return readEnvelope(resp)
}

func readEnvelope(resp *http.Response) (json.RawMessage, error) {
	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, fmt.Errorf("read response: %w", errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var wrapped envelope
	if errDecode := json.Unmarshal(body, &wrapped); errDecode != nil {
		return nil, fmt.Errorf("decode envelope: %w", errDecode)
	}
	if !wrapped.Success {
		return nil, &StatusError{Code: resp.StatusCode, Message: wrapped.Message}
	}
	return wrapped.Data, nil
}
