package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const sendPath = "/sms/2/text/advanced"

// Client talks the gateway's bulk send HTTP protocol.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		username:   username,
		password:   password,
	}
}

type sendRequest struct {
	BulkID   string           `json:"bulkId"`
	Messages []map[string]any `json:"messages"`
}

// SendBatch submits one batch send request and decodes the acknowledgement.
// Non-2xx responses and network failures surface as *Error.
func (c *Client) SendBatch(ctx context.Context, batch Batch) (*RawResponse, error) {
	body, err := json.Marshal(sendRequest{
		BulkID:   batch.BulkID,
		Messages: []map[string]any{buildMessage(batch)},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Message:    string(data),
		}
	}

	var raw RawResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &raw, nil
}

// buildMessage assembles the per-batch message object. Free-form send options
// are merged in first so that the protocol fields always win.
func buildMessage(batch Batch) map[string]any {
	msg := make(map[string]any, len(batch.Options)+7)
	for k, v := range batch.Options {
		msg[k] = v
	}

	msg["from"] = batch.From
	msg["text"] = batch.Text
	msg["intermediateReport"] = batch.IntermediateReport
	msg["destinations"] = batch.Destinations
	if batch.NotifyURL != "" {
		msg["notifyUrl"] = batch.NotifyURL
		msg["notifyContentType"] = batch.NotifyContentType
	}
	if batch.CallbackData != "" {
		msg["callbackData"] = batch.CallbackData
	}
	return msg
}
