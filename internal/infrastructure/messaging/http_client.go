package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
)

// HTTPClient delivers chat messages through the vendor's messaging REST
// API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) ports.MessagingBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	Channel  string `json:"channel"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

type sendMessageResponse struct {
	MessageID string `json:"messageId"`
}

func (c *HTTPClient) SendChannelMessage(ctx context.Context, channelName string, senderID domain.UserID, text string) (string, error) {
	payload, err := json.Marshal(sendMessageRequest{
		Channel:  channelName,
		SenderID: string(senderID),
		Text:     text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("messaging backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("messaging backend returned status %d", resp.StatusCode)
	}

	var out sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.MessageID, nil
}
