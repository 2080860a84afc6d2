package recording

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

// HTTPClient talks to the vendor's cloud recording REST API. Every call is
// synchronous; retry decisions belong to the caller.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) ports.RecordingBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type acquireRequest struct {
	Channel string `json:"channel"`
	UID     uint32 `json:"uid"`
}

type acquireResponse struct {
	ResourceID string `json:"resourceId"`
}

type startRequest struct {
	Channel    string `json:"channel"`
	UID        uint32 `json:"uid"`
	ResourceID string `json:"resourceId"`
}

type startResponse struct {
	SessionID string `json:"sessionId"`
}

type stopRequest struct {
	Channel    string `json:"channel"`
	UID        uint32 `json:"uid"`
	ResourceID string `json:"resourceId"`
	SessionID  string `json:"sessionId"`
}

type stopResponse struct {
	FileList []struct {
		FileName   string `json:"fileName"`
		TrackType  string `json:"trackType"`
		SliceStart int64  `json:"sliceStartTime"`
	} `json:"fileList"`
}

func (c *HTTPClient) AcquireResource(ctx context.Context, channelName string, uid uint32) (string, error) {
	var resp acquireResponse
	err := c.post(ctx, "/v1/recording/acquire", acquireRequest{Channel: channelName, UID: uid}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ResourceID, nil
}

func (c *HTTPClient) Start(ctx context.Context, channelName string, uid uint32, resourceID string) (string, error) {
	var resp startResponse
	err := c.post(ctx, "/v1/recording/start", startRequest{Channel: channelName, UID: uid, ResourceID: resourceID}, &resp)
	if err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

func (c *HTTPClient) Stop(ctx context.Context, channelName string, uid uint32, resourceID, sessionID string) ([]domain.RecordingFile, error) {
	var resp stopResponse
	err := c.post(ctx, "/v1/recording/stop", stopRequest{
		Channel:    channelName,
		UID:        uid,
		ResourceID: resourceID,
		SessionID:  sessionID,
	}, &resp)
	if err != nil {
		return nil, err
	}

	files := make([]domain.RecordingFile, 0, len(resp.FileList))
	for _, f := range resp.FileList {
		files = append(files, domain.RecordingFile{
			FileName:   f.FileName,
			TrackType:  f.TrackType,
			SliceStart: f.SliceStart,
		})
	}
	return files, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("recording backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("recording backend returned status %d for %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
