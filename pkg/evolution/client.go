package evolution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiKeyHeader = "apikey"

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient returns a Client against one provider deployment. The timeout
// bounds every call including body reads.
func NewClient(baseURL, apiKey string, timeout time.Duration) Client {
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchProfilePictureURL asks the provider for the avatar URL of a number or
// group address. An empty URL with nil error means the peer has no avatar.
func (c *httpClient) FetchProfilePictureURL(ctx context.Context, instance, number string) (string, error) {
	endpoint := fmt.Sprintf("/chat/fetchProfilePictureUrl/%s", url.PathEscape(instance))

	var result profilePictureResponse
	if err := c.post(ctx, endpoint, profilePictureRequest{Number: number}, &result); err != nil {
		return "", err
	}
	return result.ProfilePictureURL, nil
}

// FetchMediaBase64 downloads the media content of a message through the
// provider's base64 endpoint and decodes it.
func (c *httpClient) FetchMediaBase64(ctx context.Context, instance, messageID string) (*MediaPayload, error) {
	endpoint := fmt.Sprintf("/chat/getBase64FromMediaMessage/%s", url.PathEscape(instance))

	payload := mediaBase64Request{
		Message: mediaBase64Message{Key: mediaBase64Key{ID: messageID}},
	}

	var result mediaBase64Response
	if err := c.post(ctx, endpoint, payload, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("provider media fetch failed: %s", result.Error)
	}
	if result.Base64 == "" {
		return nil, fmt.Errorf("provider returned empty media payload for message %s", messageID)
	}

	data, err := base64.StdEncoding.DecodeString(result.Base64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode media payload: %w", err)
	}

	return &MediaPayload{
		Data:     data,
		MimeType: result.MimeType,
		FileName: result.FileName,
	}, nil
}

func (c *httpClient) post(ctx context.Context, endpoint string, payload, result interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("request to %s failed with status %d", endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
