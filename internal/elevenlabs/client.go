// Package elevenlabs is a client for the ElevenLabs text-to-speech API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/storytimeapp/storytime-functions/internal/models"
)

const (
	defaultHost    = "https://api.elevenlabs.io"
	defaultModelID = "eleven_multilingual_v2"
)

// Config holds configuration for the ElevenLabs client.
type Config struct {
	APIKey     string
	Host       string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
	Attempts   uint          // Retry attempts for transient failures
	RetryDelay time.Duration // Base delay between retries
	Timeout    time.Duration // HTTP timeout
}

// Client calls the ElevenLabs voices and text-to-speech endpoints.
// Transient failures are retried; 4xx responses are not.
type Client struct {
	apiKey     string
	host       string
	httpClient *http.Client
	attempts   uint
	retryDelay time.Duration
}

type voicesResponse struct {
	Voices []models.Voice `json:"voices"`
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// NewClient creates a new ElevenLabs client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: API key must be provided")
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		host:       cfg.Host,
		httpClient: httpClient,
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Voices lists the voices available to the account.
func (c *Client) Voices(ctx context.Context) ([]models.Voice, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/voices", "", nil)
	if err != nil {
		return nil, err
	}

	var result voicesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("elevenlabs: failed to decode voices response: %w", err)
	}
	return result.Voices, nil
}

// Synthesize renders text with the given voice and returns MP3 bytes.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	payload, err := json.Marshal(synthesizeRequest{Text: text, ModelID: defaultModelID})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: failed to marshal request: %w", err)
	}

	path := "/v1/text-to-speech/" + url.PathEscape(voiceID)
	return c.do(ctx, http.MethodPost, path, "audio/mpeg", payload)
}

// do issues one request with retry. Client errors (4xx) abort immediately
// since repeating them cannot succeed.
func (c *Client) do(ctx context.Context, method, path, accept string, payload []byte) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			var reqBody io.Reader
			if payload != nil {
				reqBody = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, c.host+path, reqBody)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("xi-api-key", c.apiKey)
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			if accept != "" {
				req.Header.Set("Accept", accept)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 {
				errBody, _ := io.ReadAll(resp.Body)
				err := fmt.Errorf("elevenlabs: API error (%d): %s", resp.StatusCode, string(errBody))
				if resp.StatusCode < 500 {
					return retry.Unrecoverable(err)
				}
				return err
			}

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("elevenlabs: failed to read response body: %w", err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}
