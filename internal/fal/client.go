// Package fal is a client for the Fal image-to-image generation API.
package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultHost   = "https://fal.run"
	modelEndpoint = "/fal-ai/flux-image-to-image"

	// Fixed image-to-image fidelity. Seeds are drawn fresh per call, so
	// regeneration produces variety rather than the same frame.
	defaultStrength = 0.6
	seedRange       = 100000
)

// Image is one generated image result: a base64-encoded payload plus its
// content type. Decoding is left to the caller.
type Image struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// Config holds configuration for the Fal client.
type Config struct {
	APIKey            string
	Host              string        // Optional (tests)
	HTTPClient        *http.Client  // Optional (tests)
	RequestsPerSecond float64       // Client-side pacing of generation calls
	Timeout           time.Duration // HTTP timeout
}

// Client calls the Fal image generation endpoint. Calls are paced by a
// client-side rate limiter so a multi-page run does not hammer the API.
type Client struct {
	apiKey     string
	host       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type generateInputs struct {
	ImageURL string  `json:"image_url"`
	Prompt   string  `json:"prompt"`
	Seed     int     `json:"seed"`
	Strength float64 `json:"strength"`
}

type generateRequest struct {
	Inputs generateInputs `json:"inputs"`
}

type generateResponse struct {
	Images []Image `json:"images"`
}

// NewClient creates a new Fal client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("fal: API key must be provided")
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1.0
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
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// Generate runs one image-to-image generation call anchored on the
// reference image. A fresh random seed is drawn for every call. Any
// non-success response status is returned as an error carrying the raw
// response body for diagnostics.
func (c *Client) Generate(ctx context.Context, referenceImageURL, prompt string) (*Image, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fal: rate limiter wait: %w", err)
	}

	reqBody := generateRequest{
		Inputs: generateInputs{
			ImageURL: referenceImageURL,
			Prompt:   prompt,
			Seed:     rand.IntN(seedRange),
			Strength: defaultStrength,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("fal: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+modelEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("fal: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fal: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fal: API error (%d): %s", resp.StatusCode, string(body))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("fal: failed to decode response: %w", err)
	}
	// The embedded-payload shape is the contract; validate it defensively
	// so a provider-side contract change surfaces as its own error.
	if len(result.Images) == 0 || result.Images[0].Content == "" {
		return nil, fmt.Errorf("fal: invalid response format: no image content")
	}

	return &result.Images[0], nil
}
