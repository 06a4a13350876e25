// Package gemini is a thin client for the Generative Language REST API. The
// extraction and advisory packages share one configured client and differ
// only in prompts and models.
package gemini

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"context"

	"github.com/batteryview/batteryview/pkg/common"
	"github.com/batteryview/batteryview/pkg/log"

	"github.com/levenlabs/go-lflag"
)

var (
	// ErrMissingAPIKey means no credential is configured; callers must reject
	// work up front instead of issuing doomed requests.
	ErrMissingAPIKey = errors.New("missing gemini api key")

	// ErrRateLimited wraps quota/429 responses so callers can back off.
	ErrRateLimited = errors.New("gemini rate limited")
)

// IsRateLimited reports whether err is a transient rate-limit condition.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Client talks to the Generative Language API.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// Configured sets up the shared Gemini client based on flags.
func Configured() *Client {
	c := &Client{
		client: common.HTTPClient(2 * time.Minute),
	}
	apiKey := lflag.String("gemini-api-key", "", "API key for the Generative Language API")
	baseURL := lflag.String("gemini-base-url", "https://generativelanguage.googleapis.com", "Base URL for the Generative Language API")

	lflag.Do(func() {
		c.apiKey = *apiKey
		c.baseURL = *baseURL
	})

	return c
}

// NewClient creates a client with explicit settings. This is primarily used
// for testing.
func NewClient(httpClient *http.Client, baseURL, apiKey string) *Client {
	return &Client{client: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// Validate ensures a credential is configured.
func (c *Client) Validate() error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	if _, err := url.Parse(c.baseURL); err != nil {
		return fmt.Errorf("failed to parse gemini base url (%s): %w", c.baseURL, err)
	}
	return nil
}

// Part is one element of a prompt: either text or inline binary data.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Blob is base64-encoded inline media.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []Part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// GenerateJSON sends the parts to the model asking for a JSON response and
// unmarshals the first candidate into dest. It fails loudly when the model
// returns nothing usable.
func (c *Client) GenerateJSON(ctx context.Context, model string, parts []Part, dest interface{}) error {
	if err := c.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: parts}},
		GenerationConfig: &generationConfig{ResponseMIMEType: "application/json"},
	})
	if err != nil {
		return err
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	u.Path, err = url.JoinPath(u.Path, "v1beta/models", model+":generateContent")
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Ctx(ctx).DebugContext(ctx, "gemini rate limited", slog.String("model", model))
		return fmt.Errorf("status %d: %w", resp.StatusCode, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		var gr generateResponse
		if err := json.Unmarshal(respBody, &gr); err == nil && gr.Error != nil {
			if gr.Error.Status == "RESOURCE_EXHAUSTED" {
				return fmt.Errorf("%s: %w", gr.Error.Message, ErrRateLimited)
			}
			return fmt.Errorf("gemini api error: %s", gr.Error.Message)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode gemini response", slog.Any("error", err), slog.String("body", string(respBody)))
		return err
	}

	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return errors.New("no output from model")
	}

	text := gr.Candidates[0].Content.Parts[0].Text
	if err := json.Unmarshal([]byte(text), dest); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode model output", slog.Any("error", err), slog.String("output", text))
		return fmt.Errorf("failed to decode model output: %w", err)
	}
	return nil
}
