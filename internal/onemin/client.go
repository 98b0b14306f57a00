// Package onemin is the HTTP client for the downstream 1min.ai API.
package onemin

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/andybalholm/brotli"

	"github.com/onemin-relay/relay/internal/apierr"
	"github.com/onemin-relay/relay/internal/relay"
)

// DegradedHeader marks an upstream response whose downstream call succeeded
// only after web-search fields were stripped.
const DegradedHeader = "X-WebSearch-Degraded"

// Client sends downstream envelopes. Non-streaming and streaming calls go to
// different endpoints but share the error and degradation policy.
type Client struct {
	httpClient *http.Client
	chatURL    string
	streamURL  string
	logger     *slog.Logger
}

func NewClient(chatURL, streamURL string, logger *slog.Logger) *Client {
	return &Client{
		// Streaming completions can legitimately take minutes; the
		// transport deadline is left to the default client semantics.
		httpClient: &http.Client{},
		chatURL:    chatURL,
		streamURL:  streamURL,
		logger:     logger,
	}
}

// Reply is one downstream HTTP exchange. Degraded is set when the response
// came from the web-search fallback retry.
type Reply struct {
	Response *http.Response
	Degraded bool
}

// SendChat posts the envelope to the chat endpoint. A client-error response
// to a web-search request is retried exactly once with the search fields
// stripped; any other failure surfaces as a typed API error carrying the
// downstream status.
func (c *Client) SendChat(ctx context.Context, envelope *relay.Envelope, streaming bool, apiKey string) (*Reply, error) {
	url := c.chatURL
	if streaming {
		url = c.streamURL
	}

	resp, err := c.post(ctx, url, envelope, apiKey)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Reply{Response: resp}, nil
	}

	status := resp.StatusCode
	drain(resp)

	c.logger.Error("1min.ai API error",
		"status", status,
		"url", url,
		"model", envelope.Model,
		"web_search", envelope.WantsWebSearch(),
	)

	if envelope.WantsWebSearch() && status >= 400 && status < 500 {
		c.logger.Warn("Attempting graceful degradation: removing web search parameters")

		fallback, err := c.post(ctx, url, envelope.WithoutWebSearch(), apiKey)
		if err != nil {
			return nil, err
		}

		if fallback.StatusCode >= 200 && fallback.StatusCode < 300 {
			c.logger.Info("Graceful degradation successful")

			return &Reply{Response: fallback, Degraded: true}, nil
		}

		status = fallback.StatusCode
		drain(fallback)
	}

	return nil, apierr.API(fmt.Sprintf("1min.ai API error: %d", status), http.StatusInternalServerError)
}

// SendImage posts an image-generation envelope and decodes the completed
// response. Image generation has no streaming variant.
func (c *Client) SendImage(ctx context.Context, envelope *relay.Envelope, apiKey string) (*relay.DownstreamResponse, error) {
	resp, err := c.post(ctx, c.chatURL+"?isStreaming=false", envelope, apiKey)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("1min.ai image API error", "status", resp.StatusCode, "body", string(body))

		return nil, apierr.API(fmt.Sprintf("1min.ai API error: %d", resp.StatusCode), http.StatusInternalServerError)
	}

	return DecodeResponse(resp)
}

// DecodeResponse reads a completed downstream body, transparently undoing
// gzip or brotli content encoding.
func DecodeResponse(resp *http.Response) (*relay.DownstreamResponse, error) {
	reader, err := DecodedBody(resp)
	if err != nil {
		return nil, err
	}

	var parsed relay.DownstreamResponse
	if err := json.NewDecoder(reader).Decode(&parsed); err != nil {
		return nil, apierr.API("failed to decode 1min.ai response", http.StatusInternalServerError)
	}

	return &parsed, nil
}

// DecodedBody wraps the response body with the decoder matching its
// Content-Encoding.
func DecodedBody(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}

		return reader, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

func (c *Client) post(ctx context.Context, url string, envelope *relay.Envelope, apiKey string) (*http.Response, error) {
	payload, err := envelope.Marshal()
	if err != nil {
		return nil, apierr.API("failed to encode downstream request", http.StatusInternalServerError)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, apierr.API("failed to build downstream request", http.StatusInternalServerError)
	}

	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("API-KEY", apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Network error calling 1min.ai", "url", url, "error", err)

		return nil, apierr.API("failed to reach 1min.ai API", http.StatusInternalServerError)
	}

	return resp, nil
}

// drain discards and closes an error response body so the connection can be
// reused before the retry.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
