// Package httpstore implements [conversations.Store] over the assistant
// backend's REST API.
package httpstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/koscakluka/ema-voice/core/conversations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var _ conversations.Store = (*Client)(nil)

var ErrNotFound = errors.New("conversation not found")

type Client struct {
	baseURL    *url.URL
	credential string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default traced client. The given client is used
// as is.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a store client for baseURL authenticating every request
// with credential as a bearer token.
func NewClient(baseURL, credential string, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}

	client := &Client{
		baseURL:    parsed,
		credential: credential,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]conversations.Summary, error) {
	ctx, span := tracer.Start(ctx, "list conversations")
	defer span.End()

	var payload []conversationPayload
	if err := c.do(ctx, http.MethodGet, "/conversations", &payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]conversations.Summary, 0, len(payload))
	for _, conversation := range payload {
		summaries = append(summaries, conversation.summary())
	}
	conversations.SortByRecentActivity(summaries)

	span.SetAttributes(attribute.Int("conversations.count", len(summaries)))
	return summaries, nil
}

func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "create conversation")
	defer span.End()

	var payload createdPayload
	if err := c.do(ctx, http.MethodPost, "/conversations", &payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}

	id := payload.id()
	if id == "" {
		err := fmt.Errorf("failed to create conversation: response carried no conversation id")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.String("conversation.id", id))
	return id, nil
}

func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]conversations.Message, error) {
	ctx, span := tracer.Start(ctx, "get conversation messages")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	if conversationID == "" {
		return nil, fmt.Errorf("failed to get messages: %w", ErrNotFound)
	}

	var payload []messagePayload
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID), &payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	messages := make([]conversations.Message, 0, len(payload))
	for _, message := range payload {
		messages = append(messages, message.message())
	}
	span.SetAttributes(attribute.Int("conversation.messages", len(messages)))
	return messages, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	endpoint := c.baseURL.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
