// Package inference talks to the text-completion backend.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// Default connection settings for a local Ollama server.
const (
	DefaultBaseURL        = "http://localhost:11434"
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 120 * time.Second
)

const maxErrorBody = 4096

// Endpoint selects the completion API variant.
type Endpoint string

const (
	// EndpointGenerate posts a raw prompt to /api/generate.
	EndpointGenerate Endpoint = "generate"
	// EndpointChat posts role-tagged messages to /api/chat.
	EndpointChat Endpoint = "chat"
)

// ParseEndpoint validates a configured endpoint name.
func ParseEndpoint(raw string) (Endpoint, error) {
	switch Endpoint(strings.ToLower(strings.TrimSpace(raw))) {
	case EndpointGenerate:
		return EndpointGenerate, nil
	case EndpointChat:
		return EndpointChat, nil
	default:
		return "", fmt.Errorf("unknown completion endpoint %q", raw)
	}
}

// Options are the sampling parameters sent with every call.
type Options struct {
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p"`
	RepeatPenalty float64  `json:"repeat_penalty,omitempty"`
	NumPredict    int      `json:"num_predict,omitempty"`
	Stop          []string `json:"stop,omitempty"`
}

// Request is one completion call. Prompt feeds the generate endpoint and
// Messages the chat endpoint. Caller only shows up in logs.
type Request struct {
	Endpoint Endpoint
	Model    string
	Prompt   string
	Messages []*schema.Message
	Options  Options
	Caller   string
}

// Result is a successful completion.
type Result struct {
	// Text is the generated text, trimmed.
	Text string
	// Raw is the undecoded response body.
	Raw json.RawMessage
	// Response is the generated turn as an eino message.
	Response *schema.Message
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Raw     bool    `json:"raw"`
	Options Options `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  Options       `json:"options"`
}

type completionResponse struct {
	Model    string       `json:"model"`
	Response string       `json:"response"`
	Message  *chatMessage `json:"message"`
	Done     bool         `json:"done"`
	Error    string       `json:"error"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Client is a blocking Ollama client. It performs a single attempt per call.
type Client struct {
	baseURL        string
	connectTimeout time.Duration
	readTimeout    time.Duration
	httpClient     *http.Client
	logger         *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeouts sets the dial and response-header timeouts.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *Client) {
		if connect > 0 {
			c.connectTimeout = connect
		}
		if read > 0 {
			c.readTimeout = read
		}
	}
}

// WithHTTPClient replaces the transport-level client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient returns a client for the Ollama server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        baseURL,
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newHTTPClient(c.connectTimeout, c.readTimeout)
	}
	return c
}

func newHTTPClient(connect, read time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.ResponseHeaderTimeout = read
	return &http.Client{Transport: transport, Timeout: connect + read}
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Complete performs one completion call. The call is detached from ctx
// cancellation and bounded only by the client timeouts.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	path, body, err := c.encode(req)
	if err != nil {
		return nil, c.fail(req, KindUnknown, 0, "", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, c.fail(req, KindUnknown, 0, "", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Info("sending completion request",
		zap.String("caller", req.Caller),
		zap.String("model", req.Model),
		zap.String("url", httpReq.URL.String()),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.fail(req, classifyTransport(err), 0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(req, classifyTransport(err), resp.StatusCode, "", err)
	}

	var decoded completionResponse
	decodeErr := json.Unmarshal(data, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || decoded.Error != "" {
		detail := decoded.Error
		if detail == "" {
			detail = truncate(string(data))
		}
		kind := KindService
		if mentionsMissingModel(detail) {
			kind = KindModelNotFound
		}
		return nil, c.fail(req, kind, resp.StatusCode, detail, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return nil, c.fail(req, KindService, resp.StatusCode, "undecodable response: "+truncate(string(data)), decodeErr)
	}

	text := decoded.Response
	if req.Endpoint == EndpointChat {
		if decoded.Message == nil {
			return nil, c.fail(req, KindService, resp.StatusCode, "response has no message", nil)
		}
		text = decoded.Message.Content
	}
	text = strings.TrimSpace(text)

	c.logger.Debug("completion received",
		zap.String("caller", req.Caller),
		zap.String("model", req.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("text", text),
	)

	return &Result{
		Text:     text,
		Raw:      json.RawMessage(data),
		Response: schema.AssistantMessage(text, nil),
	}, nil
}

func (c *Client) encode(req Request) (string, []byte, error) {
	switch req.Endpoint {
	case EndpointGenerate, "":
		body, err := json.Marshal(generateRequest{
			Model:   req.Model,
			Prompt:  req.Prompt,
			Stream:  false,
			Raw:     true,
			Options: req.Options,
		})
		return "/api/generate", body, err
	case EndpointChat:
		messages := make([]chatMessage, 0, len(req.Messages))
		for _, m := range req.Messages {
			if m == nil {
				continue
			}
			messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
		}
		body, err := json.Marshal(chatRequest{
			Model:    req.Model,
			Messages: messages,
			Stream:   false,
			Options:  req.Options,
		})
		return "/api/chat", body, err
	default:
		return "", nil, fmt.Errorf("unknown completion endpoint %q", req.Endpoint)
	}
}

func (c *Client) fail(req Request, kind Kind, status int, detail string, err error) *Error {
	e := &Error{
		Kind:    kind,
		Model:   req.Model,
		BaseURL: c.baseURL,
		Caller:  req.Caller,
		Status:  status,
		Detail:  detail,
		Err:     err,
	}
	c.logger.Error("completion request failed",
		zap.String("caller", req.Caller),
		zap.String("kind", string(kind)),
		zap.String("model", req.Model),
		zap.String("base_url", c.baseURL),
		zap.Int("status", status),
		zap.String("detail", detail),
		zap.Error(err),
	)
	return e
}

// ListModels returns the model names installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: classifyTransport(err), BaseURL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &Error{Kind: KindService, BaseURL: c.baseURL, Status: resp.StatusCode, Detail: strings.TrimSpace(string(data))}
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, &Error{Kind: KindService, BaseURL: c.baseURL, Status: resp.StatusCode, Detail: "undecodable tags response", Err: err}
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
