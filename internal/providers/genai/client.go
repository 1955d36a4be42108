// Package genai adapts the Gemini SDK to the completion.Completer contract.
package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	gemini "google.golang.org/genai"

	"palmreader/internal/domain"
	"palmreader/internal/infra"
	"palmreader/internal/providers/completion"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client sends completion requests to Gemini. Without an API key every call
// reports quota exhaustion so the pipeline serves a fallback reading.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
	sdk        *gemini.Client
	logger     zerolog.Logger
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
	if c.apiKey == "" {
		logger.Warn().Msg("genai: GEMINI_API_KEY not set, readings will use the fallback generator")
		return c, nil
	}
	sdk, err := c.newSDK(ctx, c.apiKey)
	if err != nil {
		return nil, err
	}
	c.sdk = sdk
	return c, nil
}

// Model returns the configured default model.
func (c *Client) Model() string { return c.model }

func (c *Client) newSDK(ctx context.Context, apiKey string) (*gemini.Client, error) {
	sdk, err := gemini.NewClient(ctx, &gemini.ClientConfig{
		APIKey:     apiKey,
		Backend:    gemini.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	return sdk, nil
}

func (c *Client) Complete(ctx context.Context, req completion.Request) (string, error) {
	sdk := c.sdk
	if key := completion.APIKeyFromContext(ctx); key != "" && key != c.apiKey {
		perCall, err := c.newSDK(ctx, key)
		if err != nil {
			return "", domain.NewFailure(domain.ErrTransport, "", err)
		}
		sdk = perCall
	}
	if sdk == nil {
		return "", domain.NewFailure(domain.ErrQuotaExhausted, "", completion.ErrMissingAPIKey)
	}

	parts := []*gemini.Part{gemini.NewPartFromText(req.Prompt)}
	if req.ImageDataURL != "" {
		data, mime, err := decodeDataURL(req.ImageDataURL)
		if err != nil {
			return "", domain.NewFailure(domain.ErrTransport, "", err)
		}
		parts = append(parts, gemini.NewPartFromBytes(data, mime))
	}
	contents := []*gemini.Content{gemini.NewContentFromParts(parts, gemini.RoleUser)}

	temperature := float32(req.Temperature)
	cfg := &gemini.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = gemini.NewContentFromText(req.System, gemini.RoleUser)
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	model := c.model
	if strings.TrimSpace(req.Model) != "" {
		model = strings.TrimSpace(req.Model)
	}

	resp, err := sdk.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", classify(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", domain.NewFailure(domain.ErrTransport, "", errors.New("genai: empty response"))
	}
	return text, nil
}

func classify(err error) error {
	var apiErr gemini.APIError
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Status + ": " + apiErr.Message)
		return domain.NewFailure(completion.Classify(apiErr.Code, msg), "", fmt.Errorf("gemini status %d: %s", apiErr.Code, msg))
	}
	return completion.Normalize(fmt.Errorf("genai: generate content: %w", err))
}

func decodeDataURL(value string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(value, "data:")
	if !ok {
		return nil, "", errors.New("genai: image must be a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("genai: malformed data url")
	}
	mime, _, _ := strings.Cut(meta, ";")
	if mime == "" {
		mime = "image/jpeg"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("genai: decode image: %w", err)
	}
	return data, mime, nil
}

var _ completion.Completer = (*Client)(nil)
