package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"palmreader/internal/domain"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	OnWarning    func(reason, detail string)
}

// OpenAIClient calls an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
}

const openAIDefaultTimeout = 90 * time.Second

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

var openAIModelCanonical = map[string]string{
	"gpt-4o-mini":  "gpt-4o-mini",
	"gpt-4o":       "gpt-4o",
	"gpt-4.1":      "gpt-4.1",
	"gpt-4.1-mini": "gpt-4.1-mini",
}

var openAIModelAliases = map[string]string{
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4o":                  "gpt-4o",
	"gpt-4o-2024-08-06":      "gpt-4o",
	"gpt-4-vision":           "gpt-4o",
	"gpt-4-vision-preview":   "gpt-4o",
	"gpt41":                  "gpt-4.1",
	"gpt41-mini":             "gpt-4.1-mini",
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	modelInput := strings.TrimSpace(opts.Model)
	model, reason := normalizeOpenAIModel(modelInput)
	if reason != "" && opts.OnWarning != nil {
		opts.OnWarning("model_"+reason, fmt.Sprintf("requested=%s resolved=%s", modelInput, model))
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIClient{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        model,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
	}
}

// Model returns the resolved default model.
func (o *OpenAIClient) Model() string { return o.model }

func (o *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	apiKey := APIKeyFromContext(ctx)
	if apiKey == "" {
		apiKey = o.apiKey
	}
	if apiKey == "" {
		return "", domain.NewFailure(domain.ErrQuotaExhausted, "", ErrMissingAPIKey)
	}
	model := o.model
	if strings.TrimSpace(req.Model) != "" {
		model, _ = normalizeOpenAIModel(req.Model)
	}

	payload := openAIChatRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    buildMessages(req),
	}
	if req.JSONMode {
		payload.ResponseFormat = &openAIFormat{Type: "json_object"}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", domain.NewFailure(domain.ErrTransport, "", fmt.Errorf("openai: encode request: %w", err))
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", domain.NewFailure(domain.ErrTransport, "", fmt.Errorf("openai: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", domain.NewFailure(domain.ErrTransport, "", fmt.Errorf("openai: http request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", domain.NewFailure(domain.ErrTransport, "", fmt.Errorf("openai: read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		return "", newCallError(resp.StatusCode, errorMessage(resp, body))
	}
	var out openAIChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", domain.NewFailure(domain.ErrTransport, "", fmt.Errorf("openai: decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", domain.NewFailure(domain.ErrTransport, "", errors.New("openai: no choices"))
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", domain.NewFailure(domain.ErrTransport, "", errors.New("openai: empty response"))
	}
	return text, nil
}

func buildMessages(req Request) []openAIMessage {
	messages := make([]openAIMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	if req.ImageDataURL == "" {
		return append(messages, openAIMessage{Role: "user", Content: req.Prompt})
	}
	return append(messages, openAIMessage{
		Role: "user",
		Content: []openAIContentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &openAIImageURL{URL: req.ImageDataURL, Detail: "high"}},
		},
	})
}

// errorMessage flattens the provider error body and keeps any Retry-After
// hint in the "try again in Ns" form the retry policy understands.
func errorMessage(resp *http.Response, body []byte) string {
	var decoded openAIErrorBody
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error.Message != "" {
		parts := []string{}
		if code := fmt.Sprint(decoded.Error.Code); decoded.Error.Code != nil && code != "" {
			parts = append(parts, code)
		}
		if decoded.Error.Type != "" {
			parts = append(parts, decoded.Error.Type)
		}
		parts = append(parts, decoded.Error.Message)
		msg = strings.Join(parts, ": ")
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" && !strings.Contains(strings.ToLower(msg), "try again in") {
		if secs, err := strconv.Atoi(ra); err == nil {
			msg = fmt.Sprintf("%s (try again in %ds)", msg, secs)
		}
	}
	return msg
}

func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		return alias, "alias"
	}
	return trimmed, "passthrough"
}

var _ Completer = (*OpenAIClient)(nil)
