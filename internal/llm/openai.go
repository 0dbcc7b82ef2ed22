package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	DefaultEmbeddingDims  = 256
	defaultOpenAITimeout  = 120 * time.Second
	insufficientQuotaCode = "insufficient_quota"
)

// OpenAIConfig configures OpenAIClient.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	EmbeddingDims  int
	Timeout        time.Duration
}

// OpenAIClient serves both completions and embeddings.
type OpenAIClient struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	embedModel string
	embedDims  int
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.EmbeddingDims <= 0 {
		cfg.EmbeddingDims = DefaultEmbeddingDims
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultOpenAITimeout
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = httpClient

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(oc),
		httpClient: httpClient,
		model:      cfg.Model,
		embedModel: cfg.EmbeddingModel,
		embedDims:  cfg.EmbeddingDims,
	}
}

// Model returns the chat model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete sends a single user prompt and returns the first choice's text.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens: req.MaxTokens,
	}
	if req.Format == FormatJSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding of text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(c.embedModel),
		Dimensions: c.embedDims,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 {
		return nil, &ProviderError{Message: "empty embedding response"}
	}
	return resp.Data[0].Embedding, nil
}

// Close releases idle connections.
func (c *OpenAIClient) Close() {
	c.httpClient.CloseIdleConnections()
}

// classifyOpenAIError maps SDK errors onto RateLimitError or ProviderError.
// A 429 carrying insufficient_quota will not clear by waiting, so it is a
// provider error.
func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests && code != insufficientQuotaCode {
			return &RateLimitError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &RateLimitError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
		}
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}

	return &ProviderError{Message: fmt.Sprintf("openai: %v", err), Err: err}
}
