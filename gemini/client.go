// Package gemini adapts the Gemini API to the embedding and generation
// interfaces used by retrieval and analysis. Every remote call runs under a
// bounded timeout.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var (
	ErrNoAPIKey      = errors.New("gemini API key not set")
	ErrTimeout       = errors.New("gemini call timed out")
	ErrEmptyResponse = errors.New("empty response from model")
	ErrBlocked       = errors.New("response blocked by model")
)

const (
	DefaultChatModel       = "gemini-2.5-flash"
	DefaultEmbedModel      = "text-embedding-004"
	DefaultEmbedTimeout    = 30 * time.Second
	DefaultGenerateTimeout = 120 * time.Second
)

// Config holds the Gemini client settings
type Config struct {
	APIKey          string
	ChatModel       string
	EmbedModel      string
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ChatModel == "" {
		c.ChatModel = DefaultChatModel
	}
	if c.EmbedModel == "" {
		c.EmbedModel = DefaultEmbedModel
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = DefaultEmbedTimeout
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = DefaultGenerateTimeout
	}
}

// GenerateRequest is one structured generation call
type GenerateRequest struct {
	SystemInstruction string
	Prompt            string
	Schema            *genai.Schema
	MaxOutputTokens   int32
	Temperature       float32
}

// GenerateResponse is the raw text of the first candidate
type GenerateResponse struct {
	Text         string
	FinishReason string
	// Truncated is set when generation stopped at the output token limit
	Truncated bool
}

// Client wraps a genai client. It is safe for concurrent use.
type Client struct {
	client *genai.Client
	cfg    Config
}

// NewClient creates a Gemini client. Extra options are passed to genai.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	cfg.applyDefaults()

	opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{client: client, cfg: cfg}, nil
}

// Close releases the underlying connections
func (c *Client) Close() error {
	return c.client.Close()
}

// ChatModel returns the generation model name
func (c *Client) ChatModel() string {
	return c.cfg.ChatModel
}

// EmbedModel returns the embedding model name
func (c *Client) EmbedModel() string {
	return c.cfg.EmbedModel
}

// EmbedDocuments embeds texts in a single batch request
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.EmbedTimeout)
	defer cancel()

	em := c.client.EmbeddingModel(c.cfg.EmbedModel)
	em.TaskType = genai.TaskTypeRetrievalDocument

	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, wrapCallError(ctx, "batch embed", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(res.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at position %d", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

// EmbedQuery embeds a retrieval query
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EmbedTimeout)
	defer cancel()

	em := c.client.EmbeddingModel(c.cfg.EmbedModel)
	em.TaskType = genai.TaskTypeRetrievalQuery

	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, wrapCallError(ctx, "embed query", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, ErrEmptyResponse
	}
	return res.Embedding.Values, nil
}

// Generate requests a JSON response constrained to req.Schema
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.GenerateTimeout)
	defer cancel()

	model := c.client.GenerativeModel(c.cfg.ChatModel)
	if req.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemInstruction)},
		}
	}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = req.Schema
	model.SetTemperature(req.Temperature)
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(req.MaxOutputTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return nil, fmt.Errorf("%w: %v", ErrBlocked, blocked)
		}
		return nil, wrapCallError(ctx, "generate", err)
	}
	return decodeResponse(resp)
}

// decodeResponse concatenates the text parts of the first candidate
func decodeResponse(resp *genai.GenerateContentResponse) (*GenerateResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, ErrEmptyResponse
	}
	cand := resp.Candidates[0]

	var b strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}

	truncated := cand.FinishReason == genai.FinishReasonMaxTokens
	if b.Len() == 0 && !truncated {
		return nil, ErrEmptyResponse
	}

	return &GenerateResponse{
		Text:         b.String(),
		FinishReason: cand.FinishReason.String(),
		Truncated:    truncated,
	}, nil
}

func wrapCallError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
