// Package summarize generates plain-language summaries of stored
// documents through an OpenAI-compatible chat endpoint.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
)

const systemPrompt = "You are a financial analyst. Summarize the document excerpt " +
	"in a few short paragraphs covering results, guidance, and notable risks. " +
	"Be factual; do not speculate beyond the text."

// maxChunkChars bounds how much of a document goes into one request.
// Large filings get truncated rather than multi-turn summarized.
const maxChunkChars = 24000

// ErrNotConfigured means no API key was provided.
var ErrNotConfigured = errors.New("summarizer not configured")

// ErrUnsupportedFormat means the stored artifact is not text-extractable.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// chatClient is the slice of the OpenAI client the summarizer needs.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config carries the chat endpoint settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Service implements harvester.Summarizer.
type Service struct {
	client chatClient
	model  string
	logger *zap.Logger
	now    func() time.Time
}

// New builds a Service. An empty API key returns ErrNotConfigured so
// callers can disable the summarize surface cleanly.
func New(cfg Config, logger *zap.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Service{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger,
		now:    time.Now,
	}, nil
}

// SummarizeDocument reads a stored artifact, extracts its text, and
// asks the model for a summary.
func (s *Service) SummarizeDocument(ctx context.Context, absPath string) (harvester.SummaryMetadata, error) {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return harvester.SummaryMetadata{}, fmt.Errorf("read document %s: %w", absPath, err)
	}

	text, err := ExtractText(absPath, raw)
	if err != nil {
		return harvester.SummaryMetadata{}, err
	}
	if len(text) > maxChunkChars {
		s.logger.Debug("document truncated for summarization",
			zap.String("path", absPath),
			zap.Int("chars", len(text)),
		)
		text = text[:maxChunkChars]
	}
	if strings.TrimSpace(text) == "" {
		return harvester.SummaryMetadata{}, fmt.Errorf("document %s has no extractable text", absPath)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return harvester.SummaryMetadata{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return harvester.SummaryMetadata{}, errors.New("no completion choices returned")
	}

	return harvester.SummaryMetadata{
		Summary:     strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:       s.model,
		GeneratedAt: s.now().UTC(),
		SourcePath:  absPath,
	}, nil
}
