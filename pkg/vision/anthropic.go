package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/classlens-inc/classlens-engine/pkg/retry"
)

// AnthropicClient recognizes names through the Anthropic Messages API.
type AnthropicClient struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewAnthropicClient creates a new Anthropic vision client.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &AnthropicClient{
		client:  anthropic.NewClient(cfg.APIKey),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger.Named("vision"),
	}, nil
}

var _ NameRecognizer = (*AnthropicClient)(nil)

// RecognizeNames sends the sheet photo plus the absent-name context and
// parses one name per non-empty line from the reply.
func (c *AnthropicClient) RecognizeNames(ctx context.Context, image []byte, absentStudentNames []string) ([]string, error) {
	mediaType, err := detectMediaType(image)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(absentStudentNames)

	request := anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1000,
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewImageMessageContent(
						anthropic.NewMessageContentSource(
							anthropic.MessagesContentSourceTypeBase64,
							mediaType,
							image,
						),
					),
					anthropic.NewTextMessageContent(prompt),
				},
			},
		},
	}

	c.logger.Debug("vision request",
		zap.String("model", c.model),
		zap.Int("image_bytes", len(image)),
		zap.Int("absent_names", len(absentStudentNames)))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	resp, err := retry.DoWithResult(ctx, nil, func() (anthropic.MessagesResponse, error) {
		r, reqErr := c.client.CreateMessages(ctx, request)
		if reqErr != nil {
			return r, Classify(reqErr)
		}
		return r, nil
	})
	if err != nil {
		c.logger.Error("vision request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, Classify(err)
	}

	var content strings.Builder
	for _, part := range resp.Content {
		if part.Text != nil {
			content.WriteString(*part.Text)
		}
	}
	if content.Len() == 0 {
		return nil, NewError(KindInvalidResponse, "no text content in response", false, nil)
	}

	names, err := parseNames(content.String())
	if err != nil {
		return nil, err
	}

	c.logger.Info("vision request completed",
		zap.Int("names", len(names)),
		zap.Duration("elapsed", time.Since(start)))

	return names, nil
}
