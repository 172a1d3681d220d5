// Package vision provides the networked fallback recognizer used when
// local OCR confidence is insufficient.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/classlens-inc/classlens-engine/pkg/retry"
)

// OpenAIClient recognizes names through any OpenAI-compatible vision
// chat endpoint.
type OpenAIClient struct {
	client   *openai.Client
	endpoint string
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

// Config holds configuration for creating a vision client.
type Config struct {
	Endpoint string // Base URL, e.g., "https://api.openai.com/v1"
	Model    string // Vision-capable model name, e.g., "gpt-4o"
	APIKey   string
	Timeout  time.Duration
}

// NewOpenAIClient creates a new OpenAI-compatible vision client.
func NewOpenAIClient(cfg *Config, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		timeout:  timeout,
		logger:   logger.Named("vision"),
	}, nil
}

var _ NameRecognizer = (*OpenAIClient)(nil)

// RecognizeNames sends the sheet photo plus the absent-name context and
// parses one name per non-empty line from the reply.
func (c *OpenAIClient) RecognizeNames(ctx context.Context, image []byte, absentStudentNames []string) ([]string, error) {
	mediaType, err := detectMediaType(image)
	if err != nil {
		return nil, err
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(image))

	messages := []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: buildPrompt(absentStudentNames)},
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailAuto},
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

	resp, err := retry.DoWithResult(ctx, nil, func() (openai.ChatCompletionResponse, error) {
		r, reqErr := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    c.model,
			Messages: messages,
		})
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

	if len(resp.Choices) == 0 {
		return nil, NewError(KindInvalidResponse, "no choices in response", false, nil)
	}

	names, err := parseNames(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	c.logger.Info("vision request completed",
		zap.Int("names", len(names)),
		zap.Duration("elapsed", time.Since(start)))

	return names, nil
}
