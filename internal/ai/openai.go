package ai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type OpenAIGateway struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIGateway(apiKey, model string, logger *zap.Logger) *OpenAIGateway {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGateway{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

func (g *OpenAIGateway) Chat(ctx context.Context, req ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		g.logger.Error("chat completion failed", zap.String("model", model), zap.Error(err))
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *OpenAIGateway) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Model:  openai.CreateImageModelDallE3,
		Prompt: prompt,
		Size:   openai.CreateImageSize1024x1024,
		N:      1,
	})
	if err != nil {
		g.logger.Error("image generation failed", zap.Error(err))
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", errors.New("openai: empty image response")
	}
	return resp.Data[0].URL, nil
}
