package generativeAI

import (
	"context"
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

const groqChatCompletionsURL = "https://api.groq.com/openai/v1/chat/completions"

var _ ModelClient = (*GroqClient)(nil)

// GroqClient calls Groq's OpenAI-compatible chat-completions REST API.
type GroqClient struct {
	client *resty.Client
	apiKey string
	model  string
}

func NewGroqClient(model string) (*GroqClient, error) {
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY environment variable is not set")
	}

	return &GroqClient{
		client: resty.New(),
		apiKey: apiKey,
		model:  model,
	}, nil
}

type chatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *GroqClient) Chat(ctx context.Context, message string, uc types.UserContext) (*types.ModelResult, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "GroqClient.Chat", trace.WithAttributes(
		attribute.String("model", g.model),
		attribute.Int("message.length", len(message)),
		attribute.Bool("context.is_new_user", uc.IsNewUser),
	))
	defer span.End()

	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	if block := contextBlock(uc); block != "" {
		messages = append(messages, chatMessage{Role: "system", Content: block})
	}
	messages = append(messages, chatMessage{Role: "user", Content: message})

	var result chatCompletionResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(g.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(chatCompletionRequest{
			Model:          g.model,
			Messages:       messages,
			Temperature:    0.7,
			MaxTokens:      500,
			ResponseFormat: &chatResponseFormat{Type: "json_object"},
		}).
		SetResult(&result).
		Post(groqChatCompletionsURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Chat completion request failed")
		return nil, fmt.Errorf("%w: %w", types.ErrUpstreamModel, err)
	}
	if resp.IsError() {
		err := fmt.Errorf("%w: groq returned status %d", types.ErrUpstreamModel, resp.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "Chat completion returned error status")
		return nil, err
	}
	if result.Error != nil {
		err := fmt.Errorf("%w: %s", types.ErrUpstreamModel, result.Error.Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Chat completion carried error payload")
		return nil, err
	}
	if len(result.Choices) == 0 {
		err := fmt.Errorf("%w: empty choices in completion", types.ErrUpstreamModel)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Empty completion")
		return nil, err
	}

	content := result.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("response.length", len(content)))
	span.SetStatus(codes.Ok, "Chat completion succeeded")
	return parseModelOutput(content, g.model), nil
}
