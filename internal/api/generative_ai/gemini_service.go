package generativeAI

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

var _ ModelClient = (*GeminiClient)(nil)

// GeminiClient calls the Gemini API through google.golang.org/genai.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, model string) (*GeminiClient, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "NewGeminiClient")
	defer span.End()

	apiKey := os.Getenv("GOOGLE_GEMINI_API_KEY")
	if apiKey == "" {
		err := fmt.Errorf("GOOGLE_GEMINI_API_KEY environment variable is not set")
		span.RecordError(err)
		span.SetStatus(codes.Error, "API key not set")
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create Gemini client")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Gemini client created")
	return &GeminiClient{
		client: client,
		model:  model,
	}, nil
}

func (ai *GeminiClient) Chat(ctx context.Context, message string, uc types.UserContext) (*types.ModelResult, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "GeminiClient.Chat", trace.WithAttributes(
		attribute.String("model", ai.model),
		attribute.Int("message.length", len(message)),
		attribute.Bool("context.is_new_user", uc.IsNewUser),
	))
	defer span.End()

	system := systemPrompt
	if block := contextBlock(uc); block != "" {
		system += "\n\n" + block
	}

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0.7),
		MaxOutputTokens:   500,
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}

	result, err := ai.client.Models.GenerateContent(ctx, ai.model, genai.Text(message), config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to generate content")
		return nil, fmt.Errorf("%w: %w", types.ErrUpstreamModel, err)
	}

	responseText := result.Text()
	span.SetAttributes(attribute.Int("response.length", len(responseText)))
	span.SetStatus(codes.Ok, "Content generated")
	return parseModelOutput(responseText, ai.model), nil
}
