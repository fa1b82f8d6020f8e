package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	appMetrics "github.com/FACorreiaa/go-insurance-assistant/app/observability/metrics"
	generativeAI "github.com/FACorreiaa/go-insurance-assistant/internal/api/generative_ai"
	"github.com/FACorreiaa/go-insurance-assistant/internal/api/memory"
	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

// FallbackResponse is substituted for the model reply whenever the upstream
// call fails. The turn still completes and is still logged.
const FallbackResponse = "I'm sorry, I'm having trouble connecting to the AI service right now. Please try again later."

const defaultModelTimeout = 30 * time.Second

// Ensure implementation satisfies the interface
var _ Service = (*ServiceImpl)(nil)

// Service runs one assistant turn end to end.
type Service interface {
	// ChatTurn resolves the user, assembles context, invokes the model,
	// merges extracted profile fields, and appends the session row. The
	// model call is the only step allowed to fail softly: its failure
	// degrades the reply to FallbackResponse with empty extraction.
	ChatTurn(ctx context.Context, identifier, phone, message string, mode types.SessionMode) (*types.TurnResult, error)
}

// ServiceImpl provides the implementation for Service.
type ServiceImpl struct {
	logger       *slog.Logger
	memory       memory.Service
	model        generativeAI.ModelClient
	metrics      *appMetrics.AppMetrics
	modelTimeout time.Duration
}

// NewService creates the turn orchestrator. metrics may be nil (tests).
func NewService(memorySvc memory.Service, model generativeAI.ModelClient, m *appMetrics.AppMetrics, modelTimeout time.Duration, logger *slog.Logger) *ServiceImpl {
	if modelTimeout <= 0 {
		modelTimeout = defaultModelTimeout
	}
	return &ServiceImpl{
		logger:       logger,
		memory:       memorySvc,
		model:        model,
		metrics:      m,
		modelTimeout: modelTimeout,
	}
}

func (s *ServiceImpl) ChatTurn(ctx context.Context, identifier, phone, message string, mode types.SessionMode) (*types.TurnResult, error) {
	ctx, span := otel.Tracer("Assistant").Start(ctx, "ChatTurn", trace.WithAttributes(
		attribute.String("turn.mode", string(mode)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "ChatTurn"), slog.String("mode", string(mode)))
	start := time.Now()

	// 1. Resolve or create the user. Failure here is fatal for the request.
	user, err := s.memory.ResolveOrCreateUser(ctx, identifier, phone)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "User resolution failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	// 2. Assemble context. Never fails; degrades to an empty context.
	uc := s.memory.GetUserContext(ctx, user.ID)

	// 3. Invoke the model with a bounded timeout.
	modelCtx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	result, err := s.model.Chat(modelCtx, message, uc)
	cancel()

	degraded := false
	if err != nil {
		l.WarnContext(ctx, "Model call failed, substituting fallback response", slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.ModelFailuresTotal.Add(ctx, 1)
		}
		span.RecordError(err)
		degraded = true
		result = &types.ModelResult{Response: FallbackResponse}
	}

	// 4+5. Merge profile and append the session row as one atomic unit.
	// Runs detached from request cancellation: a completed model reply is
	// always persisted even if the client has gone away.
	transcript := fmt.Sprintf("User: %s\nAI: %s", message, result.Response)
	persistCtx := context.WithoutCancel(ctx)
	session, err := s.memory.RecordTurn(persistCtx, user.ID, transcript, result.StructuredData, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Turn persistence failed")
		return nil, err
	}

	if s.metrics != nil {
		outcome := "ok"
		if degraded {
			outcome = "degraded"
		}
		attrs := metric.WithAttributes(
			attribute.String("mode", string(mode)),
			attribute.String("outcome", outcome),
		)
		s.metrics.TurnsTotal.Add(ctx, 1, attrs)
		s.metrics.TurnDurationSeconds.Record(ctx, time.Since(start).Seconds(), attrs)
	}

	l.InfoContext(ctx, "Turn completed",
		slog.String("userID", user.ID.String()),
		slog.String("sessionID", session.SessionID.String()),
		slog.Bool("degraded", degraded),
	)
	span.SetStatus(codes.Ok, "Turn completed")

	return &types.TurnResult{
		Response:       result.Response,
		StructuredData: result.StructuredData,
		UserID:         user.ID.String(),
		SessionID:      session.SessionID.String(),
		Degraded:       degraded,
	}, nil
}
