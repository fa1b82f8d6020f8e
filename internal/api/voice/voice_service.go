package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/go-insurance-assistant/internal/api/assistant"
	"github.com/FACorreiaa/go-insurance-assistant/internal/api/memory"
	"github.com/FACorreiaa/go-insurance-assistant/internal/api/novasonic"
	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

const defaultSessionTTL = 30 * time.Minute

// Ensure implementation satisfies the interface
var _ Service = (*ServiceImpl)(nil)

// Service owns the voice session lifecycle: the session row is persisted
// before any audio processing begins, and live streams are tracked in a
// TTL registry so the websocket endpoint can address them.
type Service interface {
	// StartSession mints and persists exactly one voice session for the
	// caller and returns it together with the resolved user.
	StartSession(ctx context.Context, identifier, phone string) (*types.Session, *types.User, error)

	// EmulatedTurn runs one browser-STT voice turn through the regular
	// chat pipeline, logged with mode voice-emulated.
	EmulatedTurn(ctx context.Context, identifier, phone, transcript string) (*types.TurnResult, error)

	// LookupStream resolves the owning user of a started voice session.
	// Returns types.ErrNotFound for unknown sessions.
	LookupStream(ctx context.Context, sessionID uuid.UUID) (*types.User, error)

	// StreamTurn handles one transcript observed on a live stream: produces
	// the emulated reply and appends the turn as a voice session row.
	StreamTurn(ctx context.Context, user *types.User, transcript string) (string, error)

	// Provider exposes the voice pipeline for audio synthesis on the stream.
	Provider() *novasonic.Provider
}

// ServiceImpl provides the implementation for Service.
type ServiceImpl struct {
	logger    *slog.Logger
	memory    memory.Service
	assistant assistant.Service
	provider  *novasonic.Provider
	live      *cache.Cache
}

// NewService creates the voice service. sessionTTL bounds how long an idle
// live stream stays addressable.
func NewService(memorySvc memory.Service, assistantSvc assistant.Service, provider *novasonic.Provider, sessionTTL time.Duration, logger *slog.Logger) *ServiceImpl {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &ServiceImpl{
		logger:    logger,
		memory:    memorySvc,
		assistant: assistantSvc,
		provider:  provider,
		live:      cache.New(sessionTTL, 2*sessionTTL),
	}
}

func (s *ServiceImpl) Provider() *novasonic.Provider {
	return s.provider
}

func (s *ServiceImpl) StartSession(ctx context.Context, identifier, phone string) (*types.Session, *types.User, error) {
	ctx, span := otel.Tracer("Voice").Start(ctx, "StartSession")
	defer span.End()

	l := s.logger.With(slog.String("method", "StartSession"))

	user, err := s.memory.ResolveOrCreateUser(ctx, identifier, phone)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "User resolution failed")
		return nil, nil, err
	}

	uc := s.memory.GetUserContext(ctx, user.ID)

	// The row is written before any audio flows so the client can address
	// the stream immediately; its id is minted exactly once, here.
	session, err := s.memory.RecordTurn(ctx, user.ID, "[Voice Session Started]", nil, types.ModeVoice)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session persistence failed")
		return nil, nil, err
	}

	s.live.SetDefault(session.SessionID.String(), user.ID)
	greeting := s.provider.StartSession(ctx, session.SessionID.String(), uc)

	l.InfoContext(ctx, "Voice session started",
		slog.String("userID", user.ID.String()),
		slog.String("sessionID", session.SessionID.String()),
		slog.String("greeting", greeting),
	)
	span.SetAttributes(attribute.String("session.id", session.SessionID.String()))
	return session, user, nil
}

func (s *ServiceImpl) EmulatedTurn(ctx context.Context, identifier, phone, transcript string) (*types.TurnResult, error) {
	return s.assistant.ChatTurn(ctx, identifier, phone, transcript, types.ModeVoiceEmulated)
}

func (s *ServiceImpl) LookupStream(ctx context.Context, sessionID uuid.UUID) (*types.User, error) {
	if userID, ok := s.live.Get(sessionID.String()); ok {
		if id, ok := userID.(uuid.UUID); ok {
			return s.memory.GetUserByID(ctx, id)
		}
	}

	// Fall back to the store: a session may outlive this process.
	session, err := s.memory.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("error looking up voice session: %w", err)
	}

	s.live.SetDefault(sessionID.String(), session.UserID)
	return s.memory.GetUserByID(ctx, session.UserID)
}

func (s *ServiceImpl) StreamTurn(ctx context.Context, user *types.User, transcript string) (string, error) {
	ctx, span := otel.Tracer("Voice").Start(ctx, "StreamTurn")
	defer span.End()

	uc := s.memory.GetUserContext(ctx, user.ID)
	reply := s.provider.RespondToTranscript(transcript, uc)

	turnTranscript := fmt.Sprintf("User: %s\nAI: %s", transcript, reply)
	if _, err := s.memory.RecordTurn(context.WithoutCancel(ctx), user.ID, turnTranscript, nil, types.ModeVoice); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Stream turn persistence failed")
		return "", err
	}

	return reply, nil
}
