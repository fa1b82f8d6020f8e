package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

// ContextWindowSize is how many trailing sessions are summarized into the
// model context.
const ContextWindowSize = 3

// summaryMaxLen bounds each session summary; longer transcripts are cut and
// marked with an ellipsis.
const summaryMaxLen = 200

// Ensure implementation satisfies the interface
var _ Service = (*ServiceImpl)(nil)

// Service defines the business logic contract for conversation memory:
// user resolution, context assembly, and the extraction-driven profile merge.
type Service interface {
	// ResolveOrCreateUser finds a user by either identity key or creates one.
	// Returns types.ErrInvalidArgument when both keys are empty and
	// types.ErrConflict when a concurrent create raced on a unique column.
	ResolveOrCreateUser(ctx context.Context, identifier, phone string) (*types.User, error)

	// GetUserContext assembles the flattened context object for a user.
	// It never fails: an unknown user or a store error degrades to an
	// empty context marked IsNewUser.
	GetUserContext(ctx context.Context, userID uuid.UUID) types.UserContext

	// MergeParamsFromExtraction converts a model extraction into a partial
	// profile update: only present-and-truthy recognized keys are set.
	MergeParamsFromExtraction(extracted map[string]any) types.UpdateProfileParams

	// UpdateProfileFromExtraction applies the merge against the store.
	// Empty extraction or unknown user is a no-op returning the stored user
	// unchanged (nil if the user does not exist).
	UpdateProfileFromExtraction(ctx context.Context, userID uuid.UUID, extracted map[string]any) (*types.User, error)

	// RecordTurn persists the profile merge (derived from extracted) and the
	// session row as one atomic unit.
	RecordTurn(ctx context.Context, userID uuid.UUID, transcript string, extracted map[string]any, mode types.SessionMode) (*types.Session, error)

	// GetSession retrieves a single logged session.
	GetSession(ctx context.Context, sessionID uuid.UUID) (*types.Session, error)

	// GetUserByID retrieves one user by primary key.
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error)
}

// ServiceImpl provides the implementation for Service.
type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
}

// NewService creates a new memory service instance.
func NewService(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func (s *ServiceImpl) ResolveOrCreateUser(ctx context.Context, identifier, phone string) (*types.User, error) {
	ctx, span := otel.Tracer("MemoryService").Start(ctx, "ResolveOrCreateUser")
	defer span.End()

	l := s.logger.With(slog.String("method", "ResolveOrCreateUser"))

	if identifier == "" && phone == "" {
		l.WarnContext(ctx, "No identifying information supplied")
		span.SetStatus(codes.Error, "Missing identity")
		return nil, types.ErrInvalidArgument
	}

	user, err := s.repo.FindUserByIdentity(ctx, identifier, phone)
	if err == nil {
		span.SetAttributes(attribute.String("user.id", user.ID.String()))
		return user, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Identity lookup failed")
		return nil, fmt.Errorf("error resolving user: %w", err)
	}

	user, err = s.repo.CreateUser(ctx, identifier, phone)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			// Lost the create race; the winning row satisfies the lookup.
			if existing, findErr := s.repo.FindUserByIdentity(ctx, identifier, phone); findErr == nil {
				return existing, nil
			}
			return nil, types.ErrConflict
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "User creation failed")
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	l.InfoContext(ctx, "Created new user", slog.String("userID", user.ID.String()))
	span.SetAttributes(attribute.String("user.id", user.ID.String()), attribute.Bool("user.created", true))
	return user, nil
}

// summarizeTranscript truncates a transcript for the context window.
func summarizeTranscript(transcript string) string {
	if len(transcript) > summaryMaxLen {
		return transcript[:summaryMaxLen] + "..."
	}
	return transcript
}

func (s *ServiceImpl) GetUserContext(ctx context.Context, userID uuid.UUID) types.UserContext {
	ctx, span := otel.Tracer("MemoryService").Start(ctx, "GetUserContext")
	defer span.End()

	l := s.logger.With(slog.String("method", "GetUserContext"), slog.String("userID", userID.String()))

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			l.WarnContext(ctx, "Context assembly degraded to empty context", slog.Any("error", err))
		}
		span.SetAttributes(attribute.Bool("context.is_new_user", true))
		return types.UserContext{IsNewUser: true}
	}

	uc := types.UserContext{
		IsNewUser:         false,
		Name:              user.Name,
		Age:               user.Age,
		Location:          user.Location,
		InsuranceInterest: user.InsuranceInterest,
		LastSummary:       user.LastSummary,
	}

	sessions, err := s.repo.GetRecentSessions(ctx, userID, ContextWindowSize)
	if err != nil {
		// Profile fields alone are still useful context.
		l.WarnContext(ctx, "Failed to load recent sessions for context", slog.Any("error", err))
		return uc
	}

	for _, sess := range sessions {
		uc.ConversationHistory = append(uc.ConversationHistory, types.SessionSummary{
			Timestamp: sess.Timestamp,
			Mode:      sess.Mode,
			Summary:   summarizeTranscript(sess.Transcript),
		})
	}

	span.SetAttributes(attribute.Int("context.history_len", len(uc.ConversationHistory)))
	return uc
}

// truthyString returns a trimmed string when the value is a non-empty string.
func truthyString(v any) (string, bool) {
	str, ok := v.(string)
	if !ok {
		return "", false
	}
	str = strings.TrimSpace(str)
	return str, str != ""
}

// truthyAge coerces the extracted age to a non-negative int. JSON numbers
// arrive as float64; some models return the digits as a string.
func truthyAge(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return int(n), true
		}
	case int:
		if n > 0 {
			return n, true
		}
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil && parsed > 0 {
			return parsed, true
		}
	}
	return 0, false
}

func (s *ServiceImpl) MergeParamsFromExtraction(extracted map[string]any) types.UpdateProfileParams {
	var params types.UpdateProfileParams
	if len(extracted) == 0 {
		return params
	}

	if v, ok := extracted["name"]; ok {
		if str, ok := truthyString(v); ok {
			params.Name = &str
		}
	}
	if v, ok := extracted["age"]; ok {
		if age, ok := truthyAge(v); ok {
			params.Age = &age
		}
	}
	if v, ok := extracted["location"]; ok {
		if str, ok := truthyString(v); ok {
			params.Location = &str
		}
	}
	if v, ok := extracted["insurance_interest"]; ok {
		if str, ok := truthyString(v); ok {
			params.InsuranceInterest = &str
		}
	}

	// last_summary is derived, not extracted directly: intent and topics are
	// folded into a short description that replaces the previous value.
	var summaryParts []string
	if v, ok := extracted["intent"]; ok {
		if str, ok := truthyString(v); ok {
			summaryParts = append(summaryParts, "Intent: "+str)
		}
	}
	if v, ok := extracted["topics"]; ok {
		if topics := stringSlice(v); len(topics) > 0 {
			summaryParts = append(summaryParts, "Topics: "+strings.Join(topics, ", "))
		}
	}
	if len(summaryParts) > 0 {
		summary := strings.Join(summaryParts, "; ")
		params.LastSummary = &summary
	}

	return params
}

// stringSlice flattens a JSON array value into its non-empty string members.
func stringSlice(v any) []string {
	var out []string
	switch list := v.(type) {
	case []string:
		for _, item := range list {
			if item != "" {
				out = append(out, item)
			}
		}
	case []any:
		for _, item := range list {
			if str, ok := truthyString(item); ok {
				out = append(out, str)
			}
		}
	}
	return out
}

func (s *ServiceImpl) UpdateProfileFromExtraction(ctx context.Context, userID uuid.UUID, extracted map[string]any) (*types.User, error) {
	ctx, span := otel.Tracer("MemoryService").Start(ctx, "UpdateProfileFromExtraction")
	defer span.End()

	l := s.logger.With(slog.String("method", "UpdateProfileFromExtraction"), slog.String("userID", userID.String()))

	params := s.MergeParamsFromExtraction(extracted)
	if params.IsZero() {
		l.DebugContext(ctx, "Extraction carried no usable profile fields")
		user, err := s.repo.GetUserByID(ctx, userID)
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		return user, err
	}

	user, err := s.repo.UpdateProfile(ctx, userID, params)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Profile merge failed")
		return nil, fmt.Errorf("error merging profile: %w", err)
	}

	l.InfoContext(ctx, "Profile merged from extraction")
	return user, nil
}

func (s *ServiceImpl) RecordTurn(ctx context.Context, userID uuid.UUID, transcript string, extracted map[string]any, mode types.SessionMode) (*types.Session, error) {
	ctx, span := otel.Tracer("MemoryService").Start(ctx, "RecordTurn")
	defer span.End()

	params := s.MergeParamsFromExtraction(extracted)
	session, err := s.repo.RecordTurn(ctx, userID, params, transcript, extracted, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Turn persistence failed")
		return nil, fmt.Errorf("error recording turn: %w", err)
	}
	return session, nil
}

func (s *ServiceImpl) GetSession(ctx context.Context, sessionID uuid.UUID) (*types.Session, error) {
	return s.repo.GetSession(ctx, sessionID)
}

func (s *ServiceImpl) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}
