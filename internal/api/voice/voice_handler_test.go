package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-insurance-assistant/internal/api"
	"github.com/FACorreiaa/go-insurance-assistant/internal/api/novasonic"
	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

// MockVoiceService is a mock implementation of Service
type MockVoiceService struct {
	mock.Mock
}

func (m *MockVoiceService) StartSession(ctx context.Context, identifier, phone string) (*types.Session, *types.User, error) {
	args := m.Called(ctx, identifier, phone)
	var session *types.Session
	var user *types.User
	if args.Get(0) != nil {
		session = args.Get(0).(*types.Session)
	}
	if args.Get(1) != nil {
		user = args.Get(1).(*types.User)
	}
	return session, user, args.Error(2)
}

func (m *MockVoiceService) EmulatedTurn(ctx context.Context, identifier, phone, transcript string) (*types.TurnResult, error) {
	args := m.Called(ctx, identifier, phone, transcript)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TurnResult), args.Error(1)
}

func (m *MockVoiceService) LookupStream(ctx context.Context, sessionID uuid.UUID) (*types.User, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockVoiceService) StreamTurn(ctx context.Context, user *types.User, transcript string) (string, error) {
	args := m.Called(ctx, user, transcript)
	return args.String(0), args.Error(1)
}

func (m *MockVoiceService) Provider() *novasonic.Provider {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*novasonic.Provider)
}

func setupVoiceHandlerTest() (*HandlerImpl, *MockVoiceService) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockService := new(MockVoiceService)
	handler := NewHandlerImpl(mockService, "/api/v1/voice-stream", logger)
	return handler, mockService
}

func postJSON(t *testing.T, fn http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	fn(rr, req)
	return rr
}

func TestHandlerImpl_StartVoiceSession(t *testing.T) {
	t.Run("returns the stream address for the new session", func(t *testing.T) {
		handler, mockService := setupVoiceHandlerTest()
		sessionID := uuid.New()
		userID := uuid.New()

		mockService.On("StartSession", mock.Anything, "u-1", "").
			Return(&types.Session{SessionID: sessionID, UserID: userID, Mode: types.ModeVoice},
				&types.User{ID: userID}, nil).Once()

		rr := postJSON(t, handler.StartVoiceSession, "/api/v1/voice-session",
			api.VoiceSessionRequest{UserIdentifier: "u-1"})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp api.VoiceSessionResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, sessionID.String(), resp.SessionID)
		assert.Equal(t, userID.String(), resp.UserID)
		assert.Equal(t, "initialized", resp.Status)
		assert.Equal(t, "/api/v1/voice-stream/"+sessionID.String(), resp.WsURL)
		mockService.AssertExpectations(t)
	})

	t.Run("missing identity maps to 400", func(t *testing.T) {
		handler, mockService := setupVoiceHandlerTest()
		mockService.On("StartSession", mock.Anything, "", "").
			Return(nil, nil, types.ErrInvalidArgument).Once()

		rr := postJSON(t, handler.StartVoiceSession, "/api/v1/voice-session", api.VoiceSessionRequest{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})
}

func TestHandlerImpl_VoiceChat(t *testing.T) {
	t.Run("returns the reply text for the transcript", func(t *testing.T) {
		handler, mockService := setupVoiceHandlerTest()
		mockService.On("EmulatedTurn", mock.Anything, "u-1", "", "hello").
			Return(&types.TurnResult{Response: "Hi there."}, nil).Once()

		rr := postJSON(t, handler.VoiceChat, "/api/v1/voice-chat",
			api.VoiceChatRequest{Transcript: "hello", UserIdentifier: "u-1"})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp api.VoiceChatResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "Hi there.", resp.TextResponse)
		mockService.AssertExpectations(t)
	})

	t.Run("empty transcript is rejected with 400", func(t *testing.T) {
		handler, mockService := setupVoiceHandlerTest()

		rr := postJSON(t, handler.VoiceChat, "/api/v1/voice-chat",
			api.VoiceChatRequest{UserIdentifier: "u-1"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "EmulatedTurn")
	})
}

func TestHandlerImpl_VoiceStream(t *testing.T) {
	t.Run("malformed session id is rejected before the upgrade", func(t *testing.T) {
		handler, mockService := setupVoiceHandlerTest()

		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("sessionID", "not-a-uuid")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/voice-stream/not-a-uuid", nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rr := httptest.NewRecorder()
		handler.VoiceStream(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "LookupStream")
	})
}
