package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-insurance-assistant/internal/api"
	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

// MockAssistantService is a mock implementation of Service
type MockAssistantService struct {
	mock.Mock
}

func (m *MockAssistantService) ChatTurn(ctx context.Context, identifier, phone, message string, mode types.SessionMode) (*types.TurnResult, error) {
	args := m.Called(ctx, identifier, phone, message, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TurnResult), args.Error(1)
}

func setupChatHandlerTest() (*HandlerImpl, *MockAssistantService) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockService := new(MockAssistantService)
	handler := NewHandlerImpl(mockService, logger)
	return handler, mockService
}

func postChat(t *testing.T, handler *HandlerImpl, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.Chat(rr, req)
	return rr
}

func TestHandlerImpl_Chat(t *testing.T) {
	t.Run("completed turn returns 200 with the reply", func(t *testing.T) {
		handler, mockService := setupChatHandlerTest()
		result := &types.TurnResult{
			Response:       "Hello Alice!",
			UserID:         "11111111-1111-1111-1111-111111111111",
			SessionID:      "22222222-2222-2222-2222-222222222222",
			StructuredData: map[string]any{"name": "Alice"},
		}
		mockService.On("ChatTurn", mock.Anything, "u-1", "", "hi, I'm Alice", types.ModeChat).
			Return(result, nil).Once()

		rr := postChat(t, handler, api.ChatRequest{Message: "hi, I'm Alice", UserIdentifier: "u-1"})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp api.ChatResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "Hello Alice!", resp.Response)
		assert.Equal(t, result.UserID, resp.UserID)
		assert.Equal(t, result.SessionID, resp.SessionID)
		assert.Equal(t, "Alice", resp.StructuredData["name"])
		mockService.AssertExpectations(t)
	})

	t.Run("degraded turn still returns 200", func(t *testing.T) {
		handler, mockService := setupChatHandlerTest()
		result := &types.TurnResult{
			Response:  FallbackResponse,
			UserID:    "11111111-1111-1111-1111-111111111111",
			SessionID: "22222222-2222-2222-2222-222222222222",
			Degraded:  true,
		}
		mockService.On("ChatTurn", mock.Anything, "u-1", "", "hi", types.ModeChat).
			Return(result, nil).Once()

		rr := postChat(t, handler, api.ChatRequest{Message: "hi", UserIdentifier: "u-1"})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp api.ChatResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, FallbackResponse, resp.Response)
		mockService.AssertExpectations(t)
	})

	t.Run("empty message is rejected with 400", func(t *testing.T) {
		handler, mockService := setupChatHandlerTest()

		rr := postChat(t, handler, api.ChatRequest{UserIdentifier: "u-1"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "ChatTurn")
	})

	t.Run("missing identity maps to 400", func(t *testing.T) {
		handler, mockService := setupChatHandlerTest()
		mockService.On("ChatTurn", mock.Anything, "", "", "hi", types.ModeChat).
			Return(nil, types.ErrInvalidArgument).Once()

		rr := postChat(t, handler, api.ChatRequest{Message: "hi"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("create race maps to 409", func(t *testing.T) {
		handler, mockService := setupChatHandlerTest()
		mockService.On("ChatTurn", mock.Anything, "u-1", "", "hi", types.ModeChat).
			Return(nil, types.ErrConflict).Once()

		rr := postChat(t, handler, api.ChatRequest{Message: "hi", UserIdentifier: "u-1"})
		assert.Equal(t, http.StatusConflict, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("store failure maps to 500", func(t *testing.T) {
		handler, mockService := setupChatHandlerTest()
		mockService.On("ChatTurn", mock.Anything, "u-1", "", "hi", types.ModeChat).
			Return(nil, errors.New("db down")).Once()

		rr := postChat(t, handler, api.ChatRequest{Message: "hi", UserIdentifier: "u-1"})
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("malformed body is rejected with 400", func(t *testing.T) {
		handler, mockService := setupChatHandlerTest()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		handler.Chat(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "ChatTurn")
	})
}
