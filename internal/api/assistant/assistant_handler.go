package assistant

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/go-insurance-assistant/internal/api"
	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	Chat(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	assistantService Service
	logger           *slog.Logger
}

func NewHandlerImpl(assistantService Service, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		assistantService: assistantService,
		logger:           logger,
	}
}

// Chat godoc
// @Summary      Chat Turn
// @Description  Processes one text chat turn: loads the caller's profile and recent history, asks the model, merges extracted fields back into the profile, and logs the exchange.
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Param        request body api.ChatRequest true "Chat Turn Request"
// @Success      200 {object} api.ChatResponse "Completed turn (possibly with fallback text)"
// @Failure      400 {object} api.Response "No identifying information supplied"
// @Failure      409 {object} api.Response "Concurrent user creation conflict"
// @Failure      500 {object} api.Response "Store failure"
// @Router       /chat [post]
func (h *HandlerImpl) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Chat"))

	var req api.ChatRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "message must not be empty")
		return
	}

	result, err := h.assistantService.ChatTurn(ctx, req.UserIdentifier, req.PhoneNumber, req.Message, types.ModeChat)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrInvalidArgument):
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, types.ErrConflict):
			api.ErrorResponse(w, r, http.StatusConflict, err.Error())
		default:
			l.ErrorContext(ctx, "Chat turn failed", slog.Any("error", err))
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to process chat turn")
		}
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.ChatResponse{
		Response:       result.Response,
		UserID:         result.UserID,
		SessionID:      result.SessionID,
		StructuredData: result.StructuredData,
	})
}
