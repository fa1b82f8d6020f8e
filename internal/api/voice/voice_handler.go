package voice

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/go-insurance-assistant/internal/api"
	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	StartVoiceSession(w http.ResponseWriter, r *http.Request)
	VoiceChat(w http.ResponseWriter, r *http.Request)
	VoiceStream(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	voiceService Service
	wsBasePath   string
	logger       *slog.Logger
}

func NewHandlerImpl(voiceService Service, wsBasePath string, logger *slog.Logger) *HandlerImpl {
	if wsBasePath == "" {
		wsBasePath = "/api/v1/voice-stream"
	}
	return &HandlerImpl{
		voiceService: voiceService,
		wsBasePath:   strings.TrimSuffix(wsBasePath, "/"),
		logger:       logger,
	}
}

// StartVoiceSession godoc
// @Summary      Start Voice Session
// @Description  Initializes a voice session: resolves or creates the caller, persists the session row before any audio, and returns the stream address.
// @Tags         Voice
// @Accept       json
// @Produce      json
// @Param        request body api.VoiceSessionRequest true "Voice Session Request"
// @Success      200 {object} api.VoiceSessionResponse "Initialized session"
// @Failure      400 {object} api.Response "No identifying information supplied"
// @Failure      500 {object} api.Response "Store failure"
// @Router       /voice-session [post]
func (h *HandlerImpl) StartVoiceSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "StartVoiceSession"))

	var req api.VoiceSessionRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, user, err := h.voiceService.StartSession(ctx, req.UserIdentifier, req.PhoneNumber)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrInvalidArgument):
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, types.ErrConflict):
			api.ErrorResponse(w, r, http.StatusConflict, err.Error())
		default:
			l.ErrorContext(ctx, "Failed to start voice session", slog.Any("error", err))
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to start voice session")
		}
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.VoiceSessionResponse{
		SessionID: session.SessionID.String(),
		UserID:    user.ID.String(),
		Status:    "initialized",
		WsURL:     h.wsBasePath + "/" + session.SessionID.String(),
	})
}

// VoiceChat godoc
// @Summary      Emulated Voice Turn
// @Description  Processes one emulated voice turn: the browser does STT and sends the transcript; the reply text is spoken client-side.
// @Tags         Voice
// @Accept       json
// @Produce      json
// @Param        request body api.VoiceChatRequest true "Voice Chat Request"
// @Success      200 {object} api.VoiceChatResponse "Reply text"
// @Failure      400 {object} api.Response "No identifying information supplied"
// @Failure      500 {object} api.Response "Store failure"
// @Router       /voice-chat [post]
func (h *HandlerImpl) VoiceChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "VoiceChat"))

	var req api.VoiceChatRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Transcript == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "transcript must not be empty")
		return
	}

	result, err := h.voiceService.EmulatedTurn(ctx, req.UserIdentifier, req.PhoneNumber, req.Transcript)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrInvalidArgument):
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		default:
			l.ErrorContext(ctx, "Emulated voice turn failed", slog.Any("error", err))
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to process voice turn")
		}
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.VoiceChatResponse{
		TextResponse: result.Response,
	})
}

// VoiceStream upgrades to a websocket for bidirectional voice streaming.
// Text frames are treated as transcripts and answered with a text reply
// followed by a placeholder audio frame; binary frames (raw audio) are
// acknowledged with placeholder audio until real STT lands.
func (h *HandlerImpl) VoiceStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "VoiceStream"))

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		l.ErrorContext(ctx, "Failed to accept websocket", slog.Any("error", err))
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "session ended")

	user, err := h.voiceService.LookupStream(ctx, sessionID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			ws.Close(websocket.StatusPolicyViolation, "session not found")
			return
		}
		l.ErrorContext(ctx, "Voice stream lookup failed", slog.Any("error", err))
		ws.Close(websocket.StatusInternalError, "internal error")
		return
	}

	l.InfoContext(ctx, "Voice stream opened",
		slog.String("sessionID", sessionID.String()),
		slog.String("userID", user.ID.String()),
	)

	provider := h.voiceService.Provider()
	for {
		msgType, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				l.InfoContext(ctx, "Voice stream closed by client", slog.String("sessionID", sessionID.String()))
			} else {
				l.WarnContext(ctx, "Voice stream read error", slog.Any("error", err))
			}
			return
		}

		switch msgType {
		case websocket.MessageText:
			reply, err := h.voiceService.StreamTurn(ctx, user, string(message))
			if err != nil {
				l.ErrorContext(ctx, "Stream turn failed", slog.Any("error", err))
				ws.Close(websocket.StatusInternalError, "internal error")
				return
			}
			if err := ws.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
				l.WarnContext(ctx, "Voice stream write error", slog.Any("error", err))
				return
			}
			if err := ws.Write(ctx, websocket.MessageBinary, provider.SynthesizeSpeech(reply)); err != nil {
				l.WarnContext(ctx, "Voice stream audio write error", slog.Any("error", err))
				return
			}
		case websocket.MessageBinary:
			// Raw audio: STT is not wired up yet, acknowledge with silence.
			if err := ws.Write(ctx, websocket.MessageBinary, provider.SynthesizeSpeech("")); err != nil {
				l.WarnContext(ctx, "Voice stream audio write error", slog.Any("error", err))
				return
			}
		}
	}
}
