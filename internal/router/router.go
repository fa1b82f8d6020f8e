package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/FACorreiaa/go-insurance-assistant/internal/api/assistant"
	"github.com/FACorreiaa/go-insurance-assistant/internal/api/voice"
)

// Config contains the handlers needed for the router setup.
type Config struct {
	AssistantHandler assistant.Handler
	VoiceHandler     voice.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are expected to be
// applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Get("/docs/*", httpSwagger.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", cfg.AssistantHandler.Chat)
		r.Post("/voice-session", cfg.VoiceHandler.StartVoiceSession)
		r.Post("/voice-chat", cfg.VoiceHandler.VoiceChat)
		r.Get("/voice-stream/{sessionID}", cfg.VoiceHandler.VoiceStream)
	})

	return r
}
