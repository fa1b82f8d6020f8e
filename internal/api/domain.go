package api

// ChatRequest represents the expected JSON body for a text chat turn.
type ChatRequest struct {
	Message        string `json:"message" binding:"required" example:"I am 30 and interested in life insurance"` // The user's message for this turn.
	UserIdentifier string `json:"user_identifier,omitempty" example:"u-1234"`                                    // Stable client-side identifier. Optional if phone_number is set.
	PhoneNumber    string `json:"phone_number,omitempty" example:"+15550123"`                                    // Caller phone number. Optional if user_identifier is set.
}

// ChatResponse represents the JSON response for a completed chat turn.
type ChatResponse struct {
	Response       string         `json:"response"`                  // Assistant reply text (or the fixed fallback on upstream failure).
	UserID         string         `json:"user_id"`                   // Owning user id.
	SessionID      string         `json:"session_id"`                // Id of the session row logged for this turn.
	StructuredData map[string]any `json:"structured_data,omitempty"` // Model-extracted key/value fields, may be empty.
}

// VoiceSessionRequest represents the expected JSON body for starting a voice session.
type VoiceSessionRequest struct {
	PhoneNumber    string `json:"phone_number,omitempty" example:"+15550123"`
	UserIdentifier string `json:"user_identifier,omitempty" example:"u-1234"`
}

// VoiceSessionResponse is returned before any audio processing begins so the
// client can address the streaming channel.
type VoiceSessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	WsURL     string `json:"ws_url,omitempty"`
}

// VoiceChatRequest represents the expected JSON body for an emulated voice
// turn: the browser does STT and sends the transcript.
type VoiceChatRequest struct {
	Transcript     string `json:"transcript" binding:"required"`
	UserIdentifier string `json:"user_identifier,omitempty"`
	PhoneNumber    string `json:"phone_number,omitempty"`
}

// VoiceChatResponse carries the text the browser should speak.
type VoiceChatResponse struct {
	TextResponse string `json:"text_response"`
}

// Response represents a generic API response for success or error messages.
type Response struct {
	Success bool   `json:"success" example:"true"`                           // Indicates if the operation was successful.
	Message string `json:"message,omitempty" example:"Operation successful"` // Optional success message.
	Error   string `json:"error,omitempty" example:"Resource not found"`     // Optional error message.
}
