package types

// UserContext is the bundle of profile fields plus recent session summaries
// sent to the model as conversational memory. It is the only history the
// model ever sees.
type UserContext struct {
	IsNewUser           bool             `json:"is_new_user"`
	Name                *string          `json:"name,omitempty"`
	Age                 *int             `json:"age,omitempty"`
	Location            *string          `json:"location,omitempty"`
	InsuranceInterest   *string          `json:"insurance_interest,omitempty"`
	LastSummary         *string          `json:"last_summary,omitempty"`
	ConversationHistory []SessionSummary `json:"conversation_history,omitempty"`
}

// ModelResult is what a model client produces for one turn.
type ModelResult struct {
	Response       string         `json:"response"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
	ModelUsed      string         `json:"model_used,omitempty"`
}

// TurnResult is the orchestrator's typed outcome for one completed turn.
// Degraded marks turns where the upstream model failed and the fixed
// fallback text was substituted; the turn still completed and was logged.
type TurnResult struct {
	Response       string         `json:"response"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
	UserID         string         `json:"user_id"`
	SessionID      string         `json:"session_id"`
	Degraded       bool           `json:"-"`
}
