package generativeAI

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

// ModelClient is the single upstream collaborator contract: one message plus
// the assembled user context in, reply text plus extracted fields out.
// Implementations must tolerate the provider returning non-JSON content;
// only transport-level failures surface as errors.
type ModelClient interface {
	Chat(ctx context.Context, message string, uc types.UserContext) (*types.ModelResult, error)
}

const systemPrompt = `You are a professional insurance assistant. Your role is to help users with insurance inquiries, policy recommendations, and claim assistance.

PERSONALITY:
- Be polite, patient, and professional
- Ask one question at a time
- Confirm important details before storing
- Be empathetic and understanding

DATA COLLECTION RULES:
- Collect name, age, location, and insurance interest progressively
- Never ask for all information at once
- Confirm existing information if the user has interacted before

LIMITATIONS:
- Do not make legal commitments or guarantees
- Do not quote specific policy prices without verification
- Offer to transfer to a human agent for complex cases

RESPONSE FORMAT:
Reply with a single JSON object:
{"response": "<2-3 concise sentences for the user>", "structured_data": {"name": "", "age": 0, "location": "", "insurance_interest": "", "intent": "", "topics": []}}
Include in structured_data only the fields the user actually stated this turn.`

// contextBlock renders the user context as an extra system instruction.
// New users get no block; the model starts from a clean slate.
func contextBlock(uc types.UserContext) string {
	if uc.IsNewUser {
		return ""
	}

	var b strings.Builder
	b.WriteString("Previous user information:")
	if uc.Name != nil {
		fmt.Fprintf(&b, " name=%s", *uc.Name)
	}
	if uc.Age != nil {
		fmt.Fprintf(&b, " age=%d", *uc.Age)
	}
	if uc.Location != nil {
		fmt.Fprintf(&b, " location=%s", *uc.Location)
	}
	if uc.InsuranceInterest != nil {
		fmt.Fprintf(&b, " insurance_interest=%s", *uc.InsuranceInterest)
	}
	if uc.LastSummary != nil && *uc.LastSummary != "" {
		fmt.Fprintf(&b, "\nPrevious conversation summary: %s", *uc.LastSummary)
	}
	for _, h := range uc.ConversationHistory {
		fmt.Fprintf(&b, "\n[%s %s] %s", h.Timestamp.Format("2006-01-02 15:04"), h.Mode, h.Summary)
	}
	return b.String()
}

// modelPayload is the JSON shape the system prompt asks the model for.
type modelPayload struct {
	Response       string         `json:"response"`
	StructuredData map[string]any `json:"structured_data"`
}

// parseModelOutput decodes the model's reply. Fenced code blocks are
// stripped first. Non-JSON output is not an error: the raw text passes
// through as the reply and the extraction stays empty.
func parseModelOutput(raw, modelUsed string) *types.ModelResult {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var payload modelPayload
	if err := json.Unmarshal([]byte(text), &payload); err == nil && payload.Response != "" {
		return &types.ModelResult{
			Response:       payload.Response,
			StructuredData: payload.StructuredData,
			ModelUsed:      modelUsed,
		}
	}

	return &types.ModelResult{
		Response:  strings.TrimSpace(raw),
		ModelUsed: modelUsed,
	}
}
