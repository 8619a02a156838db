package dto

// ChatMessageRequest is the JSON form of an inbound chat message. MessageID
// is optional; clients that retry should resend the same value.
type ChatMessageRequest struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

type ChatMessageResponse struct {
	Replies []string         `json:"replies"`
	State   string           `json:"state"`
	Expense *ExpenseResponse `json:"expense,omitempty"`
}
