package dto

import "finman/internal/models"

type ExpenseResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Amount         string `json:"amount"`
	Source         string `json:"source"`
	CommittedAt    string `json:"committed_at"`
}

type ExpenseListResponse struct {
	Expenses []ExpenseResponse `json:"expenses"`
	Total    int               `json:"total"`
}

func NewExpenseResponse(e *models.Expense) ExpenseResponse {
	return ExpenseResponse{
		ID:             e.ID.String(),
		ConversationID: e.ConversationID.String(),
		Name:           e.Name,
		Category:       string(e.Category),
		Amount:         e.Amount.StringFixed(2),
		Source:         string(e.Source),
		CommittedAt:    e.CommittedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
