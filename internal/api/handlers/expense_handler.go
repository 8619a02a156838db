package handlers

import (
	"context"

	"finman/internal/dto"
	"finman/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ExpenseLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Expense, error)
}

type ExpenseHandler struct {
	expenses ExpenseLister
	logger   *zap.Logger
}

func NewExpenseHandler(expenses ExpenseLister, logger *zap.Logger) *ExpenseHandler {
	return &ExpenseHandler{
		expenses: expenses,
		logger:   logger,
	}
}

// ListExpenses godoc
// @Summary List committed expenses
// @Description Get the user's committed expenses, newest first
// @Tags expenses
// @Produce json
// @Param limit query int false "Limit" default(50)
// @Security Bearer
// @Success 200 {object} dto.ExpenseListResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/expenses [get]
func (h *ExpenseHandler) ListExpenses(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	expenses, err := h.expenses.ListByUser(c.Context(), userID, c.QueryInt("limit", 50))
	if err != nil {
		h.logger.Error("Failed to list expenses", zap.String("user_id", userID), zap.Error(err))
		return respondError(c, fiber.StatusInternalServerError, "Failed to list expenses")
	}

	resp := dto.ExpenseListResponse{
		Expenses: make([]dto.ExpenseResponse, 0, len(expenses)),
		Total:    len(expenses),
	}
	for _, e := range expenses {
		resp.Expenses = append(resp.Expenses, dto.NewExpenseResponse(e))
	}
	return c.JSON(resp)
}
