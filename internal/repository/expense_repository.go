package repository

import (
	"context"
	"errors"
	"fmt"

	"finman/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ExpenseRepository is the Postgres expense store. Rows are append-only and
// unique per conversation id.
type ExpenseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewExpenseRepository(db *pgxpool.Pool, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores e unless its conversation was stored before, in which case
// the existing row is returned.
func (r *ExpenseRepository) Insert(ctx context.Context, e *models.Expense) (*models.Expense, error) {
	if err := checkExpense(e); err != nil {
		return nil, err
	}

	query := squirrel.Insert("expenses").
		Columns(expenseColumns...).
		Values(e.ID, e.ConversationID, e.UserID, e.Name, string(e.Category), e.Amount.StringFixed(2), string(e.Source), e.CommittedAt).
		Suffix("ON CONFLICT (conversation_id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Info("Expense already stored for conversation",
			zap.String("conversation_id", e.ConversationID.String()),
		)
		return r.GetByConversationID(ctx, e.ConversationID)
	}

	stored := *e
	stored.Amount = e.Amount.Round(2)
	return &stored, nil
}

func (r *ExpenseRepository) GetByConversationID(ctx context.Context, conversationID uuid.UUID) (*models.Expense, error) {
	query := r.selectExpenses().
		Where(squirrel.Eq{"conversation_id": conversationID})

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	e, err := scanExpense(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListByUser returns the newest expenses of a user first.
func (r *ExpenseRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Expense, error) {
	query := r.selectExpenses().
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("committed_at DESC").
		Limit(listLimit(limit))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []*models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (r *ExpenseRepository) selectExpenses() squirrel.SelectBuilder {
	return squirrel.Select("id", "conversation_id", "user_id", "name", "category", "amount::text", "source", "committed_at").
		From("expenses").
		PlaceholderFormat(squirrel.Dollar)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	var (
		e        models.Expense
		category string
		amount   string
		source   string
	)
	if err := row.Scan(&e.ID, &e.ConversationID, &e.UserID, &e.Name, &category, &amount, &source, &e.CommittedAt); err != nil {
		return nil, err
	}
	d, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	e.Amount = d
	e.Category = models.ExpenseCategory(category)
	e.Source = models.ExpenseSource(source)
	return &e, nil
}
