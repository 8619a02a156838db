package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"finman/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	// sqlite driver
	_ "modernc.org/sqlite"
)

// OpenSQLite opens the database at path and runs the migrations. ":memory:"
// gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases shared and serializes writers
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	for i, m := range sqliteMigrations {
		if _, err := conn.ExecContext(ctx, m); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return conn, nil
}

var sqlErrNoRows = sql.ErrNoRows

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type SQLiteExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteExpenseRepository(db *sql.DB, logger *zap.Logger) *SQLiteExpenseRepository {
	return &SQLiteExpenseRepository{db: db, logger: logger}
}

func (r *SQLiteExpenseRepository) Insert(ctx context.Context, e *models.Expense) (*models.Expense, error) {
	if err := checkExpense(e); err != nil {
		return nil, err
	}

	query := squirrel.Insert("expenses").
		Columns(expenseColumns...).
		Values(e.ID.String(), e.ConversationID.String(), e.UserID, e.Name, string(e.Category), e.Amount.StringFixed(2), string(e.Source), e.CommittedAt.UTC()).
		Suffix("ON CONFLICT (conversation_id) DO NOTHING").
		PlaceholderFormat(squirrel.Question)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.GetByConversationID(ctx, e.ConversationID)
	}

	stored := *e
	stored.Amount = e.Amount.Round(2)
	return &stored, nil
}

func (r *SQLiteExpenseRepository) GetByConversationID(ctx context.Context, conversationID uuid.UUID) (*models.Expense, error) {
	sql, args, err := selectSQLiteExpenses().
		Where(squirrel.Eq{"conversation_id": conversationID.String()}).
		ToSql()
	if err != nil {
		return nil, err
	}

	e, err := scanExpense(r.db.QueryRowContext(ctx, sql, args...))
	if errors.Is(err, sqlErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *SQLiteExpenseRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Expense, error) {
	sql, args, err := selectSQLiteExpenses().
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("committed_at DESC").
		Limit(listLimit(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, sql, args...)
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

func selectSQLiteExpenses() squirrel.SelectBuilder {
	return squirrel.Select(expenseColumns...).
		From("expenses").
		PlaceholderFormat(squirrel.Question)
}

type SQLiteUserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteUserRepository(db *sql.DB, logger *zap.Logger) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db, logger: logger}
}

func (r *SQLiteUserRepository) Create(ctx context.Context, user *models.User) error {
	sql, args, err := squirrel.Insert("users").
		Columns(userColumns...).
		Values(user.ID.String(), user.Username, user.Email, user.PasswordHash, user.CreatedAt.UTC(), user.UpdatedAt.UTC()).
		PlaceholderFormat(squirrel.Question).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email already registered", ErrInvalidData)
		}
		return err
	}
	return nil
}

func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email})
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id.String()})
}

func (r *SQLiteUserRepository) getOne(ctx context.Context, where squirrel.Eq) (*models.User, error) {
	sql, args, err := squirrel.Select(userColumns...).
		From("users").
		Where(where).
		PlaceholderFormat(squirrel.Question).
		ToSql()
	if err != nil {
		return nil, err
	}

	var user models.User
	err = r.db.QueryRowContext(ctx, sql, args...).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sqlErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
