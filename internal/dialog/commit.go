package dialog

import (
	"context"
	"fmt"
	"time"

	"finman/internal/models"
	"finman/pkg/clock"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const committedCacheSize = 4096

// Coordinator performs the final write of a conversation. A conversation id
// is written at most once: recently committed ids are answered from memory
// and the store itself rejects a second row for the same id.
type Coordinator struct {
	store     ExpenseStore
	timeout   time.Duration
	clock     clock.Clock
	committed *expirable.LRU[uuid.UUID, *models.Expense]
	logger    *zap.Logger
}

func NewCoordinator(store ExpenseStore, timeout, window time.Duration, clk clock.Clock, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		timeout:   timeout,
		clock:     clk,
		committed: expirable.NewLRU[uuid.UUID, *models.Expense](committedCacheSize, nil, window),
		logger:    logger,
	}
}

// Validate checks the fields a record needs before it may reach storage.
func Validate(c *Candidate) error {
	if !c.Amount.Round(2).IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	if c.Amount.GreaterThan(models.MaxAmount) {
		return fmt.Errorf("%w: amount must not exceed %s", ErrValidation, models.MaxAmount.StringFixed(2))
	}
	if !c.Category.Valid() {
		return fmt.Errorf("%w: category %q is not supported", ErrValidation, c.Category)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrValidation)
	}
	return nil
}

// Commit writes the candidate of a session in the Committing phase.
func (c *Coordinator) Commit(ctx context.Context, session *Session) (*models.Expense, error) {
	cand := session.Candidate()
	if cand == nil {
		return nil, fmt.Errorf("%w: session has no candidate", ErrValidation)
	}
	if err := Validate(cand); err != nil {
		return nil, err
	}

	if existing, ok := c.committed.Get(session.ConversationID); ok {
		c.logger.Info("Duplicate commit answered from cache",
			zap.String("user_id", session.UserID),
			zap.String("conversation_id", session.ConversationID.String()),
		)
		return existing, nil
	}

	expense := &models.Expense{
		ID:             uuid.New(),
		ConversationID: session.ConversationID,
		UserID:         session.UserID,
		Name:           cand.Name,
		Category:       cand.Category,
		Amount:         cand.Amount.Round(2),
		Source:         session.Source,
		CommittedAt:    c.clock.Now(),
	}

	stored, err := withTimeout(ctx, c.timeout, func(ctx context.Context) (*models.Expense, error) {
		return c.store.Insert(ctx, expense)
	})
	if err != nil {
		c.logger.Error("Failed to commit expense",
			zap.String("user_id", session.UserID),
			zap.String("conversation_id", session.ConversationID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	c.committed.Add(session.ConversationID, stored)
	c.logger.Info("Expense committed",
		zap.String("user_id", stored.UserID),
		zap.String("expense_id", stored.ID.String()),
		zap.String("conversation_id", stored.ConversationID.String()),
		zap.String("amount", stored.Amount.StringFixed(2)),
		zap.String("category", string(stored.Category)),
	)
	return stored, nil
}

// withTimeout bounds fn by d even when fn does not watch its context.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
