package dialog

import (
	"context"

	"finman/internal/models"
)

// Content is one inbound message body. Image is set for photos and scanned
// receipts; Text then carries the caption, if any.
type Content struct {
	Text  string
	Image []byte
	MIME  string
}

func (c Content) IsImage() bool {
	return len(c.Image) > 0
}

// Inbound is a message delivered by a transport. UserID is trusted as already
// authenticated. ID is the transport's message id and may be empty.
type Inbound struct {
	ID      string
	UserID  string
	Content Content
	// Fetch, when set, produces Content on the user's worker. Transports use
	// it for attachments that still have to be downloaded.
	Fetch func(ctx context.Context) (Content, error)
}

type Extractor interface {
	Extract(ctx context.Context, content Content) ([]Candidate, error)
}

// ExpenseStore is append-only. Insert must return the previously stored
// record when one already exists for expense.ConversationID.
type ExpenseStore interface {
	Insert(ctx context.Context, expense *models.Expense) (*models.Expense, error)
}

type Sender interface {
	Send(ctx context.Context, userID, text string) error
}
