package dialog

import (
	"time"

	"finman/internal/models"

	"github.com/google/uuid"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingExtraction
	StateAwaitingClarification
	StateAwaitingConfirmation
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingExtraction:
		return "awaiting_extraction"
	case StateAwaitingClarification:
		return "awaiting_clarification"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateCommitting:
		return "committing"
	}
	return "unknown"
}

// Phase is the state-specific payload of a stored session. The concrete types
// are Clarifying, Confirming and Committing; Idle is the absence of a session.
type Phase interface {
	State() State
	candidate() *Candidate
}

type Clarifying struct {
	Candidate Candidate
	Question  Field
	Turns     int
}

type Confirming struct {
	Candidate Candidate
	Turns     int
}

type Committing struct {
	Candidate Candidate
}

func (*Clarifying) State() State { return StateAwaitingClarification }
func (*Confirming) State() State { return StateAwaitingConfirmation }
func (*Committing) State() State { return StateCommitting }

func (p *Clarifying) candidate() *Candidate { return &p.Candidate }
func (p *Confirming) candidate() *Candidate { return &p.Candidate }
func (p *Committing) candidate() *Candidate { return &p.Candidate }

type Session struct {
	UserID string
	// ConversationID is the idempotency token of the commit.
	ConversationID uuid.UUID
	Source         models.ExpenseSource
	CreatedAt      time.Time
	LastActivityAt time.Time
	Phase          Phase
}

func (s *Session) State() State {
	if s == nil || s.Phase == nil {
		return StateIdle
	}
	return s.Phase.State()
}

// Candidate returns the current draft, or nil when the session has none.
func (s *Session) Candidate() *Candidate {
	if s == nil || s.Phase == nil {
		return nil
	}
	return s.Phase.candidate()
}

func (s *Session) clone() *Session {
	cp := *s
	switch p := s.Phase.(type) {
	case *Clarifying:
		q := *p
		q.Candidate = p.Candidate.clone()
		cp.Phase = &q
	case *Confirming:
		q := *p
		q.Candidate = p.Candidate.clone()
		cp.Phase = &q
	case *Committing:
		q := *p
		q.Candidate = p.Candidate.clone()
		cp.Phase = &q
	}
	return &cp
}
