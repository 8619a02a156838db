package dialog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finman/internal/models"
	"finman/pkg/clock"
	"finman/pkg/config"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const seenCacheSize = 8192

// Reply is the outcome of one turn.
type Reply struct {
	Text  string
	State State
	// Expense is set when the turn committed a record.
	Expense *models.Expense
	// Duplicate is set when the inbound message was already handled.
	Duplicate bool
	// Err classifies a failed turn; the user only sees Text.
	Err error
}

// Engine runs the clarification state machine for every user.
type Engine struct {
	store             *Store
	extractor         Extractor
	coordinator       *Coordinator
	policy            Policy
	extractionTimeout time.Duration
	// seen maps a delivered message to the reply it produced.
	seen              *expirable.LRU[string, Reply]
	clock             clock.Clock
	logger            *zap.Logger
}

func NewEngine(cfg *config.DialogConfig, store *Store, extractor Extractor, coordinator *Coordinator, clk clock.Clock, logger *zap.Logger) *Engine {
	return &Engine{
		store:       store,
		extractor:   extractor,
		coordinator: coordinator,
		policy: Policy{
			HighConfidence: cfg.HighConfidenceThreshold,
			LowConfidence:  cfg.LowConfidenceThreshold,
			MaxTurns:       cfg.MaxClarificationTurns,
		},
		extractionTimeout: cfg.ExtractionTimeout,
		seen:              expirable.NewLRU[string, Reply](seenCacheSize, nil, cfg.DedupWindow),
		clock:             clk,
		logger:            logger,
	}
}

// Handle processes one inbound message. Turns of the same user never overlap.
func (e *Engine) Handle(ctx context.Context, in Inbound) Reply {
	unlock := e.store.Lock(in.UserID)
	defer unlock()

	key := ""
	if in.ID != "" {
		key = in.UserID + "\x00" + in.ID
		if first, ok := e.seen.Get(key); ok {
			e.logger.Info("Duplicate message answered with its first reply",
				zap.String("user_id", in.UserID),
				zap.String("message_id", in.ID),
			)
			first.Duplicate = true
			return first
		}
	}

	reply := e.turn(ctx, in)
	if key != "" {
		e.seen.Add(key, reply)
	}
	return reply
}

// turn runs one message through the state machine under the user's lock.
func (e *Engine) turn(ctx context.Context, in Inbound) Reply {
	now := e.clock.Now()
	session, err := e.store.Get(in.UserID)
	prefix := ""
	if errors.Is(err, ErrSessionExpired) {
		prefix = msgExpired
	}

	var phase Phase
	if session != nil {
		phase = session.Phase
	}

	var reply Reply
	switch p := phase.(type) {
	case *Clarifying:
		reply = e.clarify(ctx, session, p, in.Content, now)
	case *Confirming:
		reply = e.confirm(ctx, session, p, in.Content, now)
	case *Committing:
		// a turn that died mid-commit; the user has to confirm again
		session.Phase = &Confirming{Candidate: p.Candidate}
		session.LastActivityAt = now
		e.store.Upsert(session)
		reply = Reply{Text: msgCommitTimeout, State: StateAwaitingConfirmation}
	default:
		reply = e.start(ctx, in.UserID, in.Content, now)
	}
	reply.Text = withPrefix(prefix, reply.Text)

	fields := []zap.Field{
		zap.String("user_id", in.UserID),
		zap.String("state", reply.State.String()),
	}
	if reply.Err != nil {
		fields = append(fields, zap.Error(reply.Err))
	}
	e.logger.Info("Turn handled", fields...)
	return reply
}

func (e *Engine) start(ctx context.Context, userID string, content Content, now time.Time) Reply {
	if !content.IsImage() {
		switch cmd := parseCommand(content.Text); {
		case cmd.kind == cmdConfirm, cmd.kind == cmdCancel, cmd.kind == cmdEdit && cmd.explicit:
			return Reply{Text: msgNothingToConfirm, State: StateIdle, Err: ErrSessionNotFound}
		}
	}

	e.logger.Debug("Extracting expense",
		zap.String("user_id", userID),
		zap.String("state", StateAwaitingExtraction.String()),
		zap.Bool("image", content.IsImage()),
	)
	cands, err := withTimeout(ctx, e.extractionTimeout, func(ctx context.Context) ([]Candidate, error) {
		return e.extractor.Extract(ctx, content)
	})
	if err != nil {
		return Reply{Text: msgExtractionFailed, State: StateIdle, Err: fmt.Errorf("%w: %w", ErrExtractionFailed, err)}
	}

	cand, ok := pickCandidate(cands)
	if !ok || cand.Confidence < e.policy.LowConfidence {
		return Reply{Text: msgRephrase, State: StateIdle, Err: ErrExtractionAmbiguous}
	}
	e.policy.classify(&cand)

	session := &Session{
		UserID:         userID,
		ConversationID: uuid.New(),
		Source:         models.SourceText,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if content.IsImage() {
		session.Source = models.SourcePhoto
	}

	if e.policy.Ready(&cand) {
		session.Phase = &Confirming{Candidate: cand}
		e.store.Upsert(session)
		return Reply{Text: confirmPrompt(&cand), State: StateAwaitingConfirmation}
	}

	field, _ := e.policy.NextQuestion(&cand)
	session.Phase = &Clarifying{Candidate: cand, Question: field}
	e.store.Upsert(session)
	return Reply{Text: question(field), State: StateAwaitingClarification, Err: ErrExtractionAmbiguous}
}

func (e *Engine) clarify(ctx context.Context, session *Session, p *Clarifying, content Content, now time.Time) Reply {
	if !content.IsImage() && isExplicitCancel(content.Text) {
		e.store.Remove(session.UserID)
		return Reply{Text: msgCancelled, State: StateIdle}
	}

	understood := false
	if !content.IsImage() && !isConfirmWord(content.Text) {
		field, raw := p.Question, content.Text
		if cmd := parseCommand(content.Text); cmd.kind == cmdEdit && !cmd.bare && cmd.field != "" {
			field, raw = cmd.field, cmd.raw
		}
		if v, err := parseFieldValue(field, raw); err == nil {
			p.Candidate.set(field, v)
			understood = true
		}
	}
	p.Turns++
	session.LastActivityAt = now

	if e.policy.Ready(&p.Candidate) {
		session.Phase = &Confirming{Candidate: p.Candidate, Turns: p.Turns}
		e.store.Upsert(session)
		return Reply{Text: confirmPrompt(&p.Candidate), State: StateAwaitingConfirmation}
	}

	next, ok := e.policy.NextQuestion(&p.Candidate)
	if !ok || p.Turns >= e.policy.MaxTurns {
		e.policy.bestEffort(&p.Candidate)
		session.Phase = &Confirming{Candidate: p.Candidate, Turns: p.Turns}
		e.store.Upsert(session)
		return Reply{Text: msgTurnsExhausted + "\n" + confirmPrompt(&p.Candidate), State: StateAwaitingConfirmation}
	}

	p.Question = next
	e.store.Upsert(session)
	text := question(next)
	if !understood {
		text = msgUnreadableAnswer + " " + text
	}
	return Reply{Text: text, State: StateAwaitingClarification, Err: ErrExtractionAmbiguous}
}

func (e *Engine) confirm(ctx context.Context, session *Session, p *Confirming, content Content, now time.Time) Reply {
	session.LastActivityAt = now

	var cmd command
	if !content.IsImage() {
		cmd = parseCommand(content.Text)
	}

	switch cmd.kind {
	case cmdConfirm:
		return e.commit(ctx, session, p)
	case cmdCancel:
		e.store.Remove(session.UserID)
		return Reply{Text: msgCancelled, State: StateIdle}
	case cmdEdit:
		if cmd.field == "" {
			e.store.Upsert(session)
			return Reply{Text: msgEditHelp, State: StateAwaitingConfirmation, Err: ErrValidation}
		}
		v, err := parseFieldValue(cmd.field, cmd.raw)
		if err != nil {
			e.store.Upsert(session)
			return Reply{Text: validationMessage(err), State: StateAwaitingConfirmation, Err: err}
		}
		p.Candidate.set(cmd.field, v)
		e.store.Upsert(session)
		return Reply{Text: confirmPrompt(&p.Candidate), State: StateAwaitingConfirmation}
	}

	e.store.Upsert(session)
	return Reply{Text: msgUnreadableAnswer + "\n" + confirmPrompt(&p.Candidate), State: StateAwaitingConfirmation}
}

func (e *Engine) commit(ctx context.Context, session *Session, p *Confirming) Reply {
	session.Phase = &Committing{Candidate: p.Candidate}
	e.store.Upsert(session)

	expense, err := e.coordinator.Commit(ctx, session)
	if err == nil {
		e.store.Remove(session.UserID)
		return Reply{Text: savedMessage(expense), State: StateIdle, Expense: expense}
	}

	session.Phase = p
	e.store.Upsert(session)

	switch {
	case errors.Is(err, ErrValidation):
		return Reply{Text: validationMessage(err), State: StateAwaitingConfirmation, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return Reply{Text: msgCommitTimeout, State: StateAwaitingConfirmation, Err: err}
	}
	return Reply{Text: msgCommitFailed, State: StateAwaitingConfirmation, Err: err}
}
