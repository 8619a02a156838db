package dialog

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const (
	msgInternalError    = "Something went wrong on my side. Please send your last message again."
	msgAttachmentFailed = "I could not download the file you sent. Please send it again."
)

// Handler processes one turn. *Engine is the production implementation.
type Handler interface {
	Handle(ctx context.Context, in Inbound) Reply
}

// Dispatcher feeds inbound messages to the handler in arrival order per user.
// Each user with pending messages gets one worker goroutine, which exits once
// that user's queue is drained.
type Dispatcher struct {
	handler Handler
	sender  Sender
	logger  *zap.Logger

	mu     sync.Mutex
	queues map[string][]Inbound
	wg     sync.WaitGroup
}

func NewDispatcher(handler Handler, sender Sender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		sender:  sender,
		logger:  logger,
		queues:  make(map[string][]Inbound),
	}
}

func (d *Dispatcher) Submit(ctx context.Context, in Inbound) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if q, active := d.queues[in.UserID]; active {
		d.queues[in.UserID] = append(q, in)
		return
	}
	d.queues[in.UserID] = []Inbound{in}
	d.wg.Add(1)
	go d.drain(ctx, in.UserID)
}

// Wait blocks until every queued message has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain(ctx context.Context, userID string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[userID]
		if len(q) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		in := q[0]
		d.queues[userID] = q[1:]
		d.mu.Unlock()

		d.process(ctx, in)
	}
}

func (d *Dispatcher) process(ctx context.Context, in Inbound) {
	if in.Fetch != nil {
		content, err := in.Fetch(ctx)
		if err != nil {
			d.logger.Error("Failed to fetch message content",
				zap.String("user_id", in.UserID),
				zap.String("message_id", in.ID),
				zap.Error(err),
			)
			d.send(ctx, in.UserID, msgAttachmentFailed)
			return
		}
		in.Content, in.Fetch = content, nil
	}

	reply, err := d.safeHandle(ctx, in)
	if err != nil {
		d.logger.Error("Turn panicked",
			zap.String("user_id", in.UserID),
			zap.String("message_id", in.ID),
			zap.Error(err),
		)
		reply = Reply{Text: msgInternalError}
	}
	// a redelivered message was answered the first time
	if reply.Text == "" || reply.Duplicate {
		return
	}
	d.send(ctx, in.UserID, reply.Text)
}

func (d *Dispatcher) send(ctx context.Context, userID, text string) {
	if err := d.sender.Send(ctx, userID, text); err != nil {
		d.logger.Error("Failed to send reply",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) safeHandle(ctx context.Context, in Inbound) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.handler.Handle(ctx, in), nil
}
