package ticketing

import (
	"context"

	"go.uber.org/zap"

	"event-escrow/models"
)

type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// txn journals one operation so a failure anywhere reverts everything it did.
// Internal mutations register undo steps; completed inbound transfers
// register compensations that hand the funds back.
type txn struct {
	nested       bool
	undo         []func()
	compensation []compensation
	notes        []models.Notification
}

// guard marks the boundary between checks and effects. An operation
// re-entered from an outbound transfer may read state but never mutate it.
func (t *txn) guard() error {
	if t.nested {
		return ErrReentrantCall
	}
	return nil
}

func (t *txn) onUndo(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *txn) compensate(name string, fn func(ctx context.Context) error) {
	t.compensation = append(t.compensation, compensation{name: name, fn: fn})
}

func (t *txn) emit(n models.Notification) {
	t.notes = append(t.notes, n)
}

// rollback runs compensations then undo steps, newest first.
func (t *txn) rollback(ctx context.Context, logger *zap.Logger) {
	for i := len(t.compensation) - 1; i >= 0; i-- {
		c := t.compensation[i]
		if err := c.fn(ctx); err != nil {
			logger.Error("compensation failed", zap.String("step", c.name), zap.Error(err))
		}
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.compensation = nil
	t.undo = nil
	t.notes = nil
}
