package ticketing

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"event-escrow/models"
)

// Read-only queries. They take the state lock in read mode, which the running
// operation drops while it waits on a transfer, so a transfer callback may
// call them and sees the ledger as the operation has left it so far.

// Event returns one event with its attendees and its creator's event list.
func (e *Engine) Event(eventID uint64) (models.EventDetails, error) {
	e.state.RLock()
	defer e.state.RUnlock()
	ev, err := e.events.get(eventID)
	if err != nil {
		return models.EventDetails{}, err
	}
	return models.EventDetails{
		Event:         ev,
		Attendees:     e.attendance.attendeesOf(eventID),
		CreatorEvents: e.events.listByCreator(ev.Creator),
	}, nil
}

func (e *Engine) Attendees(eventID uint64) ([]common.Address, error) {
	e.state.RLock()
	defer e.state.RUnlock()
	if _, err := e.events.get(eventID); err != nil {
		return nil, err
	}
	return e.attendance.attendeesOf(eventID), nil
}

func (e *Engine) EventCount() uint64 {
	e.state.RLock()
	defer e.state.RUnlock()
	return e.events.count()
}

// EventsByCreator returns the creator's events as they were published.
func (e *Engine) EventsByCreator(creator common.Address) []models.Event {
	e.state.RLock()
	defer e.state.RUnlock()
	return e.events.listByCreator(creator)
}

// ActiveEvents returns every active event in creation order.
func (e *Engine) ActiveEvents() []models.Event {
	e.state.RLock()
	defer e.state.RUnlock()
	return e.events.listActive()
}

// PurchasedEvents returns the events caller currently holds a ticket for.
func (e *Engine) PurchasedEvents(caller common.Address) []models.Event {
	e.state.RLock()
	defer e.state.RUnlock()
	var out []models.Event
	for _, ev := range e.events.events {
		if e.attendance.hasTicket(ev.ID, caller) {
			out = append(out, ev)
		}
	}
	return out
}

// ActiveCreatedEvents returns caller's events that are still active, read
// from the canonical records.
func (e *Engine) ActiveCreatedEvents(caller common.Address) []models.Event {
	e.state.RLock()
	defer e.state.RUnlock()
	var out []models.Event
	for _, ev := range e.events.events {
		if ev.Creator == caller && ev.IsActive() {
			out = append(out, ev)
		}
	}
	return out
}

func (e *Engine) HasTicket(eventID uint64, holder common.Address) bool {
	e.state.RLock()
	defer e.state.RUnlock()
	return e.attendance.hasTicket(eventID, holder)
}

// EscrowBalance returns the token and native buckets held for an event.
func (e *Engine) EscrowBalance(eventID uint64) (token, native *uint256.Int, err error) {
	e.state.RLock()
	defer e.state.RUnlock()
	if _, err := e.events.get(eventID); err != nil {
		return nil, nil, err
	}
	return e.escrow.balance(eventID, models.RailToken), e.escrow.balance(eventID, models.RailNative), nil
}

// Logs returns committed notifications with Seq >= from.
func (e *Engine) Logs(from uint64) []models.Notification {
	e.state.RLock()
	defer e.state.RUnlock()
	return e.log.since(from)
}

func (e *Engine) IsSupportedToken(token common.Address) bool {
	e.state.RLock()
	defer e.state.RUnlock()
	return e.registry.IsSupported(token)
}

func (e *Engine) SupportedTokens() []common.Address {
	e.state.RLock()
	defer e.state.RUnlock()
	return e.registry.Tokens()
}

func (e *Engine) Paused() bool {
	e.state.RLock()
	defer e.state.RUnlock()
	return e.paused
}

func (e *Engine) Owner() common.Address {
	return e.owner
}

func (e *Engine) Custody() common.Address {
	return e.custody
}
