package ticketing

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AttendanceLedger tracks who holds a ticket for each event. An address is
// in an event's attendee list exactly when it holds a ticket; list order is
// not meaningful.
type AttendanceLedger struct {
	// position of each holder in attendees
	holders   map[uint64]map[common.Address]int
	attendees map[uint64][]common.Address
}

func NewAttendanceLedger() *AttendanceLedger {
	return &AttendanceLedger{
		holders:   make(map[uint64]map[common.Address]int),
		attendees: make(map[uint64][]common.Address),
	}
}

func (l *AttendanceLedger) hasTicket(eventID uint64, buyer common.Address) bool {
	_, ok := l.holders[eventID][buyer]
	return ok
}

func (l *AttendanceLedger) count(eventID uint64) int {
	return len(l.attendees[eventID])
}

func (l *AttendanceLedger) recordPurchase(eventID uint64, buyer common.Address) error {
	if l.hasTicket(eventID, buyer) {
		return ErrAlreadyPurchased
	}
	if l.count(eventID) >= MaxAttendees {
		return fmt.Errorf("%w: %d attendees", ErrCapacityExceeded, MaxAttendees)
	}
	if l.holders[eventID] == nil {
		l.holders[eventID] = make(map[common.Address]int)
	}
	l.holders[eventID][buyer] = len(l.attendees[eventID])
	l.attendees[eventID] = append(l.attendees[eventID], buyer)
	return nil
}

// recordRefund drops buyer by moving the last attendee into its slot.
func (l *AttendanceLedger) recordRefund(eventID uint64, buyer common.Address) error {
	pos, ok := l.holders[eventID][buyer]
	if !ok {
		return ErrNoTicket
	}
	list := l.attendees[eventID]
	last := len(list) - 1
	if pos != last {
		moved := list[last]
		list[pos] = moved
		l.holders[eventID][moved] = pos
	}
	l.attendees[eventID] = list[:last]
	delete(l.holders[eventID], buyer)
	return nil
}

func (l *AttendanceLedger) attendeesOf(eventID uint64) []common.Address {
	list := l.attendees[eventID]
	out := make([]common.Address, len(list))
	copy(out, list)
	return out
}
