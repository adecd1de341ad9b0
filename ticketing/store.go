package ticketing

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"event-escrow/models"
)

// EventStore is the append-only collection of events. Ids are creation
// order and never reused.
//
// Each creation also appends a copy of the event to the creator's list.
// Later mutations only touch the canonical record, so the creator list keeps
// the event as originally published.
type EventStore struct {
	events    []models.Event
	byCreator map[common.Address][]models.Event
}

func NewEventStore() *EventStore {
	return &EventStore{byCreator: make(map[common.Address][]models.Event)}
}

func validateSpec(spec models.EventSpec, now int64, registry *TokenRegistry) error {
	if n := len(spec.Name); n == 0 || n > MaxNameLength {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidName, n)
	}
	if n := len(spec.ImageURL); n == 0 || n > MaxURLLength {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidImageURL, n)
	}
	if n := len(spec.Details); n == 0 || n > MaxDetailsLength {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidDetails, n)
	}
	if n := len(spec.Location); n == 0 || n > MaxLocationLength {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidLocation, n)
	}
	if spec.TicketPrice.IsZero() || spec.TicketPrice.Gt(MaxTicketPrice) {
		return ErrInvalidPrice
	}
	if spec.StartDate <= now {
		return ErrStartNotFuture
	}
	if spec.EndDate < spec.StartDate+MinEventDuration {
		return ErrDurationTooShort
	}
	if !registry.IsSupported(spec.PaymentToken) {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, spec.PaymentToken.Hex())
	}
	return nil
}

// create validates spec and appends a new active event with empty escrow.
func (s *EventStore) create(creator common.Address, spec models.EventSpec, now int64, registry *TokenRegistry) (uint64, error) {
	if err := validateSpec(spec, now, registry); err != nil {
		return 0, err
	}
	ev := models.Event{
		ID:           uint64(len(s.events)),
		Creator:      creator,
		Name:         spec.Name,
		ImageURL:     spec.ImageURL,
		Details:      spec.Details,
		Location:     spec.Location,
		StartDate:    spec.StartDate,
		EndDate:      spec.EndDate,
		StartTime:    spec.StartTime,
		EndTime:      spec.EndTime,
		TicketPrice:  spec.TicketPrice,
		PaymentToken: spec.PaymentToken,
		MinimumAge:   spec.MinimumAge,
		Rail:         registry.railFor(spec.PaymentToken),
		Status:       models.StatusActive,
	}
	s.events = append(s.events, ev)
	s.byCreator[creator] = append(s.byCreator[creator], ev)
	return ev.ID, nil
}

// pop removes the most recent event. Only used to roll back a create.
func (s *EventStore) pop() {
	last := s.events[len(s.events)-1]
	s.events = s.events[:len(s.events)-1]
	list := s.byCreator[last.Creator]
	if len(list) == 1 {
		delete(s.byCreator, last.Creator)
		return
	}
	s.byCreator[last.Creator] = list[:len(list)-1]
}

func (s *EventStore) get(id uint64) (models.Event, error) {
	if id >= uint64(len(s.events)) {
		return models.Event{}, fmt.Errorf("%w: id %d", ErrEventNotFound, id)
	}
	return s.events[id], nil
}

func (s *EventStore) count() uint64 {
	return uint64(len(s.events))
}

func (s *EventStore) listActive() []models.Event {
	var out []models.Event
	for _, ev := range s.events {
		if ev.IsActive() {
			out = append(out, ev)
		}
	}
	return out
}

func (s *EventStore) listByCreator(creator common.Address) []models.Event {
	list := s.byCreator[creator]
	out := make([]models.Event, len(list))
	copy(out, list)
	return out
}

func (s *EventStore) ref(id uint64) (*models.Event, error) {
	if id >= uint64(len(s.events)) {
		return nil, fmt.Errorf("%w: id %d", ErrEventNotFound, id)
	}
	return &s.events[id], nil
}

func (s *EventStore) setStatus(id uint64, status models.Status) error {
	ev, err := s.ref(id)
	if err != nil {
		return err
	}
	ev.Status = status
	return nil
}

func (s *EventStore) setFundsReleased(id uint64, released bool) error {
	ev, err := s.ref(id)
	if err != nil {
		return err
	}
	ev.FundsReleased = released
	return nil
}

// adjustFundsHeld adds amount to the event's held funds, or subtracts it when
// credit is false.
func (s *EventStore) adjustFundsHeld(id uint64, amount *uint256.Int, credit bool) error {
	ev, err := s.ref(id)
	if err != nil {
		return err
	}
	if credit {
		sum, overflow := new(uint256.Int).AddOverflow(&ev.FundsHeld, amount)
		if overflow {
			return ErrOverflow
		}
		ev.FundsHeld = *sum
		return nil
	}
	if ev.FundsHeld.Lt(amount) {
		return ErrInsufficientFunds
	}
	ev.FundsHeld.Sub(&ev.FundsHeld, amount)
	return nil
}
