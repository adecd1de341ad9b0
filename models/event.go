package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NativeToken is the payment-token sentinel for the chain's native asset.
var NativeToken = common.Address{}

// Rail is the settlement mechanism selected for an event at creation time.
type Rail uint8

const (
	RailNative Rail = iota
	RailToken
	RailFeeToken
)

func (r Rail) String() string {
	switch r {
	case RailNative:
		return "native"
	case RailToken:
		return "token"
	case RailFeeToken:
		return "fee_token"
	default:
		return "unknown"
	}
}

// Status is the cancellation latch of an event. Active only ever moves to Canceled.
type Status uint8

const (
	StatusActive Status = iota
	StatusCanceled
)

func (s Status) String() string {
	if s == StatusCanceled {
		return "canceled"
	}
	return "active"
}

// EventSpec is the caller-supplied input to event creation.
type EventSpec struct {
	Name         string
	ImageURL     string
	Details      string
	Location     string
	StartDate    int64
	EndDate      int64
	StartTime    int64
	EndTime      int64
	TicketPrice  uint256.Int
	PaymentToken common.Address
	MinimumAge   uint8
}

// Event is one published listing. Values of this type are copies; the ledger
// owns the canonical record.
type Event struct {
	ID           uint64
	Creator      common.Address
	Name         string
	ImageURL     string
	Details      string
	Location     string
	StartDate    int64
	EndDate      int64
	StartTime    int64
	EndTime      int64
	TicketPrice  uint256.Int
	PaymentToken common.Address
	MinimumAge   uint8

	Rail          Rail
	Status        Status
	FundsReleased bool
	// FundsHeld is the token-rail escrow balance. Native-rail escrow is
	// tracked in a separate bucket and leaves this at zero.
	FundsHeld uint256.Int
}

func (e Event) IsActive() bool {
	return e.Status == StatusActive
}

func (e Event) IsCanceled() bool {
	return e.Status == StatusCanceled
}

// EventDetails is the full read view of one event.
type EventDetails struct {
	Event         Event
	Attendees     []common.Address
	CreatorEvents []Event
}

// EventView is the JSON rendering of an Event. Amounts are decimal strings in
// base units, with a display rendering alongside.
type EventView struct {
	ID                 uint64 `json:"event_id"`
	Creator            string `json:"creator"`
	Name               string `json:"name"`
	ImageURL           string `json:"image_url"`
	Details            string `json:"details"`
	Location           string `json:"location"`
	StartDate          int64  `json:"start_date"`
	EndDate            int64  `json:"end_date"`
	StartTime          int64  `json:"start_time"`
	EndTime            int64  `json:"end_time"`
	TicketPrice        string `json:"ticket_price"`
	TicketPriceDisplay string `json:"ticket_price_display"`
	PaymentToken       string `json:"payment_token"`
	MinimumAge         uint8  `json:"minimum_age"`
	Rail               string `json:"rail"`
	Status             string `json:"status"`
	IsActive           bool   `json:"is_active"`
	IsCanceled         bool   `json:"is_canceled"`
	FundsReleased      bool   `json:"funds_released"`
	FundsHeld          string `json:"funds_held"`
}

type EventDetailView struct {
	Event         EventView   `json:"event"`
	Attendees     []string    `json:"attendees"`
	CreatorEvents []EventView `json:"creator_events"`
}

type CreateEventRequest struct {
	Name         string `json:"name"`
	ImageURL     string `json:"image_url"`
	Details      string `json:"details"`
	Location     string `json:"location"`
	StartDate    int64  `json:"start_date"`
	EndDate      int64  `json:"end_date"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time"`
	TicketPrice  string `json:"ticket_price" binding:"required"`
	PaymentToken string `json:"payment_token"`
	MinimumAge   uint8  `json:"minimum_age"`
}
