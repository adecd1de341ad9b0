package models

// TicketCheck answers a door check: does the address hold a ticket for the event.
type TicketCheck struct {
	EventID   uint64 `json:"event_id"`
	Address   string `json:"address"`
	HasTicket bool   `json:"has_ticket"`
	IsActive  bool   `json:"is_active"`
}

type BuyTicketRequest struct {
	// Value is the attached native payment in display units. Token-rail
	// purchases leave it empty and rely on a prior allowance.
	Value string `json:"value"`

	// TxHash names the buyer's own payment to custody on the native rail.
	TxHash string `json:"tx_hash"`
}
