package models

import "time"

// EscrowView reports both escrow buckets of an event in base units.
type EscrowView struct {
	EventID      uint64 `json:"event_id"`
	Rail         string `json:"rail"`
	PaymentToken string `json:"payment_token"`
	TokenFunds   string `json:"token_funds"`
	NativeFunds  string `json:"native_funds"`
	Display      string `json:"display"`
}

type NotificationView struct {
	Seq        uint64    `json:"seq"`
	Kind       string    `json:"kind"`
	Topic      string    `json:"topic"`
	EventID    uint64    `json:"event_id"`
	Account    string    `json:"account,omitempty"`
	Token      string    `json:"token,omitempty"`
	Name       string    `json:"name,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

func NewNotificationView(n Notification) NotificationView {
	v := NotificationView{
		Seq:        n.Seq,
		Kind:       string(n.Kind),
		Topic:      n.Topic.Hex(),
		EventID:    n.EventID,
		Name:       n.Name,
		RecordedAt: n.RecordedAt,
	}
	switch n.Kind {
	case KindEventCreated:
		v.Account = n.Account.Hex()
	case KindTicketPurchased:
		v.Account = n.Account.Hex()
		v.Token = n.Token.Hex()
		v.Amount = n.Amount.ToBig().String()
	case KindRefundIssued:
		v.Account = n.Account.Hex()
		v.Amount = n.Amount.ToBig().String()
	case KindFundsReleased:
		v.Amount = n.Amount.ToBig().String()
	}
	return v
}
