package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

type NotificationKind string

const (
	KindEventCreated    NotificationKind = "EventCreated"
	KindEventCanceled   NotificationKind = "EventCanceled"
	KindTicketPurchased NotificationKind = "TicketPurchased"
	KindRefundIssued    NotificationKind = "RefundIssued"
	KindFundsReleased   NotificationKind = "FundsReleased"
)

var signatures = map[NotificationKind]string{
	KindEventCreated:    "EventCreated(uint256,address,string)",
	KindEventCanceled:   "EventCanceled(uint256)",
	KindTicketPurchased: "TicketPurchased(uint256,address,uint256,address)",
	KindRefundIssued:    "RefundIssued(uint256,address,uint256)",
	KindFundsReleased:   "FundsReleased(uint256,uint256)",
}

// Signature returns the log signature observers match on.
func (k NotificationKind) Signature() string {
	return signatures[k]
}

// Topic returns the keccak256 hash of the signature, the same value an
// on-chain log would carry as topic zero.
func (k NotificationKind) Topic() common.Hash {
	return crypto.Keccak256Hash([]byte(k.Signature()))
}

// Notification is one entry of the append-only event log. Which of Account,
// Token, Name and Amount are meaningful depends on Kind.
type Notification struct {
	Seq        uint64
	Kind       NotificationKind
	Topic      common.Hash
	EventID    uint64
	Account    common.Address
	Token      common.Address
	Name       string
	Amount     uint256.Int
	RecordedAt time.Time
}
