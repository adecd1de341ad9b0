package ticketing

import (
	"fmt"

	"github.com/holiman/uint256"

	"event-escrow/models"
)

// EscrowAccounting holds funds per event in two buckets. Native-asset and
// token transfers settle through different mechanisms, so they are never
// commingled.
type EscrowAccounting struct {
	token  map[uint64]uint256.Int
	native map[uint64]uint256.Int
}

func NewEscrowAccounting() *EscrowAccounting {
	return &EscrowAccounting{
		token:  make(map[uint64]uint256.Int),
		native: make(map[uint64]uint256.Int),
	}
}

func (a *EscrowAccounting) bucket(rail models.Rail) map[uint64]uint256.Int {
	if rail == models.RailNative {
		return a.native
	}
	return a.token
}

func (a *EscrowAccounting) balance(eventID uint64, rail models.Rail) *uint256.Int {
	b := a.bucket(rail)[eventID]
	return &b
}

func (a *EscrowAccounting) credit(eventID uint64, rail models.Rail, amount *uint256.Int) error {
	bucket := a.bucket(rail)
	cur := bucket[eventID]
	sum, overflow := new(uint256.Int).AddOverflow(&cur, amount)
	if overflow {
		return fmt.Errorf("%w: event %d", ErrOverflow, eventID)
	}
	bucket[eventID] = *sum
	return nil
}

func (a *EscrowAccounting) debit(eventID uint64, rail models.Rail, amount *uint256.Int) error {
	bucket := a.bucket(rail)
	cur := bucket[eventID]
	if amount.Gt(&cur) {
		return fmt.Errorf("%w: event %d holds %s, need %s", ErrInsufficientFunds, eventID, cur.ToBig(), amount.ToBig())
	}
	bucket[eventID] = *new(uint256.Int).Sub(&cur, amount)
	return nil
}

// computeFee splits amount into the fee skimmed to the fee pool and the net
// credited to escrow. Only the fee-bearing rail pays a fee.
func computeFee(rail models.Rail, amount *uint256.Int) (fee, net *uint256.Int) {
	if rail != models.RailFeeToken {
		return new(uint256.Int), amount.Clone()
	}
	fee = new(uint256.Int).Mul(amount, uint256.NewInt(FeeBasisPoints))
	fee.Div(fee, uint256.NewInt(BasisPoints))
	net = new(uint256.Int).Sub(amount, fee)
	return fee, net
}
