package handlers

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var errBadAmount = errors.New("invalid amount")

// Units converts between display amounts ("1.5") and base units using each
// token's decimals. Unknown tokens use the native precision.
type Units struct {
	mu       sync.RWMutex
	native   int32
	decimals map[common.Address]int32
}

func NewUnits(nativeDecimals int32) *Units {
	return &Units{
		native:   nativeDecimals,
		decimals: make(map[common.Address]int32),
	}
}

func (u *Units) Set(token common.Address, decimals int32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.decimals[token] = decimals
}

func (u *Units) Decimals(token common.Address) int32 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if d, ok := u.decimals[token]; ok {
		return d
	}
	return u.native
}

// ToBase parses a non-negative display amount. Amounts with more fractional
// digits than the token supports are rejected rather than rounded.
func (u *Units) ToBase(token common.Address, display string) (*uint256.Int, error) {
	if display == "" {
		return new(uint256.Int), nil
	}
	d, err := decimal.NewFromString(display)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errBadAmount, display)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", errBadAmount, display)
	}
	shifted := d.Shift(u.Decimals(token))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has too many decimal places", errBadAmount, display)
	}
	out, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %q is too large", errBadAmount, display)
	}
	return out, nil
}

func (u *Units) Display(token common.Address, amount *uint256.Int) string {
	return decimal.NewFromBigInt(amount.ToBig(), -u.Decimals(token)).String()
}
