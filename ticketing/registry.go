package ticketing

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"event-escrow/models"
)

// TokenRegistry tracks which payment tokens events may be priced in, and
// which of them belong to the fee-bearing class.
type TokenRegistry struct {
	supported map[common.Address]bool
	feeClass  map[common.Address]bool
}

// NewTokenRegistry registers the native asset sentinel plus every listed
// token. Fee-class tokens are registered as supported as well.
func NewTokenRegistry(tokens, feeClass []common.Address) *TokenRegistry {
	r := &TokenRegistry{
		supported: map[common.Address]bool{models.NativeToken: true},
		feeClass:  make(map[common.Address]bool),
	}
	for _, t := range tokens {
		r.register(t, false)
	}
	for _, t := range feeClass {
		r.register(t, true)
	}
	return r
}

func (r *TokenRegistry) IsSupported(token common.Address) bool {
	return r.supported[token]
}

// register is idempotent. The native asset can never join the fee class.
func (r *TokenRegistry) register(token common.Address, feeBearing bool) {
	r.supported[token] = true
	if feeBearing && token != models.NativeToken {
		r.feeClass[token] = true
	}
}

// railFor resolves the rail an event priced in token settles on. The result
// is frozen into the event at creation.
func (r *TokenRegistry) railFor(token common.Address) models.Rail {
	switch {
	case token == models.NativeToken:
		return models.RailNative
	case r.feeClass[token]:
		return models.RailFeeToken
	default:
		return models.RailToken
	}
}

// Tokens lists the supported token addresses in byte order, native first.
func (r *TokenRegistry) Tokens() []common.Address {
	out := make([]common.Address, 0, len(r.supported))
	for t := range r.supported {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
