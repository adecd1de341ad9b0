package ticketing

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"event-escrow/models"
)

// ErrSubmitted is wrapped by transfers that were handed to the network but
// whose outcome could not be confirmed. A payment out of custody that fails
// this way is committed, never rolled back.
var ErrSubmitted = errors.New("transfer submitted, outcome unknown")

// TokenTransfer is the allowance primitive of one payment token. Every call
// is treated as untrusted: it may fail, report false, or call back into the
// Engine. A callback that passes along the ctx it was given is rejected at
// once; one that starts a fresh ctx waits ReentryWait before it is rejected.
// The ctx passed to transfers is never canceled.
type TokenTransfer interface {
	Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error)
	TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error)
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error)
}

// NativeTransfer moves the chain's native asset in and out of custody.
// Receive settles the payment attached to a purchase; Send pays out. A
// chain-backed Receive verifies the transaction named by PaymentReference.
type NativeTransfer interface {
	Receive(ctx context.Context, from common.Address, amount *uint256.Int) (bool, error)
	Send(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error)
}

type paymentKey struct{}

// WithPaymentReference attaches the hash of the buyer's own payment
// transaction to ctx.
func WithPaymentReference(ctx context.Context, hash common.Hash) context.Context {
	return context.WithValue(ctx, paymentKey{}, hash)
}

// PaymentReference returns the payment transaction attached to ctx.
func PaymentReference(ctx context.Context) (common.Hash, bool) {
	hash, ok := ctx.Value(paymentKey{}).(common.Hash)
	return hash, ok && hash != (common.Hash{})
}

// TokenSource resolves the transfer primitive for a token address.
type TokenSource interface {
	Token(token common.Address) (TokenTransfer, bool)
}

// TokenMap is a fixed TokenSource.
type TokenMap map[common.Address]TokenTransfer

func (m TokenMap) Token(token common.Address) (TokenTransfer, bool) {
	t, ok := m[token]
	return t, ok
}

// Sink receives committed notifications in log order, on a ctx that is never
// canceled. Sinks must not call mutating Engine operations.
type Sink interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Observer is told the outcome of every operation.
type Observer interface {
	ObserveOperation(op string, elapsed time.Duration, err error)
}

// Clock supplies the ledger's notion of now.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
