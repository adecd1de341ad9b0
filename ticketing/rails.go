package ticketing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"event-escrow/models"
)

// FeeRouter forwards the fee skimmed from fee-bearing purchases to the
// secondary pool.
type FeeRouter struct {
	pool common.Address
}

func (f *FeeRouter) route(ctx context.Context, e *Engine, token TokenTransfer, fee *uint256.Int) error {
	if fee.IsZero() {
		return nil
	}
	ok, err := callOut(ctx, e, func() (bool, error) { return token.Transfer(ctx, f.pool, fee) })
	return e.sent(ok, err, "fee transfer", f.pool, fee)
}

// railStrategy is the per-rail payment behavior.
type railStrategy struct {
	// check validates the attached payment before any state changes.
	check func(ctx context.Context, e *Engine, ev models.Event, buyer common.Address, value *uint256.Int) error
	// collect brings the ticket price into custody and routes the fee.
	collect func(ctx context.Context, e *Engine, tx *txn, ev models.Event, buyer common.Address, fee *uint256.Int) error
	// pay moves amount out of custody.
	pay func(ctx context.Context, e *Engine, ev models.Event, to common.Address, amount *uint256.Int) error
}

var strategies = map[models.Rail]railStrategy{
	models.RailNative: {
		check:   checkNative,
		collect: collectNative,
		pay:     payNative,
	},
	models.RailToken: {
		check:   checkToken,
		collect: collectToken,
		pay:     payToken,
	},
	models.RailFeeToken: {
		check:   checkToken,
		collect: collectFeeToken,
		pay:     payToken,
	},
}

func transferResult(ok bool, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransferFailed, what, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s returned false", ErrTransferFailed, what)
	}
	return nil
}

// sent interprets the result of a transfer out of custody. One that was
// submitted but never confirmed may still land, so it commits and is logged
// for reconciliation.
func (e *Engine) sent(ok bool, err error, what string, to common.Address, amount *uint256.Int) error {
	if errors.Is(err, ErrSubmitted) {
		e.logger.Warn("outbound transfer unconfirmed, committing",
			zap.String("transfer", what),
			zap.String("to", to.Hex()),
			zap.String("amount", amount.ToBig().String()),
			zap.Error(err),
		)
		return nil
	}
	return transferResult(ok, err, what)
}

// received interprets the result of a transfer into custody. An unconfirmed
// one rolls the purchase back; the buyer's funds, if they land, stay in
// custody for reconciliation.
func (e *Engine) received(ok bool, err error, what string, from common.Address, amount *uint256.Int) error {
	if errors.Is(err, ErrSubmitted) {
		e.logger.Error("inbound transfer unconfirmed, rolling back",
			zap.String("transfer", what),
			zap.String("from", from.Hex()),
			zap.String("amount", amount.ToBig().String()),
			zap.Error(err),
		)
	}
	return transferResult(ok, err, what)
}

func checkNative(_ context.Context, _ *Engine, ev models.Event, _ common.Address, value *uint256.Int) error {
	if value == nil || !value.Eq(&ev.TicketPrice) {
		return ErrIncorrectAmount
	}
	return nil
}

func collectNative(ctx context.Context, e *Engine, tx *txn, ev models.Event, buyer common.Address, _ *uint256.Int) error {
	price := ev.TicketPrice
	ok, err := callOut(ctx, e, func() (bool, error) { return e.native.Receive(ctx, buyer, &price) })
	if err := e.received(ok, err, "native receive", buyer, &price); err != nil {
		return err
	}
	tx.compensate("return native payment", func(ctx context.Context) error {
		ok, err := callOut(ctx, e, func() (bool, error) { return e.native.Send(ctx, buyer, &price) })
		return e.sent(ok, err, "native return", buyer, &price)
	})
	return nil
}

func payNative(ctx context.Context, e *Engine, _ models.Event, to common.Address, amount *uint256.Int) error {
	ok, err := callOut(ctx, e, func() (bool, error) { return e.native.Send(ctx, to, amount) })
	return e.sent(ok, err, "native send", to, amount)
}

func (e *Engine) tokenFor(ev models.Event) (TokenTransfer, error) {
	t, ok := e.tokens.Token(ev.PaymentToken)
	if !ok {
		return nil, fmt.Errorf("%w: no transfer for token %s", ErrTransferFailed, ev.PaymentToken.Hex())
	}
	return t, nil
}

func checkToken(ctx context.Context, e *Engine, ev models.Event, buyer common.Address, value *uint256.Int) error {
	if value != nil && !value.IsZero() {
		return fmt.Errorf("%w: token purchases take no native value", ErrIncorrectAmount)
	}
	token, err := e.tokenFor(ev)
	if err != nil {
		return err
	}
	allowance, err := callOut(ctx, e, func() (*uint256.Int, error) { return token.Allowance(ctx, buyer, e.custody) })
	if err != nil {
		return fmt.Errorf("%w: allowance: %v", ErrTransferFailed, err)
	}
	if allowance == nil || allowance.Lt(&ev.TicketPrice) {
		return ErrInsufficientAllowance
	}
	return nil
}

func collectToken(ctx context.Context, e *Engine, tx *txn, ev models.Event, buyer common.Address, _ *uint256.Int) error {
	token, err := e.tokenFor(ev)
	if err != nil {
		return err
	}
	price := ev.TicketPrice
	ok, err := callOut(ctx, e, func() (bool, error) { return token.TransferFrom(ctx, buyer, e.custody, &price) })
	if err := e.received(ok, err, "transferFrom", buyer, &price); err != nil {
		return err
	}
	tx.compensate("return token payment", func(ctx context.Context) error {
		ok, err := callOut(ctx, e, func() (bool, error) { return token.Transfer(ctx, buyer, &price) })
		return e.sent(ok, err, "token return", buyer, &price)
	})
	return nil
}

func collectFeeToken(ctx context.Context, e *Engine, tx *txn, ev models.Event, buyer common.Address, fee *uint256.Int) error {
	if err := collectToken(ctx, e, tx, ev, buyer, fee); err != nil {
		return err
	}
	token, err := e.tokenFor(ev)
	if err != nil {
		return err
	}
	return e.fees.route(ctx, e, token, fee)
}

func payToken(ctx context.Context, e *Engine, ev models.Event, to common.Address, amount *uint256.Int) error {
	token, err := e.tokenFor(ev)
	if err != nil {
		return err
	}
	ok, err := callOut(ctx, e, func() (bool, error) { return token.Transfer(ctx, to, amount) })
	return e.sent(ok, err, "token transfer", to, amount)
}
