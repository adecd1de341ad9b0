package ticketing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"event-escrow/models"
)

// Config wires an Engine to its custody backends and observers.
type Config struct {
	// Owner may pause the engine and register tokens.
	Owner common.Address
	// Custody is the address escrowed funds are held at. It is the spender
	// buyers approve and the recipient of transferFrom.
	Custody common.Address

	SupportedTokens []common.Address
	FeeTokens       []common.Address
	FeePool         common.Address

	Tokens TokenSource
	Native NativeTransfer

	Clock    Clock
	Logger   *zap.Logger
	Observer Observer
	Sinks    []Sink

	// ReentryWait bounds how long an operation waits for the slot while
	// another operation is inside an outbound transfer. Zero means 10s.
	ReentryWait time.Duration
}

// Engine is the ticketing state machine. Mutating operations run one at a
// time and either fully commit or leave no trace.
type Engine struct {
	// slot admits one mutating operation at a time. state guards the ledger
	// and is released while the operation holding slot waits on an
	// outbound transfer, so queries never block on a transfer.
	slot         chan struct{}
	state        sync.RWMutex
	transferring atomic.Bool
	reentryWait  time.Duration

	// delivery is taken before slot is released so sinks see notifications
	// in log order.
	delivery sync.Mutex

	owner   common.Address
	custody common.Address
	paused  bool

	registry   *TokenRegistry
	events     *EventStore
	attendance *AttendanceLedger
	escrow     *EscrowAccounting
	fees       *FeeRouter
	log        NotificationLog

	tokens   TokenSource
	native   NativeTransfer
	clock    Clock
	logger   *zap.Logger
	observer Observer
	sinks    []Sink
}

var errNoNativeCustody = errors.New("no native custody configured")

type noNative struct{}

func (noNative) Receive(context.Context, common.Address, *uint256.Int) (bool, error) {
	return false, errNoNativeCustody
}

func (noNative) Send(context.Context, common.Address, *uint256.Int) (bool, error) {
	return false, errNoNativeCustody
}

func New(cfg Config) (*Engine, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner", ErrInvalidAddress)
	}
	if cfg.Custody == (common.Address{}) {
		return nil, fmt.Errorf("%w: custody", ErrInvalidAddress)
	}
	if len(cfg.FeeTokens) > 0 && cfg.FeePool == (common.Address{}) {
		return nil, fmt.Errorf("%w: fee pool is required when fee tokens are configured", ErrInvalidAddress)
	}
	e := &Engine{
		slot:        make(chan struct{}, 1),
		reentryWait: cfg.ReentryWait,

		owner:      cfg.Owner,
		custody:    cfg.Custody,
		registry:   NewTokenRegistry(cfg.SupportedTokens, cfg.FeeTokens),
		events:     NewEventStore(),
		attendance: NewAttendanceLedger(),
		escrow:     NewEscrowAccounting(),
		fees:       &FeeRouter{pool: cfg.FeePool},
		tokens:     cfg.Tokens,
		native:     cfg.Native,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		observer:   cfg.Observer,
		sinks:      cfg.Sinks,
	}
	if e.tokens == nil {
		e.tokens = TokenMap{}
	}
	if e.native == nil {
		e.native = noNative{}
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.reentryWait <= 0 {
		e.reentryWait = 10 * time.Second
	}
	return e, nil
}

type opKey struct{}

// opState marks a ctx as belonging to an operation of engine. holdsState is
// set only for the outermost operation, which owns the state lock.
type opState struct {
	engine     *Engine
	holdsState bool
}

func (e *Engine) opOf(ctx context.Context) *opState {
	if st, _ := ctx.Value(opKey{}).(*opState); st != nil && st.engine == e {
		return st
	}
	return nil
}

// execute runs fn as one all-or-nothing operation. A call arriving with a ctx
// that already carries this engine came from inside an outbound transfer of
// the operation holding the slot; it runs without locking and is stopped by
// the txn guard before it can mutate anything. No writer can run while that
// transfer is outstanding.
func (e *Engine) execute(ctx context.Context, op string, fn func(ctx context.Context, tx *txn) error) error {
	start := time.Now()
	if e.opOf(ctx) != nil {
		nested := context.WithValue(ctx, opKey{}, &opState{engine: e})
		err := fn(nested, &txn{nested: true})
		e.finish(op, start, err)
		return err
	}

	if err := e.acquire(ctx); err != nil {
		e.finish(op, start, err)
		return err
	}
	e.state.Lock()
	committed, err := e.run(ctx, fn)
	e.state.Unlock()

	e.delivery.Lock()
	<-e.slot
	e.finish(op, start, err)
	e.deliver(context.WithoutCancel(ctx), committed)
	e.delivery.Unlock()
	return err
}

// acquire waits for the operation slot. A caller still waiting after
// reentryWait while the holder is inside an outbound transfer is treated as
// a re-entry that lost its ctx and is rejected instead of deadlocking.
func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.slot <- struct{}{}:
		return nil
	default:
	}
	timer := time.NewTimer(e.reentryWait)
	defer timer.Stop()
	for {
		select {
		case e.slot <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if e.transferring.Load() {
				return ErrReentrantCall
			}
			timer.Reset(e.reentryWait)
		}
	}
}

// callOut runs an outbound transfer. The outermost operation drops the state
// lock for the duration so the callee can read the ledger; the slot keeps
// every other writer out.
func callOut[T any](ctx context.Context, e *Engine, call func() (T, error)) (T, error) {
	if st := e.opOf(ctx); st == nil || !st.holdsState {
		return call()
	}
	e.transferring.Store(true)
	e.state.Unlock()
	defer func() {
		e.state.Lock()
		e.transferring.Store(false)
	}()
	return call()
}

func (e *Engine) run(ctx context.Context, fn func(ctx context.Context, tx *txn) error) ([]models.Notification, error) {
	inner := context.WithValue(ctx, opKey{}, &opState{engine: e, holdsState: true})
func (e *Engine) finish(op string, start time.Time, err error) {
	if e.observer != nil {
		e.observer.ObserveOperation(op, time.Since(start), err)
	}
	if err != nil {
		e.logger.Debug("operation rejected",
			zap.String("op", op),
			zap.String("code", CodeOf(err)),
			zap.Error(err),
		)
	}
}

func (e *Engine) deliver(ctx context.Context, notes []models.Notification) {
	for _, n := range notes {
		for _, s := range e.sinks {
			if err := s.Publish(ctx, n); err != nil {
				e.logger.Warn("notification sink failed",
					zap.Uint64("seq", n.Seq),
					zap.String("kind", string(n.Kind)),
					zap.Error(err),
				)
			}
		}
	}
}

func (e *Engine) now() int64 {
	return e.clock.Now().Unix()
}

// CreateEvent publishes a new event owned by caller and returns its id.
func (e *Engine) CreateEvent(ctx context.Context, caller common.Address, spec models.EventSpec) (uint64, error) {
	var id uint64
	err := e.execute(ctx, "createEvent", func(ctx context.Context, tx *txn) error {
		if e.paused {
			return ErrPaused
		}
		if err := tx.guard(); err != nil {
			return err
		}
		created, err := e.events.create(caller, spec, e.now(), e.registry)
		if err != nil {
			return err
		}
		tx.onUndo(e.events.pop)
		id = created
		tx.emit(models.Notification{
			Kind:    models.KindEventCreated,
			EventID: created,
			Account: caller,
			Name:    spec.Name,
		})
		return nil
	})
	return id, err
}

// BuyTicket sells caller one ticket. value is the attached native payment;
// it must equal the ticket price on the native rail and be zero otherwise.
func (e *Engine) BuyTicket(ctx context.Context, caller common.Address, eventID uint64, value *uint256.Int) error {
	return e.execute(ctx, "buyTicket", func(ctx context.Context, tx *txn) error {
		if e.paused {
			return ErrPaused
		}
		ev, err := e.events.get(eventID)
		if err != nil {
			return err
		}
		if e.now() >= ev.StartDate {
			return ErrEventExpired
		}
		if !ev.IsActive() {
			return ErrEventInactive
		}
		if e.attendance.hasTicket(eventID, caller) {
			return ErrAlreadyPurchased
		}
		if e.attendance.count(eventID) >= MaxAttendees {
			return ErrCapacityExceeded
		}
		rail := strategies[ev.Rail]
		if err := rail.check(ctx, e, ev, caller, value); err != nil {
			return err
		}
		if err := tx.guard(); err != nil {
			return err
		}

		fee, net := computeFee(ev.Rail, &ev.TicketPrice)
		if err := e.holdFunds(tx, ev, net); err != nil {
			return err
		}
		if err := e.attendance.recordPurchase(eventID, caller); err != nil {
			return err
		}
		tx.onUndo(func() { _ = e.attendance.recordRefund(eventID, caller) })

		if err := rail.collect(context.WithoutCancel(ctx), e, tx, ev, caller, fee); err != nil {
			return err
		}
		tx.emit(models.Notification{
			Kind:    models.KindTicketPurchased,
			EventID: eventID,
			Account: caller,
			Token:   ev.PaymentToken,
			Amount:  ev.TicketPrice,
		})
		return nil
	})
}

// CancelEvent permanently deactivates an event. Only its creator may cancel.
func (e *Engine) CancelEvent(ctx context.Context, caller common.Address, eventID uint64) error {
	return e.execute(ctx, "cancelEvent", func(ctx context.Context, tx *txn) error {
		if e.paused {
			return ErrPaused
		}
		ev, err := e.events.get(eventID)
		if err != nil {
			return err
		}
		if ev.Creator != caller {
			return ErrNotOwner
		}
		if !ev.IsActive() {
			return ErrAlreadyCanceled
		}
		if ev.FundsReleased {
			return ErrAlreadyReleased
		}
		if err := tx.guard(); err != nil {
			return err
		}
		if err := e.events.setStatus(eventID, models.StatusCanceled); err != nil {
			return err
		}
		tx.onUndo(func() { _ = e.events.setStatus(eventID, models.StatusActive) })
		tx.emit(models.Notification{Kind: models.KindEventCanceled, EventID: eventID})
		return nil
	})
}

// RequestRefund returns caller's payment and gives up their ticket. Refunds
// are open until RefundBuffer before the start, or at any time once the
// event is canceled. All ledger state is updated before funds leave custody.
func (e *Engine) RequestRefund(ctx context.Context, caller common.Address, eventID uint64) error {
	return e.execute(ctx, "requestRefund", func(ctx context.Context, tx *txn) error {
		ev, err := e.events.get(eventID)
		if err != nil {
			return err
		}
		if !e.attendance.hasTicket(eventID, caller) {
			return ErrNoTicket
		}
		if !ev.IsCanceled() && e.now() >= ev.StartDate-RefundBuffer {
			return ErrRefundPeriodEnded
		}
		amount := refundAmount(ev)
		if e.escrow.balance(eventID, ev.Rail).Lt(amount) {
			return ErrInsufficientFunds
		}
		if err := tx.guard(); err != nil {
			return err
		}

		if err := e.releaseHeld(tx, ev, amount); err != nil {
			return err
		}
		if err := e.attendance.recordRefund(eventID, caller); err != nil {
			return err
		}
		tx.onUndo(func() { _ = e.attendance.recordPurchase(eventID, caller) })

		if err := strategies[ev.Rail].pay(context.WithoutCancel(ctx), e, ev, caller, amount); err != nil {
			return err
		}
		tx.emit(models.Notification{
			Kind:    models.KindRefundIssued,
			EventID: eventID,
			Account: caller,
			Amount:  *amount,
		})
		return nil
	})
}

// ReleaseFunds pays the whole remaining escrow to the creator once the event
// has ended. It succeeds at most once per event.
func (e *Engine) ReleaseFunds(ctx context.Context, caller common.Address, eventID uint64) error {
	return e.execute(ctx, "releaseFunds", func(ctx context.Context, tx *txn) error {
		ev, err := e.events.get(eventID)
		if err != nil {
			return err
		}
		if ev.Creator != caller {
			return ErrNotOwner
		}
		if e.now() <= ev.EndDate {
			return ErrEventNotEnded
		}
		if ev.IsCanceled() {
			return ErrCanceledEventNoRelease
		}
		if ev.FundsReleased {
			return ErrAlreadyReleased
		}
		amount := e.escrow.balance(eventID, ev.Rail)
		if err := tx.guard(); err != nil {
			return err
		}

		if !amount.IsZero() {
			if err := e.releaseHeld(tx, ev, amount); err != nil {
				return err
			}
		}
		if err := e.events.setFundsReleased(eventID, true); err != nil {
			return err
		}
		tx.onUndo(func() { _ = e.events.setFundsReleased(eventID, false) })

		if !amount.IsZero() {
			if err := strategies[ev.Rail].pay(context.WithoutCancel(ctx), e, ev, ev.Creator, amount); err != nil {
				return err
			}
		}
		tx.emit(models.Notification{
			Kind:    models.KindFundsReleased,
			EventID: eventID,
			Amount:  *amount,
		})
		return nil
	})
}

// Pause closes the admission gate for create, buy and cancel.
func (e *Engine) Pause(ctx context.Context, caller common.Address) error {
	return e.setPaused(ctx, caller, true)
}

func (e *Engine) Unpause(ctx context.Context, caller common.Address) error {
	return e.setPaused(ctx, caller, false)
}

func (e *Engine) setPaused(ctx context.Context, caller common.Address, paused bool) error {
	op := "unpause"
	if paused {
		op = "pause"
	}
	return e.execute(ctx, op, func(ctx context.Context, tx *txn) error {
		if caller != e.owner {
			return ErrNotOwner
		}
		if e.paused == paused {
			if paused {
				return ErrPaused
			}
			return ErrNotPaused
		}
		if err := tx.guard(); err != nil {
			return err
		}
		e.paused = paused
		tx.onUndo(func() { e.paused = !paused })
		e.logger.Info("admission gate changed", zap.Bool("paused", paused))
		return nil
	})
}

// AddSupportedToken lets new events be priced in token. Existing events keep
// the rail they were created with.
func (e *Engine) AddSupportedToken(ctx context.Context, caller, token common.Address, feeBearing bool) error {
	return e.execute(ctx, "addSupportedToken", func(ctx context.Context, tx *txn) error {
		if caller != e.owner {
			return ErrNotOwner
		}
		if token == models.NativeToken {
			return fmt.Errorf("%w: token", ErrInvalidAddress)
		}
		if feeBearing && e.fees.pool == (common.Address{}) {
			return fmt.Errorf("%w: no fee pool configured", ErrInvalidAddress)
		}
		if err := tx.guard(); err != nil {
			return err
		}
		wasSupported, wasFee := e.registry.supported[token], e.registry.feeClass[token]
		e.registry.register(token, feeBearing)
		tx.onUndo(func() {
			if !wasSupported {
				delete(e.registry.supported, token)
			}
			if !wasFee {
				delete(e.registry.feeClass, token)
			}
		})
		e.logger.Info("token registered", zap.String("token", token.Hex()), zap.Bool("fee_bearing", feeBearing))
		return nil
	})
}

// holdFunds credits amount to the event's escrow bucket, mirroring token
// rails into the event's FundsHeld.
func (e *Engine) holdFunds(tx *txn, ev models.Event, amount *uint256.Int) error {
	if err := e.escrow.credit(ev.ID, ev.Rail, amount); err != nil {
		return err
	}
	tx.onUndo(func() { _ = e.escrow.debit(ev.ID, ev.Rail, amount) })
	if ev.Rail == models.RailNative {
		return nil
	}
	if err := e.events.adjustFundsHeld(ev.ID, amount, true); err != nil {
		return err
	}
	tx.onUndo(func() { _ = e.events.adjustFundsHeld(ev.ID, amount, false) })
	return nil
}

func (e *Engine) releaseHeld(tx *txn, ev models.Event, amount *uint256.Int) error {
	if err := e.escrow.debit(ev.ID, ev.Rail, amount); err != nil {
		return err
	}
	tx.onUndo(func() { _ = e.escrow.credit(ev.ID, ev.Rail, amount) })
	if ev.Rail == models.RailNative {
		return nil
	}
	if err := e.events.adjustFundsHeld(ev.ID, amount, false); err != nil {
		return err
	}
	tx.onUndo(func() { _ = e.events.adjustFundsHeld(ev.ID, amount, true) })
	return nil
}

// refundAmount is what a purchase actually left in escrow: the full price,
// or the price net of the purchase fee on the fee-bearing rail.
func refundAmount(ev models.Event) *uint256.Int {
	_, net := computeFee(ev.Rail, &ev.TicketPrice)
	return net
}
