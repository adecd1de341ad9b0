package ticketing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"event-escrow/models"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	custody = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	pool    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	usdc    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	feeTok  = common.HexToAddress("0x00000000000000000000000000000000000000d2")
)

const t0 = int64(1_700_000_000)

type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *fakeClock) set(unix int64) {
	c.mu.Lock()
	c.now = unix
	c.mu.Unlock()
}

// fakeToken is an ERC-20 style ledger whose spender is always custody.
type fakeToken struct {
	balances   map[common.Address]uint256.Int
	allowances map[common.Address]uint256.Int
	// failTo makes Transfer to that address report false.
	failTo map[common.Address]bool
	// unconfirmed makes transfers to that address move the funds and then
	// report ErrSubmitted, as when the receipt never arrives.
	unconfirmed map[common.Address]bool
	// onTransfer runs before an outbound Transfer settles.
	onTransfer func(ctx context.Context, to common.Address, amount *uint256.Int)
	// onTransferFrom runs before a pull from a buyer settles.
	onTransferFrom func(ctx context.Context, from common.Address, amount *uint256.Int)
	// transferCtxErr is ctx.Err() as the last Transfer saw it after onTransfer.
	transferCtxErr error
}

func newFakeToken() *fakeToken {
	return &fakeToken{
		balances:    make(map[common.Address]uint256.Int),
		allowances:  make(map[common.Address]uint256.Int),
		failTo:      make(map[common.Address]bool),
		unconfirmed: make(map[common.Address]bool),
	}
}

func (f *fakeToken) mint(to common.Address, amount uint64) {
	b := f.balances[to]
	f.balances[to] = *new(uint256.Int).Add(&b, uint256.NewInt(amount))
}

func (f *fakeToken) approve(holder common.Address, amount uint64) {
	f.allowances[holder] = *uint256.NewInt(amount)
}

func (f *fakeToken) balanceOf(a common.Address) uint64 {
	b := f.balances[a]
	return b.Uint64()
}

func (f *fakeToken) Allowance(_ context.Context, holder, spender common.Address) (*uint256.Int, error) {
	if spender != custody {
		return new(uint256.Int), nil
	}
	a := f.allowances[holder]
	return &a, nil
}

func (f *fakeToken) move(from, to common.Address, amount *uint256.Int) bool {
	fb := f.balances[from]
	if fb.Lt(amount) {
		return false
	}
	tb := f.balances[to]
	f.balances[from] = *new(uint256.Int).Sub(&fb, amount)
	f.balances[to] = *new(uint256.Int).Add(&tb, amount)
	return true
}

func (f *fakeToken) TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	if f.onTransferFrom != nil {
		f.onTransferFrom(ctx, from, amount)
	}
	a := f.allowances[from]
	if a.Lt(amount) {
		return false, nil
	}
	if !f.move(from, to, amount) {
		return false, nil
	}
	f.allowances[from] = *new(uint256.Int).Sub(&a, amount)
	if f.unconfirmed[to] {
		return false, fmt.Errorf("%w: transferFrom receipt timed out", ErrSubmitted)
	}
	return true, nil
}

func (f *fakeToken) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	if f.onTransfer != nil {
		f.onTransfer(ctx, to, amount)
	}
	f.transferCtxErr = ctx.Err()
	if f.failTo[to] {
		return false, nil
	}
	if !f.move(custody, to, amount) {
		return false, nil
	}
	if f.unconfirmed[to] {
		return false, fmt.Errorf("%w: transfer receipt timed out", ErrSubmitted)
	}
	return true, nil
}

type fakeNative struct {
	received map[common.Address]uint256.Int
	sent     map[common.Address]uint256.Int
	failSend bool
	// unpaid makes Receive find no payment behind the purchase.
	unpaid bool
	// unconfirmed makes Send pay out and then report ErrSubmitted.
	unconfirmed bool
}

func newFakeNative() *fakeNative {
	return &fakeNative{
		received: make(map[common.Address]uint256.Int),
		sent:     make(map[common.Address]uint256.Int),
	}
}

func (n *fakeNative) Receive(_ context.Context, from common.Address, amount *uint256.Int) (bool, error) {
	if n.unpaid {
		return false, errors.New("no payment to custody found")
	}
	r := n.received[from]
	n.received[from] = *new(uint256.Int).Add(&r, amount)
	return true, nil
}

func (n *fakeNative) Send(_ context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	if n.failSend {
		return false, errors.New("send reverted")
	}
	s := n.sent[to]
	n.sent[to] = *new(uint256.Int).Add(&s, amount)
	if n.unconfirmed {
		return false, fmt.Errorf("%w: send receipt timed out", ErrSubmitted)
	}
	return true, nil
}

type recordingSink struct {
	mu    sync.Mutex
	notes []models.Notification
	// ctxErrs holds ctx.Err() as each delivery saw it.
	ctxErrs []error
	// delay slows every other delivery down.
	delay time.Duration
}

func (s *recordingSink) Publish(ctx context.Context, n models.Notification) error {
	if s.delay > 0 && n.Seq%2 == 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	return nil
}

type opRecord struct {
	op  string
	err error
}

type recordingObserver struct {
	mu  sync.Mutex
	ops []opRecord
}

func (o *recordingObserver) ObserveOperation(op string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, opRecord{op: op, err: err})
}

type harness struct {
	engine   *Engine
	clock    *fakeClock
	usdc     *fakeToken
	fee      *fakeToken
	native   *fakeNative
	sink     *recordingSink
	observer *recordingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    &fakeClock{now: t0},
		usdc:     newFakeToken(),
		fee:      newFakeToken(),
		native:   newFakeNative(),
		sink:     &recordingSink{},
		observer: &recordingObserver{},
	}
	e, err := New(Config{
		Owner:           owner,
		Custody:         custody,
		SupportedTokens: []common.Address{usdc},
		FeeTokens:       []common.Address{feeTok},
		FeePool:         pool,
		Tokens:          TokenMap{usdc: h.usdc, feeTok: h.fee},
		Native:          h.native,
		Clock:           h.clock,
		Observer:        h.observer,
		Sinks:           []Sink{h.sink},
		ReentryWait:     50 * time.Millisecond,
	})
	require.NoError(t, err)
	h.engine = e
	return h
}

func validSpec(token common.Address, price *uint256.Int) models.EventSpec {
	start := t0 + 2*24*3600
	return models.EventSpec{
		Name:         "Rooftop Sessions",
		ImageURL:     "ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		Details:      "Live set and drinks on the roof.",
		Location:     "Lisbon",
		StartDate:    start,
		EndDate:      start + 4*3600,
		StartTime:    20 * 3600,
		EndTime:      24 * 3600,
		TicketPrice:  *price,
		PaymentToken: token,
	}
}

func (h *harness) createEvent(t *testing.T, token common.Address, price *uint256.Int) uint64 {
	t.Helper()
	id, err := h.engine.CreateEvent(context.Background(), creator, validSpec(token, price))
	require.NoError(t, err)
	return id
}

func (h *harness) event(t *testing.T, id uint64) models.Event {
	t.Helper()
	d, err := h.engine.Event(id)
	require.NoError(t, err)
	return d.Event
}

func (h *harness) escrow(t *testing.T, id uint64) (token, native uint256.Int) {
	t.Helper()
	tb, nb, err := h.engine.EscrowBalance(id)
	require.NoError(t, err)
	return *tb, *nb
}

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// ether returns whole units of an 18-decimal asset.
func ether(v int64) *uint256.Int {
	b := new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	out, _ := uint256.FromBig(b)
	return out
}

func addr(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x10000 + i)))
}
