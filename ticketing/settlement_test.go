package ticketing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-escrow/models"
)

func TestUnconfirmedPayoutCommits(t *testing.T) {
	t.Run("refund with caller gone", func(t *testing.T) {
		h := newHarness(t)
		id := h.createEvent(t, usdc, u(10))
		h.usdc.mint(alice, 10)
		h.usdc.approve(alice, 10)
		require.NoError(t, h.engine.BuyTicket(context.Background(), alice, id, nil))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h.usdc.unconfirmed[alice] = true
		h.usdc.onTransfer = func(context.Context, common.Address, *uint256.Int) { cancel() }

		require.NoError(t, h.engine.RequestRefund(ctx, alice, id))
		assert.NoError(t, h.usdc.transferCtxErr, "payout runs on a ctx the caller cannot cancel")
		assert.False(t, h.engine.HasTicket(id, alice))

		for i := 0; i < 3; i++ {
			require.ErrorIs(t, h.engine.RequestRefund(context.Background(), alice, id), ErrNoTicket)
		}
		assert.Equal(t, uint64(10), h.usdc.balanceOf(alice), "paid out once")
		tok, _ := h.escrow(t, id)
		assert.True(t, tok.IsZero())

		logs := h.engine.Logs(0)
		assert.Equal(t, models.KindRefundIssued, logs[len(logs)-1].Kind)
		h.sink.mu.Lock()
		defer h.sink.mu.Unlock()
		assert.NoError(t, h.sink.ctxErrs[len(h.sink.ctxErrs)-1], "delivery ignores the caller's cancellation")
	})

	t.Run("native release", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		id := h.createEvent(t, models.NativeToken, ether(1))
		require.NoError(t, h.engine.BuyTicket(ctx, alice, id, ether(1)))
		h.native.unconfirmed = true

		h.clock.set(h.event(t, id).EndDate + 1)
		require.NoError(t, h.engine.ReleaseFunds(ctx, creator, id))
		assert.True(t, h.event(t, id).FundsReleased)
		require.ErrorIs(t, h.engine.ReleaseFunds(ctx, creator, id), ErrAlreadyReleased)
		assert.Equal(t, *ether(1), h.native.sent[creator])
	})

	t.Run("unconfirmed pull rolls the purchase back", func(t *testing.T) {
		h := newHarness(t)
		id := h.createEvent(t, usdc, u(10))
		h.usdc.mint(alice, 10)
		h.usdc.approve(alice, 10)
		h.usdc.unconfirmed[custody] = true

		err := h.engine.BuyTicket(context.Background(), alice, id, nil)
		require.ErrorIs(t, err, ErrTransferFailed)
		assert.False(t, h.engine.HasTicket(id, alice))
		tok, _ := h.escrow(t, id)
		assert.True(t, tok.IsZero())
	})
}

func TestTransferCallbackWithFreshContext(t *testing.T) {
	h := newHarness(t)
	id := h.createEvent(t, usdc, u(100))
	h.usdc.mint(alice, 100)
	h.usdc.approve(alice, 100)
	h.usdc.mint(bob, 100)
	h.usdc.approve(bob, 100)
	require.NoError(t, h.engine.BuyTicket(context.Background(), alice, id, nil))

	var sawTicket bool
	var attendees []common.Address
	var refundErr, buyErr error
	h.usdc.onTransfer = func(_ context.Context, to common.Address, _ *uint256.Int) {
		if to != alice {
			return
		}
		sawTicket = h.engine.HasTicket(id, alice)
		attendees, _ = h.engine.Attendees(id)
		refundErr = h.engine.RequestRefund(context.Background(), alice, id)
		buyErr = h.engine.BuyTicket(context.Background(), bob, id, nil)
	}

	done := make(chan error, 1)
	go func() { done <- h.engine.RequestRefund(context.Background(), alice, id) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("refund did not return while its payout called back into the engine")
	}

	assert.False(t, sawTicket, "ticket is cleared before funds leave custody")
	assert.Empty(t, attendees)
	require.ErrorIs(t, refundErr, ErrReentrantCall)
	require.ErrorIs(t, buyErr, ErrReentrantCall)
	assert.Equal(t, uint64(100), h.usdc.balanceOf(alice), "refunded exactly once")
	assert.False(t, h.engine.HasTicket(id, bob))

	h.usdc.onTransfer = nil
	require.NoError(t, h.engine.BuyTicket(context.Background(), bob, id, nil), "engine is usable afterwards")
}

func TestConcurrentOperationsDeliverInLogOrder(t *testing.T) {
	h := newHarness(t)
	h.sink.delay = time.Millisecond
	id := h.createEvent(t, models.NativeToken, u(1))

	const buyers = 24
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(buyer common.Address) {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			assert.NoError(t, h.engine.BuyTicket(ctx, buyer, id, u(1)))
		}(addr(i))
	}
	wg.Wait()

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	require.Len(t, h.sink.notes, buyers+1)
	for i, n := range h.sink.notes {
		assert.Equal(t, uint64(i), n.Seq)
	}
	for _, err := range h.sink.ctxErrs {
		assert.NoError(t, err)
	}
	attendees, err := h.engine.Attendees(id)
	require.NoError(t, err)
	assert.Len(t, attendees, buyers)
}

func TestCanceledCallerWaitingForSlot(t *testing.T) {
	h := newHarness(t)
	id := h.createEvent(t, usdc, u(10))
	h.usdc.mint(alice, 10)
	h.usdc.approve(alice, 10)
	require.NoError(t, h.engine.BuyTicket(context.Background(), alice, id, nil))

	release := make(chan struct{})
	entered := make(chan struct{})
	h.usdc.onTransfer = func(context.Context, common.Address, *uint256.Int) {
		close(entered)
		<-release
	}
	done := make(chan error, 1)
	go func() { done <- h.engine.RequestRefund(context.Background(), alice, id) }()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.engine.Pause(ctx, owner)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, h.engine.Paused())

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, h.engine.Pause(context.Background(), owner))
}
