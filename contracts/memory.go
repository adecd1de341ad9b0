package contracts

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"event-escrow/ticketing"
)

// MemoryToken is an in-process ERC-20 ledger used when no RPC endpoint is
// configured. Allowances are always granted to the custody address.
type MemoryToken struct {
	custody common.Address

	mu         sync.Mutex
	balances   map[common.Address]uint256.Int
	allowances map[common.Address]uint256.Int
}

func NewMemoryToken(custody common.Address) *MemoryToken {
	return &MemoryToken{
		custody:    custody,
		balances:   make(map[common.Address]uint256.Int),
		allowances: make(map[common.Address]uint256.Int),
	}
}

// Mint credits holder out of thin air.
func (t *MemoryToken) Mint(holder common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.balances[holder]
	t.balances[holder] = *new(uint256.Int).Add(&b, amount)
}

// Approve sets holder's allowance for the custody address.
func (t *MemoryToken) Approve(holder common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[holder] = *amount
}

func (t *MemoryToken) BalanceOf(_ context.Context, holder common.Address) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.balances[holder]
	return &b, nil
}

func (t *MemoryToken) Allowance(_ context.Context, holder, spender common.Address) (*uint256.Int, error) {
	if spender != t.custody {
		return new(uint256.Int), nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.allowances[holder]
	return &a, nil
}

func (t *MemoryToken) TransferFrom(_ context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.allowances[from]
	if a.Lt(amount) {
		return false, nil
	}
	if !t.move(from, to, amount) {
		return false, nil
	}
	t.allowances[from] = *new(uint256.Int).Sub(&a, amount)
	return true, nil
}

func (t *MemoryToken) Transfer(_ context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(t.custody, to, amount), nil
}

// move must be called with mu held.
func (t *MemoryToken) move(from, to common.Address, amount *uint256.Int) bool {
	fb := t.balances[from]
	if fb.Lt(amount) {
		return false
	}
	t.balances[from] = *new(uint256.Int).Sub(&fb, amount)
	tb := t.balances[to]
	t.balances[to] = *new(uint256.Int).Add(&tb, amount)
	return true
}

// MemoryNative tracks native balances per wallet. Receive debits the buyer's
// wallet into custody and Send pays out of custody.
type MemoryNative struct {
	custody common.Address

	mu       sync.Mutex
	balances map[common.Address]uint256.Int
}

func NewMemoryNative(custody common.Address) *MemoryNative {
	return &MemoryNative{
		custody:  custody,
		balances: make(map[common.Address]uint256.Int),
	}
}

func (n *MemoryNative) Fund(holder common.Address, amount *uint256.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b := n.balances[holder]
	n.balances[holder] = *new(uint256.Int).Add(&b, amount)
}

func (n *MemoryNative) BalanceOf(holder common.Address) *uint256.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	b := n.balances[holder]
	return &b
}

func (n *MemoryNative) Receive(_ context.Context, from common.Address, amount *uint256.Int) (bool, error) {
	return n.move(from, n.custody, amount), nil
}

func (n *MemoryNative) Send(_ context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	return n.move(n.custody, to, amount), nil
}

func (n *MemoryNative) move(from, to common.Address, amount *uint256.Int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	fb := n.balances[from]
	if fb.Lt(amount) {
		return false
	}
	n.balances[from] = *new(uint256.Int).Sub(&fb, amount)
	tb := n.balances[to]
	n.balances[to] = *new(uint256.Int).Add(&tb, amount)
	return true
}

// MemoryBank hands out a MemoryToken per address, creating them on demand so
// tokens added at runtime have a ledger too.
type MemoryBank struct {
	custody common.Address

	mu     sync.Mutex
	tokens map[common.Address]*MemoryToken
}

func NewMemoryBank(custody common.Address) *MemoryBank {
	return &MemoryBank{
		custody: custody,
		tokens:  make(map[common.Address]*MemoryToken),
	}
}

// Ledger returns the concrete ledger for address.
func (b *MemoryBank) Ledger(address common.Address) *MemoryToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tokens[address]
	if !ok {
		t = NewMemoryToken(b.custody)
		b.tokens[address] = t
	}
	return t
}

func (b *MemoryBank) Token(address common.Address) (ticketing.TokenTransfer, bool) {
	return b.Ledger(address), true
}
