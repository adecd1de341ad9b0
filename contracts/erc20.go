package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	"event-escrow/ticketing"
)

// ERC20 ABI - only the functions we need
const erc20ABI = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

func parseERC20ABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}
	return parsed, nil
}

// ERC20 wraps an ERC-20 token contract as a ticketing.TokenTransfer. Reads go
// through eth_call; writes are signed by the custody key and wait for a
// receipt so the boolean result reflects the mined outcome. A write whose
// receipt never shows up reports ticketing.ErrSubmitted.
type ERC20 struct {
	client   *ethclient.Client
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	auth     *bind.TransactOpts
}

// NewERC20 creates a new ERC20 instance
func NewERC20(client *ethclient.Client, address common.Address, auth *bind.TransactOpts) (*ERC20, error) {
	parsedABI, err := parseERC20ABI()
	if err != nil {
		return nil, err
	}

	return &ERC20{
		client:   client,
		address:  address,
		abi:      parsedABI,
		contract: bind.NewBoundContract(address, parsedABI, client, client, client),
		auth:     auth,
	}, nil
}

func (t *ERC20) call(ctx context.Context, method string, args ...interface{}) (*uint256.Int, error) {
	callData, err := t.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack call data: %w", err)
	}

	result, err := t.client.CallContract(ctx, ethereum.CallMsg{
		To:   &t.address,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	var out *big.Int
	if err := t.abi.UnpackIntoInterface(&out, method, result); err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}

	value, overflow := uint256.FromBig(out)
	if overflow {
		return nil, fmt.Errorf("%s result overflows 256 bits", method)
	}
	return value, nil
}

// Allowance calls allowance(owner, spender) on the token contract
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error) {
	return t.call(ctx, "allowance", owner, spender)
}

// BalanceOf calls balanceOf(account) on the token contract
func (t *ERC20) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	return t.call(ctx, "balanceOf", account)
}

func (t *ERC20) TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	return t.transact(ctx, "transferFrom", from, to, amount.ToBig())
}

func (t *ERC20) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	return t.transact(ctx, "transfer", to, amount.ToBig())
}

func (t *ERC20) transact(ctx context.Context, method string, args ...interface{}) (bool, error) {
	opts := *t.auth
	opts.Context = ctx

	tx, err := t.contract.Transact(&opts, method, args...)
	if err != nil {
		return false, fmt.Errorf("failed to send %s: %w", method, err)
	}

	ok, err := waitMined(ctx, t.client, tx, defaultReceiptTimeout)
	if err != nil {
		return false, fmt.Errorf("%s: %w", method, err)
	}
	return ok, nil
}

// TokenSet lazily binds an ERC20 per token address, sharing one client and
// signer.
type TokenSet struct {
	client *ethclient.Client
	auth   *bind.TransactOpts

	mu     sync.Mutex
	tokens map[common.Address]*ERC20
}

func NewTokenSet(client *ethclient.Client, auth *bind.TransactOpts) *TokenSet {
	return &TokenSet{
		client: client,
		auth:   auth,
		tokens: make(map[common.Address]*ERC20),
	}
}

func (s *TokenSet) Token(address common.Address) (ticketing.TokenTransfer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tokens[address]; ok {
		return t, true
	}
	t, err := NewERC20(s.client, address, s.auth)
	if err != nil {
		return nil, false
	}
	s.tokens[address] = t
	return t, true
}
