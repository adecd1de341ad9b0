package contracts

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"event-escrow/ticketing"
)

const (
	nativeTransferGas     = 21000
	defaultReceiptTimeout = 2 * time.Minute
)

// Signer is the custody key shared by the chain-backed transfers.
type Signer struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
	ChainID *big.Int
}

// NewSigner parses a hex private key (with or without 0x).
func NewSigner(hexKey string, chainID *big.Int) (*Signer, error) {
	if len(hexKey) > 1 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer key: %w", err)
	}
	return &Signer{
		Key:     key,
		Address: crypto.PubkeyToAddress(key.PublicKey),
		ChainID: chainID,
	}, nil
}

// TransactOpts returns keyed transactor options for contract writes.
func (s *Signer) TransactOpts() (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.Key, s.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}
	return opts, nil
}

// NativeBackend is the part of ethclient.Client the native rail uses.
type NativeBackend interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// NativeSender moves the chain's native asset with signed value transfers.
// Inbound payments are the buyer's own transactions to the custody address,
// verified by hash and accepted once each.
type NativeSender struct {
	client         NativeBackend
	signer         *Signer
	receiptTimeout time.Duration

	mu      sync.Mutex
	settled map[common.Hash]struct{}
}

func NewNativeSender(client NativeBackend, signer *Signer) *NativeSender {
	return &NativeSender{
		client:         client,
		signer:         signer,
		receiptTimeout: defaultReceiptTimeout,
		settled:        make(map[common.Hash]struct{}),
	}
}

// Receive accepts the payment named by ticketing.PaymentReference. The
// transaction must be mined successfully, pay exactly amount to custody, be
// signed by from, and not have settled an earlier purchase.
func (n *NativeSender) Receive(ctx context.Context, from common.Address, amount *uint256.Int) (bool, error) {
	hash, ok := ticketing.PaymentReference(ctx)
	if !ok {
		return false, errors.New("native purchase carries no payment transaction")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, used := n.settled[hash]; used {
		return false, fmt.Errorf("payment %s already settled a purchase", hash.Hex())
	}

	tx, pending, err := n.client.TransactionByHash(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("failed to fetch payment %s: %w", hash.Hex(), err)
	}
	if pending {
		return false, fmt.Errorf("payment %s is not mined yet", hash.Hex())
	}
	receipt, err := n.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("failed to fetch receipt for %s: %w", hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return false, fmt.Errorf("payment %s reverted", hash.Hex())
	}
	if tx.To() == nil || *tx.To() != n.signer.Address {
		return false, fmt.Errorf("payment %s is not addressed to custody", hash.Hex())
	}
	if tx.Value().Cmp(amount.ToBig()) != 0 {
		return false, fmt.Errorf("payment %s carries %s, want %s", hash.Hex(), tx.Value(), amount.ToBig())
	}
	sender, err := types.Sender(types.LatestSignerForChainID(n.signer.ChainID), tx)
	if err != nil {
		return false, fmt.Errorf("failed to recover payer of %s: %w", hash.Hex(), err)
	}
	if sender != from {
		return false, fmt.Errorf("payment %s was sent by %s", hash.Hex(), sender.Hex())
	}

	n.settled[hash] = struct{}{}
	return true, nil
}

// Send signs and submits a value transfer. Once the transaction is accepted
// by the node, failing to see its receipt is reported as
// ticketing.ErrSubmitted rather than a failure.
func (n *NativeSender) Send(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	nonce, err := n.client.PendingNonceAt(ctx, n.signer.Address)
	if err != nil {
		return false, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := n.client.SuggestGasPrice(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, amount.ToBig(), nativeTransferGas, gasPrice, nil)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(n.signer.ChainID), n.signer.Key)
	if err != nil {
		return false, fmt.Errorf("failed to sign transfer: %w", err)
	}
	if err := n.client.SendTransaction(ctx, signed); err != nil {
		return false, fmt.Errorf("failed to send transfer: %w", err)
	}
	return waitMined(ctx, n.client, signed, n.receiptTimeout)
}

// waitMined waits for tx's receipt on a ctx detached from the caller. A
// revert is a failure; no receipt within timeout is ticketing.ErrSubmitted.
func waitMined(ctx context.Context, backend bind.DeployBackend, tx *types.Transaction, timeout time.Duration) (bool, error) {
	wait, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	receipt, err := bind.WaitMined(wait, backend, tx)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ticketing.ErrSubmitted, tx.Hash().Hex(), err)
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}
