package onchain

// writer.go — authoritative ledger writes.
//
// Every write signs with the user's custody key via the KeyStore port,
// submits, and blocks until the receipt confirms. A revert or a
// confirmation timeout surfaces as domain.ErrWriteReverted; confirmed
// writes are never rolled back. Writes are never auto-retried.

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alejandrodnm/lendbot/internal/domain"
	"github.com/alejandrodnm/lendbot/internal/ports"
)

// Writer implements ports.ChainWriter.
type Writer struct {
	c  *Client
	ks ports.KeyStore
}

// NewWriter wraps a shared client and the custody key store.
func NewWriter(c *Client, ks ports.KeyStore) *Writer {
	return &Writer{c: c, ks: ks}
}

func kindCode(k domain.OfferKind) uint8 {
	if k == domain.OfferLend {
		return 1
	}
	return 0
}

// CreateOffer submits a new offer. The on-chain id is obtained by
// simulating the call first, then sending the same calldata.
func (w *Writer) CreateOffer(ctx context.Context, userID string, o domain.Offer) (string, uint64, error) {
	callData, err := marketABI.Pack("createOffer",
		kindCode(o.Kind),
		common.HexToAddress(o.CollateralToken.Address),
		toBase(o.CollateralAmount),
		toBase(o.LoanAmount),
		big.NewInt(o.InterestRateBps),
		big.NewInt(int64(o.MaturityDays)),
		big.NewInt(o.EarlyRepayFeeBps),
	)
	if err != nil {
		return "", 0, fmt.Errorf("onchain.CreateOffer: pack: %w", err)
	}

	// Simulate to learn the id the program will assign.
	wallet, ok, err := w.ks.Load(ctx, userID)
	if err != nil || !ok {
		return "", 0, fmt.Errorf("onchain.CreateOffer: load wallet %q: %w", userID, firstErr(err))
	}
	from := common.HexToAddress(wallet.Address)
	raw, err := w.c.eth.CallContract(ctx, ethereum.CallMsg{From: from, To: &w.c.addrs.Market, Data: callData}, nil)
	if err != nil {
		return "", 0, fmt.Errorf("onchain.CreateOffer: simulate: %w", err)
	}
	vals, err := marketABI.Unpack("createOffer", raw)
	if err != nil || len(vals) == 0 {
		return "", 0, fmt.Errorf("onchain.CreateOffer: unpack simulated id: %w", err)
	}
	onChainID := asUint64(vals[0])

	txHash, err := w.send(ctx, userID, w.c.addrs.Market, callData)
	if err != nil {
		return "", 0, err
	}
	return txHash, onChainID, nil
}

// UpdateOffer edits an active offer's terms in place.
func (w *Writer) UpdateOffer(ctx context.Context, userID string, o domain.Offer) (string, error) {
	return w.packAndSend(ctx, userID, w.c.addrs.Market, marketABI, "updateOffer",
		new(big.Int).SetUint64(o.OnChainID),
		toBase(o.CollateralAmount),
		toBase(o.LoanAmount),
		big.NewInt(o.InterestRateBps),
		big.NewInt(int64(o.MaturityDays)),
	)
}

// CancelOffer cancels an active offer.
func (w *Writer) CancelOffer(ctx context.Context, userID string, onChainID uint64) (string, error) {
	return w.packAndSend(ctx, userID, w.c.addrs.Market, marketABI, "cancelOffer", new(big.Int).SetUint64(onChainID))
}

// TakeOffer matches an existing offer from the opposite side.
func (w *Writer) TakeOffer(ctx context.Context, userID string, onChainID uint64) (string, error) {
	return w.packAndSend(ctx, userID, w.c.addrs.Market, marketABI, "takeOffer", new(big.Int).SetUint64(onChainID))
}

// Repay applies a repayment to a matched position.
func (w *Writer) Repay(ctx context.Context, userID string, onChainID uint64, amount float64) (string, error) {
	return w.packAndSend(ctx, userID, w.c.addrs.Market, marketABI, "repay", new(big.Int).SetUint64(onChainID), toBase(amount))
}

// AddCollateral tops up a position's collateral.
func (w *Writer) AddCollateral(ctx context.Context, userID string, onChainID uint64, amount float64) (string, error) {
	return w.packAndSend(ctx, userID, w.c.addrs.Market, marketABI, "addCollateral", new(big.Int).SetUint64(onChainID), toBase(amount))
}

// WithdrawCollateral removes excess collateral from a position.
func (w *Writer) WithdrawCollateral(ctx context.Context, userID string, onChainID uint64, amount float64) (string, error) {
	return w.packAndSend(ctx, userID, w.c.addrs.Market, marketABI, "withdrawCollateral", new(big.Int).SetUint64(onChainID), toBase(amount))
}

// Liquidate liquidates an underwater position.
func (w *Writer) Liquidate(ctx context.Context, userID string, onChainID uint64, amount float64) (string, error) {
	return w.packAndSend(ctx, userID, w.c.addrs.Market, marketABI, "liquidate", new(big.Int).SetUint64(onChainID), toBase(amount))
}

// Approve grants the market program an allowance over the user's
// synthetic tokens.
func (w *Writer) Approve(ctx context.Context, userID string, amount float64) (string, error) {
	return w.packAndSend(ctx, userID, w.c.addrs.Token, tokenABI, "approve", w.c.addrs.Market, toBase(amount))
}

func (w *Writer) packAndSend(ctx context.Context, userID string, to common.Address, parsed abiPacker, method string, args ...any) (string, error) {
	callData, err := parsed.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("onchain.%s: pack: %w", method, err)
	}
	txHash, err := w.send(ctx, userID, to, callData)
	if err != nil {
		return "", fmt.Errorf("onchain.%s: %w", method, err)
	}
	return txHash, nil
}

// abiPacker is the slice of abi.ABI we need here; it keeps packAndSend
// testable without a parsed ABI.
type abiPacker interface {
	Pack(name string, args ...any) ([]byte, error)
}

// send signs, submits and confirms one transaction for the user.
func (w *Writer) send(ctx context.Context, userID string, to common.Address, callData []byte) (string, error) {
	wallet, ok, err := w.ks.Load(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load wallet %q: %w", userID, err)
	}
	if !ok {
		return "", fmt.Errorf("no wallet for user %q", userID)
	}
	from := common.HexToAddress(wallet.Address)

	nonce, err := w.c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := w.c.gasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("gas price: %w", err)
	}

	gasEstimate, err := w.c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &to,
		GasPrice: gasPrice,
		Data:     callData,
	})
	if err != nil {
		gasEstimate = writeGasLimit
		slog.Warn("onchain: gas estimate failed, using default", "err", err, "limit", writeGasLimit)
	}
	// Add 20% buffer
	gasEstimate = gasEstimate * 12 / 10

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasEstimate, gasPrice, callData)

	signer := types.NewEIP155Signer(w.c.chainID)
	digest := signer.Hash(tx)
	sig, err := w.ks.Sign(ctx, userID, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	signed, err := tx.WithSignature(signer, sig)
	if err != nil {
		return "", fmt.Errorf("attach signature: %w", err)
	}

	if err := w.c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}
	txHash := signed.Hash()
	slog.Info("onchain: transaction sent", "user", userID, "tx", txHash.Hex())

	receiptCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	receipt, err := w.c.waitForReceipt(receiptCtx, txHash)
	if err != nil {
		return "", fmt.Errorf("confirm %s: %w: %w", txHash.Hex(), domain.ErrWriteReverted, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("tx %s: %w", txHash.Hex(), domain.ErrWriteReverted)
	}
	return txHash.Hex(), nil
}

// firstErr keeps wrap sites tidy when a lookup can fail two ways.
func firstErr(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("wallet absent")
}
