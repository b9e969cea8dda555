package onchain

// authority.go — the issuer capability.
//
// The authority key signs exactly two things: synthetic-token mints and
// native-currency top-ups. It comes from the AUTHORITY_KEY environment
// variable and never mixes with user custody keys.

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// Authority implements ports.Minter and ports.Funder.
type Authority struct {
	c       *Client
	keyHex  string
	address common.Address
}

// NewAuthority validates the key and derives the authority address.
// keyHex is without 0x prefix.
func NewAuthority(c *Client, keyHex string) (*Authority, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewAuthority: decode key: %w", err)
	}
	privKey, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewAuthority: invalid key: %w", err)
	}
	return &Authority{
		c:       c,
		keyHex:  strings.TrimPrefix(keyHex, "0x"),
		address: crypto.PubkeyToAddress(privKey.PublicKey),
	}, nil
}

// Mint issues synthetic tokens to an address and awaits confirmation.
func (a *Authority) Mint(ctx context.Context, toAddr string, amount float64) (string, error) {
	callData, err := tokenABI.Pack("mint", common.HexToAddress(toAddr), toBase(amount))
	if err != nil {
		return "", fmt.Errorf("onchain.Mint: pack: %w", err)
	}
	txHash, err := a.send(ctx, a.c.addrs.Token, big.NewInt(0), writeGasLimit, callData)
	if err != nil {
		return "", fmt.Errorf("onchain.Mint: %w", err)
	}
	slog.Info("onchain: minted", "to", toAddr, "amount", amount, "tx", txHash)
	return txHash, nil
}

// Fund transfers native currency to an address and awaits confirmation.
// A benign double top-up from a race only adds funds, so no locking here.
func (a *Authority) Fund(ctx context.Context, toAddr string, amount float64) error {
	_, err := a.send(ctx, common.HexToAddress(toAddr), toBase(amount), transferGasLimit, nil)
	if err != nil {
		return fmt.Errorf("onchain.Fund: %w", err)
	}
	slog.Info("onchain: funded gas", "to", toAddr, "amount", amount)
	return nil
}

func (a *Authority) send(ctx context.Context, to common.Address, value *big.Int, gasLimit uint64, callData []byte) (string, error) {
	pkBytes, _ := hex.DecodeString(a.keyHex)
	privKey, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return "", fmt.Errorf("authority key: %w", err)
	}

	nonce, err := a.c.eth.PendingNonceAt(ctx, a.address)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := a.c.gasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, callData)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(a.c.chainID), privKey)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}

	if err := a.c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}

	receiptCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	receipt, err := a.c.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return "", fmt.Errorf("confirm: %w: %w", domain.ErrWriteReverted, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("tx %s: %w", signed.Hash().Hex(), domain.ErrWriteReverted)
	}
	return signed.Hash().Hex(), nil
}
