// Package evm implements ledger.Client against an Ethereum-compatible chain
// via go-ethereum's RPC client. Payments are plain value transfers signed
// locally with the sender's key; note bytes travel in the transaction data
// field.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/avencia/agentmarket/internal/ledger"
)

// ClientConfig holds connection parameters for the EVM ledger client.
type ClientConfig struct {
	RPCURL  string
	ChainID int64
}

// Client talks to an Ethereum-compatible node.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	signer  types.Signer
}

// New dials the RPC endpoint and verifies the chain id matches the
// configuration. A mismatch is a fatal configuration error: payments signed
// for the wrong chain would be silently rejected.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("evm: rpc url is required")
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("evm: query chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("evm: chain id mismatch: node reports %d, config wants %d",
			chainID.Int64(), cfg.ChainID)
	}

	return &Client{
		eth:     eth,
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// CurrentHeight returns the latest block number.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	height, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("evm: block number: %w", err)
	}
	return height, nil
}

// GetBlock fetches a block and converts its value-transfer transactions into
// ledger transactions. Contract creations (nil recipient) are skipped.
func (c *Client) GetBlock(ctx context.Context, height uint64) (ledger.Block, error) {
	blk, err := c.eth.BlockByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return ledger.Block{}, fmt.Errorf("evm: block %d: %w", height, err)
	}

	out := ledger.Block{
		Height:    blk.NumberU64(),
		Timestamp: time.Unix(int64(blk.Time()), 0).UTC(),
	}
	for _, tx := range blk.Transactions() {
		if tx.To() == nil {
			continue
		}
		sender, err := types.Sender(c.signer, tx)
		if err != nil {
			// Unrecoverable sender means a tx type we do not handle; skip it.
			continue
		}
		out.Transactions = append(out.Transactions, ledger.Transaction{
			ID:       tx.Hash().Hex(),
			Sender:   sender.Hex(),
			Receiver: tx.To().Hex(),
			Amount:   tx.Value().Int64(),
			Note:     tx.Data(),
		})
	}
	return out, nil
}

// AccountBalance returns the latest balance of an address.
func (c *Client) AccountBalance(ctx context.Context, address string) (int64, error) {
	if !common.IsHexAddress(address) {
		return 0, fmt.Errorf("evm: invalid address %q", address)
	}
	bal, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, fmt.Errorf("evm: balance of %s: %w", address, err)
	}
	return bal.Int64(), nil
}

// SubmitPayment signs a value transfer with the sender's key and submits it.
// The returned id is the transaction hash; the call returns as soon as the
// node has accepted the transaction into its pool.
func (c *Client) SubmitPayment(ctx context.Context, p ledger.Payment) (string, error) {
	if p.Amount <= 0 {
		return "", fmt.Errorf("evm: non-positive amount %d", p.Amount)
	}
	if !common.IsHexAddress(p.Receiver) {
		return "", fmt.Errorf("evm: invalid receiver address %q", p.Receiver)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(p.SenderSecret, "0x"))
	if err != nil {
		return "", fmt.Errorf("evm: invalid sender key: %w", err)
	}
	from := ethcrypto.PubkeyToAddress(key.PublicKey)
	if p.Sender != "" && !strings.EqualFold(from.Hex(), p.Sender) {
		return "", fmt.Errorf("evm: sender key does not match wallet %s", p.Sender)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("evm: pending nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("evm: gas price: %w", err)
	}

	to := common.HexToAddress(p.Receiver)
	value := big.NewInt(p.Amount)
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  p.Note,
	})
	if err != nil {
		return "", fmt.Errorf("evm: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     p.Note,
	})
	signed, err := types.SignTx(tx, c.signer, key)
	if err != nil {
		return "", fmt.Errorf("evm: sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("evm: send tx: %w", err)
	}
	return signed.Hash().Hex(), nil
}
