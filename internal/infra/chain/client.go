package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

var (
	// ErrReverted is returned when the commitment transaction was mined but failed.
	ErrReverted = errors.New("transaction reverted")
	// ErrNotMined is returned when no receipt appeared before the confirm timeout.
	ErrNotMined = errors.New("transaction not mined in time")
	// ErrInvalidAddress is returned for a sender or contract that is not a hex address.
	ErrInvalidAddress = errors.New("invalid address")
)

// Config configures a Client.
type Config struct {
	RPCURL         string
	From           string
	Gas            uint64
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	HTTPTimeout    time.Duration
}

// Client talks JSON-RPC to a node that holds the signing account
// (eth_sendTransaction is signed node-side).
type Client struct {
	cfg  Config
	from common.Address
	rpc  *rpc.Client
	log  logrus.FieldLogger
}

func NewClient(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Client, error) {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	var from common.Address
	if cfg.From != "" {
		if !common.IsHexAddress(cfg.From) {
			return nil, fmt.Errorf("%w: from %q", ErrInvalidAddress, cfg.From)
		}
		from = common.HexToAddress(cfg.From)
	}
	client, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	return &Client{
		cfg:  cfg,
		from: from,
		rpc:  client,
		log:  log.WithField("component", "chain"),
	}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

type txArgs struct {
	From common.Address  `json:"from"`
	To   common.Address  `json:"to"`
	Data hexutil.Bytes   `json:"data"`
	Gas  *hexutil.Uint64 `json:"gas,omitempty"`
}

// txReceipt carries the receipt fields the confirmation loop reads.
type txReceipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	Status      hexutil.Uint64 `json:"status"`
	BlockNumber *hexutil.Big   `json:"blockNumber"`
}

// SubmitCommitment sends submitQuiz(commitment) to contract. With a confirm
// timeout set it also waits for a successful receipt.
func (c *Client) SubmitCommitment(ctx context.Context, contract string, commitment [32]byte) (string, error) {
	if !common.IsHexAddress(contract) {
		return "", fmt.Errorf("%w: contract %q", ErrInvalidAddress, contract)
	}
	data, err := PackSubmitQuiz(commitment)
	if err != nil {
		return "", err
	}
	args := txArgs{
		From: c.from,
		To:   common.HexToAddress(contract),
		Data: data,
	}
	if c.cfg.Gas > 0 {
		gas := hexutil.Uint64(c.cfg.Gas)
		args.Gas = &gas
	}

	var txHash common.Hash
	if err := c.rpc.CallContext(ctx, &txHash, "eth_sendTransaction", args); err != nil {
		return "", fmt.Errorf("eth_sendTransaction: %w", err)
	}
	log := c.log.WithFields(logrus.Fields{"tx_hash": txHash.Hex(), "contract": args.To.Hex()})
	log.Debug("commitment transaction sent")

	if c.cfg.ConfirmTimeout <= 0 {
		return txHash.Hex(), nil
	}
	if err := c.waitMined(ctx, txHash); err != nil {
		log.WithError(err).Warn("commitment transaction not confirmed")
		return txHash.Hex(), err
	}
	return txHash.Hex(), nil
}

func (c *Client) waitMined(ctx context.Context, txHash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var receipt *txReceipt
		err := c.rpc.CallContext(ctx, &receipt, "eth_getTransactionReceipt", txHash)
		switch {
		case err != nil && ctx.Err() == nil:
			return fmt.Errorf("eth_getTransactionReceipt: %w", err)
		case receipt != nil:
			if uint64(receipt.Status) != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrReverted, txHash.Hex())
			}
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrNotMined, txHash.Hex())
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Accounts lists the accounts the node can sign for.
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := c.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return accounts, nil
}

// AccountWallet is connected while the node can sign for address.
type AccountWallet struct {
	client  *Client
	address string
	log     logrus.FieldLogger
}

func NewAccountWallet(client *Client, address string, log logrus.FieldLogger) *AccountWallet {
	return &AccountWallet{client: client, address: address, log: log.WithField("component", "wallet")}
}

func (w *AccountWallet) Connected(ctx context.Context) bool {
	if !common.IsHexAddress(w.address) {
		return false
	}
	want := common.HexToAddress(w.address)
	accounts, err := w.client.Accounts(ctx)
	if err != nil {
		w.log.WithError(err).Warn("account lookup failed")
		return false
	}
	for _, a := range accounts {
		if a == want {
			return true
		}
	}
	return false
}

// StaticWallet reports a fixed connectivity; used when the node is trusted.
type StaticWallet bool

func (w StaticWallet) Connected(context.Context) bool { return bool(w) }
