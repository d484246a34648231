package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrTxNotFound is returned when a transaction is still unknown to the node
// after the retry budget is exhausted.
var ErrTxNotFound = errors.New("transaction not found")

const (
	defaultLookupAttempts = 5
	defaultLookupDelay    = 6 * time.Second
)

// EVMClient defines the subset of the Ethereum RPC surface the lookup needs.
type EVMClient interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Dial initialises an EVM RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// RPCClient looks up a specific transaction and its confirmation depth
// against the chain head. A just-broadcast transaction may not be indexed
// yet, so lookups retry a bounded number of times with a fixed delay.
type RPCClient struct {
	client   EVMClient
	attempts int
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	chainID *big.Int
}

// RPCOption customises the RPC client.
type RPCOption func(*RPCClient)

// WithLookupRetry overrides the retry budget for receipt lookups.
func WithLookupRetry(attempts int, delay time.Duration) RPCOption {
	return func(c *RPCClient) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if delay > 0 {
			c.delay = delay
		}
	}
}

// WithSleeper replaces the inter-attempt sleep, letting tests run without
// real timers.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) RPCOption {
	return func(c *RPCClient) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewRPCClient wraps an EVM client with lookup semantics.
func NewRPCClient(client EVMClient, opts ...RPCOption) *RPCClient {
	c := &RPCClient{
		client:   client,
		attempts: defaultLookupAttempts,
		delay:    defaultLookupDelay,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Lookup fetches the transaction, its receipt, and the current chain head in
// a single pass. A mined transaction whose execution failed is returned with
// Failed set; classification is the matcher's job.
func (c *RPCClient) Lookup(ctx context.Context, hash common.Hash) (*Transaction, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("rpc client not configured")
	}
	receipt, err := c.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash.Hex())
		}
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash.Hex())
	}
	tx, pending, err := c.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash.Hex())
		}
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}
	if pending {
		return nil, fmt.Errorf("%w: %s still pending", ErrTxNotFound, hash.Hex())
	}
	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch head: %w", err)
	}
	if head == nil || head.Number == nil {
		return nil, fmt.Errorf("chain head unavailable")
	}
	chainID, err := c.networkID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve chain id: %w", err)
	}
	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}
	block := receipt.BlockNumber.Uint64()
	observed := &Transaction{
		Hash:          hash,
		BlockNumber:   block,
		From:          from,
		To:            tx.To(),
		Value:         new(big.Int).Set(tx.Value()),
		Failed:        receipt.Status != gethtypes.ReceiptStatusSuccessful,
		Confirmations: confirmationDepth(head.Number.Uint64(), block),
	}
	if blockHeader, err := c.client.HeaderByNumber(ctx, receipt.BlockNumber); err == nil && blockHeader != nil {
		observed.Time = time.Unix(int64(blockHeader.Time), 0).UTC()
	}
	return observed, nil
}

// LookupWithRetry runs Lookup until the transaction is indexed or the
// attempt budget runs out. The returned error is ErrTxNotFound only after
// exhaustion; any other failure surfaces immediately.
func (c *RPCClient) LookupWithRetry(ctx context.Context, hash common.Hash) (*Transaction, error) {
	if c == nil {
		return nil, fmt.Errorf("rpc client not configured")
	}
	attempts := c.attempts
	if attempts <= 0 {
		attempts = 1
	}
	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.delay); err != nil {
				return nil, err
			}
		}
		tx, err := c.Lookup(ctx, hash)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, ErrTxNotFound) {
			return nil, err
		}
		last = err
	}
	return nil, last
}

func (c *RPCClient) networkID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.chainID = id
	return id, nil
}

// confirmationDepth is head - block + 1, inclusive of the containing block.
func confirmationDepth(head, block uint64) uint64 {
	if head < block {
		return 0
	}
	return head - block + 1
}
