// Package engine orchestrates the order state machine: the scheduled sweep,
// the on-demand directed verification, the lazy access grant on status
// polls, and order initiation. All order mutations flow through the store's
// conditional update so concurrent paths cannot double-process an order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"botstore/chain"
	"botstore/invite"
	"botstore/observability"
	"botstore/storage"
)

// Explorer lists recent transactions sent to the receiving address.
type Explorer interface {
	ListRecentTransactions(ctx context.Context, recipient common.Address) ([]chain.Transaction, error)
}

// TxSource resolves one specific transaction with bounded retry.
type TxSource interface {
	LookupWithRetry(ctx context.Context, hash common.Hash) (*chain.Transaction, error)
}

// Statuses reported by engine operations beyond the persisted order enum.
const (
	StatusError    = "error"
	StatusNotFound = "not_found"
)

var (
	// ErrProductNotFound is returned when an order or request references an
	// unknown product.
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidArgument is returned for malformed caller input before any
	// side effect.
	ErrInvalidArgument = errors.New("invalid argument")
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Config tunes the reconciliation thresholds. Zero values fall back to the
// documented defaults.
type Config struct {
	Recipient           common.Address
	SweepConfirmations  uint64
	VerifyConfirmations uint64
	MaxOrdersPerSweep   int
	PaymentWindow       time.Duration
	BackwardSlack       time.Duration
}

func (c *Config) applyDefaults() {
	if c.SweepConfirmations == 0 {
		c.SweepConfirmations = 15
	}
	if c.VerifyConfirmations == 0 {
		c.VerifyConfirmations = 5
	}
	if c.MaxOrdersPerSweep <= 0 {
		c.MaxOrdersPerSweep = 20
	}
	if c.PaymentWindow <= 0 {
		c.PaymentWindow = 72 * time.Hour
	}
	if c.BackwardSlack <= 0 {
		c.BackwardSlack = 10 * time.Minute
	}
}

// Engine coordinates the store, the chain observation adapter, and the
// access-grant collaborator.
type Engine struct {
	store    *storage.Store
	explorer Explorer
	txs      TxSource
	inviter  invite.Inviter
	cfg      Config
	logger   *slog.Logger
	metrics  *observability.ReconcilerMetrics
	now      func() time.Time
}

// Option customises the engine instance.
type Option func(*Engine)

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.ReconcilerMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs a reconciliation engine.
func New(store *storage.Store, explorer Explorer, txs TxSource, inviter invite.Inviter, cfg Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if explorer == nil {
		return nil, fmt.Errorf("explorer required")
	}
	if txs == nil {
		return nil, fmt.Errorf("transaction source required")
	}
	if inviter == nil {
		return nil, fmt.Errorf("inviter required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	e := &Engine{
		store:    store,
		explorer: explorer,
		txs:      txs,
		inviter:  inviter,
		cfg:      cfg,
		logger:   logger,
		metrics:  observability.Reconciler(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// grant invokes the access-grant collaborator. A validation conflict means
// the buyer already holds (or was already offered) access, so a repeated
// grant is treated as success rather than blocking status progression.
func (e *Engine) grant(ctx context.Context, path, username, owner, repo string) error {
	err := e.inviter.Invite(ctx, username, owner, repo)
	if err != nil && errors.Is(err, invite.ErrAlreadyInvited) {
		e.logger.Info("grant already in place", "buyer", username, "owner", owner, "repo", repo)
		err = nil
	}
	e.metrics.RecordGrant(path, err == nil)
	return err
}

func validTxHash(hash string) bool {
	return txHashPattern.MatchString(strings.TrimSpace(hash))
}
