package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"botstore/chain"
	"botstore/match"
	"botstore/storage"
)

var (
	testRecipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testSender    = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

const testTxHash = "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"

type stubExplorer struct {
	txs   []chain.Transaction
	err   error
	calls int
}

func (s *stubExplorer) ListRecentTransactions(_ context.Context, _ common.Address) ([]chain.Transaction, error) {
	s.calls++
	return s.txs, s.err
}

type stubTxSource struct {
	tx  *chain.Transaction
	err error
}

func (s *stubTxSource) LookupWithRetry(_ context.Context, _ common.Hash) (*chain.Transaction, error) {
	return s.tx, s.err
}

type stubInviter struct {
	err     error
	invites []string
}

func (s *stubInviter) Invite(_ context.Context, username, owner, repo string) error {
	s.invites = append(s.invites, fmt.Sprintf("%s@%s/%s", username, owner, repo))
	return s.err
}

type harness struct {
	engine   *Engine
	store    *storage.Store
	explorer *stubExplorer
	txs      *stubTxSource
	inviter  *stubInviter
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:    store,
		explorer: &stubExplorer{},
		txs:      &stubTxSource{},
		inviter:  &stubInviter{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.engine, err = New(store, h.explorer, h.txs, h.inviter,
		Config{Recipient: testRecipient},
		slog.Default(),
		WithClock(func() time.Time { return h.now }),
		WithMetrics(nil),
	)
	require.NoError(t, err)

	require.NoError(t, store.InsertProduct(context.Background(), storage.Product{
		ID:        "pro-bot",
		Name:      "Pro Trading Bot",
		Price:     "0.05",
		RepoOwner: "acme",
		RepoName:  "private-bot",
		CreatedAt: h.now,
	}))
	return h
}

func wei(t *testing.T, amount string) *big.Int {
	t.Helper()
	v, err := match.ParseAmount(amount)
	require.NoError(t, err)
	return v
}

// initiate creates a pending order through the public API and returns its id.
func (h *harness) initiate(t *testing.T) string {
	t.Helper()
	res, err := h.engine.Initiate(context.Background(), "pro-bot", "octocat")
	require.NoError(t, err)
	return res.OrderID
}

// paymentTo builds a confirmed transaction paying the given amount to the
// receiving address, timestamped relative to the harness clock.
func (h *harness) paymentTo(t *testing.T, amount string, offset time.Duration) chain.Transaction {
	t.Helper()
	to := testRecipient
	return chain.Transaction{
		Hash:          common.HexToHash(testTxHash),
		Time:          h.now.Add(offset),
		From:          testSender,
		To:            &to,
		Value:         wei(t, amount),
		Confirmations: 20,
	}
}

func (h *harness) order(t *testing.T, orderID string) *storage.Order {
	t.Helper()
	order, err := h.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func (h *harness) markPaid(t *testing.T, orderID string) {
	t.Helper()
	paidAt := h.now
	applied, err := h.store.UpdateIfStatus(context.Background(), orderID, storage.StatusPending, storage.Patch{
		Status: storage.StatusPaid,
		TxHash: testTxHash,
		PaidAt: &paidAt,
	})
	require.NoError(t, err)
	require.True(t, applied)
}
