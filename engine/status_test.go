package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"botstore/storage"
)

func TestOrderStatusPendingReportsWithoutGrant(t *testing.T) {
	h := newHarness(t)
	orderID := h.initiate(t)

	res, err := h.engine.OrderStatus(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, string(storage.StatusPending), res.Status)
	require.Empty(t, h.inviter.invites)
}

func TestOrderStatusUnknownOrder(t *testing.T) {
	h := newHarness(t)
	res, err := h.engine.OrderStatus(context.Background(), "no-such-order")
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, res.Status)
}

func TestOrderStatusEmptyID(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.OrderStatus(context.Background(), "  ")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOrderStatusPaidTriggersDeferredGrant(t *testing.T) {
	h := newHarness(t)
	orderID := h.initiate(t)
	h.markPaid(t, orderID)

	res, err := h.engine.OrderStatus(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, string(storage.StatusCompleted), res.Status)
	require.Equal(t, []string{"octocat@acme/private-bot"}, h.inviter.invites)

	order := h.order(t, orderID)
	require.Equal(t, storage.StatusCompleted, order.Status)
	require.True(t, order.GrantedAt.Valid)

	// A later poll reads the settled status and does not grant again.
	res, err = h.engine.OrderStatus(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, string(storage.StatusCompleted), res.Status)
	require.Len(t, h.inviter.invites, 1)
}

func TestOrderStatusGrantFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	orderID := h.initiate(t)
	h.markPaid(t, orderID)
	h.inviter.err = errors.New("github unavailable")

	res, err := h.engine.OrderStatus(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, string(storage.StatusFailedInvitation), res.Status)

	order := h.order(t, orderID)
	require.Equal(t, storage.StatusFailedInvitation, order.Status)
	require.Contains(t, order.LastError.String, "github unavailable")

	// The failure sticks: polling again does not retry the grant.
	h.inviter.err = nil
	res, err = h.engine.OrderStatus(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, string(storage.StatusFailedInvitation), res.Status)
	require.Len(t, h.inviter.invites, 1)
}

func TestOrderStatusMissingGrantTarget(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.InsertProduct(context.Background(), storage.Product{
		ID:        "untargeted",
		Name:      "No Repo Configured",
		Price:     "0.05",
		CreatedAt: h.now,
	}))
	require.NoError(t, h.store.InsertOrder(context.Background(), storage.Order{
		OrderID:   "order-untargeted",
		ProductID: "untargeted",
		Buyer:     "octocat",
		Amount:    "0.05",
		Status:    storage.StatusPending,
		CreatedAt: h.now,
	}))
	h.markPaid(t, "order-untargeted")

	res, err := h.engine.OrderStatus(context.Background(), "order-untargeted")
	require.NoError(t, err)
	require.Equal(t, string(storage.StatusFailedInvitation), res.Status)
	require.Empty(t, h.inviter.invites)
}
