package engine

import (
	"context"
	"fmt"
	"strings"

	"botstore/storage"
)

// StatusResult is the status-poll reply.
type StatusResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OrderStatus reports an order's current status. For orders the sweep has
// marked paid, this is where the deferred access grant actually happens: the
// sweep only confirms payment, and the grant is attempted lazily on the next
// poll so a flaky grant dependency can be retried simply by polling again.
func (e *Engine) OrderStatus(ctx context.Context, orderID string) (StatusResult, error) {
	if strings.TrimSpace(orderID) == "" {
		return StatusResult{}, fmt.Errorf("%w: order id required", ErrInvalidArgument)
	}
	order, err := e.store.GetOrder(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return StatusResult{}, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return StatusResult{Status: StatusNotFound, Message: "order not found"}, nil
	}
	if order.Status != storage.StatusPaid {
		return StatusResult{Status: string(order.Status)}, nil
	}
	return e.deferredGrant(ctx, order)
}

func (e *Engine) deferredGrant(ctx context.Context, order *storage.Order) (StatusResult, error) {
	product, err := e.store.GetProduct(ctx, order.ProductID)
	if err != nil {
		return StatusResult{}, fmt.Errorf("load product: %w", err)
	}
	if product == nil || strings.TrimSpace(product.RepoOwner) == "" || strings.TrimSpace(product.RepoName) == "" {
		detail := "product access-grant target missing"
		if _, err := e.store.UpdateIfStatus(ctx, order.OrderID, storage.StatusPaid, storage.Patch{
			Status:    storage.StatusFailedInvitation,
			LastError: detail,
		}); err != nil {
			return StatusResult{}, err
		}
		e.logger.Error("grant target missing", "order", order.OrderID, "product", order.ProductID)
		return StatusResult{Status: string(storage.StatusFailedInvitation), Message: detail}, nil
	}

	if err := e.grant(ctx, "poll", order.Buyer, product.RepoOwner, product.RepoName); err != nil {
		if _, updateErr := e.store.UpdateIfStatus(ctx, order.OrderID, storage.StatusPaid, storage.Patch{
			Status:    storage.StatusFailedInvitation,
			LastError: err.Error(),
		}); updateErr != nil {
			return StatusResult{}, updateErr
		}
		e.logger.Error("deferred grant failed", "order", order.OrderID, "buyer", order.Buyer, "err", err)
		return StatusResult{Status: string(storage.StatusFailedInvitation), Message: err.Error()}, nil
	}

	grantedAt := e.now()
	applied, err := e.store.UpdateIfStatus(ctx, order.OrderID, storage.StatusPaid, storage.Patch{
		Status:    storage.StatusCompleted,
		GrantedAt: &grantedAt,
	})
	if err != nil {
		return StatusResult{}, err
	}
	if !applied {
		// A concurrent poll advanced the order first; report whatever it
		// settled on.
		current, err := e.store.GetOrder(ctx, order.OrderID)
		if err != nil || current == nil {
			return StatusResult{Status: string(storage.StatusCompleted)}, nil
		}
		return StatusResult{Status: string(current.Status)}, nil
	}
	e.logger.Info("access granted", "order", order.OrderID, "buyer", order.Buyer)
	return StatusResult{Status: string(storage.StatusCompleted), Message: "access granted, check your repository invitations"}, nil
}
