package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"botstore/match"
	"botstore/storage"
)

// InitiateResult tells the buyer's wallet where and how much to pay.
type InitiateResult struct {
	OrderID    string `json:"orderId"`
	PayAddress string `json:"payAddress"`
	Amount     string `json:"amount"`
}

// Initiate creates a pending order for the given product. The expected
// amount is captured from the product's price here and never recomputed.
func (e *Engine) Initiate(ctx context.Context, productID, buyer string) (*InitiateResult, error) {
	productID = strings.TrimSpace(productID)
	buyer = strings.TrimSpace(buyer)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id required", ErrInvalidArgument)
	}
	if buyer == "" {
		return nil, fmt.Errorf("%w: buyer identity required", ErrInvalidArgument)
	}
	product, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if _, err := match.ParseAmount(product.Price); err != nil {
		return nil, fmt.Errorf("product price misconfigured: %w", err)
	}
	order := storage.Order{
		OrderID:   uuid.NewString(),
		ProductID: product.ID,
		Buyer:     buyer,
		Amount:    product.Price,
		Status:    storage.StatusPending,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.InsertOrder(ctx, order); err != nil {
		return nil, err
	}
	e.logger.Info("order initiated", "order", order.OrderID, "product", product.ID, "amount", order.Amount)
	return &InitiateResult{
		OrderID:    order.OrderID,
		PayAddress: e.cfg.Recipient.Hex(),
		Amount:     order.Amount,
	}, nil
}

// AttachTxHash records the hash a buyer's wallet reports after broadcasting
// payment. It only applies while the order is still pending; later arrivals
// are ignored because the reconciled hash is authoritative.
func (e *Engine) AttachTxHash(ctx context.Context, orderID, txHash string) error {
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("%w: order id required", ErrInvalidArgument)
	}
	if !validTxHash(txHash) {
		return fmt.Errorf("%w: malformed transaction hash", ErrInvalidArgument)
	}
	applied, err := e.store.AttachTxHash(ctx, strings.TrimSpace(orderID), strings.TrimSpace(txHash))
	if err != nil {
		return err
	}
	if !applied {
		e.logger.Warn("tx hash not recorded, order unknown or already advanced", "order", orderID)
	}
	return nil
}
