package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"botstore/chain"
	"botstore/match"
	"botstore/storage"
)

// VerifyRequest is the buyer-submitted directed check: a specific
// transaction hash asserted to pay for a specific product.
type VerifyRequest struct {
	TxHash    string
	ProductID string
	Buyer     string
	Sender    string
}

// Outcome is the directed check's reply. Status is one of the order status
// values, "pending" for retryable waits, or "error" for operator-facing
// faults.
type Outcome struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (e *Engine) outcome(status, message string) Outcome {
	e.metrics.RecordVerification(status)
	return Outcome{Status: status, Message: message}
}

// Verify runs the directed verification path. It is self-contained: no order
// record is consulted or mutated, and on a full match the access grant is
// invoked inline.
func (e *Engine) Verify(ctx context.Context, req VerifyRequest) Outcome {
	if !validTxHash(req.TxHash) {
		return e.outcome(StatusError, "malformed transaction hash")
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return e.outcome(StatusError, "product id required")
	}
	if strings.TrimSpace(req.Buyer) == "" {
		return e.outcome(StatusError, "buyer identity required")
	}
	if !common.IsHexAddress(strings.TrimSpace(req.Sender)) {
		return e.outcome(StatusError, "malformed sender address")
	}

	hash := common.HexToHash(strings.TrimSpace(req.TxHash))
	sender := common.HexToAddress(strings.TrimSpace(req.Sender))

	tx, err := e.txs.LookupWithRetry(ctx, hash)
	if err != nil {
		if errors.Is(err, chain.ErrTxNotFound) {
			// Not a hard error: the transaction may simply not be indexed
			// yet, and the caller is free to resubmit the check later.
			return e.outcome(string(storage.StatusFailedPayment), "transaction receipt not found, try again later")
		}
		e.logger.Error("transaction lookup failed", "tx", hash.Hex(), "err", err)
		return e.outcome(StatusError, "chain lookup unavailable")
	}
	if tx.Failed {
		return e.outcome(string(storage.StatusFailedPayment), "transaction execution failed on chain")
	}
	if tx.Confirmations < e.cfg.VerifyConfirmations {
		return e.outcome(string(storage.StatusPending), fmt.Sprintf("waiting for confirmations: have %d, need %d", tx.Confirmations, e.cfg.VerifyConfirmations))
	}

	product, err := e.store.GetProduct(ctx, strings.TrimSpace(req.ProductID))
	if err != nil {
		e.logger.Error("product lookup failed", "product", req.ProductID, "err", err)
		return e.outcome(StatusError, "product lookup failed")
	}
	if product == nil {
		return e.outcome(StatusError, "product not found")
	}
	if strings.TrimSpace(product.RepoOwner) == "" || strings.TrimSpace(product.RepoName) == "" {
		return e.outcome(StatusError, "product access-grant target missing")
	}
	expected, err := match.ParseAmount(product.Price)
	if err != nil {
		e.logger.Error("product price unparseable", "product", product.ID, "price", product.Price)
		return e.outcome(StatusError, "product price misconfigured")
	}

	res := match.Evaluate(match.Params{
		Recipient:        e.cfg.Recipient,
		Sender:           &sender,
		MinConfirmations: e.cfg.VerifyConfirmations,
		AllowOverpayment: true,
	}, expected, *tx)
	if !res.OK {
		return e.outcome(string(storage.StatusFailedPayment), string(res.Reason))
	}

	if err := e.grant(ctx, "verify", req.Buyer, product.RepoOwner, product.RepoName); err != nil {
		e.logger.Error("inline grant failed", "buyer", req.Buyer, "err", err)
		return e.outcome(string(storage.StatusFailedInvitation), fmt.Sprintf("access grant failed: %v", err))
	}
	return e.outcome(string(storage.StatusCompleted), "payment verified, check your repository invitations")
}
