package engine

import (
	"context"
	"errors"
	"fmt"

	"botstore/chain"
	"botstore/match"
	"botstore/storage"
)

// SweepSummary reports the outcome of one sweep run for the scheduler to log
// or alert on.
type SweepSummary struct {
	Processed    int      `json:"processed"`
	Updated      int      `json:"updated"`
	Errors       int      `json:"errors"`
	Message      string   `json:"message"`
	ErrorDetails []string `json:"errorDetails,omitempty"`
}

// Sweep loads a bounded batch of the oldest pending orders and matches them
// against the receiving address's recent transaction history. A matched
// order advances pending -> paid; the access grant itself is deferred to the
// status poll. Individual order failures are recorded and counted without
// failing the batch; explorer throttling aborts the whole run.
func (e *Engine) Sweep(ctx context.Context) (SweepSummary, error) {
	start := e.now()
	summary := SweepSummary{}

	orders, err := e.store.PendingOrders(ctx, e.cfg.MaxOrdersPerSweep)
	if err != nil {
		summary.Errors++
		summary.Message = "order store unavailable"
		e.metrics.RecordSweep("store_error", e.now().Sub(start))
		return summary, fmt.Errorf("load pending orders: %w", err)
	}
	if len(orders) == 0 {
		summary.Message = "no pending orders"
		e.metrics.RecordSweep("idle", e.now().Sub(start))
		return summary, nil
	}

	// One history fetch serves the whole batch; every order scans the same
	// newest-first page against its own time window.
	txs, err := e.explorer.ListRecentTransactions(ctx, e.cfg.Recipient)
	if err != nil {
		summary.Errors++
		if errors.Is(err, chain.ErrRateLimited) {
			summary.Message = "explorer rate limited, batch aborted"
			summary.ErrorDetails = append(summary.ErrorDetails, "explorer rate limit")
			e.metrics.RecordSweep("rate_limited", e.now().Sub(start))
			return summary, nil
		}
		summary.Message = "explorer unavailable"
		summary.ErrorDetails = append(summary.ErrorDetails, err.Error())
		e.metrics.RecordSweep("explorer_error", e.now().Sub(start))
		return summary, nil
	}

	for _, order := range orders {
		summary.Processed++
		if err := e.sweepOrder(ctx, order, txs, &summary); err != nil {
			summary.Errors++
			summary.ErrorDetails = append(summary.ErrorDetails, fmt.Sprintf("order %s: %v", order.OrderID, err))
			e.logger.Error("sweep order failed", "order", order.OrderID, "err", err)
			e.metrics.RecordSweepOrder("error")
		}
	}

	summary.Message = fmt.Sprintf("run finished: processed=%d updated=%d errors=%d", summary.Processed, summary.Updated, summary.Errors)
	outcome := "ok"
	if summary.Errors > 0 {
		outcome = "partial"
	}
	e.metrics.RecordSweep(outcome, e.now().Sub(start))
	return summary, nil
}

func (e *Engine) sweepOrder(ctx context.Context, order storage.Order, txs []chain.Transaction, summary *SweepSummary) error {
	expected, err := match.ParseAmount(order.Amount)
	if err != nil {
		// The amount was captured verbatim from product config at order
		// initiation; a malformed value is upstream data corruption, so the
		// order fails terminally rather than retrying forever.
		detail := fmt.Sprintf("invalid expected amount %q", order.Amount)
		applied, updateErr := e.store.UpdateIfStatus(ctx, order.OrderID, storage.StatusPending, storage.Patch{
			Status:    storage.StatusFailedPayment,
			LastError: detail,
		})
		if updateErr != nil {
			return fmt.Errorf("%s: %w", detail, updateErr)
		}
		if !applied {
			e.logger.Info("order advanced concurrently", "order", order.OrderID)
		}
		return errors.New(detail)
	}

	window := match.WindowAround(order.CreatedAt, e.cfg.BackwardSlack, e.cfg.PaymentWindow)
	params := match.Params{
		Recipient:        e.cfg.Recipient,
		MinConfirmations: e.cfg.SweepConfirmations,
		Window:           &window,
	}

	for _, tx := range txs {
		res := match.Evaluate(params, expected, tx)
		if res.Reason == match.ReasonBeforeWindow {
			// The list is newest first; everything past this point is older
			// still, so stop scanning for this order.
			break
		}
		if !res.OK {
			continue
		}
		paidAt := tx.Time
		applied, err := e.store.UpdateIfStatus(ctx, order.OrderID, storage.StatusPending, storage.Patch{
			Status: storage.StatusPaid,
			TxHash: tx.Hash.Hex(),
			PaidAt: &paidAt,
		})
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		if applied {
			summary.Updated++
			e.logger.Info("payment matched", "order", order.OrderID, "tx", tx.Hash.Hex())
			e.metrics.RecordSweepOrder("updated")
		} else {
			// Another path confirmed this order first; losing the
			// conditional write is a harmless no-op.
			e.logger.Info("order advanced concurrently", "order", order.OrderID, "tx", tx.Hash.Hex())
			e.metrics.RecordSweepOrder("lost_race")
		}
		return nil
	}

	e.logger.Debug("no matching payment yet", "order", order.OrderID)
	e.metrics.RecordSweepOrder("waiting")
	return nil
}
