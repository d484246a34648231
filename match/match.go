// Package match decides whether an observed chain transaction satisfies an
// order. Evaluation is pure: no clock, no network, no store access.
package match

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"botstore/chain"
)

// Reason explains why a candidate did or did not match.
type Reason string

const (
	ReasonNone                      Reason = ""
	ReasonBeforeWindow              Reason = "before payment window"
	ReasonAfterWindow               Reason = "after payment window"
	ReasonRecipientMismatch         Reason = "recipient mismatch"
	ReasonSenderMismatch            Reason = "sender mismatch"
	ReasonAmountMismatch            Reason = "amount mismatch"
	ReasonExecutionFailed           Reason = "transaction execution failed"
	ReasonInsufficientConfirmations Reason = "insufficient confirmations"
)

// Terminal reports whether the reason rules the candidate out for good.
// Insufficient confirmations and window-position reasons are soft: a later
// pass, or a later candidate, may still succeed.
func (r Reason) Terminal() bool {
	switch r {
	case ReasonRecipientMismatch, ReasonSenderMismatch, ReasonAmountMismatch, ReasonExecutionFailed:
		return true
	}
	return false
}

// Result is the outcome of one candidate evaluation.
type Result struct {
	OK     bool
	Reason Reason
}

// Window bounds the sweep's candidate timestamps around order creation: a
// small backward slack tolerates clock skew, the forward span is the payment
// deadline.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowAround builds the sweep window for an order created at createdAt.
func WindowAround(createdAt time.Time, slack, deadline time.Duration) Window {
	return Window{
		Start: createdAt.Add(-slack),
		End:   createdAt.Add(deadline),
	}
}

// Params configures one evaluation profile. The sweep and the directed check
// share the algorithm but differ in sender requirement, amount strictness,
// confirmation threshold, and windowing.
type Params struct {
	Recipient        common.Address
	Sender           *common.Address // nil skips the sender check
	MinConfirmations uint64
	AllowOverpayment bool    // directed check: observed value >= expected
	Window           *Window // sweep only
}

// Evaluate checks a single candidate transaction against an order's expected
// smallest-unit amount. All checks must pass; the first failure names the
// reason. Window position is checked first so the sweep can use
// ReasonBeforeWindow to stop scanning older entries.
func Evaluate(p Params, expected *big.Int, tx chain.Transaction) Result {
	if p.Window != nil {
		if tx.Time.Before(p.Window.Start) {
			return Result{Reason: ReasonBeforeWindow}
		}
		if tx.Time.After(p.Window.End) {
			return Result{Reason: ReasonAfterWindow}
		}
	}
	if tx.To == nil || *tx.To != p.Recipient {
		return Result{Reason: ReasonRecipientMismatch}
	}
	if p.Sender != nil && tx.From != *p.Sender {
		return Result{Reason: ReasonSenderMismatch}
	}
	if tx.Value == nil || expected == nil {
		return Result{Reason: ReasonAmountMismatch}
	}
	cmp := tx.Value.Cmp(expected)
	if p.AllowOverpayment {
		if cmp < 0 {
			return Result{Reason: ReasonAmountMismatch}
		}
	} else if cmp != 0 {
		return Result{Reason: ReasonAmountMismatch}
	}
	if tx.Failed {
		return Result{Reason: ReasonExecutionFailed}
	}
	if tx.Confirmations < p.MinConfirmations {
		return Result{Reason: ReasonInsufficientConfirmations}
	}
	return Result{OK: true}
}
