package match

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"botstore/chain"
)

var (
	recipient = common.HexToAddress("0x1111111111111111111111111111111111111111")
	sender    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	stranger  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func candidate(value int64, confirmations uint64, at time.Time) chain.Transaction {
	to := recipient
	return chain.Transaction{
		Hash:          common.HexToHash("0xabc"),
		Time:          at,
		From:          sender,
		To:            &to,
		Value:         big.NewInt(value),
		Confirmations: confirmations,
	}
}

func sweepParams(created time.Time) Params {
	window := WindowAround(created, 10*time.Minute, 72*time.Hour)
	return Params{
		Recipient:        recipient,
		MinConfirmations: 15,
		Window:           &window,
	}
}

func TestSweepMatchAndSingleConditionFlips(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	at := created.Add(time.Minute)
	expected := big.NewInt(50_000)

	base := candidate(50_000, 20, at)
	if res := Evaluate(sweepParams(created), expected, base); !res.OK {
		t.Fatalf("expected match, got reason %q", res.Reason)
	}

	wrongValue := candidate(50_001, 20, at)
	if res := Evaluate(sweepParams(created), expected, wrongValue); res.OK || res.Reason != ReasonAmountMismatch {
		t.Fatalf("expected amount mismatch, got %+v", res)
	}

	wrongRecipient := base
	other := stranger
	wrongRecipient.To = &other
	if res := Evaluate(sweepParams(created), expected, wrongRecipient); res.OK || res.Reason != ReasonRecipientMismatch {
		t.Fatalf("expected recipient mismatch, got %+v", res)
	}

	failed := base
	failed.Failed = true
	if res := Evaluate(sweepParams(created), expected, failed); res.OK || res.Reason != ReasonExecutionFailed {
		t.Fatalf("expected execution failure, got %+v", res)
	}

	shallow := candidate(50_000, 14, at)
	if res := Evaluate(sweepParams(created), expected, shallow); res.OK || res.Reason != ReasonInsufficientConfirmations {
		t.Fatalf("expected insufficient confirmations, got %+v", res)
	}
}

func TestConfirmationBoundaries(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	at := created.Add(time.Minute)
	expected := big.NewInt(1000)

	if res := Evaluate(sweepParams(created), expected, candidate(1000, 15, at)); !res.OK {
		t.Fatalf("depth 15 should match sweep threshold, got %q", res.Reason)
	}
	if res := Evaluate(sweepParams(created), expected, candidate(1000, 14, at)); res.OK {
		t.Fatal("depth 14 should not match sweep threshold")
	}

	direct := Params{Recipient: recipient, Sender: &sender, MinConfirmations: 5, AllowOverpayment: true}
	if res := Evaluate(direct, expected, candidate(1000, 5, at)); !res.OK {
		t.Fatalf("depth 5 should match direct threshold, got %q", res.Reason)
	}
	if res := Evaluate(direct, expected, candidate(1000, 4, at)); res.OK {
		t.Fatal("depth 4 should not match direct threshold")
	}
}

func TestDirectedOverpaymentTolerance(t *testing.T) {
	expected := big.NewInt(1000)
	direct := Params{Recipient: recipient, Sender: &sender, MinConfirmations: 5, AllowOverpayment: true}

	if res := Evaluate(direct, expected, candidate(1500, 10, time.Now())); !res.OK {
		t.Fatalf("overpayment should match, got %q", res.Reason)
	}
	if res := Evaluate(direct, expected, candidate(999, 10, time.Now())); res.OK || res.Reason != ReasonAmountMismatch {
		t.Fatalf("underpayment should not match, got %+v", res)
	}
}

func TestDirectedSenderCheck(t *testing.T) {
	expected := big.NewInt(1000)
	direct := Params{Recipient: recipient, Sender: &stranger, MinConfirmations: 5, AllowOverpayment: true}

	if res := Evaluate(direct, expected, candidate(1000, 10, time.Now())); res.OK || res.Reason != ReasonSenderMismatch {
		t.Fatalf("expected sender mismatch, got %+v", res)
	}
}

func TestTimeWindowBoundary(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expected := big.NewInt(1000)
	params := sweepParams(created)

	atBound := candidate(1000, 20, created.Add(-10*time.Minute))
	if res := Evaluate(params, expected, atBound); !res.OK {
		t.Fatalf("transaction exactly at the backward bound should match, got %q", res.Reason)
	}

	tooOld := candidate(1000, 20, created.Add(-10*time.Minute).Add(-time.Second))
	if res := Evaluate(params, expected, tooOld); res.OK || res.Reason != ReasonBeforeWindow {
		t.Fatalf("one second before the bound should halt scanning, got %+v", res)
	}

	tooNew := candidate(1000, 20, created.Add(72*time.Hour).Add(time.Second))
	if res := Evaluate(params, expected, tooNew); res.OK || res.Reason != ReasonAfterWindow {
		t.Fatalf("past the deadline should be skipped, got %+v", res)
	}
}

func TestReasonTerminality(t *testing.T) {
	terminal := []Reason{ReasonRecipientMismatch, ReasonSenderMismatch, ReasonAmountMismatch, ReasonExecutionFailed}
	for _, r := range terminal {
		if !r.Terminal() {
			t.Fatalf("reason %q should be terminal", r)
		}
	}
	soft := []Reason{ReasonNone, ReasonBeforeWindow, ReasonAfterWindow, ReasonInsufficientConfirmations}
	for _, r := range soft {
		if r.Terminal() {
			t.Fatalf("reason %q should not be terminal", r)
		}
	}
}

func TestContractCreationNeverMatches(t *testing.T) {
	tx := candidate(1000, 20, time.Now())
	tx.To = nil
	direct := Params{Recipient: recipient, MinConfirmations: 5}
	if res := Evaluate(direct, big.NewInt(1000), tx); res.OK || res.Reason != ReasonRecipientMismatch {
		t.Fatalf("contract creation should not match, got %+v", res)
	}
}
