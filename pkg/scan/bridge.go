package scan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"slipbook/pkg/ocr"
	"slipbook/pkg/receipt"
)

const (
	// TypeExpense is the only transaction type a scan produces.
	TypeExpense = "expense"
	// Category marks transactions that came from a scanned slip.
	Category = "สลิป"
	// DefaultDescription ("money transfer") is used when no recipient was found.
	DefaultDescription = "โอนเงิน"
)

// ErrAmountNotDetected is carried by warning outcomes.
var ErrAmountNotDetected = errors.New("amount not detected")

// CreateError wraps a failure of the TransactionCreator.
type CreateError struct {
	Err error
}

func (e *CreateError) Error() string { return "create transaction: " + e.Err.Error() }
func (e *CreateError) Unwrap() error { return e.Err }

// TransactionDraft is what the bridge asks the ledger to persist.
type TransactionDraft struct {
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

// CreatedTransaction is the persisted draft plus its id.
type CreatedTransaction struct {
	ID uint `json:"id"`
	TransactionDraft
}

type ReceiptParser interface {
	Parse(ctx context.Context, img ocr.Image) (receipt.ParsedReceipt, error)
}

type TransactionCreator interface {
	CreateTransaction(ctx context.Context, d TransactionDraft) (CreatedTransaction, error)
}

// CreatorFunc adapts a function to TransactionCreator.
type CreatorFunc func(ctx context.Context, d TransactionDraft) (CreatedTransaction, error)

func (f CreatorFunc) CreateTransaction(ctx context.Context, d TransactionDraft) (CreatedTransaction, error) {
	return f(ctx, d)
}

// Outcome summarizes one HandleScan call. Exactly one notification is sent
// per outcome.
type Outcome struct {
	Severity    Severity
	Message     string
	Receipt     *receipt.ParsedReceipt
	Draft       *TransactionDraft
	Transaction *CreatedTransaction
	Err         error
}

// Notification converts the outcome into what the Notifier receives.
func (o Outcome) Notification() Notification {
	return Notification{Severity: o.Severity, Title: o.Severity.Title(), Message: o.Message}
}

type Option func(*Bridge)

// WithScanningHook registers fn to observe scanning state transitions.
func WithScanningHook(fn func(scanning bool)) Option {
	return func(b *Bridge) { b.onScanning = fn }
}

// WithClock overrides the time source used for the draft date.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// Bridge turns a scanned slip into an expense transaction.
//
// The scanning flag is advisory: concurrent HandleScan calls on one Bridge
// are not serialized and the flag reflects the most recent transition.
type Bridge struct {
	parser     ReceiptParser
	creator    TransactionCreator
	notifier   Notifier
	log        zerolog.Logger
	scanning   atomic.Bool
	onScanning func(bool)
	now        func() time.Time
}

func NewBridge(p ReceiptParser, c TransactionCreator, n Notifier, log zerolog.Logger, opts ...Option) *Bridge {
	if n == nil {
		n = NewLogNotifier(log)
	}
	b := &Bridge{parser: p, creator: c, notifier: n, log: log, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Scanning reports whether a scan is in progress.
func (b *Bridge) Scanning() bool { return b.scanning.Load() }

func (b *Bridge) setScanning(v bool) {
	b.scanning.Store(v)
	if b.onScanning != nil {
		b.onScanning(v)
	}
}

// HandleScan parses img and, when an amount is present, creates one expense.
func (b *Bridge) HandleScan(ctx context.Context, img ocr.Image) Outcome {
	b.setScanning(true)
	defer b.setScanning(false)

	out := b.handle(ctx, img)
	b.notifier.Notify(ctx, out.Notification())
	ev := b.log.Info()
	if out.Severity != SeveritySuccess {
		ev = b.log.Warn().Err(out.Err)
	}
	ev.Str("file", img.Name).Str("severity", string(out.Severity)).Msg(out.Message)
	return out
}

func (b *Bridge) handle(ctx context.Context, img ocr.Image) Outcome {
	pr, err := b.parser.Parse(ctx, img)
	if err != nil {
		return Outcome{Severity: SeverityError, Message: "could not read the slip", Err: err}
	}
	if !pr.AmountFound || pr.Amount <= 0 {
		return Outcome{
			Severity: SeverityWarning,
			Message:  "amount not detected on the slip",
			Receipt:  &pr,
			Err:      ErrAmountNotDetected,
		}
	}

	draft := DraftFromReceipt(pr, b.now())
	created, err := b.creator.CreateTransaction(ctx, draft)
	if err != nil {
		return Outcome{
			Severity: SeverityError,
			Message:  "could not save the transaction",
			Receipt:  &pr,
			Draft:    &draft,
			Err:      &CreateError{Err: err},
		}
	}
	return Outcome{
		Severity:    SeveritySuccess,
		Message:     fmt.Sprintf("recorded expense %.2f: %s", draft.Amount, draft.Description),
		Receipt:     &pr,
		Draft:       &draft,
		Transaction: &created,
	}
}

// DraftFromReceipt maps a parsed receipt to an expense draft dated at.
func DraftFromReceipt(pr receipt.ParsedReceipt, at time.Time) TransactionDraft {
	desc := pr.RecipientName
	if desc == "" {
		desc = DefaultDescription
	}
	return TransactionDraft{
		Type:        TypeExpense,
		Amount:      pr.Amount,
		Category:    Category,
		Description: desc,
		Date:        at,
	}
}
