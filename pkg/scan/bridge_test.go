package scan

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"slipbook/models"
	"slipbook/pkg/ocr"
	"slipbook/pkg/receipt"
)

// mockCreator records every draft it is asked to persist.
type mockCreator struct {
	drafts []TransactionDraft
	err    error
}

func (m *mockCreator) CreateTransaction(_ context.Context, d TransactionDraft) (CreatedTransaction, error) {
	m.drafts = append(m.drafts, d)
	if m.err != nil {
		return CreatedTransaction{}, m.err
	}
	return CreatedTransaction{ID: uint(len(m.drafts)), TransactionDraft: d}, nil
}

type mockSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, m.err
}

func textParser(text string) *receipt.Parser {
	return receipt.NewParser(ocr.RecognizerFunc(func(context.Context, ocr.Image) (string, error) {
		return text, nil
	}), zerolog.Nop())
}

var _ = Describe("Bridge", func() {
	var (
		creator  *mockCreator
		recorder *Recorder
		states   []bool
		fixed    time.Time
		img      ocr.Image
	)

	newBridge := func(p ReceiptParser) *Bridge {
		return NewBridge(p, creator, recorder, zerolog.Nop(),
			WithScanningHook(func(v bool) { states = append(states, v) }),
			WithClock(func() time.Time { return fixed }),
		)
	}

	BeforeEach(func() {
		creator = &mockCreator{}
		recorder = &Recorder{}
		states = nil
		fixed = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		img = ocr.Image{Name: "slip.jpg", ContentType: "image/jpeg", Data: []byte{0xff}}
	})

	Context("when the slip has an amount and a recipient", func() {
		It("creates one expense draft and sends a success notification", func() {
			b := newBridge(textParser("ยอดเงิน 500.00 บาท ไปยัง นางสาว สมหญิง รักดี"))
			out := b.HandleScan(context.Background(), img)

			Expect(out.Severity).To(Equal(SeveritySuccess))
			Expect(out.Err).NotTo(HaveOccurred())
			Expect(creator.drafts).To(HaveLen(1))
			Expect(creator.drafts[0]).To(Equal(TransactionDraft{
				Type:        TypeExpense,
				Amount:      500,
				Category:    Category,
				Description: "นางสาว สมหญิง รักดี",
				Date:        fixed,
			}))
			Expect(out.Transaction).NotTo(BeNil())
			Expect(out.Transaction.ID).To(Equal(uint(1)))

			notes := recorder.Notifications()
			Expect(notes).To(HaveLen(1))
			Expect(notes[0].Severity).To(Equal(SeveritySuccess))
			Expect(notes[0].Message).To(ContainSubstring("500.00"))
			Expect(notes[0].Message).To(ContainSubstring("นางสาว สมหญิง รักดี"))
		})

		It("falls back to the default description without a recipient", func() {
			b := newBridge(textParser("amount 42.00"))
			out := b.HandleScan(context.Background(), img)

			Expect(out.Severity).To(Equal(SeveritySuccess))
			Expect(creator.drafts).To(HaveLen(1))
			Expect(creator.drafts[0].Description).To(Equal(DefaultDescription))
		})
	})

	Context("when no amount is detected", func() {
		It("warns and never calls the creator", func() {
			b := newBridge(textParser("Thank you for your purchase"))
			out := b.HandleScan(context.Background(), img)

			Expect(out.Severity).To(Equal(SeverityWarning))
			Expect(out.Err).To(MatchError(ErrAmountNotDetected))
			Expect(out.Receipt).NotTo(BeNil())
			Expect(creator.drafts).To(BeEmpty())
			Expect(recorder.Notifications()).To(HaveLen(1))
			Expect(b.Scanning()).To(BeFalse())
		})

		It("treats a zero amount as undetected", func() {
			b := newBridge(textParser("paid 0.00 to nobody"))
			out := b.HandleScan(context.Background(), img)

			Expect(out.Severity).To(Equal(SeverityWarning))
			Expect(creator.drafts).To(BeEmpty())
		})
	})

	Context("when recognition fails", func() {
		It("reports an error, never calls the creator and resets scanning", func() {
			failing := receipt.NewParser(ocr.RecognizerFunc(func(context.Context, ocr.Image) (string, error) {
				return "", &ocr.RecognitionError{Engine: "func", Err: errors.New("engine crashed")}
			}), zerolog.Nop())
			b := newBridge(failing)
			out := b.HandleScan(context.Background(), img)

			Expect(out.Severity).To(Equal(SeverityError))
			var rerr *ocr.RecognitionError
			Expect(errors.As(out.Err, &rerr)).To(BeTrue())
			Expect(creator.drafts).To(BeEmpty())
			Expect(recorder.Notifications()).To(HaveLen(1))
			Expect(recorder.Notifications()[0].Severity).To(Equal(SeverityError))
			Expect(b.Scanning()).To(BeFalse())
			Expect(states).To(Equal([]bool{true, false}))
		})
	})

	Context("when the creator fails", func() {
		It("wraps the failure in a CreateError", func() {
			creator.err = errors.New("db down")
			b := newBridge(textParser("500.00 ไปยัง สมชาย"))
			out := b.HandleScan(context.Background(), img)

			Expect(out.Severity).To(Equal(SeverityError))
			var cerr *CreateError
			Expect(errors.As(out.Err, &cerr)).To(BeTrue())
			Expect(cerr.Err).To(MatchError("db down"))
			Expect(creator.drafts).To(HaveLen(1))
			Expect(recorder.Notifications()).To(HaveLen(1))
		})
	})

	It("reports scanning while the parse is in flight", func() {
		var b *Bridge
		var during bool
		b = newBridge(receipt.NewParser(ocr.RecognizerFunc(func(context.Context, ocr.Image) (string, error) {
			during = b.Scanning()
			return "1.00", nil
		}), zerolog.Nop()))
		b.HandleScan(context.Background(), img)

		Expect(during).To(BeTrue())
		Expect(b.Scanning()).To(BeFalse())
	})
})

var _ = Describe("Notifiers", func() {
	It("fans out through Multi and skips nil entries", func() {
		a, c := &Recorder{}, &Recorder{}
		Multi{a, nil, c}.Notify(context.Background(), Notification{Severity: SeverityWarning, Message: "x"})

		Expect(a.Notifications()).To(HaveLen(1))
		Expect(c.Notifications()).To(HaveLen(1))
		last, ok := c.Last()
		Expect(ok).To(BeTrue())
		Expect(last.Message).To(Equal("x"))
	})

	It("sends one telegram message per notification", func() {
		sender := &mockSender{}
		tg := &Telegram{bot: sender, chatID: 42, log: zerolog.Nop()}
		tg.Notify(context.Background(), Notification{Severity: SeveritySuccess, Title: "Slip recorded", Message: "recorded expense 10.00"})

		Expect(sender.sent).To(HaveLen(1))
		msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
		Expect(ok).To(BeTrue())
		Expect(msg.ChatID).To(Equal(int64(42)))
		Expect(msg.Text).To(ContainSubstring("recorded expense 10.00"))
	})

	It("swallows telegram delivery errors", func() {
		sender := &mockSender{err: errors.New("network")}
		tg := &Telegram{bot: sender, chatID: 1, log: zerolog.Nop()}
		Expect(func() {
			tg.Notify(context.Background(), Notification{Severity: SeverityError})
		}).NotTo(Panic())
	})
})

var _ = Describe("RecordOutcome", func() {
	It("links a successful scan and clears the failure flag", func() {
		up := &models.ReceiptUpload{Failed: true, FailedReason: "old"}
		RecordOutcome(up, Outcome{
			Severity:    SeveritySuccess,
			Receipt:     &receipt.ParsedReceipt{Amount: 12.5, RecipientName: "สมชาย", Text: "raw"},
			Transaction: &CreatedTransaction{ID: 5},
		})
		Expect(up.Failed).To(BeFalse())
		Expect(up.FailedReason).To(BeEmpty())
		Expect(up.TransactionID).NotTo(BeNil())
		Expect(*up.TransactionID).To(Equal(uint(5)))
		Expect(up.RawText).To(Equal("raw"))
	})

	It("marks warnings as failed with the message", func() {
		up := &models.ReceiptUpload{}
		RecordOutcome(up, Outcome{Severity: SeverityWarning, Message: "amount not detected on the slip"})
		Expect(up.Failed).To(BeTrue())
		Expect(up.FailedReason).To(Equal("amount not detected on the slip"))
		Expect(up.TransactionID).To(BeNil())
	})
})
