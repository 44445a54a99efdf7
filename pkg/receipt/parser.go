package receipt

import (
	"context"

	"github.com/rs/zerolog"

	"slipbook/pkg/ocr"
)

// ParsedReceipt is the result of one parse attempt. Amount is never negative;
// 0 together with AmountFound == false means no amount was detected.
type ParsedReceipt struct {
	Amount        float64 `json:"amount"`
	AmountFound   bool    `json:"-"`
	RecipientName string  `json:"recipientName"`
	Text          string  `json:"text"`
}

// Extract runs both extractors over already-recognized text.
func Extract(text string) ParsedReceipt {
	amount, found := FindAmount(text)
	return ParsedReceipt{
		Amount:        amount,
		AmountFound:   found,
		RecipientName: ExtractRecipient(text),
		Text:          text,
	}
}

// Parser sequences recognition and extraction.
type Parser struct {
	recognizer ocr.Recognizer
	log        zerolog.Logger
}

func NewParser(r ocr.Recognizer, log zerolog.Logger) *Parser {
	return &Parser{recognizer: r, log: log}
}

// Parse recognizes img exactly once. Recognition failures are returned as-is
// (a *ocr.RecognitionError for the built-in engines); extraction never fails.
func (p *Parser) Parse(ctx context.Context, img ocr.Image) (ParsedReceipt, error) {
	text, err := p.recognizer.Recognize(ctx, img)
	if err != nil {
		p.log.Warn().Err(err).Str("file", img.Name).Str("engine", p.recognizer.Name()).Msg("recognition failed")
		return ParsedReceipt{}, err
	}
	pr := Extract(text)
	p.log.Debug().
		Str("file", img.Name).
		Str("text", ocr.Snippet(text, 160)).
		Float64("amount", pr.Amount).
		Bool("amount_found", pr.AmountFound).
		Str("recipient", pr.RecipientName).
		Msg("receipt parsed")
	return pr, nil
}
