package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const transcribePrompt = `Transcribe every line of text visible in this bank transfer slip or receipt exactly as printed.
Keep Thai and English text as-is, keep numbers with their separators and decimals, one printed line per output line.
Do not summarize, translate, explain or add anything. Output plain text only, no markdown.`

// Gemini uses a Gemini vision model as a plain transcription engine. It only
// produces text; field extraction stays with the local heuristics.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

func NewGemini(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gemini{client: client, model: model, timeout: timeout}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Recognize(ctx context.Context, img Image) (string, error) {
	decoded, err := decodeImage(img.Data, img.ContentType)
	if err != nil {
		return "", recognitionErr(g.Name(), err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, decoded, imaging.PNG); err != nil {
		return "", recognitionErr(g.Name(), fmt.Errorf("encoding PNG: %w", err))
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", buf.Bytes()), genai.Text(transcribePrompt))
	if err != nil {
		return "", recognitionErr(g.Name(), fmt.Errorf("generating content: %w", err))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", recognitionErr(g.Name(), errors.New("no candidates in response"))
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out := strings.TrimSpace(text.String())
	out = strings.TrimPrefix(out, "```text")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out), nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}
