package voice

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const transcribeInstruction = "Transcribe this recording of a question about a database. " +
	"Return only the spoken words."

type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// GeminiTranscriber sends audio inline to a Gemini model and asks for a verbatim
// transcript.
type GeminiTranscriber struct {
	client *genai.Client
	model  string
}

func NewGeminiTranscriber(ctx context.Context, cfg GeminiConfig) (*GeminiTranscriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: strings.TrimSpace(cfg.BaseURL)},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiTranscriber{client: client, model: model}, nil
}

func (t *GeminiTranscriber) Transcribe(ctx context.Context, audio Audio) (string, error) {
	mimeType := audio.MimeType
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribeInstruction),
			genai.NewPartFromBytes(audio.Data, mimeType),
		}, genai.RoleUser),
	}
	resp, err := t.client.Models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		return "", &TranscriptionError{Provider: "gemini", Err: err}
	}
	return strings.TrimSpace(resp.Text()), nil
}
