package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAITranscriber uploads audio to an OpenAI-compatible
// /v1/audio/transcriptions endpoint.
type OpenAITranscriber struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAITranscriber(cfg OpenAIConfig) (*OpenAITranscriber, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "whisper-1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAITranscriber{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio Audio) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	filename := audio.Filename
	if filename == "" {
		filename = "question" + extensionFor(audio.MimeType)
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", t.fail(fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", t.fail(fmt.Errorf("write audio: %w", err))
	}
	if err := form.WriteField("model", t.model); err != nil {
		return "", t.fail(fmt.Errorf("write model field: %w", err))
	}
	if err := form.WriteField("response_format", "json"); err != nil {
		return "", t.fail(fmt.Errorf("write format field: %w", err))
	}
	if err := form.Close(); err != nil {
		return "", t.fail(fmt.Errorf("close form: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", t.fail(fmt.Errorf("build transcription request: %w", err))
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", t.fail(fmt.Errorf("request transcription: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", t.fail(fmt.Errorf("read transcription response: %w", err))
	}
	if resp.StatusCode >= 400 {
		return "", t.fail(fmt.Errorf("transcription status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", t.fail(fmt.Errorf("decode transcription response: %w", err))
	}
	return strings.TrimSpace(parsed.Text), nil
}

func (t *OpenAITranscriber) fail(err error) error {
	return &TranscriptionError{Provider: "openai", Err: err}
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	case "audio/flac":
		return ".flac"
	default:
		return ".wav"
	}
}
