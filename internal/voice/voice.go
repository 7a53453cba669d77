// Package voice supplies questions to the pipeline, either as typed text or as
// recorded speech run through a transcription service.
package voice

import (
	"context"
	"errors"
	"fmt"
)

var ErrEmptyAudio = errors.New("audio is empty")

// QuestionSource yields the question for one request.
type QuestionSource interface {
	Question(ctx context.Context) (string, error)
}

// Text is a question typed by the user.
type Text string

func (t Text) Question(context.Context) (string, error) {
	return string(t), nil
}

type Audio struct {
	Data     []byte
	MimeType string
	Filename string
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// TranscriptionError reports a failed speech-to-text call.
type TranscriptionError struct {
	Provider string
	Err      error
}

func (e *TranscriptionError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("transcription failed: %v", e.Err)
	}
	return fmt.Sprintf("transcription failed provider=%s: %v", e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// Speech is a recorded question. The transcript is the question.
type Speech struct {
	Audio       Audio
	Transcriber Transcriber
}

func (s Speech) Question(ctx context.Context) (string, error) {
	if len(s.Audio.Data) == 0 {
		return "", &TranscriptionError{Err: ErrEmptyAudio}
	}
	if s.Transcriber == nil {
		return "", &TranscriptionError{Err: errors.New("voice input is not enabled")}
	}
	text, err := s.Transcriber.Transcribe(ctx, s.Audio)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var transcriptionErr *TranscriptionError
		if errors.As(err, &transcriptionErr) {
			return "", err
		}
		return "", &TranscriptionError{Err: err}
	}
	return text, nil
}
