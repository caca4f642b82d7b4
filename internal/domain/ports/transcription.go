package ports

import (
	"context"
	"io"
	"time"

	"jumpcut/internal/domain"
)

type TranscriptID string

// Transcriber talks to a remote speech-to-text service.
type Transcriber interface {
	Upload(ctx context.Context, media io.Reader) (string, error)
	CreateTranscript(ctx context.Context, uploadURL string) (TranscriptID, error)
	// PollUntilDone blocks until the transcript is completed or failed.
	// onStatus, when non-nil, is called for every remote status observed.
	PollUntilDone(ctx context.Context, id TranscriptID, onStatus func(status string)) ([]domain.Word, error)
}

// TranscriptCache stores completed word lists keyed by media content hash.
type TranscriptCache interface {
	Get(ctx context.Context, key string) ([]domain.Word, bool, error)
	Set(ctx context.Context, key string, words []domain.Word, ttl time.Duration) error
}
