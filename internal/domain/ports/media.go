package ports

import (
	"context"

	"jumpcut/internal/domain"
)

// Encoder renders kept segments of a source file into an output file.
type Encoder interface {
	Cut(ctx context.Context, source string, segments []domain.Segment, settings domain.EncodingSettings, output string) error
	PassThrough(ctx context.Context, source, output string) error
}

// Concatenator joins already encoded files in order without re-encoding.
// A single file is copied with PassThrough instead.
type Concatenator interface {
	Concat(ctx context.Context, inputs []string, output string) error
	PassThrough(ctx context.Context, source, output string) error
}

type MediaProbe interface {
	Probe(ctx context.Context, filePath string) (domain.MediaInfo, error)
}
