package usecase

import (
	"context"
	"log/slog"

	"jumpcut/internal/domain"
	"jumpcut/internal/domain/ports"
)

// progress writes user-facing job log entries and mirrors them to the
// process logger. base fields are attached to every entry.
type progress struct {
	store  ports.JobStore
	logger *slog.Logger
	jobID  domain.JobID
	base   domain.Metadata
}

func (p progress) log(ctx context.Context, level domain.LogLevel, message string, fields ...domain.Field) {
	md := p.base.Clone()
	for _, f := range fields {
		md.Set(f.Key, f.Value)
	}
	if p.store != nil {
		p.store.AppendLog(level, message, p.jobID, md)
	}
	if p.logger == nil {
		return
	}
	attrs := make([]slog.Attr, 0, len(md)+1)
	attrs = append(attrs, slog.String("jobId", string(p.jobID)))
	for _, f := range md {
		attrs = append(attrs, slog.String(f.Key, f.Value.Str()))
	}
	p.logger.LogAttrs(ctx, slogLevel(level), message, attrs...)
}

func slogLevel(level domain.LogLevel) slog.Level {
	switch level {
	case domain.LevelError:
		return slog.LevelError
	case domain.LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
