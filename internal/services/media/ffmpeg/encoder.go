// Package ffmpeg renders cut plans and joins encoded files with the ffmpeg binary.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"jumpcut/internal/domain"
)

const stderrTailLines = 8

type Encoder struct {
	binary string
	runner commandRunner
	logger *slog.Logger
}

type Option func(*Encoder)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Encoder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func withRunner(r commandRunner) Option {
	return func(e *Encoder) {
		e.runner = r
	}
}

func New(binary string, opts ...Option) *Encoder {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffmpeg"
	}
	e := &Encoder{binary: bin, runner: execRunner{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cut re-encodes source keeping only segments. It returns domain.ErrEmptyPlan
// untouched when no segment survives plan construction so callers can fall
// back to PassThrough.
func (e *Encoder) Cut(ctx context.Context, source string, segments []domain.Segment, settings domain.EncodingSettings, output string) error {
	plan, err := BuildCutPlan(source, segments, settings)
	if err != nil {
		return err
	}
	args := plan.Args(output)
	e.logger.Debug("ffmpeg cut",
		slog.String("source", source),
		slog.String("output", output),
		slog.Int("segments", len(plan.Segments)),
	)
	res, err := e.runner.Run(ctx, e.binary, args...)
	if err != nil {
		return domain.WithReason(domain.ErrEncodeFailed, failureReason(res, err))
	}
	return nil
}

// PassThrough copies source to output byte for byte.
func (e *Encoder) PassThrough(_ context.Context, source, output string) error {
	if err := copyFile(source, output); err != nil {
		return domain.WithReason(domain.ErrEncodeFailed, err.Error())
	}
	return nil
}

// Concat joins inputs in order with the concat demuxer and stream copy. The
// temporary list file is removed on every path.
func (e *Encoder) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return domain.WithReason(domain.ErrConcatFailed, "no inputs")
	}
	abs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		p, err := filepath.Abs(in)
		if err != nil {
			return domain.WithReason(domain.ErrConcatFailed, err.Error())
		}
		if _, err := os.Stat(p); err != nil {
			return domain.WithReason(domain.ErrConcatFailed, fmt.Sprintf("input missing: %s", p))
		}
		abs = append(abs, p)
	}

	listPath, err := writeConcatList(filepath.Dir(output), abs)
	if err != nil {
		return domain.WithReason(domain.ErrConcatFailed, err.Error())
	}
	defer os.Remove(listPath)

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		output,
	}
	e.logger.Debug("ffmpeg concat", slog.Int("inputs", len(abs)), slog.String("output", output))
	res, err := e.runner.Run(ctx, e.binary, args...)
	if err != nil {
		return domain.WithReason(domain.ErrConcatFailed, failureReason(res, err))
	}
	return nil
}

func writeConcatList(dir string, paths []string) (string, error) {
	f, err := os.CreateTemp(dir, "concat_list_*.txt")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func failureReason(res commandResult, err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err.Error()
	}
	tail := tailLines(res.Stderr, stderrTailLines)
	if tail == "" {
		return fmt.Sprintf("%v (exit %d)", err, res.ExitCode)
	}
	return fmt.Sprintf("exit %d: %s", res.ExitCode, tail)
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
