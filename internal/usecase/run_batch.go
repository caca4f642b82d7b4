package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"jumpcut/internal/domain"
	"jumpcut/internal/domain/ports"
	"jumpcut/internal/metrics"
	"jumpcut/internal/telemetry"
)

type VideoProcessor interface {
	Execute(ctx context.Context, in VideoInput) (VideoResult, error)
}

// Upload is one submitted file. Open is called once, when the file is saved
// into the work directory.
type Upload struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

type BatchInput struct {
	JobID   domain.JobID
	Uploads []Upload
}

type BatchResult struct {
	JobID       domain.JobID  `json:"jobId"`
	OutputPath  string        `json:"-"`
	OutputBytes int64         `json:"outputBytes"`
	Elapsed     time.Duration `json:"elapsed"`
	Videos      []VideoResult `json:"videos"`
}

// Cleanup removes the final artifact. Callers own it once Execute succeeds.
func (r BatchResult) Cleanup() {
	removeQuietly(r.OutputPath)
}

// RunBatch processes uploads in submission order and joins the results into
// one file. Every intermediate file it creates is removed before returning.
type RunBatch struct {
	Pipeline VideoProcessor
	Concat   ports.Concatenator
	Store    ports.JobStore
	WorkDir  string
	Slots    *semaphore.Weighted
	NewID    func() string
	Logger   *slog.Logger
	Now      func() time.Time
}

func (uc RunBatch) Execute(ctx context.Context, in BatchInput) (BatchResult, error) {
	uploads := make([]Upload, 0, len(in.Uploads))
	for _, up := range in.Uploads {
		if strings.TrimSpace(up.Filename) == "" || up.Open == nil {
			continue
		}
		uploads = append(uploads, up)
	}
	if len(uploads) == 0 {
		return BatchResult{}, domain.ErrEmptyInput
	}

	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}
	newID := uuid.NewString
	if uc.NewID != nil {
		newID = uc.NewID
	}
	logger := uc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workDir := uc.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	jobID := in.JobID
	if jobID == "" {
		jobID = domain.JobID(newID())
	}
	fileCount := domain.F("file_count", domain.Int(int64(len(uploads))))
	if err := uc.Store.Create(jobID, domain.NewMetadata(fileCount)); err != nil {
		return BatchResult{}, err
	}
	result := BatchResult{JobID: jobID}
	p := progress{store: uc.Store, logger: logger, jobID: jobID}
	p.log(ctx, domain.LevelInfo, fmt.Sprintf("Job created with %d file(s)", len(uploads)), fileCount)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "jumpcut.run_batch", trace.WithAttributes(
		attribute.String("job.id", string(jobID)),
		attribute.Int("job.file_count", len(uploads)),
	))
	defer span.End()

	started := now()
	b := batchRun{uc: uc, p: p, jobID: jobID, started: started, now: now, span: span}

	if uc.Slots != nil {
		if !uc.Slots.TryAcquire(1) {
			p.log(ctx, domain.LevelInfo, "Waiting for a free processing slot")
			if err := uc.Slots.Acquire(ctx, 1); err != nil {
				return result, b.fail(ctx, 0, fmt.Errorf("%w: %v", ErrBusy, err))
			}
		}
		defer uc.Slots.Release(1)
	}

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	uc.Store.SetStatus(jobID, domain.JobProcessing, domain.NewMetadata(
		domain.F("started_at", domain.Time(started)),
	))
	p.log(ctx, domain.LevelInfo, "Processing started")

	var created []string
	defer func() { removeQuietly(created...) }()

	outputs := make([]string, 0, len(uploads))
	for i, up := range uploads {
		idx := i + 1
		name := sanitizeFilename(up.Filename)
		token := newID()
		inputPath := filepath.Join(workDir, "input_"+token+mediaExt(name))
		outputPath := filepath.Join(workDir, fmt.Sprintf("output_%s_%d.mp4", token, idx))
		created = append(created, inputPath, outputPath)

		if _, err := saveUpload(up.Open, inputPath); err != nil {
			return result, b.fail(ctx, idx, wrapStorage(fmt.Errorf("save %s: %w", name, err)))
		}

		video, err := uc.Pipeline.Execute(ctx, VideoInput{
			JobID:      jobID,
			Index:      idx,
			Total:      len(uploads),
			Filename:   name,
			InputPath:  inputPath,
			OutputPath: outputPath,
		})
		if err != nil {
			return result, b.fail(ctx, idx, err)
		}
		// Inputs are no longer needed once their output exists.
		removeQuietly(inputPath)
		outputs = append(outputs, outputPath)
		result.Videos = append(result.Videos, video)
	}

	finalPath := filepath.Join(workDir, "final_output_"+newID()+".mp4")
	if err := uc.join(ctx, p, outputs, finalPath); err != nil {
		removeQuietly(finalPath)
		return result, b.fail(ctx, 0, err)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		removeQuietly(finalPath)
		return result, b.fail(ctx, 0, domain.WithReason(domain.ErrConcatFailed, err.Error()))
	}
	result.OutputPath = finalPath
	result.OutputBytes = info.Size()
	result.Elapsed = now().Sub(started)

	uc.Store.SetStatus(jobID, domain.JobCompleted, domain.NewMetadata(
		domain.F("output_bytes", domain.Int(result.OutputBytes)),
		domain.F("elapsed_ms", domain.Duration(result.Elapsed)),
		domain.F("output_name", domain.String(filepath.Base(finalPath))),
	))
	p.log(ctx, domain.LevelSuccess, fmt.Sprintf("Job completed, %d video(s) processed", len(outputs)),
		domain.F("output_bytes", domain.Int(result.OutputBytes)),
		domain.F("elapsed_ms", domain.Duration(result.Elapsed)),
	)
	metrics.JobsTotal.WithLabelValues(string(domain.JobCompleted)).Inc()
	metrics.BatchDuration.Observe(result.Elapsed.Seconds())
	return result, nil
}

func (uc RunBatch) join(ctx context.Context, p progress, outputs []string, finalPath string) error {
	if len(outputs) == 1 {
		if err := uc.Concat.PassThrough(ctx, outputs[0], finalPath); err != nil {
			return domain.WithReason(domain.ErrConcatFailed, domain.ReasonOf(err))
		}
		return nil
	}
	p.log(ctx, domain.LevelInfo, fmt.Sprintf("Concatenating %d videos", len(outputs)),
		domain.F("video_total", domain.Int(int64(len(outputs)))),
	)
	return uc.Concat.Concat(ctx, outputs, finalPath)
}

type batchRun struct {
	uc      RunBatch
	p       progress
	jobID   domain.JobID
	started time.Time
	now     func() time.Time
	span    trace.Span
}

// fail writes the single ERROR entry for the batch and moves the job to its
// terminal error status. videoIndex is 0 for failures outside a video.
func (b batchRun) fail(ctx context.Context, videoIndex int, err error) error {
	elapsed := b.now().Sub(b.started)
	status := domain.NewMetadata(
		domain.F("error", domain.String(err.Error())),
		domain.F("error_kind", domain.String(errorKind(err))),
		domain.F("elapsed_ms", domain.Duration(elapsed)),
	)
	fields := []domain.Field{domain.F("error_kind", domain.String(errorKind(err)))}

	var pe *PipelineError
	if errors.As(err, &pe) {
		status.Set("failed_stage", domain.String(string(pe.Stage)))
		fields = append(fields, domain.F("stage", domain.String(string(pe.Stage))))
	}
	if videoIndex > 0 {
		status.Set("failed_video_index", domain.Int(int64(videoIndex)))
		fields = append(fields, domain.F("video_index", domain.Int(int64(videoIndex))))
	}

	message := "Job failed: " + domain.ReasonOf(err)
	if videoIndex > 0 {
		message = fmt.Sprintf("Video %d failed: %s", videoIndex, domain.ReasonOf(err))
	}
	b.p.log(ctx, domain.LevelError, message, fields...)
	b.uc.Store.SetStatus(b.jobID, domain.JobError, status)

	telemetry.Fail(b.span, err, errorKind(err))
	metrics.JobsTotal.WithLabelValues(string(domain.JobError)).Inc()
	metrics.BatchDuration.Observe(elapsed.Seconds())
	return err
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return domain.ErrorKind(err)
}
