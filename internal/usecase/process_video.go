package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"jumpcut/internal/domain"
	"jumpcut/internal/domain/ports"
	"jumpcut/internal/metrics"
	"jumpcut/internal/services/silence"
	"jumpcut/internal/services/transcription/cache"
	"jumpcut/internal/telemetry"
)

const tracerName = "jumpcut/usecase"

// SettingsSource supplies the encoding settings applied to the next video.
type SettingsSource interface {
	Get() domain.EncodingSettings
}

// ProcessVideo runs one video through upload, transcription, silence
// detection and re-encoding.
type ProcessVideo struct {
	Transcriber ports.Transcriber
	Encoder     ports.Encoder
	Store       ports.JobStore
	Settings    SettingsSource
	Probe       ports.MediaProbe
	Cache       ports.TranscriptCache
	CacheTTL    time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

type VideoInput struct {
	JobID      domain.JobID
	Index      int
	Total      int
	Filename   string
	InputPath  string
	OutputPath string
}

type VideoResult struct {
	Index         int              `json:"index"`
	Filename      string           `json:"filename"`
	OutputPath    string           `json:"-"`
	WordCount     int              `json:"wordCount"`
	Segments      []domain.Segment `json:"segments"`
	KeptSeconds   float64          `json:"keptSeconds"`
	SourceSeconds float64          `json:"sourceSeconds,omitempty"`
	PassThrough   bool             `json:"passThrough"`
	CacheHit      bool             `json:"cacheHit"`
	Elapsed       time.Duration    `json:"elapsed"`
}

type videoRun struct {
	uc        ProcessVideo
	in        VideoInput
	progress  progress
	now       func() time.Time
	started   time.Time
	stage     domain.VideoStage
	stageFrom time.Time
	span      trace.Span
}

func (uc ProcessVideo) Execute(ctx context.Context, in VideoInput) (VideoResult, error) {
	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}
	logger := uc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := domain.DefaultEncodingSettings()
	if uc.Settings != nil {
		settings = uc.Settings.Get()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "jumpcut.process_video", trace.WithAttributes(
		attribute.String("job.id", string(in.JobID)),
		attribute.Int("video.index", in.Index),
		attribute.Int("video.total", in.Total),
	))
	defer span.End()

	run := &videoRun{
		uc: uc,
		in: in,
		progress: progress{
			store:  uc.Store,
			logger: logger,
			jobID:  in.JobID,
			base: domain.NewMetadata(
				domain.F("video_index", domain.Int(int64(in.Index))),
				domain.F("video_total", domain.Int(int64(in.Total))),
				domain.F("filename", domain.String(in.Filename)),
			),
		},
		now:     now,
		started: now(),
		span:    span,
	}
	result := VideoResult{Index: in.Index, Filename: in.Filename, OutputPath: in.OutputPath}

	if uc.Probe != nil {
		info, err := uc.Probe.Probe(ctx, in.InputPath)
		if err != nil {
			run.progress.log(ctx, domain.LevelWarning, "Could not read source duration", domain.F("error", domain.String(err.Error())))
		} else {
			result.SourceSeconds = info.Duration
			run.progress.log(ctx, domain.LevelInfo, "Probed source", domain.F("source_duration_sec", domain.Float(info.Duration)))
			if !info.HasAudio() {
				run.progress.log(ctx, domain.LevelWarning, "Source has no audio stream")
			}
		}
	}

	words, cacheHit, err := run.transcribe(ctx)
	if err != nil {
		return result, run.fail(err)
	}
	result.CacheHit = cacheHit
	result.WordCount = len(words)

	run.enter(ctx, domain.StageSegmenting, "Transcript ready, detecting silence",
		domain.F("word_count", domain.Int(int64(len(words)))),
	)
	segments := silence.Detect(words, settings.SilenceThresholdMs)
	result.Segments = segments
	result.KeptSeconds = silence.KeptSeconds(segments)

	run.enter(ctx, domain.StageEncoding, fmt.Sprintf("Cutting %d speech segment(s)", len(segments)),
		domain.F("segment_count", domain.Int(int64(len(segments)))),
		domain.F("kept_seconds", domain.Float(result.KeptSeconds)),
		domain.F("threshold_ms", domain.Int(settings.SilenceThresholdMs)),
	)
	err = uc.Encoder.Cut(ctx, in.InputPath, segments, settings, in.OutputPath)
	if errors.Is(err, domain.ErrEmptyPlan) {
		run.progress.log(ctx, domain.LevelWarning, "No speech segments found, keeping the whole video",
			domain.F("stage", domain.String(string(domain.StageEncoding))),
		)
		result.PassThrough = true
		err = uc.Encoder.PassThrough(ctx, in.InputPath, in.OutputPath)
	}
	if err != nil {
		return result, run.fail(err)
	}

	result.Elapsed = now().Sub(run.started)
	run.finish(ctx, result)
	if result.PassThrough {
		metrics.VideosProcessedTotal.WithLabelValues("passthrough").Inc()
	} else {
		metrics.VideosProcessedTotal.WithLabelValues("cut").Inc()
	}
	return result, nil
}

func (r *videoRun) transcribe(ctx context.Context) ([]domain.Word, bool, error) {
	uc := r.uc
	var cacheKey string
	if uc.Cache != nil {
		key, err := hashFile(r.in.InputPath)
		if err != nil {
			r.progress.log(ctx, domain.LevelWarning, "Could not hash source for transcript cache", domain.F("error", domain.String(err.Error())))
		} else {
			cacheKey = key
			words, ok, err := uc.Cache.Get(ctx, key)
			switch {
			case err != nil:
				r.progress.log(ctx, domain.LevelWarning, "Transcript cache lookup failed", domain.F("error", domain.String(err.Error())))
			case ok:
				metrics.TranscriptCacheTotal.WithLabelValues("hit").Inc()
				r.progress.log(ctx, domain.LevelInfo, "Reusing cached transcript", domain.F("transcript_cache", domain.String("hit")))
				return words, true, nil
			default:
				metrics.TranscriptCacheTotal.WithLabelValues("miss").Inc()
			}
		}
	}

	r.enter(ctx, domain.StageUploading, fmt.Sprintf("Uploading video %d/%d for transcription", r.in.Index, r.in.Total))
	f, err := os.Open(r.in.InputPath)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	uploadURL, err := uc.Transcriber.Upload(ctx, f)
	f.Close()
	if err != nil {
		return nil, false, err
	}

	r.enter(ctx, domain.StageTranscribing, "Upload complete, requesting transcript")
	id, err := uc.Transcriber.CreateTranscript(ctx, uploadURL)
	if err != nil {
		return nil, false, err
	}

	r.enter(ctx, domain.StagePolling, "Waiting for transcript", domain.F("transcript_id", domain.String(string(id))))
	var last string
	words, err := uc.Transcriber.PollUntilDone(ctx, id, func(status string) {
		if status == last {
			return
		}
		last = status
		r.progress.log(ctx, domain.LevelInfo, "Transcript status: "+status,
			domain.F("stage", domain.String(string(domain.StagePolling))),
			domain.F("remote_status", domain.String(status)),
		)
	})
	if err != nil {
		return nil, false, err
	}

	if cacheKey != "" {
		if err := uc.Cache.Set(ctx, cacheKey, words, uc.CacheTTL); err != nil {
			r.progress.log(ctx, domain.LevelWarning, "Could not store transcript in cache", domain.F("error", domain.String(err.Error())))
		}
	}
	return words, false, nil
}

// enter closes the current stage and logs the transition into next.
func (r *videoRun) enter(ctx context.Context, next domain.VideoStage, message string, fields ...domain.Field) {
	now := r.now()
	all := []domain.Field{domain.F("stage", domain.String(string(next)))}
	if r.stage != "" {
		elapsed := now.Sub(r.stageFrom)
		metrics.StageDuration.WithLabelValues(string(r.stage)).Observe(elapsed.Seconds())
		all = append(all, domain.F("step_elapsed_ms", domain.Duration(elapsed)))
	}
	r.stage = next
	r.stageFrom = now
	r.span.AddEvent(string(next))
	r.progress.log(ctx, domain.LevelInfo, message, append(all, fields...)...)
}

func (r *videoRun) finish(ctx context.Context, result VideoResult) {
	now := r.now()
	if r.stage != "" {
		metrics.StageDuration.WithLabelValues(string(r.stage)).Observe(now.Sub(r.stageFrom).Seconds())
	}
	r.stage = domain.StageDone
	r.progress.log(ctx, domain.LevelSuccess, fmt.Sprintf("Video %d/%d processed", r.in.Index, r.in.Total),
		domain.F("stage", domain.String(string(domain.StageDone))),
		domain.F("step_elapsed_ms", domain.Duration(now.Sub(r.stageFrom))),
		domain.F("total_elapsed_ms", domain.Duration(result.Elapsed)),
		domain.F("pass_through", domain.Bool(result.PassThrough)),
	)
}

// fail records the failed stage on the span and wraps err. The job log entry
// for the failure is written by the batch, once.
func (r *videoRun) fail(err error) error {
	stage := r.stage
	if stage == "" {
		stage = domain.StageUploading
	}
	if r.stage != "" {
		metrics.StageDuration.WithLabelValues(string(r.stage)).Observe(r.now().Sub(r.stageFrom).Seconds())
	}
	r.stage = domain.StageFailed
	metrics.VideosProcessedTotal.WithLabelValues("failed").Inc()
	telemetry.Fail(r.span, err, string(stage))
	return &PipelineError{Stage: stage, VideoIndex: r.in.Index, Err: err}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return cache.Key(f)
}
