package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"jumpcut/internal/domain"
	"jumpcut/internal/storage/memory"
)

func writeSource(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "input.mp4")
	if err := os.WriteFile(in, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return in, filepath.Join(dir, "output.mp4")
}

func stagesOf(logs []domain.LogEntry) []string {
	var stages []string
	for _, e := range logs {
		if v, ok := e.Metadata.Get("stage"); ok {
			if len(stages) == 0 || stages[len(stages)-1] != v.Str() {
				stages = append(stages, v.Str())
			}
		}
	}
	return stages
}

func TestProcessVideoCutsSegments(t *testing.T) {
	in, out := writeSource(t, "source")
	store := memory.NewJobStore()
	tr := &fakeTranscriber{
		statuses: []string{"queued", "processing", "processing", "completed"},
		words: []domain.Word{
			{StartMs: 0, EndMs: 500},
			{StartMs: 1000, EndMs: 1500},
			{StartMs: 3000, EndMs: 3500},
		},
	}
	enc := &fakeEncoder{}
	uc := ProcessVideo{Transcriber: tr, Encoder: enc, Store: store, Settings: staticSettings(domain.DefaultEncodingSettings())}

	res, err := uc.Execute(context.Background(), VideoInput{JobID: "job", Index: 1, Total: 1, Filename: "a.mp4", InputPath: in, OutputPath: out})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.PassThrough {
		t.Fatal("did not expect pass-through")
	}
	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	if res.KeptSeconds != 2 {
		t.Fatalf("expected 2 kept seconds, got %v", res.KeptSeconds)
	}
	if tr.lastUpload != "source" {
		t.Fatalf("expected source bytes uploaded, got %q", tr.lastUpload)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "cut:source" {
		t.Fatalf("unexpected output %q", data)
	}

	logs, _ := store.GetLogs("job", 0)
	want := []string{"uploading", "transcribing", "polling", "segmenting", "encoding", "done"}
	got := stagesOf(logs)
	if len(got) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected stages %v, got %v", want, got)
		}
	}

	statusLogs := 0
	for _, e := range logs {
		if _, ok := e.Metadata.Get("remote_status"); ok {
			statusLogs++
		}
		if v, ok := e.Metadata.Get("video_index"); !ok || v.Str() != "1" {
			t.Fatalf("entry %q missing video_index", e.Message)
		}
	}
	if statusLogs != 3 {
		t.Fatalf("expected one entry per distinct remote status, got %d", statusLogs)
	}
	last := logs[len(logs)-1]
	if last.Level != domain.LevelSuccess {
		t.Fatalf("expected final SUCCESS entry, got %s", last.Level)
	}
}

func TestProcessVideoPassThroughOnNoWords(t *testing.T) {
	in, out := writeSource(t, "silent-video")
	store := memory.NewJobStore()
	enc := &fakeEncoder{}
	uc := ProcessVideo{Transcriber: &fakeTranscriber{}, Encoder: enc, Store: store}

	res, err := uc.Execute(context.Background(), VideoInput{JobID: "job", Index: 1, Total: 1, InputPath: in, OutputPath: out})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.PassThrough {
		t.Fatal("expected pass-through")
	}
	if enc.passThroughs != 1 {
		t.Fatalf("expected 1 pass-through, got %d", enc.passThroughs)
	}
	src, _ := os.ReadFile(in)
	dst, _ := os.ReadFile(out)
	if string(src) != string(dst) {
		t.Fatalf("expected identical output, got %q", dst)
	}

	logs, _ := store.GetLogs("job", 0)
	warnings := 0
	for _, e := range logs {
		if e.Level == domain.LevelWarning {
			warnings++
		}
		if e.Level == domain.LevelError {
			t.Fatalf("unexpected ERROR entry %q", e.Message)
		}
	}
	if warnings != 1 {
		t.Fatalf("expected 1 warning, got %d", warnings)
	}
}

func TestProcessVideoUsesThresholdFromSettings(t *testing.T) {
	in, out := writeSource(t, "x")
	settings := domain.DefaultEncodingSettings()
	settings.SilenceThresholdMs = 5000
	settings.Preset = "veryfast"
	enc := &fakeEncoder{}
	tr := &fakeTranscriber{words: []domain.Word{{StartMs: 0, EndMs: 500}, {StartMs: 3000, EndMs: 3500}}}
	uc := ProcessVideo{Transcriber: tr, Encoder: enc, Store: memory.NewJobStore(), Settings: staticSettings(settings)}

	res, err := uc.Execute(context.Background(), VideoInput{JobID: "job", Index: 1, Total: 1, InputPath: in, OutputPath: out})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("expected gap below 5s threshold to merge, got %d segments", len(res.Segments))
	}
	if enc.lastSettings.Preset != "veryfast" {
		t.Fatalf("expected settings passed to encoder, got %+v", enc.lastSettings)
	}
}

func TestProcessVideoFailureStages(t *testing.T) {
	tests := []struct {
		name  string
		tr    *fakeTranscriber
		enc   *fakeEncoder
		stage domain.VideoStage
		kind  error
	}{
		{
			name:  "upload",
			tr:    &fakeTranscriber{uploadErr: domain.WithReason(domain.ErrUploadFailed, "401")},
			enc:   &fakeEncoder{},
			stage: domain.StageUploading,
			kind:  domain.ErrUploadFailed,
		},
		{
			name:  "create",
			tr:    &fakeTranscriber{createErr: domain.WithReason(domain.ErrTranscriptionCreateFailed, "400")},
			enc:   &fakeEncoder{},
			stage: domain.StageTranscribing,
			kind:  domain.ErrTranscriptionCreateFailed,
		},
		{
			name:  "remote error",
			tr:    &fakeTranscriber{pollErr: domain.WithReason(domain.ErrTranscriptionFailed, "bad audio")},
			enc:   &fakeEncoder{},
			stage: domain.StagePolling,
			kind:  domain.ErrTranscriptionFailed,
		},
		{
			name:  "encode",
			tr:    &fakeTranscriber{words: []domain.Word{{StartMs: 0, EndMs: 100}}},
			enc:   &fakeEncoder{failOnCut: 1},
			stage: domain.StageEncoding,
			kind:  domain.ErrEncodeFailed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in, out := writeSource(t, "x")
			store := memory.NewJobStore()
			uc := ProcessVideo{Transcriber: tc.tr, Encoder: tc.enc, Store: store}

			_, err := uc.Execute(context.Background(), VideoInput{JobID: "job", Index: 2, Total: 3, InputPath: in, OutputPath: out})
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			var pe *PipelineError
			if !errors.As(err, &pe) {
				t.Fatalf("expected PipelineError, got %T", err)
			}
			if pe.Stage != tc.stage || pe.VideoIndex != 2 {
				t.Fatalf("unexpected failure point %+v", pe)
			}

			logs, _ := store.GetLogs("job", 0)
			for _, e := range logs {
				if e.Level == domain.LevelError {
					t.Fatalf("pipeline must not write ERROR entries, got %q", e.Message)
				}
			}
		})
	}
}

func TestProcessVideoCacheHitSkipsTranscription(t *testing.T) {
	in, out := writeSource(t, "cached-media")
	key, err := hashFile(in)
	if err != nil {
		t.Fatal(err)
	}
	c := &fakeCache{entries: map[string][]domain.Word{key: {{StartMs: 0, EndMs: 800}}}}
	tr := &fakeTranscriber{}
	uc := ProcessVideo{Transcriber: tr, Encoder: &fakeEncoder{}, Store: memory.NewJobStore(), Cache: c}

	res, err := uc.Execute(context.Background(), VideoInput{JobID: "job", Index: 1, Total: 1, InputPath: in, OutputPath: out})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.CacheHit {
		t.Fatal("expected cache hit")
	}
	if tr.uploads != 0 || tr.creates != 0 || tr.polls != 0 {
		t.Fatalf("expected no remote calls, got %d/%d/%d", tr.uploads, tr.creates, tr.polls)
	}
}

func TestProcessVideoCacheMissStoresTranscript(t *testing.T) {
	in, out := writeSource(t, "fresh-media")
	c := &fakeCache{}
	tr := &fakeTranscriber{words: []domain.Word{{StartMs: 0, EndMs: 800}}}
	uc := ProcessVideo{Transcriber: tr, Encoder: &fakeEncoder{}, Store: memory.NewJobStore(), Cache: c}

	if _, err := uc.Execute(context.Background(), VideoInput{JobID: "job", Index: 1, Total: 1, InputPath: in, OutputPath: out}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if c.sets != 1 {
		t.Fatalf("expected transcript cached, sets=%d", c.sets)
	}
}

func TestProcessVideoProbeFailureIsWarning(t *testing.T) {
	in, out := writeSource(t, "x")
	store := memory.NewJobStore()
	uc := ProcessVideo{
		Transcriber: &fakeTranscriber{words: []domain.Word{{StartMs: 0, EndMs: 100}}},
		Encoder:     &fakeEncoder{},
		Store:       store,
		Probe:       fakeProbe{err: errors.New("ffprobe missing")},
	}
	if _, err := uc.Execute(context.Background(), VideoInput{JobID: "job", Index: 1, Total: 1, InputPath: in, OutputPath: out}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	logs, _ := store.GetLogs("job", 0)
	if logs[0].Level != domain.LevelWarning {
		t.Fatalf("expected probe warning first, got %s %q", logs[0].Level, logs[0].Message)
	}
}

func TestProcessVideoRecordsSourceDuration(t *testing.T) {
	in, out := writeSource(t, "x")
	store := memory.NewJobStore()
	uc := ProcessVideo{
		Transcriber: &fakeTranscriber{words: []domain.Word{{StartMs: 0, EndMs: 100}}},
		Encoder:     &fakeEncoder{},
		Store:       store,
		Probe:       fakeProbe{info: domain.MediaInfo{Duration: 12.5}},
	}
	res, err := uc.Execute(context.Background(), VideoInput{JobID: "job", Index: 1, Total: 1, InputPath: in, OutputPath: out})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.SourceSeconds != 12.5 {
		t.Fatalf("expected source seconds 12.5, got %v", res.SourceSeconds)
	}
	logs, _ := store.GetLogs("job", 0)
	v, ok := logs[0].Metadata.Get("source_duration_sec")
	if !ok || v.Str() != "12.5" {
		t.Fatalf("expected source_duration_sec on first entry, got %+v", logs[0])
	}
	if logs[1].Level != domain.LevelWarning {
		t.Fatalf("expected missing-audio warning, got %s %q", logs[1].Level, logs[1].Message)
	}
}
