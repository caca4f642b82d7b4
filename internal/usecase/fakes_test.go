package usecase

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"jumpcut/internal/domain"
	"jumpcut/internal/domain/ports"
)

type fakeTranscriber struct {
	mu         sync.Mutex
	uploads    int
	creates    int
	polls      int
	words      []domain.Word
	statuses   []string
	uploadErr  error
	createErr  error
	pollErr    error
	lastUpload string
}

func (f *fakeTranscriber) Upload(_ context.Context, media io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	data, _ := io.ReadAll(media)
	f.lastUpload = string(data)
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "https://cdn.example/upload", nil
}

func (f *fakeTranscriber) CreateTranscript(context.Context, string) (ports.TranscriptID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	return "tr-1", nil
}

func (f *fakeTranscriber) PollUntilDone(_ context.Context, _ ports.TranscriptID, onStatus func(string)) ([]domain.Word, error) {
	f.mu.Lock()
	f.polls++
	statuses := f.statuses
	f.mu.Unlock()
	if onStatus != nil {
		for _, s := range statuses {
			onStatus(s)
		}
	}
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.words, nil
}

// fakeEncoder mirrors the real encoder contract: Cut fails with ErrEmptyPlan
// on no segments, otherwise writes a marker output.
type fakeEncoder struct {
	mu           sync.Mutex
	cuts         int
	passThroughs int
	failOnCut    int
	lastSegments []domain.Segment
	lastSettings domain.EncodingSettings
}

func (f *fakeEncoder) Cut(_ context.Context, source string, segments []domain.Segment, settings domain.EncodingSettings, output string) error {
	f.mu.Lock()
	f.cuts++
	n := f.cuts
	f.lastSegments = segments
	f.lastSettings = settings
	f.mu.Unlock()
	if len(segments) == 0 {
		return domain.ErrEmptyPlan
	}
	if f.failOnCut == n {
		return domain.WithReason(domain.ErrEncodeFailed, "exit 1: broken stream")
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	return os.WriteFile(output, []byte("cut:"+string(data)), 0o644)
}

func (f *fakeEncoder) PassThrough(_ context.Context, source, output string) error {
	f.mu.Lock()
	f.passThroughs++
	f.mu.Unlock()
	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0o644)
}

type fakeConcat struct {
	calls        int
	inputs       []string
	err          error
	passThroughs int
	copyErr      error
}

func (f *fakeConcat) PassThrough(_ context.Context, source, output string) error {
	f.passThroughs++
	if f.copyErr != nil {
		return f.copyErr
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0o644)
}

func (f *fakeConcat) Concat(_ context.Context, inputs []string, output string) error {
	f.calls++
	f.inputs = append([]string(nil), inputs...)
	if f.err != nil {
		return f.err
	}
	var parts []string
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return domain.WithReason(domain.ErrConcatFailed, err.Error())
		}
		parts = append(parts, string(data))
	}
	return os.WriteFile(output, []byte(strings.Join(parts, "|")), 0o644)
}

type fakeProbe struct {
	info domain.MediaInfo
	err  error
}

func (f fakeProbe) Probe(context.Context, string) (domain.MediaInfo, error) {
	return f.info, f.err
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]domain.Word
	sets    int
}

func (f *fakeCache) Get(_ context.Context, key string) ([]domain.Word, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.entries[key]
	return w, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, words []domain.Word, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[string][]domain.Word)
	}
	f.entries[key] = words
	f.sets++
	return nil
}

type staticSettings domain.EncodingSettings

func (s staticSettings) Get() domain.EncodingSettings {
	return domain.EncodingSettings(s)
}

func stringUpload(name, body string) Upload {
	return Upload{
		Filename: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}
