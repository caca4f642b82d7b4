package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jumpcut/internal/domain"
)

var validPresets = map[string]struct{}{
	"ultrafast": {},
	"superfast": {},
	"veryfast":  {},
	"faster":    {},
	"fast":      {},
	"medium":    {},
	"slow":      {},
}

var validAudioBitrates = map[string]struct{}{
	"96k":  {},
	"128k": {},
	"192k": {},
	"256k": {},
	"320k": {},
}

const maxSilenceThresholdMs = 60_000

type EncodingSettingsStore interface {
	GetEncodingSettings(ctx context.Context) (domain.EncodingSettings, bool, error)
	SetEncodingSettings(ctx context.Context, settings domain.EncodingSettings) error
}

// EncodingSettingsManager holds the settings applied to new videos. Updates
// are persisted when a store is configured and rolled back if persisting fails.
type EncodingSettingsManager struct {
	mu      sync.RWMutex
	current domain.EncodingSettings
	store   EncodingSettingsStore
	timeout time.Duration
	logger  *slog.Logger
}

func NewEncodingSettingsManager(defaults domain.EncodingSettings, store EncodingSettingsStore, logger *slog.Logger) *EncodingSettingsManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &EncodingSettingsManager{
		current: withDefaults(defaults),
		store:   store,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

func (m *EncodingSettingsManager) Get() domain.EncodingSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Load replaces the current settings with the persisted ones, if any.
func (m *EncodingSettingsManager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	stored, found, err := m.store.GetEncodingSettings(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	stored = withDefaults(stored)
	if err := ValidateEncodingSettings(stored); err != nil {
		m.logger.Warn("ignoring persisted encoding settings", slog.String("error", err.Error()))
		return nil
	}
	m.mu.Lock()
	m.current = stored
	m.mu.Unlock()
	return nil
}

func (m *EncodingSettingsManager) Update(settings domain.EncodingSettings) error {
	settings = withDefaults(settings)
	if err := ValidateEncodingSettings(settings); err != nil {
		return err
	}

	m.mu.Lock()
	prev := m.current
	m.current = settings
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.store.SetEncodingSettings(ctx, settings); err != nil {
		m.mu.Lock()
		m.current = prev
		m.mu.Unlock()
		return err
	}
	return nil
}

func ValidateEncodingSettings(s domain.EncodingSettings) error {
	if s.Preset != "" {
		if _, ok := validPresets[s.Preset]; !ok {
			return fmt.Errorf("%w: unknown preset %q", domain.ErrInvalidSettings, s.Preset)
		}
	}
	if s.CRF < 0 || s.CRF > 51 {
		return fmt.Errorf("%w: crf must be between 0 and 51", domain.ErrInvalidSettings)
	}
	if s.AudioBitrate != "" {
		if _, ok := validAudioBitrates[s.AudioBitrate]; !ok {
			return fmt.Errorf("%w: unsupported audio bitrate %q", domain.ErrInvalidSettings, s.AudioBitrate)
		}
	}
	if s.SilenceThresholdMs < 0 || s.SilenceThresholdMs > maxSilenceThresholdMs {
		return fmt.Errorf("%w: silence threshold must be between 0 and %d ms", domain.ErrInvalidSettings, maxSilenceThresholdMs)
	}
	return nil
}

func withDefaults(s domain.EncodingSettings) domain.EncodingSettings {
	def := domain.DefaultEncodingSettings()
	if s.VideoCodec == "" {
		s.VideoCodec = def.VideoCodec
	}
	if s.AudioCodec == "" {
		s.AudioCodec = def.AudioCodec
	}
	return s
}
