package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"jumpcut/internal/domain"
)

func TestSettingsUpdateFields(t *testing.T) {
	now := time.Date(2026, 2, 19, 10, 0, 0, 0, time.UTC)
	s := domain.EncodingSettings{
		VideoCodec:         "libx265",
		AudioCodec:         "aac",
		Preset:             "fast",
		CRF:                22,
		AudioBitrate:       "192k",
		SilenceThresholdMs: 750,
	}

	update := settingsUpdate(s, now)

	want := bson.M{
		"videoCodec":         "libx265",
		"audioCodec":         "aac",
		"preset":             "fast",
		"crf":                22,
		"audioBitrate":       "192k",
		"silenceThresholdMs": int64(750),
		"updatedAt":          now.Unix(),
	}
	if len(update) != len(want) {
		t.Fatalf("got %d fields, want %d", len(update), len(want))
	}
	for k, v := range want {
		if update[k] != v {
			t.Errorf("%s: got %v (%T), want %v (%T)", k, update[k], update[k], v, v)
		}
	}
}

func TestSettingsDocRoundtrip(t *testing.T) {
	s := domain.EncodingSettings{
		VideoCodec:         "libx264",
		AudioCodec:         "aac",
		Preset:             "veryfast",
		CRF:                28,
		AudioBitrate:       "128k",
		SilenceThresholdMs: 1200,
	}

	raw, err := bson.Marshal(bson.M(settingsUpdate(s, time.Unix(1700000000, 0))))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc encodingSettingsDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := fromSettingsDoc(doc); got != s {
		t.Fatalf("got %+v, want %+v", got, s)
	}
}

func TestFromSettingsDocLegacyThreshold(t *testing.T) {
	got := fromSettingsDoc(encodingSettingsDoc{ID: encodingSettingsID, Preset: "fast"})
	if got.SilenceThresholdMs != domain.DefaultSilenceThresholdMs {
		t.Fatalf("expected default threshold, got %d", got.SilenceThresholdMs)
	}

	zero := int64(0)
	got = fromSettingsDoc(encodingSettingsDoc{ID: encodingSettingsID, SilenceThresholdMs: &zero})
	if got.SilenceThresholdMs != 0 {
		t.Fatalf("explicit zero threshold must be kept, got %d", got.SilenceThresholdMs)
	}
}
