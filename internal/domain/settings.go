package domain

// EncodingSettings control how kept segments are re-encoded and how silence
// is detected. Empty Preset, zero CRF and empty AudioBitrate leave the
// encoder defaults in place.
type EncodingSettings struct {
	VideoCodec         string `json:"videoCodec"`
	AudioCodec         string `json:"audioCodec"`
	Preset             string `json:"preset"`
	CRF                int    `json:"crf"`
	AudioBitrate       string `json:"audioBitrate"`
	SilenceThresholdMs int64  `json:"silenceThresholdMs"`
}

const DefaultSilenceThresholdMs int64 = 1000

func DefaultEncodingSettings() EncodingSettings {
	return EncodingSettings{
		VideoCodec:         "libx264",
		AudioCodec:         "aac",
		SilenceThresholdMs: DefaultSilenceThresholdMs,
	}
}
