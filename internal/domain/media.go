package domain

// Word is one recognised word with millisecond offsets into the source media.
type Word struct {
	StartMs    int64   `json:"start"`
	EndMs      int64   `json:"end"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Segment is a kept span of the source, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (s Segment) Duration() float64 {
	return s.End - s.Start
}

type VideoStage string

const (
	StageUploading    VideoStage = "uploading"
	StageTranscribing VideoStage = "transcribing"
	StagePolling      VideoStage = "polling"
	StageSegmenting   VideoStage = "segmenting"
	StageEncoding     VideoStage = "encoding"
	StageDone         VideoStage = "done"
	StageFailed       VideoStage = "failed"
)

type MediaTrack struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Codec string `json:"codec"`
}

type MediaInfo struct {
	Tracks   []MediaTrack `json:"tracks"`
	Duration float64      `json:"duration"`
}

func (m MediaInfo) HasAudio() bool {
	for _, t := range m.Tracks {
		if t.Type == "audio" {
			return true
		}
	}
	return false
}
