// Package silence derives kept speech segments from word timestamps.
package silence

import "jumpcut/internal/domain"

// Detect groups consecutive words into segments, starting a new segment
// whenever the gap between one word's end and the next word's start is at
// least thresholdMs. A negative threshold selects the default of 1000ms.
//
// Offsets are compared in milliseconds and converted to seconds only when a
// segment boundary is emitted. Input order is trusted.
func Detect(words []domain.Word, thresholdMs int64) []domain.Segment {
	if len(words) == 0 {
		return nil
	}
	if thresholdMs < 0 {
		thresholdMs = domain.DefaultSilenceThresholdMs
	}

	segments := make([]domain.Segment, 0, 4)
	startMs := words[0].StartMs
	endMs := words[0].EndMs

	for _, w := range words[1:] {
		if w.StartMs-endMs >= thresholdMs {
			segments = append(segments, segment(startMs, endMs))
			startMs = w.StartMs
		}
		endMs = w.EndMs
	}
	return append(segments, segment(startMs, endMs))
}

// KeptSeconds sums the duration of all segments.
func KeptSeconds(segments []domain.Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.Duration()
	}
	return total
}

func segment(startMs, endMs int64) domain.Segment {
	return domain.Segment{Start: msToSeconds(startMs), End: msToSeconds(endMs)}
}

func msToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}
