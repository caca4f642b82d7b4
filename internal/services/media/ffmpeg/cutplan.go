package ffmpeg

import (
	"strconv"
	"strings"

	"jumpcut/internal/domain"
)

const (
	videoOutLabel = "outv"
	audioOutLabel = "outa"
)

// CutPlan is a single-pass trim/concat recipe over one source file.
type CutPlan struct {
	Source     string
	Segments   []domain.Segment
	VideoLabel string
	AudioLabel string
	Settings   domain.EncodingSettings
}

// BuildCutPlan drops zero-length segments, keeps the rest in order and fails
// with domain.ErrEmptyPlan when nothing is left to keep.
func BuildCutPlan(source string, segments []domain.Segment, settings domain.EncodingSettings) (CutPlan, error) {
	kept := make([]domain.Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.End > seg.Start {
			kept = append(kept, seg)
		}
	}
	if len(kept) == 0 {
		return CutPlan{}, domain.ErrEmptyPlan
	}
	defaults := domain.DefaultEncodingSettings()
	if strings.TrimSpace(settings.VideoCodec) == "" {
		settings.VideoCodec = defaults.VideoCodec
	}
	if strings.TrimSpace(settings.AudioCodec) == "" {
		settings.AudioCodec = defaults.AudioCodec
	}
	return CutPlan{
		Source:     source,
		Segments:   kept,
		VideoLabel: videoOutLabel,
		AudioLabel: audioOutLabel,
		Settings:   settings,
	}, nil
}

// FilterGraph renders the filter_complex expression: one trim/atrim pair per
// segment with timestamps reset, followed by one concat per stream kind.
func (p CutPlan) FilterGraph() string {
	var b strings.Builder
	for i, seg := range p.Segments {
		start := formatSeconds(seg.Start)
		end := formatSeconds(seg.End)
		idx := strconv.Itoa(i)
		b.WriteString("[0:v]trim=start=" + start + ":end=" + end + ",setpts=PTS-STARTPTS[v" + idx + "];")
		b.WriteString("[0:a]atrim=start=" + start + ":end=" + end + ",asetpts=PTS-STARTPTS[a" + idx + "];")
	}
	n := strconv.Itoa(len(p.Segments))
	for i := range p.Segments {
		b.WriteString("[v" + strconv.Itoa(i) + "]")
	}
	b.WriteString("concat=n=" + n + ":v=1[" + p.VideoLabel + "];")
	for i := range p.Segments {
		b.WriteString("[a" + strconv.Itoa(i) + "]")
	}
	b.WriteString("concat=n=" + n + ":v=0:a=1[" + p.AudioLabel + "]")
	return b.String()
}

// Args returns the full ffmpeg argument list writing the plan to output.
func (p CutPlan) Args(output string) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", p.Source,
		"-filter_complex", p.FilterGraph(),
		"-map", "[" + p.VideoLabel + "]",
		"-map", "[" + p.AudioLabel + "]",
		"-c:v", p.Settings.VideoCodec,
	}
	if preset := strings.TrimSpace(p.Settings.Preset); preset != "" {
		args = append(args, "-preset", preset)
	}
	if p.Settings.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(p.Settings.CRF))
	}
	args = append(args, "-c:a", p.Settings.AudioCodec)
	if br := strings.TrimSpace(p.Settings.AudioBitrate); br != "" {
		args = append(args, "-b:a", br)
	}
	return append(args, output)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
