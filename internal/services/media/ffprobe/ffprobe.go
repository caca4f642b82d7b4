// Package ffprobe reads the duration and stream layout of source videos.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"jumpcut/internal/domain"
)

const defaultTimeout = 30 * time.Second

var ErrNoPath = errors.New("ffprobe: file path is required")

type Prober struct {
	binary  string
	timeout time.Duration
}

type Option func(*Prober)

// WithTimeout bounds a probe when the caller's context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func New(binary string, opts ...Option) *Prober {
	p := &Prober{binary: strings.TrimSpace(binary), timeout: defaultTimeout}
	if p.binary == "" {
		p.binary = "ffprobe"
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// probeArgs asks only for the fields the service reads.
func probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-of", "json",
		"-show_entries", "format=duration:stream=codec_type,codec_name,duration",
		path,
	}
}

func (p *Prober) Probe(ctx context.Context, filePath string) (domain.MediaInfo, error) {
	path := strings.TrimSpace(filePath)
	if path == "" {
		return domain.MediaInfo{}, ErrNoPath
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, probeArgs(path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return domain.MediaInfo{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, msg)
		}
		return domain.MediaInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	info, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		return domain.MediaInfo{}, fmt.Errorf("ffprobe %s: parse output: %w", path, err)
	}
	return info, nil
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// parseProbeOutput keeps audio and video streams, numbered per type. The
// container duration wins; without it the longest stream duration is used.
func parseProbeOutput(data []byte) (domain.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.MediaInfo{}, err
	}

	var info domain.MediaInfo
	var nVideo, nAudio int
	var longest float64
	for _, s := range out.Streams {
		var idx *int
		switch s.CodecType {
		case "video":
			idx = &nVideo
		case "audio":
			idx = &nAudio
		default:
			continue
		}
		info.Tracks = append(info.Tracks, domain.MediaTrack{Index: *idx, Type: s.CodecType, Codec: s.CodecName})
		*idx++
		longest = max(longest, parseSeconds(s.Duration))
	}

	info.Duration = parseSeconds(out.Format.Duration)
	if info.Duration == 0 {
		info.Duration = longest
	}
	return info, nil
}

// parseSeconds returns 0 for "N/A", empty and non-positive values.
func parseSeconds(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}
