// Package prober implements the C7 collaborator contract (spec.md
// §4.6): externally-assisted recognition of VP9/H.264 video and
// HCA/ADX audio elementary streams. It shells out to a pre-existing
// ffprobe/ffmpeg installation exactly as wannacri.py's probe_usm does
// via ffmpeg.probe — the core never links a codec/demux library
// itself, matching spec.md §4.6's "agnostic to how the collaborator
// obtains these" clause.
package prober

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// VideoFrame is one elementary video frame as seen by the container
// layer: its raw payload, presentation timestamp and keyframe flag.
type VideoFrame struct {
	Payload    []byte
	PTS        uint32
	IsKeyframe bool
}

// VideoInfo carries the per-stream parameters the @SFV header table
// and chunk framing need.
type VideoInfo struct {
	Width  uint32
	Height uint32
	FPSNum uint32
	FPSDen uint32
}

// AudioBlock is one opaque HCA/ADX sample block.
type AudioBlock struct {
	Payload []byte
	PTS     uint32
}

// AudioInfo carries the per-stream parameters the @SFA header table
// needs.
type AudioInfo struct {
	SampleRate uint32
	Channels   uint8
}

// VideoProber is the C7 collaborator contract for video: given a path
// to an already-demuxed elementary or container file, it returns the
// stream's parameters and its ordered frame sequence.
type VideoProber interface {
	ProbeVideo(ctx context.Context, path string) (VideoInfo, []VideoFrame, error)
}

// AudioProber is the C7 collaborator contract for audio.
type AudioProber interface {
	ProbeAudio(ctx context.Context, path string) (AudioInfo, []AudioBlock, error)
}

// FFProbe shells out to the named ffprobe/ffmpeg binaries to implement
// VideoProber and AudioProber. The core's only dependency on it is
// through the two interfaces above; callers wire it in or substitute a
// fake in tests.
type FFProbe struct {
	// FFProbePath and FFMpegPath name the executables to invoke (found
	// via find_ffprobe's logic in the CLI layer, see cmd/usmctl).
	FFProbePath string
	FFMpegPath  string
	// Timeout bounds each external-process invocation; zero means no
	// timeout.
	Timeout time.Duration
}

// ErrUnsupportedCodec is returned when ffprobe reports a codec this
// collaborator does not know how to frame.
var ErrUnsupportedCodec = fmt.Errorf("prober: codec not recognized as VP9/H.264/HCA/ADX")

type ffprobeStream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type ffprobeFormat struct {
	Streams []ffprobeStream `json:"streams"`
}

type ffprobePacket struct {
	PTSTime string `json:"pts_time"`
	Pos     string `json:"pos"`
	Size    string `json:"size"`
	Flags   string `json:"flags"`
}

type ffprobePackets struct {
	Packets []ffprobePacket `json:"packets"`
}

func (f *FFProbe) probeBin() string {
	if f.FFProbePath != "" {
		return f.FFProbePath
	}
	return "ffprobe"
}

func (f *FFProbe) context(parent context.Context) (context.Context, context.CancelFunc) {
	if f.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, f.Timeout)
}

func (f *FFProbe) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := f.context(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.probeBin(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("prober: %s: %w: %s", f.probeBin(), err, stderr.String())
	}
	return out, nil
}

// streamInfo runs ffprobe -show_streams against path and returns the
// first stream of the requested codec type.
func (f *FFProbe) streamInfo(ctx context.Context, path, codecType string) (ffprobeStream, error) {
	out, err := f.run(ctx, "-v", "quiet", "-print_format", "json", "-show_streams", path)
	if err != nil {
		return ffprobeStream{}, err
	}
	var parsed ffprobeFormat
	if err := json.Unmarshal(out, &parsed); err != nil {
		return ffprobeStream{}, fmt.Errorf("prober: parsing ffprobe output: %w", err)
	}
	for _, s := range parsed.Streams {
		if s.CodecType == codecType {
			return s, nil
		}
	}
	return ffprobeStream{}, fmt.Errorf("prober: no %s stream found in %s", codecType, path)
}

// packets runs ffprobe -show_packets against path's streams of
// codecType, giving per-frame pts/offset/size/flags — the same
// show_entries fields wannacri.py's probe_usm requests from ffmpeg.probe.
func (f *FFProbe) packets(ctx context.Context, path, codecType string) ([]ffprobePacket, error) {
	out, err := f.run(ctx, "-v", "quiet", "-print_format", "json",
		"-select_streams", selectorFor(codecType),
		"-show_entries", "packet=pts_time,pos,size,flags",
		path)
	if err != nil {
		return nil, err
	}
	var parsed ffprobePackets
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("prober: parsing ffprobe packet output: %w", err)
	}
	return parsed.Packets, nil
}

func selectorFor(codecType string) string {
	if codecType == "audio" {
		return "a:0"
	}
	return "v:0"
}
