package prober

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeVideo extracts path's elementary VP9/H.264 bitstream to a
// temporary raw file via ffmpeg (stream copy, no re-encoding — this
// core never transcodes, per spec.md's Non-goals), then uses ffprobe's
// packet table to slice that raw stream into per-frame payloads with
// their presentation time and keyframe flag.
func (f *FFProbe) ProbeVideo(ctx context.Context, path string) (VideoInfo, []VideoFrame, error) {
	stream, err := f.streamInfo(ctx, path, "video")
	if err != nil {
		return VideoInfo{}, nil, err
	}
	num, den, err := parseRational(stream.RFrameRate)
	if err != nil {
		return VideoInfo{}, nil, err
	}
	info := VideoInfo{
		Width:  uint32(stream.Width),
		Height: uint32(stream.Height),
		FPSNum: num,
		FPSDen: den,
	}

	raw, err := f.extractBitstream(ctx, path, stream.CodecName)
	if err != nil {
		return VideoInfo{}, nil, err
	}
	defer os.Remove(raw)

	packets, err := f.packets(ctx, path, "video")
	if err != nil {
		return VideoInfo{}, nil, err
	}

	data, err := os.ReadFile(raw)
	if err != nil {
		return VideoInfo{}, nil, fmt.Errorf("prober: reading extracted video bitstream: %w", err)
	}

	frames, err := sliceFrames(data, packets)
	if err != nil {
		return VideoInfo{}, nil, err
	}
	return info, frames, nil
}

// extractBitstream remuxes path's first video stream, losslessly, to
// a temporary raw elementary-stream file and returns its path. VP9
// uses ffmpeg's "ivf" muxer (the closest thing to a headerless VP9
// elementary stream ffmpeg exposes); H.264 uses the "h264" Annex-B
// muxer, which is already elementary.
func (f *FFProbe) extractBitstream(ctx context.Context, path, codecName string) (string, error) {
	var format, suffix string
	switch strings.ToLower(codecName) {
	case "vp9":
		format, suffix = "ivf", ".ivf"
	case "h264":
		format, suffix = "h264", ".h264"
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCodec, codecName)
	}

	tmp, err := os.CreateTemp("", "usmkit-video-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("prober: creating temp file: %w", err)
	}
	tmp.Close()

	ctx, cancel := f.context(ctx)
	defer cancel()

	bin := f.FFMpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet", "-y",
		"-i", path,
		"-map", "0:v:0",
		"-c", "copy",
		"-f", format,
		tmp.Name())
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("prober: %s: %w: %s", bin, err, out)
	}
	return tmp.Name(), nil
}

// sliceFrames cuts raw into the per-packet spans ffprobe reported,
// pairing each with its presentation time and keyframe flag. The IVF
// muxer prefixes a 32-byte file header and a 12-byte per-frame header
// ahead of each frame's payload; h264 Annex-B has no such framing, so
// packets there are sliced directly by offset/size.
func sliceFrames(raw []byte, packets []ffprobePacket) ([]VideoFrame, error) {
	isIVF := len(raw) >= 4 && string(raw[0:4]) == "DKIF"
	offset := uint64(0)
	if isIVF {
		offset = 32
	}

	frames := make([]VideoFrame, 0, len(packets))
	for _, p := range packets {
		size, err := strconv.ParseUint(strings.TrimSpace(p.Size), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("prober: packet size %q: %w", p.Size, err)
		}
		if isIVF {
			offset += 12 // per-frame IVF frame header (size, timestamp)
		}
		if offset+size > uint64(len(raw)) {
			return nil, fmt.Errorf("prober: packet extends past extracted bitstream (offset %d size %d len %d)", offset, size, len(raw))
		}
		payload := append([]byte(nil), raw[offset:offset+size]...)
		offset += size

		pts, err := parsePTSFrames(p.PTSTime)
		if err != nil {
			return nil, err
		}
		frames = append(frames, VideoFrame{
			Payload:    payload,
			PTS:        pts,
			IsKeyframe: strings.Contains(p.Flags, "K"),
		})
	}
	return frames, nil
}

// parseRational parses ffprobe's "num/den" frame-rate strings.
func parseRational(s string) (num, den uint32, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("prober: malformed frame rate %q", s)
	}
	n, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("prober: malformed frame rate numerator %q: %w", parts[0], err)
	}
	d, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("prober: malformed frame rate denominator %q: %w", parts[1], err)
	}
	return uint32(n), uint32(d), nil
}

// parsePTSFrames converts ffprobe's fractional-seconds pts_time into
// the integer millisecond-ish frame_time unit the chunk header's
// 24-bit field carries.
func parsePTSFrames(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("prober: malformed pts_time %q: %w", s, err)
	}
	return uint32(f * 1000), nil
}
