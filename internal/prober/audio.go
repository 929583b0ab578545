package prober

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeAudio extracts path's elementary HCA/ADX audio bitstream and
// slices it into per-block payloads the same way ProbeVideo slices
// video frames. HCA/ADX encryption itself stays opaque to the core
// (spec.md §4.2/§4.6): this collaborator only supplies block bytes and
// timing, never interprets or decrypts them.
func (f *FFProbe) ProbeAudio(ctx context.Context, path string) (AudioInfo, []AudioBlock, error) {
	stream, err := f.streamInfo(ctx, path, "audio")
	if err != nil {
		return AudioInfo{}, nil, err
	}
	sampleRate, err := strconv.ParseUint(strings.TrimSpace(stream.SampleRate), 10, 32)
	if err != nil {
		return AudioInfo{}, nil, fmt.Errorf("prober: malformed sample_rate %q: %w", stream.SampleRate, err)
	}
	info := AudioInfo{
		SampleRate: uint32(sampleRate),
		Channels:   uint8(stream.Channels),
	}

	raw, err := f.extractAudioBitstream(ctx, path)
	if err != nil {
		return AudioInfo{}, nil, err
	}
	defer os.Remove(raw)

	packets, err := f.packets(ctx, path, "audio")
	if err != nil {
		return AudioInfo{}, nil, err
	}

	data, err := os.ReadFile(raw)
	if err != nil {
		return AudioInfo{}, nil, fmt.Errorf("prober: reading extracted audio bitstream: %w", err)
	}

	blocks, err := sliceBlocks(data, packets)
	if err != nil {
		return AudioInfo{}, nil, err
	}
	return info, blocks, nil
}

// extractAudioBitstream remuxes path's first audio stream, losslessly,
// to a raw "data" container (ffmpeg's generic passthrough muxer),
// which carries the codec's packets back-to-back with no extra framing.
func (f *FFProbe) extractAudioBitstream(ctx context.Context, path string) (string, error) {
	tmp, err := os.CreateTemp("", "usmkit-audio-*.raw")
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
		"-map", "0:a:0",
		"-c", "copy",
		"-f", "data",
		tmp.Name())
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("prober: %s: %w: %s", bin, err, out)
	}
	return tmp.Name(), nil
}

func sliceBlocks(raw []byte, packets []ffprobePacket) ([]AudioBlock, error) {
	offset := uint64(0)
	blocks := make([]AudioBlock, 0, len(packets))
	for _, p := range packets {
		size, err := strconv.ParseUint(strings.TrimSpace(p.Size), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("prober: packet size %q: %w", p.Size, err)
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
		blocks = append(blocks, AudioBlock{Payload: payload, PTS: pts})
	}
	return blocks, nil
}
