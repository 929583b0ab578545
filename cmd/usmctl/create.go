// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	usm "github.com/usmkit/usmkit"
	"github.com/usmkit/usmkit/internal/prober"
)

func newCreateCmd() *cobra.Command {
	var (
		inputAudio string
		output     string
		ffprobeDir string
		keyStr     string
		encName    string
	)

	cmd := &cobra.Command{
		Use:   "create <input-video>",
		Short: "Create a USM file from a video (and optional audio) source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(args[0], inputAudio, output, ffprobeDir, keyStr, encName)
		},
	}

	cmd.Flags().StringVar(&inputAudio, "input-audio", "", "Path to audio file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (defaults to <input> with a .usm extension)")
	cmd.Flags().StringVarP(&ffprobeDir, "ffprobe", "f", "", "Path to ffprobe/ffmpeg executable or directory")
	cmd.Flags().StringVarP(&keyStr, "key", "k", "", "Encryption key for the produced USM")
	cmd.Flags().StringVarP(&encName, "encoding", "e", "shift-jis", "Character encoding used in the USM's @UTF tables")
	return cmd
}

func runCreate(inputVideo, inputAudio, output, ffprobeDir, keyStr, encName string) error {
	enc, err := resolveEncoding(encName)
	if err != nil {
		return err
	}

	var key *usm.Key
	if keyStr != "" {
		k, err := parseKey(keyStr)
		if err != nil {
			return fmt.Errorf("usmctl: invalid key %q: %w", keyStr, err)
		}
		video, _ := usm.GenerateKeys(usm.Key(k))
		key = &video
	}

	fp := &prober.FFProbe{
		FFProbePath: findExecutable(ffprobeDir, "ffprobe"),
		FFMpegPath:  findExecutable(ffprobeDir, "ffmpeg"),
	}
	ctx := context.Background()

	vinfo, frames, err := fp.ProbeVideo(ctx, inputVideo)
	if err != nil {
		return fmt.Errorf("usmctl: probing video: %w", err)
	}
	vs := usm.NewVideoStream(0, codecTagFor(inputVideo), vinfo.Width, vinfo.Height, vinfo.FPSNum, vinfo.FPSDen)
	for _, fr := range frames {
		vs.AddFrame(fr.Payload, fr.PTS, fr.IsKeyframe)
	}

	var audioStreams []*usm.AudioStream
	if inputAudio != "" {
		ainfo, blocks, err := fp.ProbeAudio(ctx, inputAudio)
		if err != nil {
			return fmt.Errorf("usmctl: probing audio: %w", err)
		}
		as := usm.NewAudioStream(0, usm.CodecHCA, ainfo.SampleRate, ainfo.Channels)
		for _, b := range blocks {
			as.AddBlock(b.Payload, b.PTS)
		}
		audioStreams = append(audioStreams, as)
	}

	crid := usm.BuildCRID([]*usm.VideoStream{vs}, audioStreams)
	container := usm.NewContainer(crid, usm.Options{Key: key, Encoding: enc})
	container.VideoStreams = []*usm.VideoStream{vs}
	container.AudioStreams = audioStreams

	mode := usm.StreamNone
	if key != nil {
		mode = usm.StreamEncrypt
	}
	cursor, err := container.Stream(mode, enc)
	if err != nil {
		return err
	}

	if output == "" {
		output = strings.TrimSuffix(inputVideo, filepath.Ext(inputVideo)) + ".usm"
	}
	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()

	for {
		data, ok := cursor.Next()
		if !ok {
			break
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
	}
	fmt.Println("Done creating USM file.")
	return nil
}

// findExecutable mirrors wannacri.py's find_ffprobe: an explicit file
// path is used as-is; a directory is searched for the named binary;
// empty means "use $PATH".
func findExecutable(dirOrPath, name string) string {
	if dirOrPath == "" {
		return ""
	}
	info, err := os.Stat(dirOrPath)
	if err != nil {
		return ""
	}
	if !info.IsDir() {
		return dirOrPath
	}
	candidate := filepath.Join(dirOrPath, name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// codecTagFor guesses a codec tag from the input file's extension;
// ProbeVideo itself determines the real codec via ffprobe, this is
// only bookkeeping carried on the stream for the CLI's own logging.
func codecTagFor(path string) usm.CodecTag {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".h264", ".264":
		return usm.CodecH264
	default:
		return usm.CodecVP9
	}
}
