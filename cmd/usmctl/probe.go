// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/text/encoding"

	usm "github.com/usmkit/usmkit"
	"github.com/usmkit/usmkit/internal/log"
	"github.com/usmkit/usmkit/internal/prober"
)

func newProbeCmd() *cobra.Command {
	var (
		output     string
		ffprobeDir string
		encName    string
	)

	cmd := &cobra.Command{
		Use:   "probe <input>",
		Short: "Demux a USM file or directory and run ffprobe over its elementary streams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(args[0], output, ffprobeDir, encName)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "./probe-output", "Output path for per-file JSON logs")
	cmd.Flags().StringVarP(&ffprobeDir, "ffprobe", "f", "", "Path to ffprobe executable or directory")
	cmd.Flags().StringVarP(&encName, "encoding", "e", "shift-jis", "Character encoding used in the USM's @UTF tables")
	return cmd
}

func runProbe(input, output, ffprobeDir, encName string) error {
	if err := os.MkdirAll(output, 0o755); err != nil {
		return err
	}

	files, err := findUSM(input)
	if err != nil {
		return err
	}
	enc, err := resolveEncoding(encName)
	if err != nil {
		return err
	}

	tempDir, err := os.MkdirTemp("", "usmctl-probe-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tempDir)

	fp := &prober.FFProbe{FFProbePath: findExecutable(ffprobeDir, "ffprobe")}
	ctx := context.Background()

	for i, f := range files {
		fmt.Printf("Processing %d of %d\n", i+1, len(files))
		if err := probeOne(ctx, f, output, tempDir, enc, fp); err != nil {
			fmt.Fprintf(os.Stderr, "probe failed for %s: %v\n", f, err)
		}
	}
	fmt.Printf("Probe complete. All logs are stored in %q\n", output)
	return nil
}

// probeOne mirrors wannacri.py's probe_usm: open, demux to a scratch
// directory, then run ffprobe over every elementary stream, logging
// everything (including failures) to one per-file JSON log instead of
// aborting the whole batch.
func probeOne(ctx context.Context, path, output, tempDir string, enc encoding.Encoding, fp *prober.FFProbe) error {
	logPath := filepath.Join(output, fmt.Sprintf("%s_%s.log", filepath.Base(path), randomSuffix(3)))
	logFile, err := os.Create(logPath)
	if err != nil {
		return err
	}
	defer logFile.Close()
	helper := log.NewHelper(log.NewJSONLogger(logFile))

	helper.Infof("opening %s", path)
	c, err := usm.Open(path, usm.Options{Encoding: enc})
	if err != nil {
		helper.Errorf("error parsing usm file: %v", err)
		return err
	}
	defer c.Close()

	scratch := filepath.Join(tempDir, outputBaseName(path))
	sink, err := newFSSink(scratch, outputBaseName(path))
	if err != nil {
		helper.Errorf("error preparing scratch directory: %v", err)
		return err
	}

	helper.Infof("extracting files")
	videos, audios, err := c.Demux(sink, usm.DemuxOptions{SaveVideo: true, SaveAudio: true})
	if err != nil {
		helper.Errorf("error demuxing usm file: %v", err)
		return err
	}
	defer os.RemoveAll(scratch)

	helper.Infof("probing videos")
	for _, v := range videos {
		info, frames, err := fp.ProbeVideo(ctx, v)
		if err != nil {
			helper.Warnf("ffprobe failed on video %s: %v", v, err)
			continue
		}
		helper.Infof("video %s: %+v (%d frames)", v, info, len(frames))
	}

	helper.Infof("probing audios")
	for _, a := range audios {
		info, blocks, err := fp.ProbeAudio(ctx, a)
		if err != nil {
			helper.Warnf("ffprobe failed on audio %s: %v", a, err)
			continue
		}
		helper.Infof("audio %s: %+v (%d blocks)", a, info, len(blocks))
	}

	helper.Infof("done probing usm file")
	return nil
}

func randomSuffix(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
