// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/text/encoding"

	usm "github.com/usmkit/usmkit"
)

func newExtractCmd() *cobra.Command {
	var (
		output  string
		keyStr  string
		encName string
		pages   bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "extract <input>",
		Short: "Extract video/audio elementary streams from a USM file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(args[0], output, keyStr, encName, pages, workers)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "./output", "Output path")
	cmd.Flags().StringVarP(&keyStr, "key", "k", "", "Decryption key for encrypted USMs")
	cmd.Flags().StringVarP(&encName, "encoding", "e", "shift-jis", "Character encoding used in the USM's @UTF tables")
	cmd.Flags().BoolVarP(&pages, "pages", "p", false, "Save raw USM pages when extracting")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Number of files to process concurrently")
	return cmd
}

func runExtract(input, output, keyStr, encName string, pages bool, workers int) error {
	files, err := findUSM(input)
	if err != nil {
		return err
	}
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
		kk := usm.Key(k)
		key = &kk
	}

	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, f := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := extractOne(path, output, key, enc, pages); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				mu.Unlock()
			}
		}(f)
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("usmctl: %d of %d file(s) failed: %v", len(errs), len(files), errs[0])
	}
	return nil
}

func extractOne(path, output string, key *usm.Key, enc encoding.Encoding, pages bool) error {
	opts := usm.Options{Key: key, Encoding: enc}
	c, err := usm.Open(path, opts)
	if err != nil {
		return err
	}
	defer c.Close()

	sink, err := newFSSink(output, outputBaseName(path))
	if err != nil {
		return err
	}
	_, _, err = c.Demux(sink, usm.DemuxOptions{SaveVideo: true, SaveAudio: true, SavePages: pages})
	return err
}
