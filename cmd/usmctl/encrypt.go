// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/text/encoding"

	usm "github.com/usmkit/usmkit"
)

func newEncryptCmd() *cobra.Command {
	var (
		output  string
		keyStr  string
		encName string
	)

	cmd := &cobra.Command{
		Use:   "encrypt <input>",
		Short: "Encrypt a plain USM file (or directory of USM files) with the given key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncrypt(args[0], output, keyStr, encName)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (defaults to the directory containing an input file, or to an input directory itself)")
	cmd.Flags().StringVarP(&keyStr, "key", "k", "", "Encryption key")
	cmd.Flags().StringVarP(&encName, "encoding", "e", "shift-jis", "Character encoding used in the USM's @UTF tables")
	cmd.MarkFlagRequired("key")
	return cmd
}

func runEncrypt(input, output, keyStr, encName string) error {
	k, err := parseKey(keyStr)
	if err != nil {
		return fmt.Errorf("usmctl: invalid key %q: %w", keyStr, err)
	}
	key := usm.Key(k)

	enc, err := resolveEncoding(encName)
	if err != nil {
		return err
	}

	outDir := output
	if outDir == "" {
		info, statErr := os.Stat(input)
		if statErr == nil && info.IsDir() {
			outDir = input
		} else {
			outDir = filepath.Dir(input)
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	files, err := findUSM(input)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := encryptOne(f, outDir, key, enc); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	return nil
}

func encryptOne(path, outDir string, key usm.Key, enc encoding.Encoding) error {
	c, err := usm.Open(path, usm.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	video, audio := usm.GenerateKeys(key)
	c.SetVideoKey(video)
	c.SetAudioKey(audio)

	cursor, err := c.Stream(usm.StreamEncrypt, enc)
	if err != nil {
		return err
	}

	outPath := filepath.Join(outDir, filepath.Base(path))
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		data, ok := cursor.Next()
		if !ok {
			break
		}
		if _, err := f.Write(data); err != nil {
			return err
		}
	}
	return nil
}
