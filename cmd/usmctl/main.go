// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command usmctl is the CLI collaborator described in spec.md §6: it
// owns directory traversal, flag parsing and ffprobe invocation, and
// calls into the usm package for everything else. None of the core's
// parsing, muxing, or cipher logic lives here.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "usmctl",
		Short: "A CRI Sofdec2 USM container toolkit",
		Long:  "usmctl reads, writes and re-encrypts CRI Sofdec2 USM container files.",
	}

	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newEncryptCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("usmctl version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
