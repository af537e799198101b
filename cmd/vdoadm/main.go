// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command vdoadm is VDO's administrative CLI: it parses a device-table line
// the way device-mapper would hand one to the kernel module,
// formats or reopens the named backing file, runs one admin operation
// against it, and reports the result.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var stdout = os.Stdout
var stderr = os.Stderr
var osExit = os.Exit

var rootCmd = &cobra.Command{
	Use:   "vdoadm [command] (flags)",
	Short: "VDO volume administration tool",
	Long:  ``,
}

func main() {
	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		createCmd,
		statusCmd,
		growPhysicalCmd,
		growLogicalCmd,
		setCompressionCmd,
		setDeduplicationCmd,
		suspendCmd,
		resumeCmd,
		statsCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		osExit(1)
	}
}
