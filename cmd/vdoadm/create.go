// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vdo/vdo"
	"github.com/vdo/vdo/config"
	"github.com/vdo/vdo/internal/base"
)

var createCmd = &cobra.Command{
	Use:   "create <name> <device-table-line>",
	Short: "format a new volume",
	Long: `
Format a new VDO volume backed by <name>, a regular file or block device,
sized and tuned by <device-table-line> (the same line device-mapper would
be given to construct the target).
`,
	Args: cobra.ExactArgs(2),
	Run:  runCreate,
}

func runCreate(cmd *cobra.Command, args []string) {
	name, table := args[0], args[1]
	cfg, err := config.Parse(table)
	if err != nil {
		fmt.Fprintln(stderr, err)
		osExit(1)
		return
	}
	d, err := vdo.Format(name, cfg, vdo.Options{Logger: base.DefaultLogger{}})
	if err != nil {
		fmt.Fprintln(stderr, err)
		osExit(1)
		return
	}
	defer d.Close()
	fmt.Fprintf(stdout, "created %q: %d physical blocks\n", name, d.PhysicalBlocks())
}
