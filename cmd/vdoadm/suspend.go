// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var suspendCmd = &cobra.Command{
	Use:   "suspend <name> <device-table-line>",
	Short: "quiesce a volume for a device-mapper suspend",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		d, err := openExisting(args[0], args[1])
		if err != nil {
			fmt.Fprintln(stderr, err)
			osExit(1)
			return
		}
		defer d.Close()
		if err := d.Suspend(context.Background()); err != nil {
			fmt.Fprintln(stderr, err)
			osExit(1)
			return
		}
		fmt.Fprintf(stdout, "%s: suspended\n", args[0])
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <name> <device-table-line>",
	Short: "reverse a prior suspend",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		d, err := openExisting(args[0], args[1])
		if err != nil {
			fmt.Fprintln(stderr, err)
			osExit(1)
			return
		}
		defer d.Close()
		if err := d.Resume(context.Background()); err != nil {
			fmt.Fprintln(stderr, err)
			osExit(1)
			return
		}
		fmt.Fprintf(stdout, "%s: resumed\n", args[0])
	},
}
