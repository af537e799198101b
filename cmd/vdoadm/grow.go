// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var growPhysicalCmd = &cobra.Command{
	Use:   "grow-physical <name> <device-table-line> <added-blocks>",
	Short: "extend a volume's physical capacity",
	Args:  cobra.ExactArgs(3),
	Run:   runGrowPhysical,
}

func runGrowPhysical(cmd *cobra.Command, args []string) {
	added, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		fmt.Fprintln(stderr, err)
		osExit(1)
		return
	}
	d, err := openExisting(args[0], args[1])
	if err != nil {
		fmt.Fprintln(stderr, err)
		osExit(1)
		return
	}
	defer d.Close()
	if err := d.GrowPhysical(context.Background(), added); err != nil {
		fmt.Fprintln(stderr, err)
		osExit(1)
		return
	}
	fmt.Fprintf(stdout, "grew %q to %d physical blocks\n", args[0], d.PhysicalBlocks())
}

var growLogicalCmd = &cobra.Command{
	Use:   "grow-logical <name> <device-table-line> <new-logical-blocks>",
	Short: "extend a volume's addressable logical space",
	Args:  cobra.ExactArgs(3),
	Run:   runGrowLogical,
}

func runGrowLogical(cmd *cobra.Command, args []string) {
	newSize, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		fmt.Fprintln(stderr, err)
		osExit(1)
		return
	}
	d, err := openExisting(args[0], args[1])
	if err != nil {
		fmt.Fprintln(stderr, err)
		osExit(1)
		return
	}
	defer d.Close()
	if err := d.GrowLogical(context.Background(), newSize); err != nil {
		fmt.Fprintln(stderr, err)
		osExit(1)
		return
	}
	fmt.Fprintf(stdout, "grew %q's logical space to %d blocks\n", args[0], newSize)
}
