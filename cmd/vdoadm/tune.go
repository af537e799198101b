// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vdo/vdo"
)

var setCompressionCmd = &cobra.Command{
	Use:   "set-compression <name> <device-table-line> <on|off>",
	Short: "toggle whether new writes are offered to the packer",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		runTune(args, "compression", func(d *vdo.Device, enabled bool) { d.SetCompression(enabled) })
	},
}

var setDeduplicationCmd = &cobra.Command{
	Use:   "set-deduplication <name> <device-table-line> <on|off>",
	Short: "toggle whether writes query the dedupe index",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		runTune(args, "deduplication", func(d *vdo.Device, enabled bool) { d.SetDeduplication(enabled) })
	},
}

func runTune(args []string, setting string, apply func(*vdo.Device, bool)) {
	enabled, err := parseOnOff(args[2])
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

	apply(d, enabled)
	fmt.Fprintf(stdout, "%s: %s set to %v\n", args[0], setting, enabled)
}

func parseOnOff(v string) (bool, error) {
	switch v {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected on/off, got %q", v)
	}
}
