// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"

	"github.com/kr/pretty"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusVerbose bool

func init() {
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false,
		"print the full Status struct via kr/pretty instead of a table")
}

var statusCmd = &cobra.Command{
	Use:   "status <name> <device-table-line>",
	Short: "print volume capacity and health",
	Long: `
Report a volume's physical/logical capacity, free blocks, slab scrubbing
state, and the current compression/deduplication tunables.
`,
	Args: cobra.ExactArgs(2),
	Run:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	d, err := openExisting(args[0], args[1])
	if err != nil {
		fmt.Fprintln(stderr, err)
		osExit(1)
		return
	}
	defer d.Close()

	s := d.Status()
	if statusVerbose {
		fmt.Fprintf(stdout, "%# v\n", pretty.Formatter(s))
		return
	}

	tbl := tablewriter.NewWriter(stdout)
	tbl.SetHeader([]string{"field", "value"})
	tbl.Append([]string{"physical blocks", fmt.Sprint(s.PhysicalBlocks)})
	tbl.Append([]string{"allocated blocks", fmt.Sprint(s.AllocatedBlocks)})
	tbl.Append([]string{"free blocks", fmt.Sprint(s.FreeBlocks)})
	tbl.Append([]string{"slab count", fmt.Sprint(s.SlabCount)})
	tbl.Append([]string{"slabs unrecovered", fmt.Sprint(s.SlabsUnrecovered)})
	tbl.Append([]string{"read-only", fmt.Sprint(s.ReadOnly)})
	tbl.Append([]string{"compression", fmt.Sprint(s.Compression)})
	tbl.Append([]string{"deduplication", fmt.Sprint(s.Deduplication)})
	tbl.Render()
}
