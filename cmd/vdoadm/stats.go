// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vdo/vdo/internal/format"
)

var statsSampleWrites int

func init() {
	statsCmd.Flags().IntVar(&statsSampleWrites, "writes", 256,
		"number of sample writes to issue while measuring latency")
}

var statsCmd = &cobra.Command{
	Use:   "stats <name> <device-table-line>",
	Short: "drive a sample workload and report write latency",
	Long: `
Issue a burst of sample writes against the volume (half of them repeats of
earlier blocks, to exercise the dedupe path) and report the resulting
per-operation latency distribution, plotted as an ASCII sparkline in
the style of replay.SampledMetric.Plot.
`,
	Args: cobra.ExactArgs(2),
	Run:  runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	d, err := openExisting(args[0], args[1])
	if err != nil {
		fmt.Fprintln(stderr, err)
		osExit(1)
		return
	}
	defer d.Close()

	rng := rand.New(rand.NewSource(1))
	samples := make([]float64, 0, statsSampleWrites)
	blocks := make([][]byte, 0, 8)

	for i := 0; i < statsSampleWrites; i++ {
		var data []byte
		if i > 0 && i%2 == 0 && len(blocks) > 0 {
			data = blocks[rng.Intn(len(blocks))]
		} else {
			data = make([]byte, format.BlockSize)
			rng.Read(data)
			if len(blocks) < cap(blocks) {
				blocks = append(blocks, data)
			}
		}

		start := time.Now()
		if err := d.Write(uint64(i), data); err != nil {
			fmt.Fprintln(stderr, err)
			osExit(1)
			return
		}
		samples = append(samples, float64(time.Since(start).Microseconds()))
	}

	fmt.Fprintln(stdout, asciigraph.Plot(samples, asciigraph.Height(10), asciigraph.Caption("write latency (us)")))

	tbl := tablewriter.NewWriter(stdout)
	tbl.SetHeader([]string{"operation", "count", "p50", "p99", "cumulative"})
	for _, snap := range d.LatencySnapshots() {
		tbl.Append([]string{
			string(snap.Operation),
			fmt.Sprint(snap.Count),
			snap.P50.String(),
			snap.P99.String(),
			fmt.Sprint(snap.Cumulative),
		})
	}
	tbl.Render()
}
