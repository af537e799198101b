package vdo

import (
	"time"

	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/stats"
	"github.com/vdo/vdo/internal/vio"
)

// Read returns the format.BlockSize bytes currently mapped to lbn,
// driving a vio.ReadVio through SetMapping/SetPhysicalData/
// FinishDecompress (read path). An unmapped or zero-block
// LBN returns a zero-filled block without touching the backing store,
// matching vio-read.c's zero-fill short-circuit.
func (d *Device) Read(lbn uint64) ([]byte, error) {
	if d.IsReadOnly() {
		return nil, errReadOnly
	}

	start := time.Now()
	defer func() { d.latency.Record(stats.OpRead, time.Since(start)) }()

	mapping, err := d.readMapping(lbn)
	if err != nil {
		return nil, err
	}

	r := vio.NewRead(lbn)
	if err := r.SetMapping(mapping); err != nil {
		return nil, err
	}
	if r.Done() {
		return r.Data, nil
	}

	raw, err := d.backing.ReadBlock(mapping.PBN)
	if err != nil {
		return nil, err
	}
	if err := r.SetPhysicalData(raw); err != nil {
		return nil, err
	}
	if r.Done() {
		return r.Data, nil
	}

	dir, ok := d.directories[mapping.PBN]
	if !ok {
		return nil, vdoerrors.ErrCorruptJournal.Errorf("vdo: pbn %d has no recoverable fragment directory", mapping.PBN)
	}
	if err := r.FinishDecompress(raw, dir, d.decompressor); err != nil {
		return nil, err
	}
	return r.Data, nil
}
