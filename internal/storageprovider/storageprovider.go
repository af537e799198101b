// Package storageprovider abstracts the raw block device a VDO volume is
// layered on top of, the way _examples/cockroachdb-pebble/vfs abstracts
// the filesystem: a small File/Provider interface real code opens against
// an *os.File-backed implementation, and tests open against an in-memory
// fake, so none of internal/zone, internal/vio, or the root vdo package
// need to know whether they're talking to a block device or a loop file.
//
// Every read and write is block-aligned (format.BlockSize) - the depot,
// recovery journal, and block map forest address physical storage purely
// in block numbers - so Provider deals exclusively in PBN-indexed blocks
// rather than byte offsets.
package storageprovider

import (
	"io"
	"os"
	"sync"

	"github.com/vdo/vdo/internal/aligned"
	"github.com/vdo/vdo/internal/base"
	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/format"
)

// Provider is a namespace of block-addressable storage, mirroring
// vfs.FS's role as a namespace of files.
type Provider interface {
	// Open opens the named backing store (a device node or a regular
	// file used as a loop-backed volume) for block I/O.
	Open(name string) (Device, error)

	// Create creates a new backing store of the given size in blocks,
	// for tests and for `vdoadm` volume formatting.
	Create(name string, blocks uint64) (Device, error)
}

// Device is a fixed-size, block-addressable extent of storage.
type Device interface {
	io.Closer

	// SizeInBlocks returns the device's capacity in format.BlockSize
	// blocks.
	SizeInBlocks() uint64

	// ReadBlock reads exactly one format.BlockSize block at pbn into a
	// freshly allocated, aligned buffer.
	ReadBlock(pbn uint64) ([]byte, error)

	// WriteBlock writes exactly one format.BlockSize block of data to
	// pbn. len(data) must equal format.BlockSize.
	WriteBlock(pbn uint64, data []byte) error

	// Flush forces previously written blocks to stable storage, the
	// durability point the recovery journal's CommitBlock depends on.
	Flush() error
}

// osProvider backs volumes with real files/block devices via *os.File,
// the Provider analogue of vfs.Default().
type osProvider struct {
	logger base.Logger
}

// Default is the real, OS-backed Provider, matching vfs.Default()'s role
// as the non-test-fake implementation.
func Default(logger base.Logger) Provider {
	if logger == nil {
		logger = base.DefaultLogger{}
	}
	return &osProvider{logger: logger}
}

func (p *osProvider) Open(name string) (Device, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, vdoerrors.ErrIOError.Wrapf(err, "storageprovider: open %q", name)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, vdoerrors.ErrIOError.Wrapf(err, "storageprovider: stat %q", name)
	}
	p.logger.Infof("storageprovider: opened %q (%d bytes)", name, info.Size())
	return &osDevice{f: f, blocks: uint64(info.Size()) / format.BlockSize}, nil
}

func (p *osProvider) Create(name string, blocks uint64) (Device, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, vdoerrors.ErrIOError.Wrapf(err, "storageprovider: create %q", name)
	}
	if err := f.Truncate(int64(blocks) * format.BlockSize); err != nil {
		_ = f.Close()
		return nil, vdoerrors.ErrIOError.Wrapf(err, "storageprovider: truncate %q", name)
	}
	p.logger.Infof("storageprovider: created %q (%d blocks)", name, blocks)
	return &osDevice{f: f, blocks: blocks}, nil
}

type osDevice struct {
	f      *os.File
	blocks uint64
}

func (d *osDevice) SizeInBlocks() uint64 { return d.blocks }

func (d *osDevice) ReadBlock(pbn uint64) ([]byte, error) {
	if pbn >= d.blocks {
		return nil, vdoerrors.ErrOutOfRange.Errorf("storageprovider: pbn %d out of range (%d blocks)", pbn, d.blocks)
	}
	buf := aligned.ByteSlice(format.BlockSize)
	if _, err := d.f.ReadAt(buf, int64(pbn)*format.BlockSize); err != nil {
		return nil, vdoerrors.ErrIOError.Wrapf(err, "storageprovider: read pbn %d", pbn)
	}
	return buf, nil
}

func (d *osDevice) WriteBlock(pbn uint64, data []byte) error {
	if pbn >= d.blocks {
		return vdoerrors.ErrOutOfRange.Errorf("storageprovider: pbn %d out of range (%d blocks)", pbn, d.blocks)
	}
	if len(data) != format.BlockSize {
		return vdoerrors.ErrInvalidArgument.Errorf("storageprovider: write pbn %d: got %d bytes, want %d", pbn, len(data), format.BlockSize)
	}
	if _, err := d.f.WriteAt(data, int64(pbn)*format.BlockSize); err != nil {
		return vdoerrors.ErrIOError.Wrapf(err, "storageprovider: write pbn %d", pbn)
	}
	return nil
}

func (d *osDevice) Flush() error {
	if err := d.f.Sync(); err != nil {
		return vdoerrors.ErrIOError.Wrap(err, "storageprovider: flush")
	}
	return nil
}

func (d *osDevice) Close() error {
	if err := d.f.Close(); err != nil {
		return vdoerrors.ErrIOError.Wrap(err, "storageprovider: close")
	}
	return nil
}

// memProvider is an in-memory Provider for tests and the `vdoadm`
// dry-run path, mirroring vfs.NewMem().
type memProvider struct {
	mu      sync.Mutex
	volumes map[string]*memDevice
}

// NewMem returns an in-memory Provider, the storageprovider analogue of
// vfs.NewMem().
func NewMem() Provider {
	return &memProvider{volumes: make(map[string]*memDevice)}
}

func (p *memProvider) Open(name string) (Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.volumes[name]
	if !ok {
		return nil, vdoerrors.ErrIOError.Errorf("storageprovider: %q does not exist", name)
	}
	return d, nil
}

func (p *memProvider) Create(name string, blocks uint64) (Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := &memDevice{data: make([][]byte, blocks)}
	for i := range d.data {
		d.data[i] = make([]byte, format.BlockSize)
	}
	p.volumes[name] = d
	return d, nil
}

type memDevice struct {
	mu     sync.Mutex
	data   [][]byte
	closed bool
}

func (d *memDevice) SizeInBlocks() uint64 { return uint64(len(d.data)) }

func (d *memDevice) ReadBlock(pbn uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, vdoerrors.ErrBadState.Errorf("storageprovider: device closed")
	}
	if pbn >= uint64(len(d.data)) {
		return nil, vdoerrors.ErrOutOfRange.Errorf("storageprovider: pbn %d out of range (%d blocks)", pbn, len(d.data))
	}
	buf := aligned.ByteSlice(format.BlockSize)
	copy(buf, d.data[pbn])
	return buf, nil
}

func (d *memDevice) WriteBlock(pbn uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return vdoerrors.ErrBadState.Errorf("storageprovider: device closed")
	}
	if pbn >= uint64(len(d.data)) {
		return vdoerrors.ErrOutOfRange.Errorf("storageprovider: pbn %d out of range (%d blocks)", pbn, len(d.data))
	}
	if len(data) != format.BlockSize {
		return vdoerrors.ErrInvalidArgument.Errorf("storageprovider: write pbn %d: got %d bytes, want %d", pbn, len(data), format.BlockSize)
	}
	copy(d.data[pbn], data)
	return nil
}

func (d *memDevice) Flush() error { return nil }

func (d *memDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
