// Package config parses the VDO device-table line: the single
// text line device-mapper hands the kernel module (and `vdoadm` hands the
// volume constructor) describing a volume's geometry and tunables.
//
// The parser is a hand-written tokenizer over a fixed run of positional
// fields followed by `key=value` pairs, in the same spirit as
// _examples/cockroachdb-pebble/options.go's Options.Parse(): known keys are
// switched on explicitly, unknown keys are a hard parse error (there is no
// OPTIONS-file backward-compatibility concern here), and the raw line is
// wrapped with cockroachdb/redact before it ever reaches a log or error
// message, since it embeds a host device path.
package config

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/redact"

	vdoerrors "github.com/vdo/vdo/internal/errors"
	"github.com/vdo/vdo/internal/zone"
)

// Config is the parsed, validated device-table line.
type Config struct {
	Version            int
	ParentDevice       string
	PhysicalBlocks     uint64
	LogicalBlockSize   int
	CacheSize          uint64
	BlockMapMaximumAge uint32

	MaxDiscard     uint32
	Deduplication  bool
	Compression    bool
	CPUThreads     int
	AckThreads     int
	BioThreads     int
	BioRotation    int
	LogicalZones   int
	PhysicalZones  int
	HashZones      int
}

const maxDiscardUpperBound = ^uint32(0) / 4096

// defaults matches the original constructor's defaults for any key the
// line omits: deduplication on, a single bio/cpu/rotation-interval thread,
// no dedicated zone threads (all work runs on the shared thread).
func defaults() Config {
	return Config{
		Deduplication: true,
		CPUThreads:    1,
		BioThreads:    1,
		BioRotation:   1,
	}
}

// Parse parses one device-table line into a validated Config.
func Parse(line string) (*Config, error) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return nil, vdoerrors.ErrInvalidArgument.Errorf(
			"config: device-table line has %d fields, want at least 6: %s", len(fields), redact.Safe(line))
	}

	cfg := defaults()

	version, ok := strings.CutPrefix(fields[0], "V")
	if !ok {
		return nil, vdoerrors.ErrInvalidArgument.Errorf("config: expected version field starting with 'V', got %q", redact.Safe(fields[0]))
	}
	n, err := strconv.Atoi(version)
	if err != nil {
		return nil, vdoerrors.ErrInvalidArgument.Errorf("config: bad version number %q", redact.Safe(version))
	}
	cfg.Version = n

	cfg.ParentDevice = fields[1]
	if cfg.ParentDevice == "" {
		return nil, vdoerrors.ErrInvalidArgument.Errorf("config: empty parent device")
	}

	if cfg.PhysicalBlocks, err = strconv.ParseUint(fields[2], 10, 64); err != nil {
		return nil, vdoerrors.ErrInvalidArgument.Errorf("config: bad physical_blocks %q", redact.Safe(fields[2]))
	}

	logicalBlockSize, err := strconv.Atoi(fields[3])
	if err != nil || (logicalBlockSize != 512 && logicalBlockSize != 4096) {
		return nil, vdoerrors.ErrInvalidArgument.Errorf("config: logical_block_size must be 512 or 4096, got %q", redact.Safe(fields[3]))
	}
	cfg.LogicalBlockSize = logicalBlockSize

	if cfg.CacheSize, err = strconv.ParseUint(fields[4], 10, 64); err != nil {
		return nil, vdoerrors.ErrInvalidArgument.Errorf("config: bad cache_size %q", redact.Safe(fields[4]))
	}

	age, err := strconv.ParseUint(fields[5], 10, 32)
	if err != nil {
		return nil, vdoerrors.ErrInvalidArgument.Errorf("config: bad block_map_maximum_age %q", redact.Safe(fields[5]))
	}
	cfg.BlockMapMaximumAge = uint32(age)

	if len(fields) > 6 && fields[6] != "." {
		if err := parseOptionalPairs(&cfg, fields[6:]); err != nil {
			return nil, err
		}
	}

	if err := cfg.validateZones(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseOptionalPairs(cfg *Config, pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return vdoerrors.ErrInvalidArgument.Errorf("config: malformed key=value pair %q", redact.Safe(pair))
		}
		if err := cfg.setOption(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) setOption(key, value string) error {
	switch key {
	case "maxDiscard":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil || v == 0 || uint32(v) > maxDiscardUpperBound {
			return vdoerrors.ErrBadConfiguration.Errorf("config: maxDiscard must be in (0, %d], got %q", maxDiscardUpperBound, redact.Safe(value))
		}
		cfg.MaxDiscard = uint32(v)

	case "deduplication":
		b, err := parseOnOff(value)
		if err != nil {
			return vdoerrors.ErrBadConfiguration.Errorf("config: deduplication must be on/off, got %q", redact.Safe(value))
		}
		cfg.Deduplication = b

	case "compression":
		b, err := parseOnOff(value)
		if err != nil {
			return vdoerrors.ErrBadConfiguration.Errorf("config: compression must be on/off, got %q", redact.Safe(value))
		}
		cfg.Compression = b

	case "cpu":
		v, err := parseIntInRange(value, 1, 1<<30)
		if err != nil {
			return vdoerrors.ErrBadConfiguration.Errorf("config: cpu must be >= 1, got %q", redact.Safe(value))
		}
		cfg.CPUThreads = v

	case "ack":
		v, err := parseIntInRange(value, 0, 1<<30)
		if err != nil {
			return vdoerrors.ErrBadConfiguration.Errorf("config: ack must be >= 0, got %q", redact.Safe(value))
		}
		cfg.AckThreads = v

	case "bio":
		v, err := parseIntInRange(value, 1, 1<<30)
		if err != nil {
			return vdoerrors.ErrBadConfiguration.Errorf("config: bio must be >= 1, got %q", redact.Safe(value))
		}
		cfg.BioThreads = v

	case "bioRotationInterval":
		v, err := parseIntInRange(value, 1, 1024)
		if err != nil {
			return vdoerrors.ErrBadConfiguration.Errorf("config: bioRotationInterval must be in [1, 1024], got %q", redact.Safe(value))
		}
		cfg.BioRotation = v

	case "logical":
		v, err := parseIntInRange(value, 0, 60)
		if err != nil {
			return vdoerrors.ErrBadConfiguration.Errorf("config: logical must be in [0, 60], got %q", redact.Safe(value))
		}
		cfg.LogicalZones = v

	case "physical":
		v, err := parseIntInRange(value, 0, 16)
		if err != nil {
			return vdoerrors.ErrBadConfiguration.Errorf("config: physical must be in [0, 16], got %q", redact.Safe(value))
		}
		cfg.PhysicalZones = v

	case "hash":
		v, err := parseIntInRange(value, 0, 100)
		if err != nil {
			return vdoerrors.ErrBadConfiguration.Errorf("config: hash must be in [0, 100], got %q", redact.Safe(value))
		}
		cfg.HashZones = v

	default:
		return vdoerrors.ErrInvalidArgument.Errorf("config: unknown device-table key %q", redact.Safe(key))
	}
	return nil
}

func parseOnOff(value string) (bool, error) {
	switch value {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, vdoerrors.ErrInvalidArgument.Errorf("config: expected on/off")
	}
}

func parseIntInRange(value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil || v < lo || v > hi {
		return 0, vdoerrors.ErrInvalidArgument.Errorf("config: out of range")
	}
	return v, nil
}

// validateZones enforces "zone counts must be all-zero or
// all-nonzero" rule by deferring to zone.ThreadConfig.Validate(), the same
// rule internal/zone enforces when building its thread map - one rule,
// one implementation.
func (cfg *Config) validateZones() error {
	tc := zone.ThreadConfig{
		LogicalZoneCount:  cfg.LogicalZones,
		PhysicalZoneCount: cfg.PhysicalZones,
		HashZoneCount:     cfg.HashZones,
		BioThreadCount:    cfg.BioThreads,
	}
	return tc.Validate()
}

// ThreadConfig derives the internal/zone thread layout this configuration
// describes, for wiring into the admin state machine at volume start.
func (cfg *Config) ThreadConfig() zone.ThreadConfig {
	return zone.ThreadConfig{
		LogicalZoneCount:  cfg.LogicalZones,
		PhysicalZoneCount: cfg.PhysicalZones,
		HashZoneCount:     cfg.HashZones,
		BioThreadCount:    cfg.BioThreads,
		AckThreadCount:    cfg.AckThreads,
		CPUThreadCount:    cfg.CPUThreads,
	}
}
