package zone

import (
	"context"

	vdoerrors "github.com/vdo/vdo/internal/errors"
	"golang.org/x/sync/errgroup"
)

// SuspendPhase is one step of the suspend admin operation, in the fixed
// order spec.md §4.8 specifies. Each phase either fans an async drain out
// across every zone/thread of one kind and waits for all of them, or runs
// a synchronous action (write-super-block), advancing to the next phase
// only once the current one's work is complete.
type SuspendPhase int

const (
	PhaseStart SuspendPhase = iota
	PhaseDrainPacker
	PhaseDrainDataVios
	PhaseDrainFlusher
	PhaseDrainLogicalZones
	PhaseDrainBlockMap
	PhaseDrainJournal
	PhaseDrainDepot
	PhaseWaitReadOnly
	PhaseWriteSuperBlock
	PhaseEnd
)

func (p SuspendPhase) String() string {
	names := [...]string{
		"start", "drain-packer", "drain-data-vios", "drain-flusher",
		"drain-logical-zones", "drain-block-map", "drain-journal",
		"drain-depot", "wait-read-only", "write-super-block", "end",
	}
	if int(p) < len(names) {
		return names[p]
	}
	return "unknown"
}

// suspendOrder is the fixed phase sequence from spec.md §4.8.
var suspendOrder = []SuspendPhase{
	PhaseDrainPacker,
	PhaseDrainDataVios,
	PhaseDrainFlusher,
	PhaseDrainLogicalZones,
	PhaseDrainBlockMap,
	PhaseDrainJournal,
	PhaseDrainDepot,
	PhaseWaitReadOnly,
	PhaseWriteSuperBlock,
}

// Drainer is one zone-thread's work for a given suspend phase - an async
// drain (e.g. flush the packer's bins, let in-flight data-vios finish) or
// a synchronous action, both modeled identically since the caller awaits
// either the same way (mirroring admin-state.c's single initiator
// callback regardless of whether the operation it starts is sync or
// async).
type Drainer func(ctx context.Context) error

// PhaseDrainers supplies the fan-out work for one phase: one Drainer per
// zone/thread of the kind that phase concerns (e.g. one per logical zone
// for PhaseDrainLogicalZones), run concurrently via golang.org/x/sync/errgroup,
// matching the original's admin_state per-zone completion callbacks
// collapsed onto a single finishing action once every zone reports done.
type PhaseDrainers func(phase SuspendPhase) []Drainer

// AdminStateMachine drives one administrative operation (currently
// suspend; resume and the independent grow-logical/grow-physical/rebuild
// operations are separate, simpler single-phase operations below) across
// a VDO's zone partition.
type AdminStateMachine struct {
	notifier *ReadOnlyNotifier
}

// NewAdminStateMachine creates a state machine that consults notifier to
// decide whether a failed synchronous step should be treated as a
// successful read-only outcome ("a read-only outcome of
// suspend counts as success").
func NewAdminStateMachine(notifier *ReadOnlyNotifier) *AdminStateMachine {
	return &AdminStateMachine{notifier: notifier}
}

// Suspend runs the fixed phase sequence, calling drainers(phase) for each
// one and waiting for every returned Drainer to complete before advancing.
// A synchronous phase failure fails fast into read-only mode rather than
// continuing the sequence: if the VDO was already read-only when the
// phase failed, Suspend reports success, since a read-only VDO is by
// definition quiesced; otherwise it enters read-only mode and returns
// the phase's error.
func (m *AdminStateMachine) Suspend(ctx context.Context, drainers PhaseDrainers) error {
	for _, phase := range suspendOrder {
		work := drainers(phase)
		if len(work) == 0 {
			continue
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, d := range work {
			d := d
			g.Go(func() error { return d(gctx) })
		}
		if err := g.Wait(); err != nil {
			if m.notifier != nil && m.notifier.IsReadOnly() {
				// A read-only outcome of suspend counts as
				// success.
				return nil
			}
			if m.notifier != nil {
				m.notifier.EnterReadOnlyMode(err)
			}
			return vdoerrors.ErrBadState.Wrap(err, "zone: suspend phase "+phase.String()+" failed")
		}
	}
	return nil
}

// GrowPhysical adds slabs to the depot, a single independent admin
// operation distinct from the suspend sequence (:
// grow-physical touches only the slab depot's slab set, not the block-map
// forest).
func (m *AdminStateMachine) GrowPhysical(ctx context.Context, grow Drainer) error {
	if err := grow(ctx); err != nil {
		return vdoerrors.ErrBadState.Wrap(err, "zone: grow-physical failed")
	}
	return nil
}

// GrowLogical extends the block-map forest, independent of GrowPhysical
// (: grow-logical touches only the forest, not the slab
// set).
func (m *AdminStateMachine) GrowLogical(ctx context.Context, grow Drainer) error {
	if err := grow(ctx); err != nil {
		return vdoerrors.ErrBadState.Wrap(err, "zone: grow-logical failed")
	}
	return nil
}

// Rebuild runs an explicit force-rebuild admin operation, distinct from
// ordinary journal-replay recovery: it runs the caller-supplied rebuild
// action once and wraps any error it returns. What gets rebuilt is up to
// that action; Rebuild itself touches no journal or reference count.
func (m *AdminStateMachine) Rebuild(ctx context.Context, rebuild Drainer) error {
	if err := rebuild(ctx); err != nil {
		return vdoerrors.ErrBadState.Wrap(err, "zone: rebuild failed")
	}
	return nil
}

// Resume reverses a prior Suspend, running the caller-supplied resume
// actions in a single fan-out phase (resume has no ordering requirement
// among zones the way suspend's drains do, since every zone is already
// quiesced and independent - admin-state.c's VDO_ADMIN_STATE_RESUMING).
func (m *AdminStateMachine) Resume(ctx context.Context, resumers []Drainer) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range resumers {
		r := r
		g.Go(func() error { return r(gctx) })
	}
	if err := g.Wait(); err != nil {
		return vdoerrors.ErrBadState.Wrap(err, "zone: resume failed")
	}
	return nil
}
