// Package timing implements the Timing Engine: it watches the Conductor's
// state version and schedules deferred ADVANCE_PHASE commands, discarding
// any timer whose state has moved on by the time it fires (spec §4.7).
package timing

import (
	"sync"
	"time"

	"github.com/jwhector/yggdrasil/internal/domain/conductor"
	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
	"github.com/jwhector/yggdrasil/internal/infrastructure/observability/logging"
)

// Submitter is the one thing the Timing Engine needs from the Gateway's
// command-queue actor: a way to enqueue a command for serial reduction.
type Submitter interface {
	Submit(cmd conductor.Command)
}

// Engine schedules one deferred ADVANCE_PHASE at a time. A fresh Observe
// call cancels whatever timer is pending and schedules a new one, so
// pause/resume and manual overrides never leave a stale timer armed.
type Engine struct {
	mu       sync.Mutex
	timer    *time.Timer
	version  uint64
	submit   Submitter
	logger   *logging.ChanneledLogger
}

// New builds a Timing Engine that submits through sub.
func New(sub Submitter, logger *logging.ChanneledLogger) *Engine {
	return &Engine{submit: sub, logger: logger}
}

// Observe inspects the current state and, if a row sub-phase is running,
// arms a timer for the duration that sub-phase's config allots. Any
// previously armed timer is cancelled first: only the most recent Observe
// call can eventually fire (spec §4.7 "invalidated by any version bump").
func (e *Engine) Observe(state *show.Show) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.version = state.Version

	if state.Phase != show.PhaseRunning {
		return
	}
	row := state.CurrentRow()
	if row == nil {
		return
	}

	d := e.durationFor(state, row)
	if d <= 0 {
		return
	}

	expectedVersion := state.Version
	showID := state.ID
	e.timer = time.AfterFunc(d, func() {
		e.fire(showID, expectedVersion)
	})
}

// fire submits ADVANCE_PHASE only if the version this timer was armed for
// is still current; a newer Observe call already superseded it otherwise.
func (e *Engine) fire(showID string, expectedVersion uint64) {
	e.mu.Lock()
	stale := e.version != expectedVersion
	e.mu.Unlock()

	if stale {
		if e.logger != nil {
			e.logger.Timing().Debug("discarding stale timer fire", "expectedVersion", expectedVersion, "currentVersion", e.version)
		}
		return
	}

	e.submit.Submit(conductor.Command{
		Type:      conductor.CmdAdvancePhase,
		Timestamp: time.Now(),
		Origin:    conductor.ModeController,
	})
}

func (e *Engine) durationFor(state *show.Show, row *show.RowState) time.Duration {
	t := state.Config.Timing
	switch row.Phase {
	case show.RowPending, show.RowAudition:
		return time.Duration(t.AuditionPerOptionMs) * time.Millisecond
	case show.RowVoting:
		return time.Duration(t.VotingWindowMs) * time.Millisecond
	case show.RowReveal:
		return time.Duration(t.RevealDurationMs) * time.Millisecond
	case show.RowCoupWindow:
		return time.Duration(t.CoupWindowMs) * time.Millisecond
	default:
		return 0
	}
}

// Stop cancels any pending timer, used on graceful shutdown.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// SubmitterFunc adapts a plain function to Submitter.
type SubmitterFunc func(cmd conductor.Command)

// Submit implements Submitter.
func (f SubmitterFunc) Submit(cmd conductor.Command) { f(cmd) }
