package timing

import (
	"sync"
	"testing"
	"time"

	"github.com/jwhector/yggdrasil/internal/domain/conductor"
	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	cmds []conductor.Command
}

func (r *recordingSubmitter) Submit(cmd conductor.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cmds)
}

func runningShow(version uint64, rowPhase show.RowPhase) *show.Show {
	cfg := show.Config{
		RowLabels:  []string{"Verse"},
		RowOptions: [][]show.Option{{{ID: 0}, {ID: 1}, {ID: 2}, {ID: 3}}},
		Timing:     show.TimingConfig{AuditionPerOptionMs: 10, VotingWindowMs: 10, RevealDurationMs: 10, CoupWindowMs: 10},
	}
	s := show.CreateInitialState(cfg, "show-1")
	s.Version = version
	s.Phase = show.PhaseRunning
	s.Rows[0].Phase = rowPhase
	return s
}

func TestEngineFiresAdvancePhaseAfterDuration(t *testing.T) {
	sub := &recordingSubmitter{}
	e := New(sub, nil)

	e.Observe(runningShow(1, show.RowVoting))

	time.Sleep(50 * time.Millisecond)

	if sub.count() != 1 {
		t.Fatalf("expected exactly one ADVANCE_PHASE submission, got %d", sub.count())
	}
}

func TestEngineSkipsTimerOutsideRunningPhase(t *testing.T) {
	sub := &recordingSubmitter{}
	e := New(sub, nil)

	s := runningShow(1, show.RowVoting)
	s.Phase = show.PhasePaused
	e.Observe(s)

	time.Sleep(50 * time.Millisecond)

	if sub.count() != 0 {
		t.Fatalf("expected no timer armed while show is paused, got %d submissions", sub.count())
	}
}

func TestEngineDiscardsStaleTimerAfterNewerObserve(t *testing.T) {
	sub := &recordingSubmitter{}
	e := New(sub, nil)

	e.Observe(runningShow(1, show.RowVoting))
	time.Sleep(2 * time.Millisecond)
	e.Observe(runningShow(2, show.RowVoting))

	time.Sleep(50 * time.Millisecond)

	if sub.count() != 1 {
		t.Fatalf("expected exactly one fire (for the newest Observe), got %d", sub.count())
	}
}

func TestEngineStopCancelsPendingTimer(t *testing.T) {
	sub := &recordingSubmitter{}
	e := New(sub, nil)

	e.Observe(runningShow(1, show.RowVoting))
	e.Stop()

	time.Sleep(50 * time.Millisecond)

	if sub.count() != 0 {
		t.Fatalf("expected Stop to cancel the pending timer, got %d submissions", sub.count())
	}
}
