package conductor

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
)

func testConfig() show.Config {
	opts := func() []show.Option {
		return []show.Option{{ID: 0, Label: "A"}, {ID: 1, Label: "B"}, {ID: 2, Label: "C"}, {ID: 3, Label: "D"}}
	}
	return show.Config{
		RowLabels:  []string{"Verse", "Chorus"},
		RowOptions: [][]show.Option{opts(), opts()},
		Coup:       show.CoupConfig{Threshold: 0.5, MultiplierBonus: 1.0},
		Timing:     show.TimingConfig{AuditionPerOptionMs: 1000, VotingWindowMs: 1000, RevealDurationMs: 1000, CoupWindowMs: 1000},
	}
}

func deterministicRand() *rand.Rand { return rand.New(rand.NewSource(1)) }

func joinN(t *testing.T, state *show.Show, n int) *show.Show {
	t.Helper()
	for i := 0; i < n; i++ {
		uid := show.UserID(string(rune('a' + i)))
		next, effects, err := Reduce(state, Command{Type: CmdJoin, UserID: uid, Origin: ModeAudience, Timestamp: time.Now()}, deterministicRand())
		if err != nil {
			t.Fatalf("JOIN returned error: %v", err)
		}
		if hasErrorEffect(effects) {
			t.Fatalf("JOIN rejected for user %s: %v", uid, effects)
		}
		state = next
	}
	return state
}

func hasErrorEffect(effects []Effect) bool {
	for _, e := range effects {
		if e.Kind == EffectError {
			return true
		}
	}
	return false
}

func TestJoinAddsNewUser(t *testing.T) {
	state := show.CreateInitialState(testConfig(), "show-1")
	next, effects, err := Reduce(state, Command{Type: CmdJoin, UserID: "u1", Origin: ModeAudience, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasErrorEffect(effects) {
		t.Fatalf("unexpected error effect: %v", effects)
	}
	if _, ok := next.Users["u1"]; !ok {
		t.Fatalf("user u1 not present after JOIN")
	}
	if next.Version != state.Version+1 {
		t.Fatalf("version did not advance: got %d want %d", next.Version, state.Version+1)
	}
	if state.Users["u1"] != nil {
		t.Fatalf("JOIN mutated the original state; reducer must not mutate its input")
	}
}

func TestJoinRequiresUserID(t *testing.T) {
	state := show.CreateInitialState(testConfig(), "show-1")
	next, effects, err := Reduce(state, Command{Type: CmdJoin, Origin: ModeAudience, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasErrorEffect(effects) {
		t.Fatalf("expected an error effect for a JOIN with no userId")
	}
	if next.Version != state.Version {
		t.Fatalf("rejected command must not advance version")
	}
}

func TestControllerOnlyCommandRejectedFromAudience(t *testing.T) {
	state := show.CreateInitialState(testConfig(), "show-1")
	state = joinN(t, state, 4)

	next, effects, err := Reduce(state, Command{Type: CmdAssignFactions, Origin: ModeAudience, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasErrorEffect(effects) {
		t.Fatalf("expected NotAuthorized error effect for controller-only command from audience")
	}
	if next.Version != state.Version {
		t.Fatalf("unauthorized command must not advance version")
	}
}

func TestAssignFactionsRequiresFourUsers(t *testing.T) {
	state := show.CreateInitialState(testConfig(), "show-1")
	state = joinN(t, state, 3)

	_, effects, err := Reduce(state, Command{Type: CmdAssignFactions, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasErrorEffect(effects) {
		t.Fatalf("expected rejection with fewer than 4 users")
	}
}

func startedShow(t *testing.T) *show.Show {
	t.Helper()
	state := show.CreateInitialState(testConfig(), "show-1")
	state = joinN(t, state, 8)

	next, effects, err := Reduce(state, Command{Type: CmdAssignFactions, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
	if err != nil || hasErrorEffect(effects) {
		t.Fatalf("ASSIGN_FACTIONS failed: err=%v effects=%v", err, effects)
	}
	state = next

	next, effects, err = Reduce(state, Command{Type: CmdStartShow, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
	if err != nil || hasErrorEffect(effects) {
		t.Fatalf("START_SHOW failed: err=%v effects=%v", err, effects)
	}
	return next
}

func TestCastVoteRejectedOutsideVotingSubPhase(t *testing.T) {
	state := startedShow(t)
	if state.CurrentRow().Phase != show.RowAudition {
		t.Fatalf("expected show to start in audition, got %s", state.CurrentRow().Phase)
	}

	_, effects, err := Reduce(state, Command{Type: CmdCastVote, UserID: "a", RowIndex: 0, FactionVote: 0, PersonalVote: 0, Origin: ModeAudience, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasErrorEffect(effects) {
		t.Fatalf("expected WrongPhase rejection while row is in audition")
	}
}

func advanceUntilVoting(t *testing.T, state *show.Show) *show.Show {
	t.Helper()
	for state.CurrentRow().Phase != show.RowVoting {
		next, effects, err := Reduce(state, Command{Type: CmdAdvancePhase, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
		if err != nil {
			t.Fatalf("ADVANCE_PHASE error: %v", err)
		}
		if hasErrorEffect(effects) {
			t.Fatalf("ADVANCE_PHASE rejected: %v", effects)
		}
		state = next
	}
	return state
}

func TestCastVoteAcceptedDuringVoting(t *testing.T) {
	state := startedShow(t)
	state = advanceUntilVoting(t, state)

	next, effects, err := Reduce(state, Command{Type: CmdCastVote, UserID: "a", RowIndex: 0, FactionVote: 1, PersonalVote: 2, Origin: ModeAudience, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasErrorEffect(effects) {
		t.Fatalf("vote unexpectedly rejected: %v", effects)
	}
	v, ok := next.CurrentRow().Votes["a"]
	if !ok {
		t.Fatalf("vote not recorded for user a")
	}
	if v.FactionVote != 1 || v.PersonalVote != 2 {
		t.Fatalf("recorded vote mismatch: %+v", v)
	}
}

func TestCastVoteRejectsUnknownOption(t *testing.T) {
	state := startedShow(t)
	state = advanceUntilVoting(t, state)

	_, effects, err := Reduce(state, Command{Type: CmdCastVote, UserID: "a", RowIndex: 0, FactionVote: 99, PersonalVote: 0, Origin: ModeAudience, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasErrorEffect(effects) {
		t.Fatalf("expected InvalidOption rejection for an out-of-range option id")
	}
}

func TestCastVoteRejectsStaleRow(t *testing.T) {
	state := startedShow(t)
	state = advanceUntilVoting(t, state)

	_, effects, err := Reduce(state, Command{Type: CmdCastVote, UserID: "a", RowIndex: 1, FactionVote: 0, PersonalVote: 0, Origin: ModeAudience, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasErrorEffect(effects) {
		t.Fatalf("expected StaleRow rejection for a vote targeting a non-current row")
	}
}

func TestPauseAndResumeRestoresPriorPhase(t *testing.T) {
	state := startedShow(t)

	paused, effects, err := Reduce(state, Command{Type: CmdPause, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
	if err != nil || hasErrorEffect(effects) {
		t.Fatalf("PAUSE failed: err=%v effects=%v", err, effects)
	}
	if paused.Phase != show.PhasePaused {
		t.Fatalf("expected paused phase, got %s", paused.Phase)
	}

	resumed, effects, err := Reduce(paused, Command{Type: CmdResume, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
	if err != nil || hasErrorEffect(effects) {
		t.Fatalf("RESUME failed: err=%v effects=%v", err, effects)
	}
	if resumed.Phase != show.PhaseRunning {
		t.Fatalf("expected running phase restored after resume, got %s", resumed.Phase)
	}
}

func TestAdvancePhaseRejectedWhilePaused(t *testing.T) {
	state := startedShow(t)
	paused, _, err := Reduce(state, Command{Type: CmdPause, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, effects, err := Reduce(paused, Command{Type: CmdAdvancePhase, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasErrorEffect(effects) {
		t.Fatalf("expected ADVANCE_PHASE rejection while paused")
	}
}

func TestImportStateRejectsUnbalancedFactions(t *testing.T) {
	state := show.CreateInitialState(testConfig(), "show-1")
	bad := startedShow(t)
	f0, f1 := show.FactionID(0), show.FactionID(1)
	for id, u := range bad.Users {
		u.Faction = &f0
		bad.Users[id] = u
	}
	bad.Users["a"].Faction = &f1

	_, effects, err := Reduce(state, Command{Type: CmdImportState, Origin: ModeController, ImportedState: bad, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasErrorEffect(effects) {
		t.Fatalf("expected ImportValidationFailed for unbalanced factions")
	}
}

func TestImportStateAcceptsValidSnapshotAndAdvancesVersion(t *testing.T) {
	state := show.CreateInitialState(testConfig(), "show-1")
	imported := startedShow(t)

	next, effects, err := Reduce(state, Command{Type: CmdImportState, Origin: ModeController, ImportedState: imported, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasErrorEffect(effects) {
		t.Fatalf("unexpected rejection: %v", effects)
	}
	if next.Version <= state.Version {
		t.Fatalf("IMPORT_STATE must advance version beyond the receiving state's, got %d", next.Version)
	}
	if next.Phase != show.PhaseRunning {
		t.Fatalf("expected imported running phase to be preserved, got %s", next.Phase)
	}
}

func TestResetToLobbyPreservesUsersWhenRequested(t *testing.T) {
	state := startedShow(t)

	fresh, effects, err := Reduce(state, Command{Type: CmdResetToLobby, Origin: ModeController, PreserveUsers: true, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasErrorEffect(effects) {
		t.Fatalf("unexpected rejection: %v", effects)
	}
	if fresh.Phase != show.PhaseLobby {
		t.Fatalf("expected lobby phase after reset, got %s", fresh.Phase)
	}
	if len(fresh.Users) != len(state.Users) {
		t.Fatalf("expected users preserved: got %d want %d", len(fresh.Users), len(state.Users))
	}
	for id, u := range fresh.Users {
		if u.Faction != nil {
			t.Fatalf("expected faction assignment cleared on reset for user %s", id)
		}
	}
}

func TestResetToLobbyDiscardsUsersByDefault(t *testing.T) {
	state := startedShow(t)

	fresh, _, err := Reduce(state, Command{Type: CmdResetToLobby, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fresh.Users) != 0 {
		t.Fatalf("expected no users preserved without preserveUsers, got %d", len(fresh.Users))
	}
}

func TestAdvancePhaseToRevealRunsTally(t *testing.T) {
	state := startedShow(t)
	state = advanceUntilVoting(t, state)

	next, effects, err := Reduce(state, Command{Type: CmdAdvancePhase, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasErrorEffect(effects) {
		t.Fatalf("unexpected rejection: %v", effects)
	}
	if next.CurrentRow().Phase != show.RowReveal {
		t.Fatalf("expected row to enter reveal, got %s", next.CurrentRow().Phase)
	}
	if next.CurrentRow().Result == nil {
		t.Fatalf("expected a tally result to be set on reveal")
	}
}

func TestSkipRowForceCompletesWithNoVotes(t *testing.T) {
	state := startedShow(t)

	next, effects, err := Reduce(state, Command{Type: CmdSkipRow, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasErrorEffect(effects) {
		t.Fatalf("unexpected rejection: %v", effects)
	}
	if len(next.Paths.FactionPath) != 1 {
		t.Fatalf("expected row 0 committed to factionPath, got %v", next.Paths.FactionPath)
	}
	if next.CurrentRowIndex != 1 {
		t.Fatalf("expected advance to row 1, got %d", next.CurrentRowIndex)
	}
}

func TestForceFinaleFromRunning(t *testing.T) {
	state := startedShow(t)
	next, effects, err := Reduce(state, Command{Type: CmdForceFinale, Origin: ModeController, Timestamp: time.Now()}, deterministicRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasErrorEffect(effects) {
		t.Fatalf("unexpected rejection: %v", effects)
	}
	if next.Phase != show.PhaseFinale {
		t.Fatalf("expected finale phase, got %s", next.Phase)
	}
}
