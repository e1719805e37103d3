// Package conductor implements the pure reducer that owns a Show's
// authoritative state: reduce(state, command) -> (state', effects).
package conductor

import (
	"math/rand"

	"github.com/jwhector/yggdrasil/internal/domain/assignment"
	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
	"github.com/jwhector/yggdrasil/internal/domain/tally"
)

// Reduce applies one command to state, returning the (possibly unchanged)
// next state and any effects the caller should perform. A non-nil error is
// reserved for programming errors (spec §7 TieInputEmpty); every validation
// failure instead comes back as state-unchanged plus an EffectError.
func Reduce(state *show.Show, cmd Command, rnd *rand.Rand) (*show.Show, []Effect, error) {
	if IsControllerOnly(cmd.Type) && cmd.Origin != ModeController {
		return state, []Effect{errorEffect(newErr(CodeNotAuthorized, "command requires a controller connection"))}, nil
	}

	switch cmd.Type {
	case CmdJoin:
		return reduceJoin(state, cmd)
	case CmdLeave, CmdDisconnect:
		return reduceLeave(state, cmd)
	case CmdSubmitFigTree:
		return reduceSubmitFigTree(state, cmd)
	case CmdAssignFactions:
		return reduceAssignFactions(state, cmd)
	case CmdStartShow:
		return reduceStartShow(state, cmd)
	case CmdAdvancePhase:
		return reduceAdvancePhase(state, cmd, rnd)
	case CmdCastVote:
		return reduceCastVote(state, cmd)
	case CmdCoupVote:
		return reduceCoupVote(state, cmd)
	case CmdPause:
		return reducePause(state, cmd)
	case CmdResume:
		return reduceResume(state, cmd)
	case CmdSkipRow:
		return reduceSkipRow(state, cmd, rnd)
	case CmdRestartRow:
		return reduceRestartRow(state, cmd)
	case CmdForceFinale:
		return reduceForceFinale(state, cmd)
	case CmdResetToLobby:
		return reduceResetToLobby(state, cmd)
	case CmdImportState:
		return reduceImportState(state, cmd)
	case CmdForceReconnectAll:
		return state, []Effect{broadcastEffect(), {Kind: EffectForceReconnect}}, nil
	default:
		return state, []Effect{errorEffect(newErr(CodeMalformedCommand, "unknown command type"))}, nil
	}
}

func reject(state *show.Show, err *Error) (*show.Show, []Effect, error) {
	return state, []Effect{errorEffect(err)}, nil
}

func accept(state *show.Show) *show.Show {
	next := state.Clone()
	next.Version = state.Version + 1
	return next
}

// --- JOIN / LEAVE -----------------------------------------------------

func reduceJoin(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	if cmd.UserID == "" {
		return reject(state, newErr(CodeMalformedCommand, "JOIN requires userId"))
	}

	next := accept(state)
	existing, known := next.Users[cmd.UserID]
	if known {
		existing.Connected = true
		if cmd.SeatID != "" {
			existing.SeatID = cmd.SeatID
		}
		return next, []Effect{persistEffect(), broadcastEffect()}, nil
	}

	u := &show.User{
		ID:        cmd.UserID,
		SeatID:    cmd.SeatID,
		Connected: true,
		JoinedAt:  cmd.Timestamp,
	}
	next.Users[cmd.UserID] = u

	if next.Phase != show.PhaseLobby {
		fid := assignLatecomerInto(next, assignment.UserInput{ID: cmd.UserID, SeatID: cmd.SeatID})
		u.Faction = &fid
	}

	return next, []Effect{persistEffect(), broadcastEffect()}, nil
}

func assignLatecomerInto(next *show.Show, user assignment.UserInput) show.FactionID {
	existing := make([]assignment.UserInput, 0, len(next.Users))
	assignments := make(map[show.UserID]show.FactionID, len(next.Users))
	seats := make([]string, 0, len(next.Users))
	for id, u := range next.Users {
		if id == user.ID || u.Faction == nil {
			continue
		}
		existing = append(existing, assignment.UserInput{ID: id, SeatID: u.SeatID})
		assignments[id] = *u.Faction
		if u.SeatID != "" {
			seats = append(seats, u.SeatID)
		}
	}
	if user.SeatID != "" {
		seats = append(seats, user.SeatID)
	}
	graph := adjacencyGraphFor(seats)
	return assignment.AssignLatecomer(user, existing, assignments, graph)
}

func adjacencyGraphFor(seats []string) assignment.AdjacencyGraph {
	for _, s := range seats {
		if s != "" {
			return assignment.NewTheaterRowsGraph(seats)
		}
	}
	return assignment.NullGraph{}
}

func reduceLeave(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	u, ok := state.Users[cmd.UserID]
	if !ok {
		return reject(state, newErr(CodeUnknownUser, "user not known to this show"))
	}
	if !u.Connected {
		return state, nil, nil
	}

	next := accept(state)
	next.Users[cmd.UserID].Connected = false
	return next, []Effect{persistEffect(), broadcastEffect()}, nil
}

// --- SUBMIT_FIG_TREE ----------------------------------------------------

func reduceSubmitFigTree(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	if state.Phase != show.PhaseLobby && state.Phase != show.PhaseAssigning {
		return reject(state, newErr(CodeWrongPhase, "fig-tree responses are only accepted in lobby or assigning"))
	}
	if _, ok := state.Users[cmd.UserID]; !ok {
		return reject(state, newErr(CodeUnknownUser, "user not known to this show"))
	}

	next := accept(state)
	next.FigTreeResponses[cmd.UserID] = cmd.Text
	return next, []Effect{persistEffect(), broadcastEffect()}, nil
}

// --- ASSIGN_FACTIONS / START_SHOW --------------------------------------

func reduceAssignFactions(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	if state.Phase != show.PhaseLobby {
		return reject(state, newErr(CodeWrongPhase, "ASSIGN_FACTIONS requires lobby phase"))
	}
	if len(state.Users) < 4 {
		return reject(state, newErr(CodeMalformedCommand, "at least 4 users are required to assign factions"))
	}

	inputs := make([]assignment.UserInput, 0, len(state.Users))
	seats := make([]string, 0, len(state.Users))
	for id, u := range state.Users {
		inputs = append(inputs, assignment.UserInput{ID: id, SeatID: u.SeatID})
		if u.SeatID != "" {
			seats = append(seats, u.SeatID)
		}
	}
	graph := adjacencyGraphFor(seats)
	assignments := assignment.AssignFactions(inputs, graph)

	next := accept(state)
	next.Phase = show.PhaseAssigning
	for id, fid := range assignments {
		f := fid
		next.Users[id].Faction = &f
	}
	for i := 0; i < show.NumFactions(); i++ {
		next.Factions[i].CoupUsed = false
		next.Factions[i].CurrentRowCoupVotes = make(map[show.UserID]struct{})
		next.Factions[i].CoupMultiplier = nil
	}

	return next, []Effect{persistEffect(), broadcastEffect()}, nil
}

func reduceStartShow(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	if state.Phase != show.PhaseAssigning {
		return reject(state, newErr(CodeWrongPhase, "START_SHOW requires assigning phase"))
	}
	if len(state.Rows) == 0 {
		return reject(state, newErr(CodeMalformedCommand, "show has no rows configured"))
	}

	next := accept(state)
	next.Phase = show.PhaseRunning
	next.CurrentRowIndex = 0
	row := next.Rows[0]
	row.Phase = show.RowAudition
	row.CurrentAuditionIndex = 0
	row.AuditionComplete = false

	return next, []Effect{persistEffect(), broadcastEffect()}, nil
}

// --- CAST_VOTE / COUP_VOTE ----------------------------------------------

func reduceCastVote(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	if state.Phase != show.PhaseRunning {
		return reject(state, newErr(CodeWrongPhase, "votes are only accepted while the show is running"))
	}
	row := state.CurrentRow()
	if row == nil || row.Phase != show.RowVoting {
		return reject(state, newErr(CodeWrongPhase, "this row is not accepting votes"))
	}
	if cmd.RowIndex != state.CurrentRowIndex {
		return reject(state, newErr(CodeStaleRow, "vote targets a row that is no longer current"))
	}
	u, ok := state.Users[cmd.UserID]
	if !ok {
		return reject(state, newErr(CodeUnknownUser, "user not known to this show"))
	}
	if u.Faction == nil {
		return reject(state, newErr(CodeNotAuthorized, "user has not been assigned a faction"))
	}
	if !validOption(row, cmd.FactionVote) || !validOption(row, cmd.PersonalVote) {
		return reject(state, newErr(CodeInvalidOption, "vote references an option not on this row"))
	}

	next := accept(state)
	nextRow := next.CurrentRow()
	nextRow.Votes[cmd.UserID] = show.Vote{
		UserID:       cmd.UserID,
		RowIndex:     cmd.RowIndex,
		FactionVote:  cmd.FactionVote,
		PersonalVote: cmd.PersonalVote,
		Timestamp:    cmd.Timestamp,
		Attempt:      nextRow.Attempts,
	}

	return next, []Effect{persistEffect(), broadcastEffect()}, nil
}

func validOption(row *show.RowState, id show.OptionID) bool {
	return id >= 0 && int(id) < len(row.Options)
}

func reduceCoupVote(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	if state.Phase != show.PhaseRunning {
		return reject(state, newErr(CodeWrongPhase, "coup votes are only accepted while the show is running"))
	}
	row := state.CurrentRow()
	if row == nil || row.Phase != show.RowCoupWindow {
		return reject(state, newErr(CodeWrongPhase, "this row is not in its coup window"))
	}
	u, ok := state.Users[cmd.UserID]
	if !ok {
		return reject(state, newErr(CodeUnknownUser, "user not known to this show"))
	}
	if u.Faction == nil {
		return reject(state, newErr(CodeNotAuthorized, "user has not been assigned a faction"))
	}
	faction := state.Factions[*u.Faction]
	if faction.CoupUsed {
		return reject(state, newErr(CodeCoupAlreadyUsed, "this faction has already used its coup"))
	}

	next := accept(state)
	nf := next.Factions[*u.Faction]
	nf.CurrentRowCoupVotes[cmd.UserID] = struct{}{}

	size := next.FactionSize(*u.Faction)
	if size > 0 && float64(len(nf.CurrentRowCoupVotes))/float64(size) >= next.Config.Coup.Threshold {
		bonus := next.Config.Coup.MultiplierBonus
		nf.CoupMultiplier = &bonus
		nf.CoupUsed = true
		nf.CurrentRowCoupVotes = make(map[show.UserID]struct{})
	}

	return next, []Effect{persistEffect(), broadcastEffect()}, nil
}

// --- PAUSE / RESUME ------------------------------------------------------

func reducePause(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	if state.Phase == show.PhasePaused {
		return reject(state, newErr(CodeWrongPhase, "show is already paused"))
	}
	next := accept(state)
	next.PausePriorPhase = state.Phase
	next.Phase = show.PhasePaused
	return next, []Effect{persistEffect(), broadcastEffect()}, nil
}

func reduceResume(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	if state.Phase != show.PhasePaused {
		return reject(state, newErr(CodeWrongPhase, "show is not paused"))
	}
	next := accept(state)
	next.Phase = next.PausePriorPhase
	next.PausePriorPhase = ""
	return next, []Effect{persistEffect(), broadcastEffect()}, nil
}

// --- Row/operator overrides ----------------------------------------------

func reduceSkipRow(state *show.Show, cmd Command, rnd *rand.Rand) (*show.Show, []Effect, error) {
	if state.Phase != show.PhaseRunning {
		return reject(state, newErr(CodeWrongPhase, "SKIP_ROW requires a running show"))
	}

	next := accept(state)
	effects := []Effect{persistEffect(), broadcastEffect()}
	tieEffects, err := tallyAndCommitRow(next)
	if err != nil {
		return state, nil, err
	}
	effects = append(effects, tieEffects...)
	return next, effects, nil
}

func reduceRestartRow(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	if state.Phase != show.PhaseRunning {
		return reject(state, newErr(CodeWrongPhase, "RESTART_ROW requires a running show"))
	}
	row := state.CurrentRow()
	if row == nil {
		return reject(state, newErr(CodeMalformedCommand, "no current row to restart"))
	}

	next := accept(state)
	nextRow := next.CurrentRow()
	nextRow.Phase = show.RowAudition
	nextRow.CurrentAuditionIndex = 0
	nextRow.AuditionComplete = false
	nextRow.Attempts++
	nextRow.Votes = make(map[show.UserID]show.Vote)
	nextRow.Result = nil

	return next, []Effect{persistEffect(), broadcastEffect()}, nil
}

func reduceForceFinale(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	if state.Phase != show.PhaseRunning && state.Phase != show.PhasePaused {
		return reject(state, newErr(CodeWrongPhase, "FORCE_FINALE requires a running or paused show"))
	}
	next := accept(state)
	next.Phase = show.PhaseFinale
	return next, []Effect{persistEffect(), broadcastEffect()}, nil
}

func reduceResetToLobby(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	fresh := show.CreateInitialState(state.Config, state.ID)
	fresh.Version = state.Version + 1

	if cmd.PreserveUsers {
		for id, u := range state.Users {
			uc := *u
			uc.Faction = nil
			fresh.Users[id] = &uc
		}
		for id, r := range state.FigTreeResponses {
			fresh.FigTreeResponses[id] = r
		}
	}

	return fresh, []Effect{persistEffect(), broadcastEffect()}, nil
}

func reduceImportState(state *show.Show, cmd Command) (*show.Show, []Effect, error) {
	if cmd.ImportedState == nil {
		return reject(state, newErr(CodeImportValidationFailed, "IMPORT_STATE requires a state payload"))
	}
	if err := ValidateInvariants(cmd.ImportedState); err != nil {
		return reject(state, wrapErr(CodeImportValidationFailed, "imported state violates invariants", err))
	}

	imported := cmd.ImportedState.Clone()
	if imported.Version <= state.Version {
		imported.Version = state.Version + 1
	} else {
		imported.Version = imported.Version + 1
	}

	return imported, []Effect{persistEffect(), broadcastEffect()}, nil
}

// --- ADVANCE_PHASE: the row sub-phase state machine ---------------------

func reduceAdvancePhase(state *show.Show, cmd Command, rnd *rand.Rand) (*show.Show, []Effect, error) {
	if state.Phase == show.PhasePaused {
		return reject(state, newErr(CodeWrongPhase, "no row-phase transitions while paused"))
	}
	if state.Phase != show.PhaseRunning {
		return reject(state, newErr(CodeWrongPhase, "ADVANCE_PHASE requires a running show"))
	}
	row := state.CurrentRow()
	if row == nil {
		return reject(state, newErr(CodeMalformedCommand, "no current row"))
	}

	next := accept(state)
	nextRow := next.CurrentRow()
	var effects []Effect

	switch nextRow.Phase {
	case show.RowPending, show.RowAudition:
		if !nextRow.AuditionComplete {
			if nextRow.CurrentAuditionIndex < show.OptionsPerRow-1 {
				nextRow.CurrentAuditionIndex++
			} else {
				nextRow.AuditionComplete = true
			}
		} else {
			nextRow.Phase = show.RowVoting
		}

	case show.RowVoting:
		nextRow.Phase = show.RowReveal
		tieEffects, err := runTally(next, nextRow, rnd)
		if err != nil {
			return state, nil, err
		}
		effects = append(effects, tieEffects...)

	case show.RowReveal:
		nextRow.Phase = show.RowCoupWindow

	case show.RowCoupWindow:
		nextRow.Phase = show.RowComplete
		commitEffects, err := commitRow(next, nextRow)
		if err != nil {
			return state, nil, err
		}
		effects = append(effects, commitEffects...)

	case show.RowComplete:
		return reject(state, newErr(CodeWrongPhase, "row is already complete"))
	}

	return next, append([]Effect{persistEffect(), broadcastEffect()}, effects...), nil
}

// runTally executes the vote tally for a row entering reveal and consumes
// any coup multiplier armed for this row.
func runTally(state *show.Show, row *show.RowState, rnd *rand.Rand) ([]Effect, error) {
	factionOf := func(id show.UserID) (show.FactionID, bool) {
		u, ok := state.Users[id]
		if !ok || u.Faction == nil {
			return 0, false
		}
		return *u.Faction, true
	}

	var sizes [4]int
	for f := 0; f < 4; f++ {
		sizes[f] = state.FactionSize(show.FactionID(f))
	}

	result, err := tally.Run(row, state.Factions, sizes, factionOf, rnd)
	if err != nil {
		return nil, err
	}
	row.Result = result

	for i := 0; i < show.NumFactions(); i++ {
		state.Factions[i].CoupMultiplier = nil
	}

	if result.TiebreakerWasUsed {
		return []Effect{tiebreakEffect("faction coherence tie at reveal")}, nil
	}
	return nil, nil
}

// tallyAndCommitRow is SKIP_ROW's force-complete path: it runs the tally
// (if not already run) on whatever votes exist, then commits the row
// regardless of which sub-phase it was in.
func tallyAndCommitRow(state *show.Show) ([]Effect, error) {
	row := state.CurrentRow()
	var effects []Effect
	if row.Result == nil {
		tieEffects, err := runTally(state, row, nil)
		if err != nil {
			return nil, err
		}
		effects = append(effects, tieEffects...)
	}
	row.Phase = show.RowComplete
	commitEffects, err := commitRow(state, row)
	if err != nil {
		return nil, err
	}
	return append(effects, commitEffects...), nil
}

// commitRow pushes the row's result onto both paths, records every user's
// personal vote for this row, clears per-row coup-vote sets, and advances
// to the next row (or into the finale).
func commitRow(state *show.Show, row *show.RowState) ([]Effect, error) {
	state.Paths.FactionPath = append(state.Paths.FactionPath, row.Result.FactionWinnerOptionID)
	state.Paths.PopularPath = append(state.Paths.PopularPath, row.Result.PopularWinnerOptionID)

	for id := range state.Users {
		pt, ok := state.PersonalTrees[id]
		if !ok {
			pt = &show.PersonalTree{UserID: id, FigTreeResponse: state.FigTreeResponses[id]}
			state.PersonalTrees[id] = pt
		}
		if v, voted := row.Votes[id]; voted {
			opt := v.PersonalVote
			pt.Path = append(pt.Path, &opt)
		} else {
			pt.Path = append(pt.Path, nil)
		}
	}

	for i := 0; i < show.NumFactions(); i++ {
		state.Factions[i].CurrentRowCoupVotes = make(map[show.UserID]struct{})
	}

	if state.CurrentRowIndex+1 < len(state.Rows) {
		state.CurrentRowIndex++
		next := state.Rows[state.CurrentRowIndex]
		next.Phase = show.RowAudition
		next.CurrentAuditionIndex = 0
		next.AuditionComplete = false
	} else {
		state.Phase = show.PhaseFinale
	}

	return nil, nil
}
