// Package show defines the entities and configuration schema for a single
// live performance: users, factions, rows, votes, and the paths traced
// through the Song Tree.
package show

import "time"

// Phase is the top-level lifecycle stage of a Show.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseAssigning Phase = "assigning"
	PhaseRunning  Phase = "running"
	PhasePaused   Phase = "paused"
	PhaseFinale   Phase = "finale"
	PhaseEnded    Phase = "ended"
)

// RowPhase is the sub-phase of the row currently being played.
type RowPhase string

const (
	RowPending    RowPhase = "pending"
	RowAudition   RowPhase = "audition"
	RowVoting     RowPhase = "voting"
	RowReveal     RowPhase = "reveal"
	RowCoupWindow RowPhase = "coup_window"
	RowComplete   RowPhase = "complete"
)

// FactionID identifies one of the four audience factions.
type FactionID int

// OptionID identifies one of the (typically four) musical options on a row.
type OptionID int

// UserID identifies a joined participant; server-issued when absent.
type UserID string

const numFactions = 4

// OptionsPerRow is the fixed number of musical options offered per row.
const OptionsPerRow = 4

// Option is one musical choice within a row.
type Option struct {
	ID    OptionID `json:"id"`
	Label string   `json:"label"`
}

// User is one joined participant.
type User struct {
	ID        UserID    `json:"id"`
	SeatID    string    `json:"seatId,omitempty"`
	Faction   *FactionID `json:"faction,omitempty"`
	Connected bool      `json:"connected"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Faction is one of the four audience partitions.
type Faction struct {
	ID                  FactionID      `json:"id"`
	Name                string         `json:"name"`
	Color               string         `json:"color"`
	CoupUsed            bool           `json:"coupUsed"`
	CurrentRowCoupVotes map[UserID]struct{} `json:"currentRowCoupVotes"`
	CoupMultiplier      *float64       `json:"coupMultiplier,omitempty"`
}

// Vote is one participant's dual ballot for a row.
type Vote struct {
	UserID      UserID    `json:"userId"`
	RowIndex    int       `json:"rowIndex"`
	FactionVote OptionID  `json:"factionVote"`
	PersonalVote OptionID `json:"personalVote"`
	Timestamp   time.Time `json:"timestamp"`
	Attempt     int       `json:"attempt"`
}

// FactionResult is the per-faction outcome recorded at reveal.
type FactionResult struct {
	FactionID         FactionID `json:"factionId"`
	ChosenOption      OptionID  `json:"chosenOption"`
	RawCoherence      float64   `json:"rawCoherence"`
	WeightedCoherence float64   `json:"weightedCoherence"`
	VoteCount         int       `json:"voteCount"`
	FactionSize       int       `json:"factionSize"`
}

// RowResult is the committed outcome of a completed row.
type RowResult struct {
	FactionWinnerFactionID FactionID       `json:"factionWinnerFactionId"`
	FactionWinnerOptionID  OptionID        `json:"factionWinnerOptionId"`
	PopularWinnerOptionID  OptionID        `json:"popularWinnerOptionId"`
	PerFactionResults      []FactionResult `json:"perFactionResults"`
	TiebreakerWasUsed      bool            `json:"tiebreakerWasUsed"`
	TiedFactionIDs         []FactionID     `json:"tiedFactionIds,omitempty"`
}

// RowState is one row of the Song Tree and its live sub-phase.
type RowState struct {
	Index                 int               `json:"index"`
	Label                 string            `json:"label"`
	Options               []Option          `json:"options"`
	Phase                 RowPhase          `json:"phase"`
	CurrentAuditionIndex  int               `json:"currentAuditionIndex"`
	AuditionComplete      bool              `json:"auditionComplete"`
	Votes                 map[UserID]Vote   `json:"votes"`
	Attempts              int               `json:"attempts"`
	Result                *RowResult        `json:"result,omitempty"`
}

// Paths holds the two parallel sequences traced through the Song Tree.
type Paths struct {
	FactionPath []OptionID `json:"factionPath"`
	PopularPath []OptionID `json:"popularPath"`
}

// PersonalTree is one user's private path and fig-tree response.
type PersonalTree struct {
	UserID          UserID     `json:"userId"`
	Path            []*OptionID `json:"path"`
	FigTreeResponse string     `json:"figTreeResponse"`
}

// CoupConfig governs coup-vote thresholds and the bonus a successful coup grants.
type CoupConfig struct {
	Threshold       float64 `json:"threshold"`
	MultiplierBonus float64 `json:"multiplierBonus"`
}

// TimingConfig holds the durations the Timing Engine schedules against.
type TimingConfig struct {
	AuditionPerOptionMs int `json:"auditionPerOptionMs"`
	VotingWindowMs      int `json:"votingWindowMs"`
	RevealDurationMs    int `json:"revealDurationMs"`
	CoupWindowMs        int `json:"coupWindowMs"`
}

// Config is the immutable show configuration fixed at creation time.
type Config struct {
	RowLabels  []string     `json:"rowLabels"`
	RowOptions [][]Option   `json:"rowOptions"`
	Coup       CoupConfig   `json:"coup"`
	Timing     TimingConfig `json:"timing"`
}

// NumRows returns how many rows this show's config defines.
func (c Config) NumRows() int { return len(c.RowLabels) }

// Show is the full authoritative state of one live performance.
type Show struct {
	ID                string                    `json:"id"`
	Version           uint64                    `json:"version"`
	Phase             Phase                     `json:"phase"`
	Config            Config                    `json:"config"`
	Users             map[UserID]*User          `json:"users"`
	Factions          [numFactions]*Faction     `json:"factions"`
	Rows              []*RowState               `json:"rows"`
	CurrentRowIndex   int                       `json:"currentRowIndex"`
	Paths             Paths                     `json:"paths"`
	PersonalTrees     map[UserID]*PersonalTree  `json:"personalTrees"`
	FigTreeResponses  map[UserID]string         `json:"figTreeResponses"`
	PausePriorPhase   Phase                     `json:"pausePriorPhase,omitempty"`
}

// NumFactions is the fixed faction count (spec §1: the audience partitions
// into four factions).
func NumFactions() int { return numFactions }

// CurrentRow returns the row at CurrentRowIndex, or nil when that index is out
// of range (e.g. a show with no rows). CurrentRowIndex starts at 0, so before
// START_SHOW this is row 0 in its pending phase.
func (s *Show) CurrentRow() *RowState {
	if s.CurrentRowIndex < 0 || s.CurrentRowIndex >= len(s.Rows) {
		return nil
	}
	return s.Rows[s.CurrentRowIndex]
}

// FactionSize returns the number of users currently assigned to a faction.
func (s *Show) FactionSize(id FactionID) int {
	n := 0
	for _, u := range s.Users {
		if u.Faction != nil && *u.Faction == id {
			n++
		}
	}
	return n
}

// CreateInitialState builds a fresh Show in the lobby phase.
func CreateInitialState(cfg Config, id string) *Show {
	rows := make([]*RowState, cfg.NumRows())
	for i := range rows {
		label := ""
		if i < len(cfg.RowLabels) {
			label = cfg.RowLabels[i]
		}
		var opts []Option
		if i < len(cfg.RowOptions) {
			opts = cfg.RowOptions[i]
		}
		rows[i] = &RowState{
			Index:   i,
			Label:   label,
			Options: opts,
			Phase:   RowPending,
			Votes:   make(map[UserID]Vote),
		}
	}

	factions := [numFactions]*Faction{}
	names := []string{"Embers", "Tides", "Roots", "Sparks"}
	colors := []string{"#e05252", "#3f8ef0", "#4caf6a", "#f0b63f"}
	for i := 0; i < numFactions; i++ {
		factions[i] = &Faction{
			ID:                  FactionID(i),
			Name:                names[i],
			Color:               colors[i],
			CurrentRowCoupVotes: make(map[UserID]struct{}),
		}
	}

	return &Show{
		ID:               id,
		Version:          0,
		Phase:            PhaseLobby,
		Config:           cfg,
		Users:            make(map[UserID]*User),
		Factions:         factions,
		Rows:             rows,
		CurrentRowIndex:  0,
		Paths:            Paths{},
		PersonalTrees:    make(map[UserID]*PersonalTree),
		FigTreeResponses: make(map[UserID]string),
	}
}

// Clone returns a deep copy of the show, used so the Conductor never hands
// out a reference any other component could mutate (spec §5 "Shared-resource
// policy").
func (s *Show) Clone() *Show {
	cp := *s
	cp.Users = make(map[UserID]*User, len(s.Users))
	for id, u := range s.Users {
		uc := *u
		if u.Faction != nil {
			f := *u.Faction
			uc.Faction = &f
		}
		cp.Users[id] = &uc
	}

	for i := range cp.Factions {
		f := s.Factions[i]
		if f == nil {
			continue
		}
		fc := *f
		fc.CurrentRowCoupVotes = make(map[UserID]struct{}, len(f.CurrentRowCoupVotes))
		for u := range f.CurrentRowCoupVotes {
			fc.CurrentRowCoupVotes[u] = struct{}{}
		}
		if f.CoupMultiplier != nil {
			m := *f.CoupMultiplier
			fc.CoupMultiplier = &m
		}
		cp.Factions[i] = &fc
	}

	cp.Rows = make([]*RowState, len(s.Rows))
	for i, r := range s.Rows {
		rc := *r
		rc.Votes = make(map[UserID]Vote, len(r.Votes))
		for k, v := range r.Votes {
			rc.Votes[k] = v
		}
		if r.Result != nil {
			rr := *r.Result
			rr.PerFactionResults = append([]FactionResult(nil), r.Result.PerFactionResults...)
			rr.TiedFactionIDs = append([]FactionID(nil), r.Result.TiedFactionIDs...)
			rc.Result = &rr
		}
		cp.Rows[i] = &rc
	}

	cp.Paths.FactionPath = append([]OptionID(nil), s.Paths.FactionPath...)
	cp.Paths.PopularPath = append([]OptionID(nil), s.Paths.PopularPath...)

	cp.PersonalTrees = make(map[UserID]*PersonalTree, len(s.PersonalTrees))
	for id, pt := range s.PersonalTrees {
		ptc := *pt
		ptc.Path = make([]*OptionID, len(pt.Path))
		for i, o := range pt.Path {
			if o == nil {
				continue
			}
			oc := *o
			ptc.Path[i] = &oc
		}
		cp.PersonalTrees[id] = &ptc
	}

	cp.FigTreeResponses = make(map[UserID]string, len(s.FigTreeResponses))
	for id, r := range s.FigTreeResponses {
		cp.FigTreeResponses[id] = r
	}

	return &cp
}
