// Package projection derives per-role client views from the Conductor's
// authoritative state without leaking hidden information (spec §4.4, §9).
package projection

import (
	"sort"

	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
)

// RowPublicView is what every role may see about a row: no per-user votes,
// no coup meters.
type RowPublicView struct {
	Index                int             `json:"index"`
	Label                string          `json:"label"`
	Options              []show.Option   `json:"options"`
	Phase                show.RowPhase   `json:"phase"`
	CurrentAuditionIndex int             `json:"currentAuditionIndex"`
	Attempts             int             `json:"attempts"`
	Result               *show.RowResult `json:"result,omitempty"`
}

func rowPublicView(r *show.RowState) RowPublicView {
	return RowPublicView{
		Index:                r.Index,
		Label:                r.Label,
		Options:              r.Options,
		Phase:                r.Phase,
		CurrentAuditionIndex: r.CurrentAuditionIndex,
		Attempts:             r.Attempts,
		Result:               r.Result,
	}
}

// AudienceView is what one audience member's device receives: their own
// vote and coup meter, their faction's (and only their faction's) coup
// meter, never anyone else's.
type AudienceView struct {
	Version            uint64         `json:"version"`
	ShowPhase          show.Phase     `json:"showPhase"`
	CurrentRowIndex    int            `json:"currentRowIndex"`
	RowPublicState     RowPublicView  `json:"rowPublicState"`
	MyFaction          *show.FactionID `json:"myFaction,omitempty"`
	MyVoteThisRow      *show.Vote     `json:"myVoteThisRow,omitempty"`
	MyCoupVoted        bool           `json:"myCoupVoted"`
	MyPersonalPath     []*show.OptionID `json:"myPersonalPath"`
	MyFactionCoupMeter *float64       `json:"myFactionCoupMeter,omitempty"`
}

// Audience derives the view for one specific user. It never includes
// another faction's coup meter (spec §4.4, §9 "Hidden information").
func Audience(s *show.Show, userID show.UserID) AudienceView {
	view := AudienceView{
		Version:         s.Version,
		ShowPhase:       s.Phase,
		CurrentRowIndex: s.CurrentRowIndex,
	}
	if row := s.CurrentRow(); row != nil {
		view.RowPublicState = rowPublicView(row)
		if v, ok := row.Votes[userID]; ok {
			vv := v
			view.MyVoteThisRow = &vv
		}
	}

	u, ok := s.Users[userID]
	if !ok {
		return view
	}
	view.MyFaction = u.Faction

	if pt, ok := s.PersonalTrees[userID]; ok {
		view.MyPersonalPath = pt.Path
	}

	if u.Faction != nil {
		f := s.Factions[*u.Faction]
		if f != nil {
			if _, voted := f.CurrentRowCoupVotes[userID]; voted {
				view.MyCoupVoted = true
			}
			size := s.FactionSize(*u.Faction)
			if size > 0 {
				meter := float64(len(f.CurrentRowCoupVotes)) / float64(size)
				view.MyFactionCoupMeter = &meter
			}
		}
	}

	return view
}

// RowProjectorView is a row as the projector sees it: public state plus the
// tiebreaker-animation trigger, never per-user votes or coup meters.
type RowProjectorView struct {
	RowPublicView
	TiebreakerAnimation bool `json:"tiebreakerAnimation"`
}

// ProjectorView is the big-screen display: show progress, both paths, and
// aggregate counts, never individual votes or any coup meter.
type ProjectorView struct {
	Version         uint64             `json:"version"`
	ShowPhase       show.Phase         `json:"showPhase"`
	CurrentRowIndex int                `json:"currentRowIndex"`
	Rows            []RowProjectorView `json:"rows"`
	Paths           show.Paths         `json:"paths"`
	UserCount       int                `json:"userCount"`
}

// Projector derives the public big-screen view.
func Projector(s *show.Show) ProjectorView {
	rows := make([]RowProjectorView, len(s.Rows))
	for i, r := range s.Rows {
		rows[i] = RowProjectorView{
			RowPublicView:       rowPublicView(r),
			TiebreakerAnimation: r.Result != nil && r.Result.TiebreakerWasUsed,
		}
	}
	return ProjectorView{
		Version:         s.Version,
		ShowPhase:       s.Phase,
		CurrentRowIndex: s.CurrentRowIndex,
		Rows:            rows,
		Paths:           s.Paths,
		UserCount:       len(s.Users),
	}
}

// FactionCount summarizes one faction for the controller dashboard.
type FactionCount struct {
	FactionID   show.FactionID `json:"factionId"`
	Name        string         `json:"name"`
	Size        int            `json:"size"`
	CoupUsed    bool           `json:"coupUsed"`
	CoupVotes   int            `json:"coupVotes"`
	HasMultiplier bool         `json:"hasMultiplier"`
}

// SeatMapEntry is one user's seat/faction assignment as the controller
// dashboard needs to render it.
type SeatMapEntry struct {
	UserID    show.UserID     `json:"userId"`
	SeatID    string          `json:"seatId,omitempty"`
	Faction   *show.FactionID `json:"faction,omitempty"`
	Connected bool            `json:"connected"`
}

// ControllerView is the operator's full-visibility view: the full state sans
// fig-tree text *privacy* — i.e. the one role that does see the raw
// fig-tree responses, since only audience/projector hide them — plus
// aggregate seat/vote counts the operator needs to run the show.
type ControllerView struct {
	Version          uint64             `json:"version"`
	ShowPhase        show.Phase         `json:"showPhase"`
	CurrentRowIndex  int                `json:"currentRowIndex"`
	Rows             []RowProjectorView `json:"rows"`
	Paths            show.Paths         `json:"paths"`
	FactionCounts    []FactionCount     `json:"factionCounts"`
	VoteCountThisRow int                `json:"voteCountThisRow"`
	ConnectedUsers   int                `json:"connectedUsers"`
	TotalUsers       int                `json:"totalUsers"`
	SeatMap          []SeatMapEntry     `json:"seatMap"`
	FigTreeResponses map[show.UserID]string `json:"figTreeResponses"`
}

// Controller derives the operator's dashboard view.
func Controller(s *show.Show) ControllerView {
	rows := make([]RowProjectorView, len(s.Rows))
	for i, r := range s.Rows {
		rows[i] = RowProjectorView{
			RowPublicView:       rowPublicView(r),
			TiebreakerAnimation: r.Result != nil && r.Result.TiebreakerWasUsed,
		}
	}

	counts := make([]FactionCount, show.NumFactions())
	for i := 0; i < show.NumFactions(); i++ {
		f := s.Factions[i]
		fid := show.FactionID(i)
		counts[i] = FactionCount{
			FactionID:     fid,
			Name:          f.Name,
			Size:          s.FactionSize(fid),
			CoupUsed:      f.CoupUsed,
			CoupVotes:     len(f.CurrentRowCoupVotes),
			HasMultiplier: f.CoupMultiplier != nil,
		}
	}

	connected := 0
	for _, u := range s.Users {
		if u.Connected {
			connected++
		}
	}

	voteCount := 0
	if row := s.CurrentRow(); row != nil {
		voteCount = len(row.Votes)
	}

	seatMap := make([]SeatMapEntry, 0, len(s.Users))
	for id, u := range s.Users {
		seatMap = append(seatMap, SeatMapEntry{
			UserID:    id,
			SeatID:    u.SeatID,
			Faction:   u.Faction,
			Connected: u.Connected,
		})
	}
	sort.Slice(seatMap, func(i, j int) bool { return seatMap[i].UserID < seatMap[j].UserID })

	figTreeResponses := make(map[show.UserID]string, len(s.FigTreeResponses))
	for id, r := range s.FigTreeResponses {
		figTreeResponses[id] = r
	}

	return ControllerView{
		Version:          s.Version,
		ShowPhase:        s.Phase,
		CurrentRowIndex:  s.CurrentRowIndex,
		Rows:             rows,
		Paths:            s.Paths,
		FactionCounts:    counts,
		VoteCountThisRow: voteCount,
		ConnectedUsers:   connected,
		TotalUsers:       len(s.Users),
		SeatMap:          seatMap,
		FigTreeResponses: figTreeResponses,
	}
}
