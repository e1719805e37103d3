package projection

import (
	"testing"

	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
)

func sampleShow() *show.Show {
	opts := []show.Option{{ID: 0, Label: "A"}, {ID: 1, Label: "B"}, {ID: 2, Label: "C"}, {ID: 3, Label: "D"}}
	cfg := show.Config{
		RowLabels:  []string{"Verse"},
		RowOptions: [][]show.Option{opts},
	}
	s := show.CreateInitialState(cfg, "show-1")
	s.Phase = show.PhaseRunning
	fa, fb := show.FactionID(0), show.FactionID(1)
	s.Users["u1"] = &show.User{ID: "u1", SeatID: "A1", Faction: &fa, Connected: true}
	s.Users["u2"] = &show.User{ID: "u2", SeatID: "A2", Faction: &fb, Connected: false}
	s.FigTreeResponses["u1"] = "the fig tree remembers"

	row := s.CurrentRow()
	row.Phase = show.RowVoting
	row.Votes["u1"] = show.Vote{UserID: "u1", FactionVote: 1, PersonalVote: 2}

	s.Factions[0].CurrentRowCoupVotes["u1"] = struct{}{}

	return s
}

func TestAudienceViewShowsOnlyOwnVoteAndFaction(t *testing.T) {
	s := sampleShow()
	view := Audience(s, "u1")

	if view.MyFaction == nil || *view.MyFaction != 0 {
		t.Fatalf("expected MyFaction=0, got %v", view.MyFaction)
	}
	if view.MyVoteThisRow == nil || view.MyVoteThisRow.FactionVote != 1 {
		t.Fatalf("expected own vote visible, got %v", view.MyVoteThisRow)
	}
	if !view.MyCoupVoted {
		t.Fatalf("expected MyCoupVoted=true for u1")
	}
	if view.MyFactionCoupMeter == nil {
		t.Fatalf("expected a coup meter for u1's own faction")
	}
}

func TestAudienceViewHidesOtherUsersVotes(t *testing.T) {
	s := sampleShow()
	view := Audience(s, "u2")

	if view.MyVoteThisRow != nil {
		t.Fatalf("u2 did not vote this row, expected nil MyVoteThisRow")
	}
	if view.MyCoupVoted {
		t.Fatalf("u2 did not coup-vote, expected MyCoupVoted=false")
	}
}

func TestAudienceViewNeverLeaksOtherFactionCoupMeter(t *testing.T) {
	s := sampleShow()
	view := Audience(s, "u2")

	if view.MyFaction == nil || *view.MyFaction != 1 {
		t.Fatalf("expected u2 in faction 1, got %v", view.MyFaction)
	}
	if view.MyFactionCoupMeter != nil && *view.MyFactionCoupMeter != 0 {
		t.Fatalf("u2's own faction (1) has no coup votes, meter should be zero or nil, got %v", *view.MyFactionCoupMeter)
	}
}

func TestProjectorViewOmitsPerUserVotes(t *testing.T) {
	s := sampleShow()
	view := Projector(s)

	if view.UserCount != 2 {
		t.Fatalf("expected UserCount=2, got %d", view.UserCount)
	}
	if len(view.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(view.Rows))
	}
}

func TestControllerViewAggregatesFactionsAndCounts(t *testing.T) {
	s := sampleShow()
	view := Controller(s)

	if view.ConnectedUsers != 1 {
		t.Fatalf("expected 1 connected user, got %d", view.ConnectedUsers)
	}
	if view.TotalUsers != 2 {
		t.Fatalf("expected 2 total users, got %d", view.TotalUsers)
	}
	if view.VoteCountThisRow != 1 {
		t.Fatalf("expected 1 vote cast this row, got %d", view.VoteCountThisRow)
	}
	if len(view.FactionCounts) != show.NumFactions() {
		t.Fatalf("expected %d faction counts, got %d", show.NumFactions(), len(view.FactionCounts))
	}
	if view.FactionCounts[0].CoupVotes != 1 {
		t.Fatalf("expected faction 0 to show 1 coup vote, got %d", view.FactionCounts[0].CoupVotes)
	}
	if view.FactionCounts[0].Size != 1 {
		t.Fatalf("expected faction 0 size 1, got %d", view.FactionCounts[0].Size)
	}
}

func TestControllerViewIncludesSeatMapAndFigTreeText(t *testing.T) {
	s := sampleShow()
	view := Controller(s)

	if len(view.SeatMap) != 2 {
		t.Fatalf("expected 2 seat map entries, got %d", len(view.SeatMap))
	}
	if view.SeatMap[0].UserID != "u1" || view.SeatMap[0].SeatID != "A1" {
		t.Fatalf("expected first seat map entry to be u1/A1, got %+v", view.SeatMap[0])
	}
	if view.SeatMap[0].Faction == nil || *view.SeatMap[0].Faction != 0 {
		t.Fatalf("expected u1's seat map entry to carry faction 0, got %v", view.SeatMap[0].Faction)
	}
	if view.FigTreeResponses["u1"] != "the fig tree remembers" {
		t.Fatalf("expected controller view to include raw fig-tree text, got %q", view.FigTreeResponses["u1"])
	}
}
