package tally

import (
	"math/rand"
	"testing"

	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
)

func newRow(votes map[show.UserID]show.Vote) *show.RowState {
	return &show.RowState{
		Options: []show.Option{{ID: 0}, {ID: 1}, {ID: 2}, {ID: 3}},
		Votes:   votes,
	}
}

func newFactions() [4]*show.Faction {
	return [4]*show.Faction{
		{ID: 0, Name: "Embers"},
		{ID: 1, Name: "Tides"},
		{ID: 2, Name: "Roots"},
		{ID: 3, Name: "Sparks"},
	}
}

func factionOfFunc(assignments map[show.UserID]show.FactionID) FactionOf {
	return func(id show.UserID) (show.FactionID, bool) {
		fid, ok := assignments[id]
		return fid, ok
	}
}

func TestRunPicksHighestCoherenceFaction(t *testing.T) {
	assignments := map[show.UserID]show.FactionID{
		"u1": 0, "u2": 0,
		"u3": 1, "u4": 1, "u5": 1, "u6": 1,
	}
	votes := map[show.UserID]show.Vote{
		"u1": {UserID: "u1", FactionVote: 1, PersonalVote: 1},
		"u2": {UserID: "u2", FactionVote: 1, PersonalVote: 1},
		"u3": {UserID: "u3", FactionVote: 2, PersonalVote: 2},
		"u4": {UserID: "u4", FactionVote: 2, PersonalVote: 2},
	}
	row := newRow(votes)
	sizes := [4]int{2, 4, 0, 0}

	result, err := Run(row, newFactions(), sizes, factionOfFunc(assignments), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.FactionWinnerFactionID != 0 {
		t.Fatalf("expected faction 0 (2/2 coherence) to win over faction 1 (2/4), got %d", result.FactionWinnerFactionID)
	}
	if result.FactionWinnerOptionID != 1 {
		t.Fatalf("expected winning faction's chosen option 1, got %d", result.FactionWinnerOptionID)
	}
	if result.TiebreakerWasUsed {
		t.Fatalf("no tie expected, TiebreakerWasUsed = true")
	}
}

func TestRunAppliesCoupMultiplier(t *testing.T) {
	assignments := map[show.UserID]show.FactionID{
		"u1": 0, "u2": 1,
	}
	votes := map[show.UserID]show.Vote{
		"u1": {UserID: "u1", FactionVote: 0, PersonalVote: 0},
		"u2": {UserID: "u2", FactionVote: 1, PersonalVote: 1},
	}
	row := newRow(votes)
	sizes := [4]int{1, 1, 0, 0}

	factions := newFactions()
	bonus := 1.0 // faction 1 raw coherence 1.0, with +100% bonus becomes 2.0, clearly ahead of faction 0's 1.0
	factions[1].CoupMultiplier = &bonus

	result, err := Run(row, factions, sizes, factionOfFunc(assignments), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.FactionWinnerFactionID != 1 {
		t.Fatalf("expected coup-boosted faction 1 to win, got %d", result.FactionWinnerFactionID)
	}
}

func TestRunBreaksTiesViaResolveTie(t *testing.T) {
	assignments := map[show.UserID]show.FactionID{
		"u1": 0, "u2": 1,
	}
	votes := map[show.UserID]show.Vote{
		"u1": {UserID: "u1", FactionVote: 0, PersonalVote: 0},
		"u2": {UserID: "u2", FactionVote: 1, PersonalVote: 1},
	}
	row := newRow(votes)
	sizes := [4]int{1, 1, 0, 0}

	result, err := Run(row, newFactions(), sizes, factionOfFunc(assignments), rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !result.TiebreakerWasUsed {
		t.Fatalf("expected a tie between factions 0 and 1 (both 1/1 coherence)")
	}
	if len(result.TiedFactionIDs) != 2 {
		t.Fatalf("expected 2 tied factions, got %v", result.TiedFactionIDs)
	}
}

func TestRunPopularVoteIsIndependentOfFactionOutcome(t *testing.T) {
	assignments := map[show.UserID]show.FactionID{
		"u1": 0, "u2": 0, "u3": 1,
	}
	votes := map[show.UserID]show.Vote{
		"u1": {UserID: "u1", FactionVote: 0, PersonalVote: 3},
		"u2": {UserID: "u2", FactionVote: 0, PersonalVote: 3},
		"u3": {UserID: "u3", FactionVote: 1, PersonalVote: 0},
	}
	row := newRow(votes)
	sizes := [4]int{2, 1, 0, 0}

	result, err := Run(row, newFactions(), sizes, factionOfFunc(assignments), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.PopularWinnerOptionID != 3 {
		t.Fatalf("expected popular plurality option 3, got %d", result.PopularWinnerOptionID)
	}
}

func TestRunEmptyFactionHasZeroCoherence(t *testing.T) {
	assignments := map[show.UserID]show.FactionID{"u1": 0}
	votes := map[show.UserID]show.Vote{
		"u1": {UserID: "u1", FactionVote: 0, PersonalVote: 0},
	}
	row := newRow(votes)
	sizes := [4]int{1, 3, 0, 0}

	result, err := Run(row, newFactions(), sizes, factionOfFunc(assignments), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.FactionWinnerFactionID != 0 {
		t.Fatalf("expected faction 0 (1/1) to beat faction 1 (0/3), got %d", result.FactionWinnerFactionID)
	}
}

func TestResolveTieIsUniformAcrossManySamples(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	tied := []show.FactionID{0, 1, 2, 3}
	counts := map[show.FactionID]int{}
	for i := 0; i < 4000; i++ {
		winner, err := ResolveTie(tied, rnd)
		if err != nil {
			t.Fatalf("ResolveTie returned error: %v", err)
		}
		counts[winner]++
	}
	for _, fid := range tied {
		if counts[fid] < 800 || counts[fid] > 1200 {
			t.Fatalf("faction %d won %d of 4000 samples, want about 1000 for a uniform pick", fid, counts[fid])
		}
	}
}

func TestResolveTieEmptyInputErrors(t *testing.T) {
	_, err := ResolveTie(nil, rand.New(rand.NewSource(1)))
	if err != ErrTieInputEmpty {
		t.Fatalf("expected ErrTieInputEmpty, got %v", err)
	}
}
