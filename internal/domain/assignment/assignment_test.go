package assignment

import (
	"testing"

	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
)

func usersWithSeats(n int, seats []string) []UserInput {
	users := make([]UserInput, n)
	for i := 0; i < n; i++ {
		id := show.UserID(string(rune('a' + i)))
		seat := ""
		if i < len(seats) {
			seat = seats[i]
		}
		users[i] = UserInput{ID: id, SeatID: seat}
	}
	return users
}

func TestAssignFactionsBalancesExactMultipleOfFour(t *testing.T) {
	users := usersWithSeats(8, nil)
	assigned := AssignFactions(users, NullGraph{})

	var counts [4]int
	for _, fid := range assigned {
		counts[fid]++
	}
	for f, c := range counts {
		if c != 2 {
			t.Fatalf("faction %d has %d members, want 2", f, c)
		}
	}
}

func TestAssignFactionsBalancesNonMultipleOfFour(t *testing.T) {
	users := usersWithSeats(10, nil)
	assigned := AssignFactions(users, NullGraph{})

	var counts [4]int
	for _, fid := range assigned {
		counts[fid]++
	}
	min, max := counts[0], counts[0]
	for _, c := range counts[1:] {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	if max-min > 1 {
		t.Fatalf("faction sizes unbalanced: %v", counts)
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != 10 {
		t.Fatalf("total assigned = %d, want 10", total)
	}
}

func TestAssignFactionsIsDeterministic(t *testing.T) {
	users := usersWithSeats(9, []string{"A1", "A2", "A3", "B1", "B2", "B3", "C1", "C2", "C3"})
	graph := NewTheaterRowsGraph([]string{"A1", "A2", "A3", "B1", "B2", "B3", "C1", "C2", "C3"})

	first := AssignFactions(users, graph)
	second := AssignFactions(users, graph)

	for id, fid := range first {
		if second[id] != fid {
			t.Fatalf("assignment not deterministic for user %s: %v vs %v", id, fid, second[id])
		}
	}
}

func TestAssignLatecomerJoinsSmallestFaction(t *testing.T) {
	existing := []UserInput{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	assignments := map[show.UserID]show.FactionID{"a": 0, "b": 0, "c": 1}

	fid := AssignLatecomer(UserInput{ID: "d"}, existing, assignments, NullGraph{})

	if fid != 2 && fid != 3 {
		t.Fatalf("latecomer assigned to faction %d, want one of the empty factions (2 or 3)", fid)
	}
}

func TestAssignLatecomerPrefersLowerAdjacency(t *testing.T) {
	seats := []string{"A1", "A2"}
	graph := NewTheaterRowsGraph(seats)
	existing := []UserInput{{ID: "a", SeatID: "A1"}, {ID: "c"}, {ID: "d"}, {ID: "e"}}
	assignments := map[show.UserID]show.FactionID{"a": 0, "c": 1, "d": 2, "e": 3}

	fid := AssignLatecomer(UserInput{ID: "b", SeatID: "A2"}, existing, assignments, graph)

	if fid == 0 {
		t.Fatalf("latecomer seated next to faction 0 should avoid it when another faction is equally small, got %d", fid)
	}
}

func TestTheaterRowsGraphNeighbors(t *testing.T) {
	graph := NewTheaterRowsGraph([]string{"A1", "A2", "B1"})

	neighbors := graph.Neighbors("A1")
	found := map[string]bool{}
	for _, n := range neighbors {
		found[n] = true
	}
	if !found["A2"] || !found["B1"] {
		t.Fatalf("expected A1's neighbors to include A2 and B1, got %v", neighbors)
	}
}

func TestTheaterRowsGraphUnknownSeat(t *testing.T) {
	graph := NewTheaterRowsGraph([]string{"A1"})
	if neighbors := graph.Neighbors("not-a-seat"); neighbors != nil {
		t.Fatalf("expected no neighbors for an unparseable seat label, got %v", neighbors)
	}
}
