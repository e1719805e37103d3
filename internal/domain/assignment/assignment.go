package assignment

import (
	"sort"

	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
)

// UserInput is the minimal user data assignment needs: identity and,
// optionally, a seat for adjacency scoring.
type UserInput struct {
	ID     show.UserID
	SeatID string
}

// targetSizes computes the balanced per-faction target size for N users:
// base = floor(N/4), remainder r gets base+1, assigned to the lowest r
// faction ids so the split is deterministic.
func targetSizes(n int) [4]int {
	base := n / 4
	r := n % 4
	var sizes [4]int
	for i := 0; i < 4; i++ {
		sizes[i] = base
		if i < r {
			sizes[i]++
		}
	}
	return sizes
}

// AssignFactions partitions users into four balanced factions, breaking
// ties on same-faction seat adjacency using graph. Assignment order is by
// UserID for determinism.
func AssignFactions(users []UserInput, graph AdjacencyGraph) map[show.UserID]show.FactionID {
	ordered := make([]UserInput, len(users))
	copy(ordered, users)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	targets := targetSizes(len(ordered))
	var counts [4]int
	assigned := make(map[show.UserID]show.FactionID, len(ordered))
	bySeatFaction := make(map[string]show.FactionID, len(ordered))

	for _, u := range ordered {
		best := -1
		bestScore := -1
		for f := 0; f < 4; f++ {
			if counts[f] >= targets[f] {
				continue
			}
			score := neighborCountInFaction(u.SeatID, show.FactionID(f), graph, bySeatFaction)
			if best == -1 || score < bestScore {
				best = f
				bestScore = score
			}
		}
		if best == -1 {
			// Should not happen: sum(targets) == len(ordered).
			for f := 0; f < 4; f++ {
				if counts[f] < targets[f] {
					best = f
					break
				}
			}
		}
		fid := show.FactionID(best)
		assigned[u.ID] = fid
		counts[best]++
		if u.SeatID != "" {
			bySeatFaction[u.SeatID] = fid
		}
	}

	return assigned
}

// neighborCountInFaction counts how many of seatID's neighbors are already
// assigned to faction f. Users without seats contribute 0.
func neighborCountInFaction(seatID string, f show.FactionID, graph AdjacencyGraph, bySeatFaction map[string]show.FactionID) int {
	if seatID == "" || graph == nil {
		return 0
	}
	n := 0
	for _, neighbor := range graph.Neighbors(seatID) {
		if nf, ok := bySeatFaction[neighbor]; ok && nf == f {
			n++
		}
	}
	return n
}

// AssignLatecomer places a newly-joined user into the smallest faction(s),
// breaking ties on adjacency and then faction id.
func AssignLatecomer(user UserInput, existingUsers []UserInput, existingAssignments map[show.UserID]show.FactionID, graph AdjacencyGraph) show.FactionID {
	var counts [4]int
	bySeatFaction := make(map[string]show.FactionID, len(existingUsers))
	for _, u := range existingUsers {
		if fid, ok := existingAssignments[u.ID]; ok {
			counts[fid]++
			if u.SeatID != "" {
				bySeatFaction[u.SeatID] = fid
			}
		}
	}

	min := counts[0]
	for _, c := range counts[1:] {
		if c < min {
			min = c
		}
	}

	best := -1
	bestScore := -1
	for f := 0; f < 4; f++ {
		if counts[f] != min {
			continue
		}
		score := neighborCountInFaction(user.SeatID, show.FactionID(f), graph, bySeatFaction)
		if best == -1 || score < bestScore {
			best = f
			bestScore = score
		}
	}
	return show.FactionID(best)
}
