// Package assignment partitions joined users into balanced factions,
// optionally minimizing same-faction seat adjacency.
package assignment

import (
	"regexp"
	"strconv"
)

// AdjacencyGraph reports neighboring seats for soft adjacency scoring.
type AdjacencyGraph interface {
	Neighbors(seatID string) []string
}

// NullGraph is the adjacency graph for shows with no seat map: every seat
// has zero neighbors, so adjacency never influences assignment.
type NullGraph struct{}

// Neighbors always returns an empty slice.
func (NullGraph) Neighbors(string) []string { return nil }

var seatPattern = regexp.MustCompile(`^([A-Za-z]+)(\d+)$`)

// TheaterRowsGraph treats seats as a gridded row layout inferred from labels
// of the form "<rowLetter><columnNumber>" (e.g. "C12"). Adjacency is the
// four orthogonal neighbors: left, right, same column one row forward, and
// same column one row back.
type TheaterRowsGraph struct {
	// occupiedSeats is the full universe of seat labels in play, used to
	// confirm a computed neighbor actually exists.
	occupiedSeats map[string]struct{}
}

// NewTheaterRowsGraph builds a grid adjacency graph over the given seats.
func NewTheaterRowsGraph(seats []string) *TheaterRowsGraph {
	g := &TheaterRowsGraph{occupiedSeats: make(map[string]struct{}, len(seats))}
	for _, s := range seats {
		g.occupiedSeats[s] = struct{}{}
	}
	return g
}

func parseSeat(seatID string) (row string, col int, ok bool) {
	m := seatPattern.FindStringSubmatch(seatID)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], n, true
}

func rowOffset(row string, delta int) string {
	// Only single-letter row labels are offset (by delta letters). A longer
	// label yields "", so such a seat gets no front/back neighbor.
	if len(row) != 1 {
		return ""
	}
	c := rune(row[0])
	c += rune(delta)
	return string(c)
}

// Neighbors returns the orthogonal grid neighbors of seatID that are
// actually occupied.
func (g *TheaterRowsGraph) Neighbors(seatID string) []string {
	row, col, ok := parseSeat(seatID)
	if !ok {
		return nil
	}

	candidates := []string{
		row + strconv.Itoa(col-1),
		row + strconv.Itoa(col+1),
		rowOffset(row, -1) + strconv.Itoa(col),
		rowOffset(row, 1) + strconv.Itoa(col),
	}

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, exists := g.occupiedSeats[c]; exists {
			out = append(out, c)
		}
	}
	return out
}
