package conductor

import (
	"errors"
	"fmt"

	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
)

// ValidateInvariants checks the subset of spec §3's invariants that can be
// verified on a single state snapshot (as opposed to across a command
// sequence): faction balance, path-length agreement, and row-index bounds.
// It is run against every IMPORT_STATE payload before it replaces the
// authoritative state.
func ValidateInvariants(s *show.Show) error {
	if s == nil {
		return errors.New("state is nil")
	}
	if len(s.Rows) > 0 {
		if s.CurrentRowIndex < 0 || s.CurrentRowIndex >= len(s.Rows) {
			return fmt.Errorf("currentRowIndex %d out of bounds for %d rows", s.CurrentRowIndex, len(s.Rows))
		}
	}

	if err := checkFactionBalance(s); err != nil {
		return err
	}

	completed := 0
	for _, r := range s.Rows {
		if r.Phase == show.RowComplete {
			completed++
		}
	}
	if len(s.Paths.FactionPath) != completed || len(s.Paths.PopularPath) != completed {
		return fmt.Errorf("path length mismatch: factionPath=%d popularPath=%d completedRows=%d",
			len(s.Paths.FactionPath), len(s.Paths.PopularPath), completed)
	}

	return nil
}

func checkFactionBalance(s *show.Show) error {
	if s.Phase == show.PhaseLobby || s.Phase == show.PhaseAssigning {
		return nil
	}
	var counts [4]int
	anyAssigned := false
	for _, u := range s.Users {
		if u.Faction == nil {
			continue
		}
		anyAssigned = true
		counts[*u.Faction]++
	}
	if !anyAssigned {
		return nil
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
		return fmt.Errorf("faction sizes unbalanced: %v", counts)
	}
	return nil
}
