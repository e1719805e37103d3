// Package tally computes the per-row vote tally: per-faction coherence,
// the weighted winner with tie resolution, and the popular-vote plurality.
package tally

import (
	"errors"
	"math/big"
	"math/rand"
	"sort"

	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
)

// ErrTieInputEmpty is returned by ResolveTie when given no candidates; per
// spec §9 this is a programming error, never a user-facing one.
var ErrTieInputEmpty = errors.New("tally: resolveTie called with empty input")

// FactionOf resolves a user's faction assignment, or false if unassigned.
type FactionOf func(show.UserID) (show.FactionID, bool)

// Run tallies one row's votes into the committed result (spec §4.2). It is
// the entry point the Conductor calls on the voting -> reveal transition.
// factionSizes is each faction's live membership count (Show.FactionSize),
// used as the coherence denominator even for factions with zero voters.
func Run(row *show.RowState, factions [4]*show.Faction, factionSizes [4]int, factionOf FactionOf, rnd *rand.Rand) (*show.RowResult, error) {
	votesByFaction := make(map[show.FactionID][]show.Vote, 4)
	for _, v := range row.Votes {
		fid, ok := factionOf(v.UserID)
		if !ok {
			continue
		}
		votesByFaction[fid] = append(votesByFaction[fid], v)
	}

	results := make([]show.FactionResult, 4)
	weightedRats := make([]*big.Rat, 4)

	for f := 0; f < 4; f++ {
		fid := show.FactionID(f)
		faction := factions[f]
		votes := votesByFaction[fid]

		chosen, count := pluralityOption(votes, func(v show.Vote) show.OptionID { return v.FactionVote })
		size := factionSizes[f]
		rawRat := coherenceRat(count, size)
		raw, _ := rawRat.Float64()

		weightedRat := new(big.Rat).Set(rawRat)
		if faction != nil && faction.CoupMultiplier != nil {
			mult := ratFromFloat(1 + *faction.CoupMultiplier)
			weightedRat = new(big.Rat).Mul(rawRat, mult)
		}
		weighted, _ := weightedRat.Float64()

		results[f] = show.FactionResult{
			FactionID:         fid,
			ChosenOption:      chosen,
			RawCoherence:      raw,
			WeightedCoherence: weighted,
			VoteCount:         count,
			FactionSize:       size,
		}
		weightedRats[f] = weightedRat
	}

	var maxWeighted *big.Rat
	for _, wr := range weightedRats {
		if maxWeighted == nil || wr.Cmp(maxWeighted) > 0 {
			maxWeighted = wr
		}
	}

	var tied []show.FactionID
	for f, wr := range weightedRats {
		if wr.Cmp(maxWeighted) == 0 {
			tied = append(tied, show.FactionID(f))
		}
	}

	var winnerFaction show.FactionID
	tiebreakerUsed := false
	switch {
	case len(tied) == 1:
		winnerFaction = tied[0]
	case len(tied) > 1:
		tiebreakerUsed = true
		w, err := ResolveTie(tied, rnd)
		if err != nil {
			return nil, err
		}
		winnerFaction = w
	default:
		return nil, errors.New("tally: no faction eligible, invariant violated")
	}

	winnerOption := results[winnerFaction].ChosenOption

	allPersonal := make([]show.OptionID, 0, len(row.Votes))
	for _, v := range row.Votes {
		allPersonal = append(allPersonal, v.PersonalVote)
	}
	popularOption, _ := pluralityOption(personalVotesAsVotes(allPersonal), func(o show.Vote) show.OptionID { return o.PersonalVote })

	return &show.RowResult{
		FactionWinnerFactionID: winnerFaction,
		FactionWinnerOptionID:  winnerOption,
		PopularWinnerOptionID:  popularOption,
		PerFactionResults:      results,
		TiebreakerWasUsed:      tiebreakerUsed,
		TiedFactionIDs:         tied,
	}, nil
}

// personalVotesAsVotes adapts a bare option slice to pluralityOption's
// show.Vote-shaped iteration without duplicating the counting logic.
func personalVotesAsVotes(options []show.OptionID) []show.Vote {
	votes := make([]show.Vote, len(options))
	for i, o := range options {
		votes[i] = show.Vote{PersonalVote: o}
	}
	return votes
}

func ratFromFloat(f float64) *big.Rat {
	r := new(big.Rat).SetFloat64(f)
	if r == nil {
		return big.NewRat(1, 1)
	}
	return r
}

// coherenceRat returns count/size as an exact rational, or 0 for an
// unpopulated faction (no division by zero).
func coherenceRat(count, size int) *big.Rat {
	if size == 0 {
		return new(big.Rat)
	}
	return big.NewRat(int64(count), int64(size))
}

// pluralityOption returns the argmax option by pick(v) across votes, ties
// broken by lowest option index, plus its vote count.
func pluralityOption(votes []show.Vote, pick func(show.Vote) show.OptionID) (show.OptionID, int) {
	counts := make(map[show.OptionID]int, len(votes))
	for _, v := range votes {
		counts[pick(v)]++
	}
	if len(counts) == 0 {
		return 0, 0
	}

	opts := make([]show.OptionID, 0, len(counts))
	for o := range counts {
		opts = append(opts, o)
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i] < opts[j] })

	best := opts[0]
	bestCount := counts[best]
	for _, o := range opts[1:] {
		if counts[o] > bestCount {
			best = o
			bestCount = counts[o]
		}
	}
	return best, bestCount
}

// ResolveTie picks uniformly at random among tiedFactionIDs. It must be
// observably random across runs (spec property 6) and must error on empty
// input (spec §9, a programming error).
func ResolveTie(tiedFactionIDs []show.FactionID, rnd *rand.Rand) (show.FactionID, error) {
	if len(tiedFactionIDs) == 0 {
		return 0, ErrTieInputEmpty
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	idx := rnd.Intn(len(tiedFactionIDs))
	return tiedFactionIDs[idx], nil
}
