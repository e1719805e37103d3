// Package store implements spec §4.5's durable ordered log + latest
// snapshot store on top of the shared *database.DB connection, speaking
// the same schema against either the sqlite3 or libsql driver.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
	"github.com/jwhector/yggdrasil/internal/infrastructure/observability/logging"
	"github.com/jwhector/yggdrasil/internal/infrastructure/persistence/database"
)

// Store is the Persistence component: it owns the latest-snapshot table
// plus the append-only event tables, and is the only process-external
// shared resource in the system (spec §5).
type Store struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// New opens (creating if absent) the schema on db and returns a Store.
func New(db *database.DB, logger *logging.ChanneledLogger) (*Store, error) {
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS shows (
			show_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			state_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			show_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			seat_id TEXT,
			joined_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS votes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			show_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			faction_vote INTEGER NOT NULL,
			personal_vote INTEGER NOT NULL,
			attempt INTEGER NOT NULL,
			cast_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS fig_tree_responses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			show_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			response TEXT NOT NULL,
			submitted_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot is the JSON-serializable container for a Show, whose maps are
// reconstructed on load exactly (spec §4.5, §6 "containers serialized as
// ordered arrays of entries"). It is also what Export/Import bind to over
// HTTP, so the wire format for import/export matches the persisted format
// exactly (spec §6 "Exported state format").
type Snapshot struct {
	ID               string              `json:"id"`
	Version          uint64              `json:"version"`
	Phase            show.Phase          `json:"phase"`
	Config           show.Config         `json:"config"`
	Users            []show.User         `json:"users"`
	Factions         [4]FactionSnapshot  `json:"factions"`
	Rows             []RowSnapshot       `json:"rows"`
	CurrentRowIndex  int                 `json:"currentRowIndex"`
	Paths            show.Paths          `json:"paths"`
	PersonalTrees    []show.PersonalTree `json:"personalTrees"`
	FigTreeResponses []FigTreeEntry      `json:"figTreeResponses"`
	PausePriorPhase  show.Phase          `json:"pausePriorPhase,omitempty"`
}

// FactionSnapshot is one faction with its coup-vote set flattened to an
// ordered array of user ids.
type FactionSnapshot struct {
	ID                  show.FactionID `json:"id"`
	Name                string         `json:"name"`
	Color               string         `json:"color"`
	CoupUsed            bool           `json:"coupUsed"`
	CurrentRowCoupVotes []show.UserID  `json:"currentRowCoupVotes"`
	CoupMultiplier      *float64       `json:"coupMultiplier,omitempty"`
}

// RowSnapshot is one row with its vote map flattened to an ordered array.
type RowSnapshot struct {
	Index                int             `json:"index"`
	Label                string          `json:"label"`
	Options              []show.Option   `json:"options"`
	Phase                show.RowPhase   `json:"phase"`
	CurrentAuditionIndex int             `json:"currentAuditionIndex"`
	AuditionComplete     bool            `json:"auditionComplete"`
	Votes                []show.Vote     `json:"votes"`
	Attempts             int             `json:"attempts"`
	Result               *show.RowResult `json:"result,omitempty"`
}

// FigTreeEntry is one user's fig-tree response as an ordered array entry.
type FigTreeEntry struct {
	UserID   show.UserID `json:"userId"`
	Response string      `json:"response"`
}

// ToSnapshot flattens a Show's maps into the ordered-array wire format.
func ToSnapshot(s *show.Show) Snapshot {
	out := Snapshot{
		ID:              s.ID,
		Version:         s.Version,
		Phase:           s.Phase,
		Config:          s.Config,
		CurrentRowIndex: s.CurrentRowIndex,
		Paths:           s.Paths,
		PausePriorPhase: s.PausePriorPhase,
	}

	for _, u := range s.Users {
		out.Users = append(out.Users, *u)
	}

	for i := 0; i < 4; i++ {
		f := s.Factions[i]
		fr := FactionSnapshot{ID: f.ID, Name: f.Name, Color: f.Color, CoupUsed: f.CoupUsed, CoupMultiplier: f.CoupMultiplier}
		for u := range f.CurrentRowCoupVotes {
			fr.CurrentRowCoupVotes = append(fr.CurrentRowCoupVotes, u)
		}
		out.Factions[i] = fr
	}

	for _, r := range s.Rows {
		rr := RowSnapshot{
			Index:                r.Index,
			Label:                r.Label,
			Options:              r.Options,
			Phase:                r.Phase,
			CurrentAuditionIndex: r.CurrentAuditionIndex,
			AuditionComplete:     r.AuditionComplete,
			Attempts:             r.Attempts,
			Result:               r.Result,
		}
		for _, v := range r.Votes {
			rr.Votes = append(rr.Votes, v)
		}
		out.Rows = append(out.Rows, rr)
	}

	for _, pt := range s.PersonalTrees {
		out.PersonalTrees = append(out.PersonalTrees, *pt)
	}

	for id, r := range s.FigTreeResponses {
		out.FigTreeResponses = append(out.FigTreeResponses, FigTreeEntry{UserID: id, Response: r})
	}

	return out
}

// FromSnapshot reconstructs a Show from the ordered-array wire format.
func FromSnapshot(in Snapshot) *show.Show {
	s := &show.Show{
		ID:              in.ID,
		Version:         in.Version,
		Phase:           in.Phase,
		Config:          in.Config,
		CurrentRowIndex: in.CurrentRowIndex,
		Paths:           in.Paths,
		PausePriorPhase: in.PausePriorPhase,
		Users:           make(map[show.UserID]*show.User, len(in.Users)),
		PersonalTrees:   make(map[show.UserID]*show.PersonalTree, len(in.PersonalTrees)),
		FigTreeResponses: make(map[show.UserID]string, len(in.FigTreeResponses)),
	}

	for i := range in.Users {
		u := in.Users[i]
		s.Users[u.ID] = &u
	}

	for i := 0; i < 4; i++ {
		fr := in.Factions[i]
		f := &show.Faction{
			ID:                  fr.ID,
			Name:                fr.Name,
			Color:               fr.Color,
			CoupUsed:            fr.CoupUsed,
			CoupMultiplier:      fr.CoupMultiplier,
			CurrentRowCoupVotes: make(map[show.UserID]struct{}, len(fr.CurrentRowCoupVotes)),
		}
		for _, u := range fr.CurrentRowCoupVotes {
			f.CurrentRowCoupVotes[u] = struct{}{}
		}
		s.Factions[i] = f
	}

	for _, rr := range in.Rows {
		r := &show.RowState{
			Index:                rr.Index,
			Label:                rr.Label,
			Options:              rr.Options,
			Phase:                rr.Phase,
			CurrentAuditionIndex: rr.CurrentAuditionIndex,
			AuditionComplete:     rr.AuditionComplete,
			Attempts:             rr.Attempts,
			Result:               rr.Result,
			Votes:                make(map[show.UserID]show.Vote, len(rr.Votes)),
		}
		for _, v := range rr.Votes {
			r.Votes[v.UserID] = v
		}
		s.Rows = append(s.Rows, r)
	}

	for i := range in.PersonalTrees {
		pt := in.PersonalTrees[i]
		s.PersonalTrees[pt.UserID] = &pt
	}

	for _, e := range in.FigTreeResponses {
		s.FigTreeResponses[e.UserID] = e.Response
	}

	return s
}

// SaveState atomically replaces the latest snapshot for s.ID. A failed
// write leaves the prior snapshot intact: the upsert runs inside its own
// transaction, so a mid-write crash loses only the pending transaction's
// bytes, never the committed row (spec §4.5). A snapshot older than the
// stored one (lower version) does not overwrite it.
func (s *Store) SaveState(st *show.Show) error {
	payload, err := json.Marshal(ToSnapshot(st))
	if err != nil {
		return fmt.Errorf("store: marshal state: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO shows (show_id, version, state_json, updated_at) VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(show_id) DO UPDATE SET version=excluded.version, state_json=excluded.state_json, updated_at=excluded.updated_at
		 WHERE excluded.version >= shows.version`,
		st.ID, st.Version, string(payload),
	)
	if err != nil {
		s.logger.Database().Error("save state failed", "error", err.Error(), "showId", st.ID)
		return fmt.Errorf("store: save state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// LoadState reconstructs the latest snapshot for showID, or (nil, nil) if
// none exists.
func (s *Store) LoadState(showID string) (*show.Show, error) {
	row := s.db.QueryRow(`SELECT state_json FROM shows WHERE show_id = ?`, showID)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load state: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("store: decode state: %w", err)
	}
	return FromSnapshot(snap), nil
}

// GetLatestShow returns whichever show has the highest version across the
// whole process, used on restart (spec §4.5).
func (s *Store) GetLatestShow() (*show.Show, error) {
	row := s.db.QueryRow(`SELECT state_json FROM shows ORDER BY version DESC LIMIT 1`)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get latest show: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("store: decode state: %w", err)
	}
	return FromSnapshot(snap), nil
}

// SaveUser appends a join record for post-hoc analysis; never read back by
// the Conductor at runtime (spec §4.5).
func (s *Store) SaveUser(showID string, u *show.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (show_id, user_id, seat_id, joined_at) VALUES (?, ?, ?, ?)`,
		showID, string(u.ID), u.SeatID, u.JoinedAt.Format(timeLayout),
	)
	return err
}

// SaveVote appends a ballot record for post-hoc analysis.
func (s *Store) SaveVote(showID string, v show.Vote) error {
	_, err := s.db.Exec(
		`INSERT INTO votes (show_id, user_id, row_index, faction_vote, personal_vote, attempt, cast_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		showID, string(v.UserID), v.RowIndex, int(v.FactionVote), int(v.PersonalVote), v.Attempt, v.Timestamp.Format(timeLayout),
	)
	return err
}

// SaveFigTreeResponse appends a fig-tree submission record.
func (s *Store) SaveFigTreeResponse(showID string, userID show.UserID, text string) error {
	_, err := s.db.Exec(
		`INSERT INTO fig_tree_responses (show_id, user_id, response, submitted_at) VALUES (?, ?, ?, datetime('now'))`,
		showID, string(userID), text,
	)
	return err
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
