// Package persistence provides SQLite storage for finished simulation runs.
package persistence

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/talgya/matchsim/internal/engine"
	"github.com/talgya/matchsim/internal/logging"
)

// DB wraps a SQLite connection holding any number of run snapshots.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", path))
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, goerr.Wrap(err, "failed to migrate database", goerr.V("path", path))
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		rounds INTEGER NOT NULL,
		groups_json TEXT NOT NULL,
		traits_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		run_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		group_name TEXT NOT NULL,
		strategy TEXT NOT NULL,
		premium INTEGER NOT NULL,
		impostor INTEGER NOT NULL,
		eliminated INTEGER NOT NULL,
		eliminated_at INTEGER NOT NULL,
		estimated_attractiveness REAL NOT NULL,
		utility REAL NOT NULL,
		match_count INTEGER NOT NULL,
		rating_mu REAL NOT NULL,
		rating_sigma REAL NOT NULL,
		traits_json TEXT NOT NULL,
		reported_json TEXT NOT NULL,
		attributes_json TEXT NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS matches (
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		a INTEGER NOT NULL,
		b INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		matched INTEGER NOT NULL,
		liked_by_a INTEGER NOT NULL,
		liked_by_b INTEGER NOT NULL,
		compatibility REAL NOT NULL,
		utility_a REAL NOT NULL,
		utility_b REAL NOT NULL,
		PRIMARY KEY (run_id, round, a, b)
	);

	CREATE TABLE IF NOT EXISTS rounds (
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		active INTEGER NOT NULL,
		shown INTEGER NOT NULL,
		likes INTEGER NOT NULL,
		matches INTEGER NOT NULL,
		match_rate REAL NOT NULL,
		by_group_json TEXT NOT NULL,
		by_strategy_json TEXT NOT NULL,
		eliminated INTEGER NOT NULL,
		PRIMARY KEY (run_id, round)
	);

	CREATE INDEX IF NOT EXISTS idx_matches_matched ON matches(run_id, matched);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunRow is one stored run.
type RunRow struct {
	ID         string `db:"id"`
	Seed       int64  `db:"seed"`
	Rounds     int    `db:"rounds"`
	GroupsJSON string `db:"groups_json"`
	TraitsJSON string `db:"traits_json"`
}

// AgentRow is one agent's final state in a run.
type AgentRow struct {
	RunID                   string  `db:"run_id"`
	ID                      uint64  `db:"id"`
	Group                   string  `db:"group_name"`
	Strategy                string  `db:"strategy"`
	Premium                 bool    `db:"premium"`
	Impostor                bool    `db:"impostor"`
	Eliminated              bool    `db:"eliminated"`
	EliminatedAt            int     `db:"eliminated_at"`
	EstimatedAttractiveness float64 `db:"estimated_attractiveness"`
	Utility                 float64 `db:"utility"`
	MatchCount              int     `db:"match_count"`
	RatingMu                float64 `db:"rating_mu"`
	RatingSigma             float64 `db:"rating_sigma"`
	TraitsJSON              string  `db:"traits_json"`
	ReportedJSON            string  `db:"reported_json"`
	AttributesJSON          string  `db:"attributes_json"`
}

// MatchRow is one shown pair.
type MatchRow struct {
	RunID         string  `db:"run_id"`
	Round         int     `db:"round"`
	A             uint64  `db:"a"`
	B             uint64  `db:"b"`
	Outcome       string  `db:"outcome"`
	Matched       bool    `db:"matched"`
	LikedByA      bool    `db:"liked_by_a"`
	LikedByB      bool    `db:"liked_by_b"`
	Compatibility float64 `db:"compatibility"`
	UtilityA      float64 `db:"utility_a"`
	UtilityB      float64 `db:"utility_b"`
}

// RoundRow is one round's statistics.
type RoundRow struct {
	RunID          string  `db:"run_id"`
	Round          int     `db:"round"`
	Active         int     `db:"active"`
	Shown          int     `db:"shown"`
	Likes          int     `db:"likes"`
	Matches        int     `db:"matches"`
	MatchRate      float64 `db:"match_rate"`
	ByGroupJSON    string  `db:"by_group_json"`
	ByStrategyJSON string  `db:"by_strategy_json"`
	Eliminated     int     `db:"eliminated"`
}

type averages struct {
	Delta   map[string]float64 `json:"delta"`
	Utility map[string]float64 `json:"utility"`
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode column")
	}
	return string(b), nil
}

// SaveSnapshot writes a whole run in one transaction. Saving the same run id
// twice fails on the primary key.
func (db *DB) SaveSnapshot(ctx context.Context, snap *engine.Snapshot) error {
	logger := logging.From(ctx)
	logger.Info("saving snapshot", "run_id", snap.RunID, "agents", len(snap.Agents), "shown_pairs", len(snap.Matches))

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	run := RunRow{ID: snap.RunID, Seed: snap.Seed, Rounds: snap.Rounds}
	if run.GroupsJSON, err = toJSON(snap.Groups); err != nil {
		return err
	}
	if run.TraitsJSON, err = toJSON(snap.Traits); err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO runs (id, seed, rounds, groups_json, traits_json)
		VALUES (:id, :seed, :rounds, :groups_json, :traits_json)`, run); err != nil {
		return goerr.Wrap(err, "failed to insert run", goerr.V("run_id", snap.RunID))
	}

	if err := saveAgents(ctx, tx, snap); err != nil {
		return err
	}
	if err := saveMatches(ctx, tx, snap); err != nil {
		return err
	}
	if err := saveRounds(ctx, tx, snap); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit snapshot", goerr.V("run_id", snap.RunID))
	}
	logger.Info("snapshot saved", "run_id", snap.RunID)
	return nil
}

func saveAgents(ctx context.Context, tx *sqlx.Tx, snap *engine.Snapshot) error {
	stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO agents
		(run_id, id, group_name, strategy, premium, impostor, eliminated, eliminated_at,
		 estimated_attractiveness, utility, match_count, rating_mu, rating_sigma,
		 traits_json, reported_json, attributes_json)
		VALUES (:run_id, :id, :group_name, :strategy, :premium, :impostor, :eliminated, :eliminated_at,
		 :estimated_attractiveness, :utility, :match_count, :rating_mu, :rating_sigma,
		 :traits_json, :reported_json, :attributes_json)`)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare agent insert")
	}
	defer stmt.Close()

	for _, a := range snap.Agents {
		row := AgentRow{
			RunID:                   snap.RunID,
			ID:                      uint64(a.ID),
			Group:                   a.Group,
			Strategy:                a.Strategy,
			Premium:                 a.Premium,
			Impostor:                a.Impostor,
			Eliminated:              a.Eliminated,
			EliminatedAt:            a.EliminatedAt,
			EstimatedAttractiveness: a.EstimatedAttractiveness,
			Utility:                 a.Utility,
			MatchCount:              a.MatchCount,
			RatingMu:                a.Rating.Mu,
			RatingSigma:             a.Rating.Sigma,
		}
		if row.TraitsJSON, err = toJSON(a.Traits); err != nil {
			return err
		}
		if row.ReportedJSON, err = toJSON(a.Reported); err != nil {
			return err
		}
		if row.AttributesJSON, err = toJSON(a.Attributes); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return goerr.Wrap(err, "failed to insert agent", goerr.V("agent", a.ID))
		}
	}
	return nil
}

func saveMatches(ctx context.Context, tx *sqlx.Tx, snap *engine.Snapshot) error {
	stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO matches
		(run_id, round, a, b, outcome, matched, liked_by_a, liked_by_b, compatibility, utility_a, utility_b)
		VALUES (:run_id, :round, :a, :b, :outcome, :matched, :liked_by_a, :liked_by_b, :compatibility, :utility_a, :utility_b)`)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare match insert")
	}
	defer stmt.Close()

	for _, m := range snap.Matches {
		row := MatchRow{
			RunID:         snap.RunID,
			Round:         m.Round,
			A:             uint64(m.A),
			B:             uint64(m.B),
			Outcome:       m.Outcome.String(),
			Matched:       m.Matched,
			LikedByA:      m.LikedByA,
			LikedByB:      m.LikedByB,
			Compatibility: m.Compatibility,
			UtilityA:      m.UtilityA,
			UtilityB:      m.UtilityB,
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return goerr.Wrap(err, "failed to insert match",
				goerr.V("round", m.Round), goerr.V("a", m.A), goerr.V("b", m.B))
		}
	}
	return nil
}

func saveRounds(ctx context.Context, tx *sqlx.Tx, snap *engine.Snapshot) error {
	for _, st := range snap.Stats {
		row := RoundRow{
			RunID:      snap.RunID,
			Round:      st.Round,
			Active:     st.Active,
			Shown:      st.Shown,
			Likes:      st.Likes,
			Matches:    st.Matches,
			MatchRate:  st.MatchRate,
			Eliminated: len(st.Eliminated),
		}
		var err error
		if row.ByGroupJSON, err = toJSON(averages{Delta: st.AvgDeltaByGroup, Utility: st.AvgUtilityByGroup}); err != nil {
			return err
		}
		if row.ByStrategyJSON, err = toJSON(averages{Delta: st.AvgDeltaByStrategy, Utility: st.AvgUtilityByStrategy}); err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO rounds
			(run_id, round, active, shown, likes, matches, match_rate, by_group_json, by_strategy_json, eliminated)
			VALUES (:run_id, :round, :active, :shown, :likes, :matches, :match_rate, :by_group_json, :by_strategy_json, :eliminated)`, row); err != nil {
			return goerr.Wrap(err, "failed to insert round", goerr.V("round", st.Round))
		}
	}
	return nil
}

// Runs lists stored runs.
func (db *DB) Runs(ctx context.Context) ([]RunRow, error) {
	var runs []RunRow
	if err := db.conn.SelectContext(ctx, &runs, "SELECT * FROM runs ORDER BY id"); err != nil {
		return nil, goerr.Wrap(err, "failed to list runs")
	}
	return runs, nil
}

// Agents returns a run's agents in id order.
func (db *DB) Agents(ctx context.Context, runID string) ([]AgentRow, error) {
	var rows []AgentRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM agents WHERE run_id = ? ORDER BY id", runID); err != nil {
		return nil, goerr.Wrap(err, "failed to read agents", goerr.V("run_id", runID))
	}
	return rows, nil
}

// Matches returns a run's shown pairs in round, then pair, order. With
// matchedOnly set only mutual likes are returned.
func (db *DB) Matches(ctx context.Context, runID string, matchedOnly bool) ([]MatchRow, error) {
	query := "SELECT * FROM matches WHERE run_id = ?"
	if matchedOnly {
		query += " AND matched = 1"
	}
	query += " ORDER BY round, a, b"

	var rows []MatchRow
	if err := db.conn.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, goerr.Wrap(err, "failed to read matches", goerr.V("run_id", runID))
	}
	return rows, nil
}

// Rounds returns a run's per-round statistics in order.
func (db *DB) Rounds(ctx context.Context, runID string) ([]RoundRow, error) {
	var rows []RoundRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM rounds WHERE run_id = ? ORDER BY round", runID); err != nil {
		return nil, goerr.Wrap(err, "failed to read rounds", goerr.V("run_id", runID))
	}
	return rows, nil
}
