/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package sqlite persists yellow car games in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Seednode/yellowcar/games/yellowcar"
	"github.com/Seednode/yellowcar/games/yellowcar/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store implements yellowcar.Store on a single SQLite file.
type Store struct {
	sqlDB *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value time.Time) sql.NullInt64 {
	if value.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	return fromMillis(value.Int64)
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; transactions never wait on each other for a lock upgrade.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) CreateGame(ctx context.Context, game yellowcar.Game) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO games (id, status, created_at, updated_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		game.ID,
		string(game.Status),
		toMillis(game.CreatedAt),
		toMillis(game.UpdatedAt),
		toMillis(game.StartedAt),
		toNullMillis(game.FinishedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("game %q already exists: %w", game.ID, yellowcar.ErrConflict)
		}
		return fmt.Errorf("insert game: %w", err)
	}

	for _, p := range game.Roster() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO players (game_id, id, name, score, color, join_order)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			game.ID, p.ID, p.Name, p.Score, p.Color, p.Order,
		); err != nil {
			return fmt.Errorf("insert player %q: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) Game(ctx context.Context, gameID string) (yellowcar.Game, error) {
	return loadGame(ctx, s.sqlDB, gameID)
}

func (s *Store) Events(ctx context.Context, gameID string, limit int) ([]yellowcar.ScoringEvent, error) {
	if err := requireGame(ctx, s.sqlDB, gameID); err != nil {
		return nil, err
	}

	query := `SELECT id, player_id, player_name, kind, occurred_at
		FROM events WHERE game_id = ?
		ORDER BY occurred_at DESC, seq DESC`
	args := []any{gameID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []yellowcar.ScoringEvent{}
	for rows.Next() {
		var (
			e    yellowcar.ScoringEvent
			kind string
			at   int64
		)
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.PlayerName, &kind, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = yellowcar.EventKind(kind)
		e.Timestamp = fromMillis(at)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) Challenge(ctx context.Context, gameID, challengeID string) (yellowcar.Challenge, error) {
	if err := requireGame(ctx, s.sqlDB, gameID); err != nil {
		return yellowcar.Challenge{}, err
	}
	return loadChallenge(ctx, s.sqlDB, gameID, "id = ?", challengeID)
}

func (s *Store) LatestChallenge(ctx context.Context, gameID string) (yellowcar.Challenge, error) {
	if err := requireGame(ctx, s.sqlDB, gameID); err != nil {
		return yellowcar.Challenge{}, err
	}
	return latestChallenge(ctx, s.sqlDB, gameID)
}

func (s *Store) Ratings(ctx context.Context, gameID string) (map[string]yellowcar.PlayerRating, error) {
	if err := requireGame(ctx, s.sqlDB, gameID); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT player_id FROM player_ratings WHERE game_id = ?`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]yellowcar.PlayerRating, len(ids))
	for _, id := range ids {
		r, err := loadRating(ctx, s.sqlDB, gameID, id)
		if err != nil {
			return nil, err
		}
		out[id] = r
	}
	return out, nil
}

// Update runs fn inside one SQLite transaction. Any error rolls it back.
func (s *Store) Update(ctx context.Context, gameID string, fn func(yellowcar.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireGame(ctx, tx, gameID); err != nil {
		return err
	}
	if err := fn(&sqlTx{ctx: ctx, q: tx, gameID: gameID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context, profileID string) (yellowcar.PlayerStats, error) {
	var (
		st      yellowcar.PlayerStats
		history string
		updated int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT profile_id, player_name, total_games, total_points, history, last_updated
		 FROM player_stats WHERE profile_id = ?`, profileID,
	).Scan(&st.ProfileID, &st.PlayerName, &st.TotalGames, &st.TotalPoints, &history, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return yellowcar.PlayerStats{}, fmt.Errorf("stats for %q: %w", profileID, yellowcar.ErrNotFound)
	}
	if err != nil {
		return yellowcar.PlayerStats{}, fmt.Errorf("get stats: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &st.Games); err != nil {
		return yellowcar.PlayerStats{}, fmt.Errorf("decode history: %w", err)
	}
	st.LastUpdated = fromMillis(updated)
	return st, nil
}

func (s *Store) PutStats(ctx context.Context, st yellowcar.PlayerStats) error {
	games := st.Games
	if games == nil {
		games = []yellowcar.GameHistoryEntry{}
	}
	history, err := json.Marshal(games)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO player_stats (profile_id, player_name, total_games, total_points, history, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (profile_id) DO UPDATE SET
		   player_name = excluded.player_name,
		   total_games = excluded.total_games,
		   total_points = excluded.total_points,
		   history = excluded.history,
		   last_updated = excluded.last_updated`,
		st.ProfileID, st.PlayerName, st.TotalGames, st.TotalPoints, string(history), toMillis(st.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("put stats: %w", err)
	}
	return nil
}

func requireGame(ctx context.Context, q querier, gameID string) error {
	var found int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM games WHERE id = ?`, gameID).Scan(&found)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("game %q: %w", gameID, yellowcar.ErrNotFound)
	case err != nil:
		return fmt.Errorf("get game: %w", err)
	}
	return nil
}

func loadGame(ctx context.Context, q querier, gameID string) (yellowcar.Game, error) {
	var (
		g                         yellowcar.Game
		status                    string
		created, updated, started int64
		finished                  sql.NullInt64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, status, created_at, updated_at, started_at, finished_at
		 FROM games WHERE id = ?`, gameID,
	).Scan(&g.ID, &status, &created, &updated, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return yellowcar.Game{}, fmt.Errorf("game %q: %w", gameID, yellowcar.ErrNotFound)
	}
	if err != nil {
		return yellowcar.Game{}, fmt.Errorf("get game: %w", err)
	}
	g.Status = yellowcar.Status(status)
	g.CreatedAt = fromMillis(created)
	g.UpdatedAt = fromMillis(updated)
	g.StartedAt = fromMillis(started)
	g.FinishedAt = fromNullMillis(finished)

	rows, err := q.QueryContext(ctx,
		`SELECT id, name, score, color, join_order FROM players WHERE game_id = ?`, gameID)
	if err != nil {
		return yellowcar.Game{}, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	g.Players = make(map[string]*yellowcar.Player)
	for rows.Next() {
		p := &yellowcar.Player{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Score, &p.Color, &p.Order); err != nil {
			return yellowcar.Game{}, fmt.Errorf("scan player: %w", err)
		}
		g.Players[p.ID] = p
	}
	return g, rows.Err()
}

const challengeColumns = `id, event_id, player_id, player_name, challenger_id, challenger_name,
	status, created_at, expires_at, resolved_at`

func scanChallenge(row *sql.Row, gameID string) (yellowcar.Challenge, error) {
	var (
		c                yellowcar.Challenge
		status           string
		created, expires int64
		resolved         sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.EventID, &c.PlayerID, &c.PlayerName, &c.ChallengerID, &c.ChallengerName,
		&status, &created, &expires, &resolved)
	if err != nil {
		return yellowcar.Challenge{}, err
	}
	c.GameID = gameID
	c.Status = yellowcar.ChallengeStatus(status)
	c.CreatedAt = fromMillis(created)
	c.ExpiresAt = fromMillis(expires)
	c.ResolvedAt = fromNullMillis(resolved)
	return c, nil
}

func loadChallenge(ctx context.Context, q querier, gameID, where string, arg any) (yellowcar.Challenge, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE game_id = ? AND `+where, gameID, arg)
	c, err := scanChallenge(row, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return yellowcar.Challenge{}, fmt.Errorf("challenge %v: %w", arg, yellowcar.ErrNotFound)
	}
	if err != nil {
		return yellowcar.Challenge{}, fmt.Errorf("get challenge: %w", err)
	}
	return withVotes(ctx, q, c)
}

func latestChallenge(ctx context.Context, q querier, gameID string) (yellowcar.Challenge, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE game_id = ?
		 ORDER BY created_at DESC, seq DESC LIMIT 1`, gameID)
	c, err := scanChallenge(row, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return yellowcar.Challenge{}, fmt.Errorf("no challenges: %w", yellowcar.ErrNotFound)
	}
	if err != nil {
		return yellowcar.Challenge{}, fmt.Errorf("latest challenge: %w", err)
	}
	return withVotes(ctx, q, c)
}

func withVotes(ctx context.Context, q querier, c yellowcar.Challenge) (yellowcar.Challenge, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT voter_id, vote FROM challenge_votes WHERE game_id = ? AND challenge_id = ?`,
		c.GameID, c.ID)
	if err != nil {
		return yellowcar.Challenge{}, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	c.Votes = make(map[string]yellowcar.Vote)
	for rows.Next() {
		var voter, vote string
		if err := rows.Scan(&voter, &vote); err != nil {
			return yellowcar.Challenge{}, fmt.Errorf("scan vote: %w", err)
		}
		c.Votes[voter] = yellowcar.Vote(vote)
	}
	return c, rows.Err()
}

func loadRating(ctx context.Context, q querier, gameID, playerID string) (yellowcar.PlayerRating, error) {
	r := yellowcar.PlayerRating{GameID: gameID, PlayerID: playerID}
	err := q.QueryRowContext(ctx,
		`SELECT player_name, average FROM player_ratings WHERE game_id = ? AND player_id = ?`,
		gameID, playerID,
	).Scan(&r.PlayerName, &r.Average)
	if errors.Is(err, sql.ErrNoRows) {
		return yellowcar.PlayerRating{}, fmt.Errorf("rating for %q: %w", playerID, yellowcar.ErrNotFound)
	}
	if err != nil {
		return yellowcar.PlayerRating{}, fmt.Errorf("get rating: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT rater_id, score FROM rating_entries
		 WHERE game_id = ? AND player_id = ? ORDER BY seq`, gameID, playerID)
	if err != nil {
		return yellowcar.PlayerRating{}, fmt.Errorf("list rating entries: %w", err)
	}
	defer rows.Close()

	r.Ratings = make(map[string]int)
	r.RatedBy = []string{}
	for rows.Next() {
		var (
			rater string
			score int
		)
		if err := rows.Scan(&rater, &score); err != nil {
			return yellowcar.PlayerRating{}, fmt.Errorf("scan rating entry: %w", err)
		}
		r.Ratings[rater] = score
		r.RatedBy = append(r.RatedBy, rater)
	}
	return r, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ yellowcar.Store = (*Store)(nil)
