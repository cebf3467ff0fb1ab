/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Seednode/yellowcar/games/yellowcar"
)

type sqlTx struct {
	ctx    context.Context
	q      querier
	gameID string
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (t *sqlTx) Game() (yellowcar.Game, error) {
	return loadGame(t.ctx, t.q, t.gameID)
}

func (t *sqlTx) touch(at time.Time) error {
	if _, err := t.q.ExecContext(t.ctx,
		`UPDATE games SET updated_at = ? WHERE id = ?`, toMillis(at), t.gameID); err != nil {
		return fmt.Errorf("touch game: %w", err)
	}
	return nil
}

func (t *sqlTx) SetScore(playerID string, score int, at time.Time) error {
	res, err := t.q.ExecContext(t.ctx,
		`UPDATE players SET score = ? WHERE game_id = ? AND id = ?`, score, t.gameID, playerID)
	if err != nil {
		return fmt.Errorf("set score: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("player %q: %w", playerID, yellowcar.ErrNotFound)
	}
	return t.touch(at)
}

func (t *sqlTx) Finish(at time.Time) error {
	if _, err := t.q.ExecContext(t.ctx,
		`UPDATE games SET status = ?, finished_at = ?, updated_at = ? WHERE id = ?`,
		string(yellowcar.StatusFinished), toMillis(at), toMillis(at), t.gameID); err != nil {
		return fmt.Errorf("finish game: %w", err)
	}
	return nil
}

func (t *sqlTx) AddEvent(event yellowcar.ScoringEvent) error {
	_, err := t.q.ExecContext(t.ctx,
		`INSERT INTO events (game_id, id, player_id, player_name, kind, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.gameID, event.ID, event.PlayerID, event.PlayerName, string(event.Kind), toMillis(event.Timestamp))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("event %q already exists: %w", event.ID, yellowcar.ErrConflict)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (t *sqlTx) Event(eventID string) (yellowcar.ScoringEvent, error) {
	var (
		e    yellowcar.ScoringEvent
		kind string
		at   int64
	)
	err := t.q.QueryRowContext(t.ctx,
		`SELECT id, player_id, player_name, kind, occurred_at
		 FROM events WHERE game_id = ? AND id = ?`, t.gameID, eventID,
	).Scan(&e.ID, &e.PlayerID, &e.PlayerName, &kind, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return yellowcar.ScoringEvent{}, fmt.Errorf("event %q: %w", eventID, yellowcar.ErrNotFound)
	}
	if err != nil {
		return yellowcar.ScoringEvent{}, fmt.Errorf("get event: %w", err)
	}
	e.Kind = yellowcar.EventKind(kind)
	e.Timestamp = fromMillis(at)
	return e, nil
}

func (t *sqlTx) DeleteEvent(eventID string) (bool, error) {
	res, err := t.q.ExecContext(t.ctx,
		`DELETE FROM events WHERE game_id = ? AND id = ?`, t.gameID, eventID)
	if err != nil {
		return false, fmt.Errorf("delete event: %w", err)
	}
	n, err := affected(res)
	return n > 0, err
}

func (t *sqlTx) Challenge(challengeID string) (yellowcar.Challenge, error) {
	return loadChallenge(t.ctx, t.q, t.gameID, "id = ?", challengeID)
}

func (t *sqlTx) LatestChallenge() (yellowcar.Challenge, error) {
	return latestChallenge(t.ctx, t.q, t.gameID)
}

func (t *sqlTx) ChallengeForEvent(eventID string) (yellowcar.Challenge, error) {
	return loadChallenge(t.ctx, t.q, t.gameID, "event_id = ?", eventID)
}

func (t *sqlTx) AddChallenge(c yellowcar.Challenge) error {
	_, err := t.q.ExecContext(t.ctx,
		`INSERT INTO challenges (game_id, id, event_id, player_id, player_name, challenger_id,
		   challenger_name, status, created_at, expires_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.gameID, c.ID, c.EventID, c.PlayerID, c.PlayerName, c.ChallengerID, c.ChallengerName,
		string(c.Status), toMillis(c.CreatedAt), toMillis(c.ExpiresAt), toNullMillis(c.ResolvedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("challenge %q already exists: %w", c.ID, yellowcar.ErrConflict)
		}
		return fmt.Errorf("insert challenge: %w", err)
	}
	for voter, vote := range c.Votes {
		if err := t.putVote(c.ID, voter, vote); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) putVote(challengeID, voterID string, vote yellowcar.Vote) error {
	if _, err := t.q.ExecContext(t.ctx,
		`INSERT INTO challenge_votes (game_id, challenge_id, voter_id, vote) VALUES (?, ?, ?, ?)
		 ON CONFLICT (game_id, challenge_id, voter_id) DO UPDATE SET vote = excluded.vote`,
		t.gameID, challengeID, voterID, string(vote)); err != nil {
		return fmt.Errorf("put vote: %w", err)
	}
	return nil
}

func (t *sqlTx) SetVote(challengeID, voterID string, vote yellowcar.Vote) error {
	var found int
	err := t.q.QueryRowContext(t.ctx,
		`SELECT 1 FROM challenges WHERE game_id = ? AND id = ?`, t.gameID, challengeID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("challenge %q: %w", challengeID, yellowcar.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get challenge: %w", err)
	}
	return t.putVote(challengeID, voterID, vote)
}

func (t *sqlTx) SettleChallenge(challengeID string, status yellowcar.ChallengeStatus, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(t.ctx,
		`UPDATE challenges SET status = ?, resolved_at = ?
		 WHERE game_id = ? AND id = ? AND status = ?`,
		string(status), toMillis(at), t.gameID, challengeID, string(yellowcar.ChallengeVoting))
	if err != nil {
		return false, fmt.Errorf("settle challenge: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := t.Challenge(challengeID); err != nil {
		return false, err
	}
	return false, nil
}

func (t *sqlTx) Rating(playerID string) (yellowcar.PlayerRating, error) {
	return loadRating(t.ctx, t.q, t.gameID, playerID)
}

func (t *sqlTx) PutRating(r yellowcar.PlayerRating) error {
	if _, err := t.q.ExecContext(t.ctx,
		`INSERT INTO player_ratings (game_id, player_id, player_name, average) VALUES (?, ?, ?, ?)
		 ON CONFLICT (game_id, player_id) DO UPDATE SET
		   player_name = excluded.player_name,
		   average = excluded.average`,
		t.gameID, r.PlayerID, r.PlayerName, r.Average); err != nil {
		return fmt.Errorf("put rating: %w", err)
	}

	for _, rater := range r.RatedBy {
		score, ok := r.Ratings[rater]
		if !ok {
			continue
		}
		if _, err := t.q.ExecContext(t.ctx,
			`INSERT INTO rating_entries (game_id, player_id, rater_id, score) VALUES (?, ?, ?, ?)
			 ON CONFLICT (game_id, player_id, rater_id) DO NOTHING`,
			t.gameID, r.PlayerID, rater, score); err != nil {
			return fmt.Errorf("put rating entry: %w", err)
		}
	}
	return nil
}
