/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Ledger owns player scores and the scoring event log. AppendPoint is the
// only way a score goes up; compensation after a rejected challenge is the
// only way it goes down.
type Ledger struct {
	store Store
	feed  *Feed
	clock Clock
	log   *slog.Logger
}

// PointResult describes one accepted point.
type PointResult struct {
	Event       ScoringEvent `json:"event"`
	Score       int          `json:"score"`
	Achievement *Achievement `json:"achievement,omitempty"`
}

// CreateGame starts a game with the given display names. Names are
// sanitized and blanks dropped; between MinPlayers and MaxPlayers must
// remain.
func (l *Ledger) CreateGame(ctx context.Context, names []string) (Game, error) {
	clean := make([]string, 0, len(names))
	for _, name := range names {
		if name = SanitizeName(name); name != "" {
			clean = append(clean, name)
		}
	}
	if len(clean) < MinPlayers || len(clean) > MaxPlayers {
		return Game{}, fmt.Errorf("%w: need %d to %d players, got %d", ErrInvalid, MinPlayers, MaxPlayers, len(clean))
	}

	now := l.clock.Now()
	game := Game{
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusPlaying,
		StartedAt: now,
		Players:   make(map[string]*Player, len(clean)),
	}
	for i, name := range clean {
		id := fmt.Sprintf("player_%d", i)
		game.Players[id] = &Player{
			ID:    id,
			Name:  name,
			Color: Palette[i%len(Palette)],
			Order: i,
		}
	}

	for {
		id, err := NewGameID()
		if err != nil {
			return Game{}, err
		}
		game.ID = id

		err = l.store.CreateGame(ctx, game)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Game{}, fmt.Errorf("create game: %w", err)
		}
		break
	}

	l.log.Info("game created", "game", game.ID, "players", len(clean))
	return game, nil
}

func (l *Ledger) Game(ctx context.Context, gameID string) (Game, error) {
	return l.store.Game(ctx, gameID)
}

// Events lists scoring events newest first.
func (l *Ledger) Events(ctx context.Context, gameID string, limit int) ([]ScoringEvent, error) {
	return l.store.Events(ctx, gameID, limit)
}

// AppendPoint adds exactly one point to playerID and records the event,
// atomically.
func (l *Ledger) AppendPoint(ctx context.Context, gameID, playerID string) (PointResult, error) {
	var res PointResult

	err := l.feed.Commit(ctx, gameID, func() error {
		return l.store.Update(ctx, gameID, func(tx Tx) error {
			game, err := tx.Game()
			if err != nil {
				return err
			}
			if game.Status == StatusFinished {
				return fmt.Errorf("game %q is finished: %w", gameID, ErrConflict)
			}
			player, ok := game.Players[playerID]
			if !ok {
				return fmt.Errorf("player %q: %w", playerID, ErrNotFound)
			}

			now := l.clock.Now()
			event := ScoringEvent{
				ID:         newID(),
				PlayerID:   playerID,
				PlayerName: player.Name,
				Timestamp:  now,
				Kind:       KindPointAdded,
			}
			if err := tx.SetScore(playerID, player.Score+1, now); err != nil {
				return err
			}
			if err := tx.AddEvent(event); err != nil {
				return err
			}

			res = PointResult{Event: event, Score: player.Score + 1}
			return nil
		})
	})
	if err != nil {
		return PointResult{}, fmt.Errorf("append point: %w", err)
	}

	if a, ok := AchievementFor(res.Score); ok {
		res.Achievement = &a
	}
	return res, nil
}

// Compensate reverts one point: the event is deleted and the score drops
// by one, never below zero. An event that is already gone is a no-op.
func (l *Ledger) Compensate(ctx context.Context, gameID, playerID, eventID string) error {
	err := l.feed.Commit(ctx, gameID, func() error {
		return l.store.Update(ctx, gameID, func(tx Tx) error {
			_, err := compensate(tx, playerID, eventID, l.clock)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("compensate: %w", err)
	}
	return nil
}

// compensate reports whether anything was reverted.
func compensate(tx Tx, playerID, eventID string, clock Clock) (bool, error) {
	game, err := tx.Game()
	if err != nil {
		return false, err
	}
	player, ok := game.Players[playerID]
	if !ok {
		return false, fmt.Errorf("player %q: %w", playerID, ErrNotFound)
	}

	deleted, err := tx.DeleteEvent(eventID)
	if err != nil || !deleted {
		return false, err
	}
	if player.Score == 0 {
		return true, nil
	}
	return true, tx.SetScore(playerID, player.Score-1, clock.Now())
}

// EndGame finishes the game once. Ending a finished game returns it
// unchanged.
func (l *Ledger) EndGame(ctx context.Context, gameID string) (Game, error) {
	var (
		out      Game
		finished bool
	)

	err := l.feed.Commit(ctx, gameID, func() error {
		return l.store.Update(ctx, gameID, func(tx Tx) error {
			game, err := tx.Game()
			if err != nil {
				return err
			}
			if game.Status != StatusFinished {
				if err := tx.Finish(l.clock.Now()); err != nil {
					return err
				}
				finished = true
			}
			out, err = tx.Game()
			return err
		})
	})
	if err != nil {
		return Game{}, fmt.Errorf("end game: %w", err)
	}
	if finished {
		l.log.Info("game finished", "game", gameID)
	}
	return out, nil
}
