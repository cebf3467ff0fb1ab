/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Ratings collects post-game fairness ratings. Each rater counts once per
// rated player; resubmissions are ignored.
type Ratings struct {
	store Store
	feed  *Feed
	log   *slog.Logger
}

// Submit records raterID's scores for the other players of a finished
// game and returns how many were new. Scores outside 1..5, self ratings,
// unknown players and repeats are skipped.
func (r *Ratings) Submit(ctx context.Context, gameID, raterID string, scores map[string]int) (int, error) {
	var added int

	err := r.feed.Commit(ctx, gameID, func() error {
		added = 0
		return r.store.Update(ctx, gameID, func(tx Tx) error {
			game, err := tx.Game()
			if err != nil {
				return err
			}
			if game.Status != StatusFinished {
				return fmt.Errorf("game %q is still playing: %w", gameID, ErrConflict)
			}
			if _, ok := game.Players[raterID]; !ok {
				return fmt.Errorf("%w: unknown rater %q", ErrInvalid, raterID)
			}

			rated := make([]string, 0, len(scores))
			for id := range scores {
				rated = append(rated, id)
			}
			sort.Strings(rated)

			for _, playerID := range rated {
				score := scores[playerID]
				player, ok := game.Players[playerID]
				if !ok || playerID == raterID || score < MinRating || score > MaxRating {
					continue
				}

				rating, err := tx.Rating(playerID)
				switch {
				case errors.Is(err, ErrNotFound):
					rating = PlayerRating{
						GameID:     gameID,
						PlayerID:   playerID,
						PlayerName: player.Name,
						Ratings:    map[string]int{},
					}
				case err != nil:
					return err
				}
				if rating.hasRater(raterID) {
					continue
				}

				if rating.Ratings == nil {
					rating.Ratings = map[string]int{}
				}
				rating.Ratings[raterID] = score
				rating.RatedBy = append(rating.RatedBy, raterID)
				rating.Average = mean(rating.Ratings)

				if err := tx.PutRating(rating); err != nil {
					return err
				}
				added++
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("submit ratings: %w", err)
	}

	if added > 0 {
		r.log.Info("ratings submitted", "game", gameID, "rater", raterID, "count", added)
	}
	return added, nil
}

// All returns every player's rating keyed by player id.
func (r *Ratings) All(ctx context.Context, gameID string) (map[string]PlayerRating, error) {
	return r.store.Ratings(ctx, gameID)
}

func mean(scores map[string]int) float64 {
	if len(scores) == 0 {
		return 0
	}
	total := 0
	for _, s := range scores {
		total += s
	}
	return float64(total) / float64(len(scores))
}
