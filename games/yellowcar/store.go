/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"context"
	"time"
)

// Store is the document store behind the game. Each game is one document
// with events, challenges and ratings as keyed sub-collections. Update runs
// fn as a single atomic read-modify-write over one game; if fn returns an
// error nothing it did is kept.
//
// Lookups of missing documents return an error wrapping ErrNotFound.
type Store interface {
	CreateGame(ctx context.Context, game Game) error
	Game(ctx context.Context, gameID string) (Game, error)
	// Events lists a game's scoring events newest first, at most limit of
	// them when limit > 0.
	Events(ctx context.Context, gameID string, limit int) ([]ScoringEvent, error)
	Challenge(ctx context.Context, gameID, challengeID string) (Challenge, error)
	// LatestChallenge returns the most recently created challenge.
	LatestChallenge(ctx context.Context, gameID string) (Challenge, error)
	Ratings(ctx context.Context, gameID string) (map[string]PlayerRating, error)
	Update(ctx context.Context, gameID string, fn func(Tx) error) error

	Stats(ctx context.Context, profileID string) (PlayerStats, error)
	PutStats(ctx context.Context, stats PlayerStats) error

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the view of one game inside Store.Update. Writes are field scoped:
// nothing replaces the game document wholesale.
type Tx interface {
	Game() (Game, error)
	SetScore(playerID string, score int, at time.Time) error
	Finish(at time.Time) error

	AddEvent(event ScoringEvent) error
	Event(eventID string) (ScoringEvent, error)
	DeleteEvent(eventID string) (bool, error)

	Challenge(challengeID string) (Challenge, error)
	LatestChallenge() (Challenge, error)
	// ChallengeForEvent returns the challenge opened against eventID, if any.
	ChallengeForEvent(eventID string) (Challenge, error)
	AddChallenge(challenge Challenge) error
	SetVote(challengeID, voterID string, vote Vote) error
	// SettleChallenge moves a voting challenge to a terminal status. It
	// reports false without writing when the challenge is no longer voting.
	SettleChallenge(challengeID string, status ChallengeStatus, at time.Time) (bool, error)

	Rating(playerID string) (PlayerRating, error)
	PutRating(rating PlayerRating) error
}
