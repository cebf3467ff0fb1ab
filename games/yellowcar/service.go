/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type Options struct {
	ChallengeDuration time.Duration
	ContestWindow     time.Duration
	Clock             Clock
	Logger            *slog.Logger
}

// Service wires the ledger, rate limiter, disputes, ratings and stats over
// one store and one feed.
type Service struct {
	Ledger   *Ledger
	Limiter  *RateLimiter
	Disputes *Disputes
	Ratings  *Ratings
	Stats    *Stats
	Feed     *Feed

	store Store
	clock Clock
	log   *slog.Logger
}

func New(store Store, limiter *RateLimiter, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.ChallengeDuration <= 0 {
		opts.ChallengeDuration = DefaultChallengeDuration
	}
	if opts.ContestWindow <= 0 {
		opts.ContestWindow = DefaultContestWindow
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultCooldown)
	}

	s := &Service{
		Limiter: limiter,
		store:   store,
		clock:   opts.Clock,
		log:     opts.Logger,
	}
	s.Feed = newFeed(s.snapshot, s.log)
	s.Ledger = &Ledger{store: store, feed: s.Feed, clock: s.clock, log: s.log}
	s.Disputes = &Disputes{
		store:    store,
		feed:     s.Feed,
		clock:    s.clock,
		log:      s.log,
		duration: opts.ChallengeDuration,
		window:   opts.ContestWindow,
		watchers: make(map[string]*watcher),
		quit:     make(chan struct{}),
	}
	s.Ratings = &Ratings{store: store, feed: s.Feed, log: s.log}
	s.Stats = &Stats{store: store, clock: s.clock}
	return s
}

// AddPoint is the "I saw it" action: the game and player must exist, then
// the cooldown check, then one point on the ledger. A non-empty profileID also records the point in that device's
// personal stats; failing to do so is logged, not returned.
func (s *Service) AddPoint(ctx context.Context, gameID, playerID, profileID string) (PointResult, error) {
	game, err := s.store.Game(ctx, gameID)
	if err != nil {
		return PointResult{}, fmt.Errorf("append point: %w", err)
	}
	if _, ok := game.Players[playerID]; !ok {
		return PointResult{}, fmt.Errorf("append point: player %q: %w", playerID, ErrNotFound)
	}

	if err := s.Limiter.CheckAndRecord(gameID, playerID, s.clock.Now()); err != nil {
		return PointResult{}, err
	}

	res, err := s.Ledger.AppendPoint(ctx, gameID, playerID)
	if err != nil {
		return PointResult{}, err
	}

	if profileID != "" {
		if err := s.Stats.RecordPoint(ctx, profileID, gameID, res.Event.PlayerName, res.Event.Timestamp); err != nil {
			s.log.Warn("record point stats", "profile", profileID, "game", gameID, "error", err)
		}
	}
	return res, nil
}

// EndGame finishes the game and settles personal stats for the given
// profiles.
func (s *Service) EndGame(ctx context.Context, gameID string, profileIDs ...string) (Game, error) {
	game, err := s.Ledger.EndGame(ctx, gameID)
	if err != nil {
		return Game{}, err
	}
	for _, id := range profileIDs {
		if err := s.Stats.FinalizeGame(ctx, id, game); err != nil {
			s.log.Warn("finalize stats", "profile", id, "game", gameID, "error", err)
		}
	}
	return game, nil
}

// Snapshot returns the current observable state of a game.
func (s *Service) Snapshot(ctx context.Context, gameID string) (Snapshot, error) {
	return s.snapshot(ctx, gameID)
}

func (s *Service) snapshot(ctx context.Context, gameID string) (Snapshot, error) {
	game, err := s.store.Game(ctx, gameID)
	if err != nil {
		return Snapshot{}, err
	}
	events, err := s.store.Events(ctx, gameID, EventLimit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list events: %w", err)
	}
	ratings, err := s.store.Ratings(ctx, gameID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list ratings: %w", err)
	}

	now := s.clock.Now()
	snap := Snapshot{
		At:      now,
		Game:    game,
		Events:  events,
		Ratings: ratings,
	}

	c, err := s.store.LatestChallenge(ctx, gameID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return Snapshot{}, fmt.Errorf("latest challenge: %w", err)
	default:
		snap.Challenge = &c
		snap.ChallengeActive = c.Active(now)
	}
	return snap, nil
}

// Subscribe streams snapshots of gameID; see Feed.Subscribe.
func (s *Service) Subscribe(ctx context.Context, gameID string) (<-chan Snapshot, func(), error) {
	return s.Feed.Subscribe(ctx, gameID)
}

// Forget releases in-process state for a game whose session ended.
func (s *Service) Forget(gameID string) {
	s.Feed.Forget(gameID)
	s.Limiter.Forget(gameID)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close stops challenge watchers. The store is owned by the caller.
func (s *Service) Close() {
	s.Disputes.Close()
}
