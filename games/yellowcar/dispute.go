/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultChallengeDuration is how long a challenge collects votes.
	DefaultChallengeDuration = 10 * time.Second
	// DefaultContestWindow is how old a point may be and still be challenged.
	DefaultContestWindow = 5 * time.Second
)

// ChallengeRequest opens a dispute against one scoring event.
type ChallengeRequest struct {
	GameID         string `json:"game_id"`
	EventID        string `json:"event_id"`
	PlayerID       string `json:"player_id"`
	PlayerName     string `json:"player_name"`
	ChallengerID   string `json:"challenger_id"`
	ChallengerName string `json:"challenger_name"`
}

// Outcome is what Resolve did. Applied is false when the challenge had
// already been resolved by someone else.
type Outcome struct {
	ChallengeID string          `json:"challenge_id"`
	Status      ChallengeStatus `json:"status"`
	Applied     bool            `json:"applied"`
	Compensated bool            `json:"compensated"`
}

type watcher struct {
	done chan struct{}
}

// Disputes runs the challenge state machine: voting → approved|rejected.
// A rejected challenge reverts its point in the same transaction that
// settles it.
type Disputes struct {
	store    Store
	feed     *Feed
	clock    Clock
	log      *slog.Logger
	duration time.Duration
	window   time.Duration

	mu       sync.Mutex
	watchers map[string]*watcher
	quit     chan struct{}
	closed   bool
	wg       sync.WaitGroup
}

func (d *Disputes) Duration() time.Duration {
	return d.duration
}

// CreateChallenge opens a voting challenge. Only one challenge may be
// voting per game, each event may be challenged once, and only by another
// player within the contest window.
func (d *Disputes) CreateChallenge(ctx context.Context, req ChallengeRequest) (Challenge, error) {
	var (
		created Challenge
		stale   string
	)

	err := d.feed.Commit(ctx, req.GameID, func() error {
		stale = ""
		return d.store.Update(ctx, req.GameID, func(tx Tx) error {
			game, err := tx.Game()
			if err != nil {
				return err
			}
			if game.Status == StatusFinished {
				return fmt.Errorf("game %q is finished: %w", req.GameID, ErrConflict)
			}

			now := d.clock.Now()

			latest, err := tx.LatestChallenge()
			switch {
			case errors.Is(err, ErrNotFound):
			case err != nil:
				return err
			case latest.Active(now):
				return fmt.Errorf("challenge %q is still voting: %w", latest.ID, ErrConflict)
			case latest.Status == ChallengeVoting:
				if _, err := settle(tx, latest, d.clock); err != nil {
					return err
				}
				stale = latest.ID
			}

			event, err := tx.Event(req.EventID)
			if err != nil {
				return err
			}
			if event.PlayerID != req.PlayerID {
				return fmt.Errorf("%w: event %q does not belong to %q", ErrInvalid, req.EventID, req.PlayerID)
			}
			challenger, ok := game.Players[req.ChallengerID]
			if !ok {
				return fmt.Errorf("%w: unknown challenger %q", ErrInvalid, req.ChallengerID)
			}
			if req.ChallengerID == req.PlayerID {
				return fmt.Errorf("%w: players cannot challenge their own point", ErrInvalid)
			}
			if now.Sub(event.Timestamp) > d.window {
				return fmt.Errorf("%w: event %q is past the contest window", ErrInvalid, req.EventID)
			}
			if _, err := tx.ChallengeForEvent(req.EventID); err == nil {
				return fmt.Errorf("event %q was already challenged: %w", req.EventID, ErrConflict)
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}

			created = Challenge{
				ID:             newID(),
				GameID:         req.GameID,
				EventID:        req.EventID,
				PlayerID:       req.PlayerID,
				PlayerName:     nameOr(req.PlayerName, game.Players[req.PlayerID].Name),
				ChallengerID:   req.ChallengerID,
				ChallengerName: nameOr(req.ChallengerName, challenger.Name),
				Votes:          map[string]Vote{},
				Status:         ChallengeVoting,
				CreatedAt:      now,
				ExpiresAt:      now.Add(d.duration),
			}
			return tx.AddChallenge(created)
		})
	})
	if err != nil {
		return Challenge{}, fmt.Errorf("create challenge: %w", err)
	}

	if stale != "" {
		d.finish(stale)
	}
	d.watch(req.GameID, created.ID, created.ExpiresAt)

	d.log.Info("challenge opened",
		"game", req.GameID,
		"challenge", created.ID,
		"accused", created.PlayerName,
		"challenger", created.ChallengerName,
	)
	return created, nil
}

func nameOr(name, fallback string) string {
	if name = SanitizeName(name); name != "" {
		return name
	}
	return fallback
}

// Vote records voterID's vote, replacing any earlier one. Once every
// player has voted the challenge resolves immediately and the outcome is
// returned.
func (d *Disputes) Vote(ctx context.Context, gameID, challengeID, voterID string, vote Vote) (*Outcome, error) {
	if !vote.valid() {
		return nil, fmt.Errorf("%w: vote must be %q or %q", ErrInvalid, VoteYes, VoteNo)
	}

	var quorum bool

	err := d.feed.Commit(ctx, gameID, func() error {
		return d.store.Update(ctx, gameID, func(tx Tx) error {
			game, err := tx.Game()
			if err != nil {
				return err
			}
			c, err := tx.Challenge(challengeID)
			if err != nil {
				return err
			}
			if !c.Active(d.clock.Now()) {
				return fmt.Errorf("challenge %q is not voting: %w", challengeID, ErrNotFound)
			}
			if _, ok := game.Players[voterID]; !ok {
				return fmt.Errorf("%w: unknown voter %q", ErrInvalid, voterID)
			}
			if err := tx.SetVote(challengeID, voterID, vote); err != nil {
				return err
			}

			if c.Votes == nil {
				c.Votes = make(map[string]Vote)
			}
			c.Votes[voterID] = vote
			quorum = len(c.Votes) >= len(game.Players)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("vote: %w", err)
	}

	if !quorum {
		return nil, nil
	}

	out, err := d.Resolve(ctx, gameID, challengeID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Resolve settles a voting challenge by strict majority. It is a
// compare-and-swap from voting, so the quorum path and the expiry timer can
// both call it and only the first one acts.
func (d *Disputes) Resolve(ctx context.Context, gameID, challengeID string) (Outcome, error) {
	var out Outcome

	err := d.feed.Commit(ctx, gameID, func() error {
		return d.store.Update(ctx, gameID, func(tx Tx) error {
			c, err := tx.Challenge(challengeID)
			if err != nil {
				return err
			}
			out, err = settle(tx, c, d.clock)
			return err
		})
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve challenge: %w", err)
	}

	if out.Applied {
		d.finish(challengeID)
		d.log.Info("challenge resolved",
			"game", gameID,
			"challenge", challengeID,
			"status", out.Status,
			"compensated", out.Compensated,
		)
	}
	return out, nil
}

func settle(tx Tx, c Challenge, clock Clock) (Outcome, error) {
	out := Outcome{ChallengeID: c.ID, Status: c.Status}
	if c.Status != ChallengeVoting {
		return out, nil
	}

	verdict := c.Verdict()
	swapped, err := tx.SettleChallenge(c.ID, verdict, clock.Now())
	if err != nil || !swapped {
		return out, err
	}
	out.Status = verdict
	out.Applied = true

	if verdict == ChallengeRejected {
		out.Compensated, err = compensate(tx, c.PlayerID, c.EventID, clock)
		if err != nil {
			return Outcome{}, err
		}
	}
	return out, nil
}

// AwaitResolution blocks until the challenge is settled, resolving it
// itself once it expires, or until ctx ends.
func (d *Disputes) AwaitResolution(ctx context.Context, gameID, challengeID string) (Challenge, error) {
	// The watcher is looked up first: a settle that lands after this point
	// still closes done, and one that landed before shows in the read.
	var done <-chan struct{}
	d.mu.Lock()
	if w, ok := d.watchers[challengeID]; ok {
		done = w.done
	}
	d.mu.Unlock()

	c, err := d.store.Challenge(ctx, gameID, challengeID)
	if err != nil {
		return Challenge{}, err
	}
	if c.Status != ChallengeVoting {
		return c, nil
	}

	select {
	case <-done:
	case <-d.clock.After(c.ExpiresAt.Sub(d.clock.Now())):
		if _, err := d.Resolve(ctx, gameID, challengeID); err != nil {
			return Challenge{}, err
		}
	case <-ctx.Done():
		return Challenge{}, ctx.Err()
	}

	return d.store.Challenge(ctx, gameID, challengeID)
}

// watch resolves the challenge at expiry unless it settles first.
func (d *Disputes) watch(gameID, challengeID string, expiresAt time.Time) {
	w := &watcher{done: make(chan struct{})}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.watchers[challengeID] = w
	d.wg.Add(1)
	d.mu.Unlock()

	deadline := d.clock.After(expiresAt.Sub(d.clock.Now()))

	go func() {
		defer d.wg.Done()

		select {
		case <-deadline:
		case <-w.done:
			return
		case <-d.quit:
			return
		}

		if _, err := d.Resolve(context.Background(), gameID, challengeID); err != nil {
			d.log.Error("challenge expiry", "game", gameID, "challenge", challengeID, "error", err)
		}
	}()
}

func (d *Disputes) finish(challengeID string) {
	d.mu.Lock()
	w, ok := d.watchers[challengeID]
	delete(d.watchers, challengeID)
	d.mu.Unlock()

	if ok {
		close(w.done)
	}
}

// Close stops every expiry watcher. Challenges left voting are settled
// the next time a challenge is opened in their game.
func (d *Disputes) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.quit)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
