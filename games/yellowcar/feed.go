/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Snapshot is the full state of one game as observers see it.
type Snapshot struct {
	Seq             uint64                  `json:"seq"`
	At              time.Time               `json:"at"`
	Game            Game                    `json:"game"`
	Events          []ScoringEvent          `json:"events"`
	Challenge       *Challenge              `json:"challenge,omitempty"`
	ChallengeActive bool                    `json:"challenge_active"`
	Ratings         map[string]PlayerRating `json:"ratings"`
}

type loadFunc func(ctx context.Context, gameID string) (Snapshot, error)

type lane struct {
	mu   sync.Mutex
	seq  uint64
	subs map[chan Snapshot]struct{}
}

// Feed serializes mutations per game and publishes a snapshot after each
// one, in commit order. Each subscriber holds at most one pending snapshot;
// a newer one replaces it.
type Feed struct {
	load loadFunc
	log  *slog.Logger

	mu    sync.Mutex
	lanes map[string]*lane
}

func newFeed(load loadFunc, log *slog.Logger) *Feed {
	return &Feed{
		load:  load,
		log:   log,
		lanes: make(map[string]*lane),
	}
}

// acquire returns the game's lane locked. A lane dropped while the caller
// waited for it is retried.
func (f *Feed) acquire(gameID string) *lane {
	for {
		f.mu.Lock()
		l, ok := f.lanes[gameID]
		if !ok {
			l = &lane{subs: make(map[chan Snapshot]struct{})}
			f.lanes[gameID] = l
		}
		f.mu.Unlock()

		l.mu.Lock()
		f.mu.Lock()
		current := f.lanes[gameID] == l
		f.mu.Unlock()
		if current {
			return l
		}
		l.mu.Unlock()
	}
}

// drop removes an idle lane that has never published. The caller holds l.mu.
func (f *Feed) drop(gameID string, l *lane) {
	if len(l.subs) > 0 || l.seq > 0 {
		return
	}
	f.mu.Lock()
	if f.lanes[gameID] == l {
		delete(f.lanes, gameID)
	}
	f.mu.Unlock()
}

func (f *Feed) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lanes)
}

// Commit runs fn while holding the game's lane and, if it succeeds,
// publishes the resulting state before releasing it.
func (f *Feed) Commit(ctx context.Context, gameID string, fn func() error) error {
	l := f.acquire(gameID)
	defer l.mu.Unlock()

	if err := fn(); err != nil {
		f.drop(gameID, l)
		return err
	}

	l.seq++
	if len(l.subs) == 0 {
		return nil
	}

	snap, err := f.load(context.WithoutCancel(ctx), gameID)
	if err != nil {
		f.log.Warn("feed: load snapshot", "game", gameID, "error", err)
		return nil
	}
	snap.Seq = l.seq
	for ch := range l.subs {
		offer(ch, snap)
	}
	return nil
}

func offer(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel that first yields the current state and then
// every committed change. The channel is closed by cancel, when ctx ends,
// or when the game is forgotten.
func (f *Feed) Subscribe(ctx context.Context, gameID string) (<-chan Snapshot, func(), error) {
	l := f.acquire(gameID)
	defer l.mu.Unlock()

	snap, err := f.load(ctx, gameID)
	if err != nil {
		f.drop(gameID, l)
		return nil, nil, err
	}
	snap.Seq = l.seq

	ch := make(chan Snapshot, 1)
	ch <- snap
	l.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if _, ok := l.subs[ch]; ok {
				delete(l.subs, ch)
				close(ch)
			}
		})
	}
	stop := context.AfterFunc(ctx, cancel)

	return ch, func() {
		stop()
		cancel()
	}, nil
}

// Forget closes every subscription to gameID and drops its lane.
func (f *Feed) Forget(gameID string) {
	f.mu.Lock()
	l, ok := f.lanes[gameID]
	delete(f.lanes, gameID)
	f.mu.Unlock()

	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subs {
		delete(l.subs, ch)
		close(ch)
	}
}
