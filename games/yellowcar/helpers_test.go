/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"context"
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, fakeWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if w.at.After(c.now) {
			pending = append(pending, w)
			continue
		}
		w.ch <- c.now
	}
	c.waiters = pending
}

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	svc := New(NewMemoryStore(), NewRateLimiter(DefaultCooldown), Options{Clock: clock})
	t.Cleanup(svc.Close)
	return svc, clock
}

func newTestGame(t *testing.T, svc *Service, names ...string) Game {
	t.Helper()

	game, err := svc.Ledger.CreateGame(context.Background(), names)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game
}

func score(t *testing.T, svc *Service, gameID, playerID string) int {
	t.Helper()

	game, err := svc.Ledger.Game(context.Background(), gameID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	p, ok := game.Players[playerID]
	if !ok {
		t.Fatalf("player %q missing", playerID)
	}
	return p.Score
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
