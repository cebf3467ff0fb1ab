/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"fmt"
	"sync"
	"time"
)

// DefaultCooldown is the minimum gap between two accepted points from the
// same player in the same game.
const DefaultCooldown = 2 * time.Second

type limiterKey struct {
	gameID   string
	playerID string
}

// RateLimiter remembers when each (game, player) pair last scored. Entries
// are swapped with compare-and-swap, so one pair never passes twice inside
// the cooldown and different pairs never wait on each other.
type RateLimiter struct {
	cooldown time.Duration
	last     sync.Map // limiterKey -> int64 unix nanos
}

func NewRateLimiter(cooldown time.Duration) *RateLimiter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &RateLimiter{cooldown: cooldown}
}

func (l *RateLimiter) Cooldown() time.Duration {
	return l.cooldown
}

// CheckAndRecord fails with ErrTooFast if the pair's last accepted
// submission was less than the cooldown before now. Otherwise now becomes
// the last accepted time.
func (l *RateLimiter) CheckAndRecord(gameID, playerID string, now time.Time) error {
	key := limiterKey{gameID: gameID, playerID: playerID}
	stamp := now.UnixNano()

	for {
		prev, loaded := l.last.LoadOrStore(key, stamp)
		if !loaded {
			return nil
		}

		wait := l.cooldown - time.Duration(stamp-prev.(int64))
		if wait > 0 {
			return fmt.Errorf("%w: wait %s", ErrTooFast, wait.Round(time.Millisecond))
		}

		if l.last.CompareAndSwap(key, prev, stamp) {
			return nil
		}
	}
}

func (l *RateLimiter) size() int {
	n := 0
	l.last.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Forget drops every entry for gameID.
func (l *RateLimiter) Forget(gameID string) {
	l.last.Range(func(k, _ any) bool {
		if k.(limiterKey).gameID == gameID {
			l.last.Delete(k)
		}
		return true
	})
}
