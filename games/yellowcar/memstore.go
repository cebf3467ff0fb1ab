/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type gameDoc struct {
	mu sync.Mutex

	game       Game
	events     []ScoringEvent
	challenges []Challenge
	ratings    map[string]PlayerRating
}

func (d *gameDoc) clone() *gameDoc {
	out := &gameDoc{
		game:       d.game.Clone(),
		events:     append([]ScoringEvent(nil), d.events...),
		challenges: make([]Challenge, len(d.challenges)),
		ratings:    make(map[string]PlayerRating, len(d.ratings)),
	}
	for i, c := range d.challenges {
		out.challenges[i] = c.clone()
	}
	for k, r := range d.ratings {
		out.ratings[k] = r.clone()
	}
	return out
}

// MemoryStore keeps every document in process memory. It is the default
// store when no database path is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]*gameDoc
	stats map[string]PlayerStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games: make(map[string]*gameDoc),
		stats: make(map[string]PlayerStats),
	}
}

func (s *MemoryStore) doc(gameID string) (*gameDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.games[gameID]
	if !ok {
		return nil, fmt.Errorf("game %q: %w", gameID, ErrNotFound)
	}
	return d, nil
}

func (s *MemoryStore) CreateGame(ctx context.Context, game Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.games[game.ID]; exists {
		return fmt.Errorf("game %q already exists: %w", game.ID, ErrConflict)
	}
	s.games[game.ID] = &gameDoc{
		game:    game.Clone(),
		ratings: make(map[string]PlayerRating),
	}
	return nil
}

func (s *MemoryStore) Game(ctx context.Context, gameID string) (Game, error) {
	if err := ctx.Err(); err != nil {
		return Game{}, err
	}
	d, err := s.doc(gameID)
	if err != nil {
		return Game{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.game.Clone(), nil
}

func (s *MemoryStore) Events(ctx context.Context, gameID string, limit int) ([]ScoringEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := s.doc(gameID)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return newestFirst(d.events, limit), nil
}

// newestFirst orders by timestamp descending; equal timestamps keep the
// later insertion first.
func newestFirst(events []ScoringEvent, limit int) []ScoringEvent {
	out := make([]ScoringEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryStore) Challenge(ctx context.Context, gameID, challengeID string) (Challenge, error) {
	if err := ctx.Err(); err != nil {
		return Challenge{}, err
	}
	d, err := s.doc(gameID)
	if err != nil {
		return Challenge{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return (&memTx{doc: d}).Challenge(challengeID)
}

func (s *MemoryStore) LatestChallenge(ctx context.Context, gameID string) (Challenge, error) {
	if err := ctx.Err(); err != nil {
		return Challenge{}, err
	}
	d, err := s.doc(gameID)
	if err != nil {
		return Challenge{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return (&memTx{doc: d}).LatestChallenge()
}

func (s *MemoryStore) Ratings(ctx context.Context, gameID string) (map[string]PlayerRating, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := s.doc(gameID)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]PlayerRating, len(d.ratings))
	for k, r := range d.ratings {
		out[k] = r.clone()
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, gameID string, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := s.doc(gameID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	work := d.clone()
	if err := fn(&memTx{doc: work}); err != nil {
		return err
	}
	d.game, d.events, d.challenges, d.ratings = work.game, work.events, work.challenges, work.ratings
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context, profileID string) (PlayerStats, error) {
	if err := ctx.Err(); err != nil {
		return PlayerStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[profileID]
	if !ok {
		return PlayerStats{}, fmt.Errorf("stats for %q: %w", profileID, ErrNotFound)
	}
	return st.clone(), nil
}

func (s *MemoryStore) PutStats(ctx context.Context, stats PlayerStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[stats.ProfileID] = stats.clone()
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

type memTx struct {
	doc *gameDoc
}

func (t *memTx) Game() (Game, error) {
	return t.doc.game.Clone(), nil
}

func (t *memTx) SetScore(playerID string, score int, at time.Time) error {
	p, ok := t.doc.game.Players[playerID]
	if !ok {
		return fmt.Errorf("player %q: %w", playerID, ErrNotFound)
	}
	p.Score = score
	t.doc.game.UpdatedAt = at
	return nil
}

func (t *memTx) Finish(at time.Time) error {
	t.doc.game.Status = StatusFinished
	t.doc.game.FinishedAt = at
	t.doc.game.UpdatedAt = at
	return nil
}

func (t *memTx) AddEvent(event ScoringEvent) error {
	for _, e := range t.doc.events {
		if e.ID == event.ID {
			return fmt.Errorf("event %q already exists: %w", event.ID, ErrConflict)
		}
	}
	t.doc.events = append(t.doc.events, event)
	return nil
}

func (t *memTx) Event(eventID string) (ScoringEvent, error) {
	for _, e := range t.doc.events {
		if e.ID == eventID {
			return e, nil
		}
	}
	return ScoringEvent{}, fmt.Errorf("event %q: %w", eventID, ErrNotFound)
}

func (t *memTx) DeleteEvent(eventID string) (bool, error) {
	for i, e := range t.doc.events {
		if e.ID == eventID {
			t.doc.events = append(t.doc.events[:i], t.doc.events[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) challengeIndex(challengeID string) int {
	for i, c := range t.doc.challenges {
		if c.ID == challengeID {
			return i
		}
	}
	return -1
}

func (t *memTx) Challenge(challengeID string) (Challenge, error) {
	i := t.challengeIndex(challengeID)
	if i < 0 {
		return Challenge{}, fmt.Errorf("challenge %q: %w", challengeID, ErrNotFound)
	}
	return t.doc.challenges[i].clone(), nil
}

func (t *memTx) LatestChallenge() (Challenge, error) {
	latest := -1
	for i, c := range t.doc.challenges {
		if latest < 0 || !c.CreatedAt.Before(t.doc.challenges[latest].CreatedAt) {
			latest = i
		}
	}
	if latest < 0 {
		return Challenge{}, fmt.Errorf("no challenges: %w", ErrNotFound)
	}
	return t.doc.challenges[latest].clone(), nil
}

func (t *memTx) ChallengeForEvent(eventID string) (Challenge, error) {
	for _, c := range t.doc.challenges {
		if c.EventID == eventID {
			return c.clone(), nil
		}
	}
	return Challenge{}, fmt.Errorf("challenge for event %q: %w", eventID, ErrNotFound)
}

func (t *memTx) AddChallenge(challenge Challenge) error {
	if t.challengeIndex(challenge.ID) >= 0 {
		return fmt.Errorf("challenge %q already exists: %w", challenge.ID, ErrConflict)
	}
	t.doc.challenges = append(t.doc.challenges, challenge.clone())
	return nil
}

func (t *memTx) SetVote(challengeID, voterID string, vote Vote) error {
	i := t.challengeIndex(challengeID)
	if i < 0 {
		return fmt.Errorf("challenge %q: %w", challengeID, ErrNotFound)
	}
	c := &t.doc.challenges[i]
	if c.Votes == nil {
		c.Votes = make(map[string]Vote)
	}
	c.Votes[voterID] = vote
	return nil
}

func (t *memTx) SettleChallenge(challengeID string, status ChallengeStatus, at time.Time) (bool, error) {
	i := t.challengeIndex(challengeID)
	if i < 0 {
		return false, fmt.Errorf("challenge %q: %w", challengeID, ErrNotFound)
	}
	c := &t.doc.challenges[i]
	if c.Status != ChallengeVoting {
		return false, nil
	}
	c.Status = status
	c.ResolvedAt = at
	return true, nil
}

func (t *memTx) Rating(playerID string) (PlayerRating, error) {
	r, ok := t.doc.ratings[playerID]
	if !ok {
		return PlayerRating{}, fmt.Errorf("rating for %q: %w", playerID, ErrNotFound)
	}
	return r.clone(), nil
}

func (t *memTx) PutRating(rating PlayerRating) error {
	t.doc.ratings[rating.PlayerID] = rating.clone()
	return nil
}

var _ Store = (*MemoryStore)(nil)
