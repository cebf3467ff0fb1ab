/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// HistoryLimit is how many games a profile keeps.
const HistoryLimit = 50

type GameHistoryEntry struct {
	GameID          string      `json:"game_id"`
	Date            time.Time   `json:"date"`
	PlayerName      string      `json:"player_name"`
	FinalScore      int         `json:"final_score"`
	Placement       int         `json:"placement"`
	TotalPlayers    int         `json:"total_players"`
	PointTimestamps []time.Time `json:"point_timestamps"`
}

// PlayerStats is the personal history of one device profile.
type PlayerStats struct {
	ProfileID   string             `json:"profile_id"`
	PlayerName  string             `json:"player_name"`
	TotalGames  int                `json:"total_games"`
	TotalPoints int                `json:"total_points"`
	Games       []GameHistoryEntry `json:"games"`
	LastUpdated time.Time          `json:"last_updated"`
}

func (s PlayerStats) clone() PlayerStats {
	out := s
	out.Games = make([]GameHistoryEntry, len(s.Games))
	for i, g := range s.Games {
		g.PointTimestamps = append([]time.Time(nil), g.PointTimestamps...)
		out.Games[i] = g
	}
	return out
}

func (s *PlayerStats) entry(gameID string) *GameHistoryEntry {
	for i := range s.Games {
		if s.Games[i].GameID == gameID {
			return &s.Games[i]
		}
	}
	return nil
}

func (s *PlayerStats) recount() {
	if len(s.Games) > HistoryLimit {
		s.Games = s.Games[len(s.Games)-HistoryLimit:]
	}
	s.TotalGames = len(s.Games)
	s.TotalPoints = 0
	for _, g := range s.Games {
		s.TotalPoints += g.FinalScore
	}
}

// StatsSummary adds derived figures to PlayerStats.
type StatsSummary struct {
	PlayerStats
	Wins         int     `json:"wins"`
	BestScore    int     `json:"best_score"`
	AverageScore float64 `json:"avg_score"`
	WinRate      int     `json:"win_rate"`
}

// Stats keeps per-profile history. Updates to one profile are serialized.
type Stats struct {
	store Store
	clock Clock

	mu    sync.Mutex
	locks map[string]*profileLock
}

type profileLock struct {
	mu   sync.Mutex
	refs int
}

// lock serializes work on one profile. The entry lives only while someone
// holds or waits for it.
func (s *Stats) lock(profileID string) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*profileLock)
	}
	pl, ok := s.locks[profileID]
	if !ok {
		pl = &profileLock{}
		s.locks[profileID] = pl
	}
	pl.refs++
	s.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()

		s.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(s.locks, profileID)
		}
		s.mu.Unlock()
	}
}

func (s *Stats) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func (s *Stats) load(ctx context.Context, profileID string) (PlayerStats, error) {
	st, err := s.store.Stats(ctx, profileID)
	if errors.Is(err, ErrNotFound) {
		return PlayerStats{ProfileID: profileID, Games: []GameHistoryEntry{}}, nil
	}
	return st, err
}

func (s *Stats) update(ctx context.Context, profileID string, fn func(*PlayerStats) bool) error {
	if profileID == "" {
		return fmt.Errorf("%w: profile id is required", ErrInvalid)
	}
	defer s.lock(profileID)()

	st, err := s.load(ctx, profileID)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	if !fn(&st) {
		return nil
	}
	st.recount()
	st.LastUpdated = s.clock.Now()
	if err := s.store.PutStats(ctx, st); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

// RecordPoint notes a point scored from this profile.
func (s *Stats) RecordPoint(ctx context.Context, profileID, gameID, playerName string, at time.Time) error {
	return s.update(ctx, profileID, func(st *PlayerStats) bool {
		e := st.entry(gameID)
		if e == nil {
			st.Games = append(st.Games, GameHistoryEntry{GameID: gameID, Date: at})
			e = &st.Games[len(st.Games)-1]
		}
		e.PointTimestamps = append(e.PointTimestamps, at)
		e.FinalScore = len(e.PointTimestamps)
		e.PlayerName = playerName
		st.PlayerName = playerName
		return true
	})
}

// FinalizeGame stamps placement and the settled score for the profile's
// entry in a finished game. Profiles that never scored in it are left alone.
func (s *Stats) FinalizeGame(ctx context.Context, profileID string, game Game) error {
	return s.update(ctx, profileID, func(st *PlayerStats) bool {
		e := st.entry(game.ID)
		if e == nil {
			return false
		}
		e.Placement = game.Placement(e.PlayerName)
		e.TotalPlayers = len(game.Players)
		for _, p := range game.Players {
			if p.Name == e.PlayerName {
				e.FinalScore = p.Score
				break
			}
		}
		return true
	})
}

// Clear resets the profile's history. A profile with nothing recorded is
// left unwritten.
func (s *Stats) Clear(ctx context.Context, profileID string) error {
	return s.update(ctx, profileID, func(st *PlayerStats) bool {
		if st.PlayerName == "" && len(st.Games) == 0 {
			return false
		}
		st.PlayerName = ""
		st.Games = []GameHistoryEntry{}
		return true
	})
}

// Summary returns the profile's stats with derived figures.
func (s *Stats) Summary(ctx context.Context, profileID string) (StatsSummary, error) {
	st, err := s.load(ctx, profileID)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("load stats: %w", err)
	}
	return summarize(st), nil
}

func summarize(st PlayerStats) StatsSummary {
	out := StatsSummary{PlayerStats: st}
	for _, g := range st.Games {
		if g.Placement == 1 {
			out.Wins++
		}
		if g.FinalScore > out.BestScore {
			out.BestScore = g.FinalScore
		}
	}
	if st.TotalGames > 0 {
		out.AverageScore = math.Round(float64(st.TotalPoints)/float64(st.TotalGames)*10) / 10
		out.WinRate = int(math.Round(float64(out.Wins) / float64(st.TotalGames) * 100))
	}
	return out
}
