/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestStatsRecordAndFinalize(t *testing.T) {
	t.Parallel()

	svc, clock := newTestService(t)
	game := newTestGame(t, svc, "Ann", "Ben", "Cat")
	ctx := context.Background()

	for _, p := range []string{"player_1", "player_1", "player_0"} {
		if _, err := svc.AddPoint(ctx, game.ID, p, "phone-ben"); err != nil && !errors.Is(err, ErrTooFast) {
			t.Fatalf("add point: %v", err)
		}
		clock.Advance(DefaultCooldown)
	}

	sum, err := svc.Stats.Summary(ctx, "phone-ben")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(sum.Games) != 1 || len(sum.Games[0].PointTimestamps) != 3 {
		t.Fatalf("games = %+v, want one entry with three points", sum.Games)
	}

	finished, err := svc.EndGame(ctx, game.ID, "phone-ben", "phone-unused")
	if err != nil {
		t.Fatalf("end game: %v", err)
	}
	if finished.Status != StatusFinished {
		t.Fatalf("status = %q", finished.Status)
	}

	sum, err = svc.Stats.Summary(ctx, "phone-ben")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	entry := sum.Games[0]
	// The device last scored for Ann, who finished second behind Ben.
	if entry.PlayerName != "Ann" || entry.Placement != 2 || entry.TotalPlayers != 3 || entry.FinalScore != 1 {
		t.Fatalf("entry = %+v", entry)
	}
	if sum.TotalGames != 1 || sum.TotalPoints != 1 || sum.Wins != 0 || sum.WinRate != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	unused, err := svc.Stats.Summary(ctx, "phone-unused")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if unused.TotalGames != 0 {
		t.Fatalf("unused profile games = %d, want 0", unused.TotalGames)
	}
}

func TestStatsSummaryFigures(t *testing.T) {
	t.Parallel()

	st := PlayerStats{Games: []GameHistoryEntry{
		{GameID: "a", FinalScore: 4, Placement: 1},
		{GameID: "b", FinalScore: 1, Placement: 3},
		{GameID: "c", FinalScore: 2, Placement: 1},
	}}
	st.recount()
	sum := summarize(st)

	if sum.Wins != 2 || sum.BestScore != 4 || sum.AverageScore != 2.3 || sum.WinRate != 67 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestStatsKeepsLastFiftyGames(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < HistoryLimit+5; i++ {
		at := epoch.Add(time.Duration(i) * time.Minute)
		if err := svc.Stats.RecordPoint(ctx, "p", fmt.Sprintf("game-%02d", i), "Ann", at); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	sum, err := svc.Stats.Summary(ctx, "p")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalGames != HistoryLimit || sum.TotalPoints != HistoryLimit {
		t.Fatalf("totals = %d games, %d points", sum.TotalGames, sum.TotalPoints)
	}
	if sum.Games[0].GameID != "game-05" {
		t.Fatalf("oldest kept = %q, want game-05", sum.Games[0].GameID)
	}
}

func TestStatsClear(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Stats.RecordPoint(ctx, "p", "g", "Ann", epoch); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.Stats.Clear(ctx, "p"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	sum, _ := svc.Stats.Summary(ctx, "p")
	if sum.TotalGames != 0 || sum.PlayerName != "" {
		t.Fatalf("summary after clear = %+v", sum)
	}
	if err := svc.Stats.Clear(ctx, ""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("empty profile error = %v, want %v", err, ErrInvalid)
	}
}

func TestPlacementIsDense(t *testing.T) {
	t.Parallel()

	g := Game{Players: map[string]*Player{
		"a": {Name: "A", Score: 3, Order: 0},
		"b": {Name: "B", Score: 3, Order: 1},
		"c": {Name: "C", Score: 1, Order: 2},
	}}
	for name, want := range map[string]int{"A": 1, "B": 1, "C": 2, "Z": 0} {
		if got := g.Placement(name); got != want {
			t.Errorf("placement(%s) = %d, want %d", name, got, want)
		}
	}
}

func TestAchievementFor(t *testing.T) {
	t.Parallel()

	if a, ok := AchievementFor(10); !ok || a.Score != 10 {
		t.Fatalf("AchievementFor(10) = %+v, %v", a, ok)
	}
	if _, ok := AchievementFor(11); ok {
		t.Fatal("AchievementFor(11) reported a milestone")
	}
}

func TestStatsClearUnknownProfileWritesNothing(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("phone-%d", i)
		if err := svc.Stats.Clear(ctx, id); err != nil {
			t.Fatalf("clear %s: %v", id, err)
		}
		if _, err := svc.store.Stats(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("stats for %s after clear: %v, want %v", id, err, ErrNotFound)
		}
	}
	if n := svc.Stats.lockCount(); n != 0 {
		t.Fatalf("profile locks = %d, want 0", n)
	}
}
