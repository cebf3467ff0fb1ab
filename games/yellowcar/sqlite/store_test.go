/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Seednode/yellowcar/games/yellowcar"
)

var now = time.Date(2026, time.February, 22, 16, 40, 0, 0, time.UTC)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "yellowcar.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func seedGame(t *testing.T, store *Store, id string) yellowcar.Game {
	t.Helper()

	game := yellowcar.Game{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: now,
		Status:    yellowcar.StatusPlaying,
		Players: map[string]*yellowcar.Player{
			"player_0": {ID: "player_0", Name: "Alice", Color: yellowcar.Palette[0], Order: 0},
			"player_1": {ID: "player_1", Name: "Bob", Color: yellowcar.Palette[1], Order: 1},
		},
	}
	if err := store.CreateGame(context.Background(), game); err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenTwiceKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "yellowcar.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	seedGame(t, store, "ABCDEFGH")
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()

	if _, err := store.Game(context.Background(), "ABCDEFGH"); err != nil {
		t.Fatalf("game after reopen: %v", err)
	}
}

func TestCreateGetGameRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	want := seedGame(t, store, "ABCDEFGH")

	got, err := store.Game(context.Background(), "ABCDEFGH")
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.Status != want.Status {
		t.Fatalf("game = %+v, want %+v", got, want)
	}
	if !got.FinishedAt.IsZero() {
		t.Fatalf("finished_at = %v, want zero", got.FinishedAt)
	}
	if len(got.Players) != 2 || got.Players["player_1"].Name != "Bob" || got.Players["player_1"].Order != 1 {
		t.Fatalf("players = %+v", got.Roster())
	}

	if err := store.CreateGame(context.Background(), want); !errors.Is(err, yellowcar.ErrConflict) {
		t.Fatalf("duplicate create error = %v, want %v", err, yellowcar.ErrConflict)
	}
	if _, err := store.Game(context.Background(), "missing"); !errors.Is(err, yellowcar.ErrNotFound) {
		t.Fatalf("missing game error = %v, want %v", err, yellowcar.ErrNotFound)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedGame(t, store, "ABCDEFGH")
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.Update(ctx, "ABCDEFGH", func(tx yellowcar.Tx) error {
		if err := tx.SetScore("player_0", 3, now); err != nil {
			return err
		}
		if err := tx.AddEvent(yellowcar.ScoringEvent{ID: "e1", PlayerID: "player_0", Timestamp: now}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("update error = %v, want %v", err, boom)
	}

	game, _ := store.Game(ctx, "ABCDEFGH")
	if got := game.Players["player_0"].Score; got != 0 {
		t.Fatalf("score after rollback = %d, want 0", got)
	}
	events, _ := store.Events(ctx, "ABCDEFGH", 0)
	if len(events) != 0 {
		t.Fatalf("events after rollback = %d, want 0", len(events))
	}

	if err := store.Update(ctx, "missing", func(yellowcar.Tx) error { return nil }); !errors.Is(err, yellowcar.ErrNotFound) {
		t.Fatalf("update missing error = %v, want %v", err, yellowcar.ErrNotFound)
	}
}

func TestEventsNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedGame(t, store, "ABCDEFGH")
	ctx := context.Background()

	err := store.Update(ctx, "ABCDEFGH", func(tx yellowcar.Tx) error {
		for _, e := range []yellowcar.ScoringEvent{
			{ID: "a", PlayerID: "player_0", Timestamp: now},
			{ID: "b", PlayerID: "player_1", Timestamp: now.Add(time.Second)},
			{ID: "c", PlayerID: "player_0", Timestamp: now.Add(time.Second)},
		} {
			e.Kind = yellowcar.KindPointAdded
			if err := tx.AddEvent(e); err != nil {
				return err
			}
		}
		if err := tx.AddEvent(yellowcar.ScoringEvent{ID: "a", Timestamp: now}); !errors.Is(err, yellowcar.ErrConflict) {
			t.Errorf("duplicate event error = %v, want %v", err, yellowcar.ErrConflict)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	events, err := store.Events(ctx, "ABCDEFGH", 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var ids []string
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "b" || ids[2] != "a" {
		t.Fatalf("event order = %v, want [c b a]", ids)
	}

	limited, _ := store.Events(ctx, "ABCDEFGH", 2)
	if len(limited) != 2 {
		t.Fatalf("limited events = %d, want 2", len(limited))
	}
}

func TestSettleChallengeOnlyOnce(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedGame(t, store, "ABCDEFGH")
	ctx := context.Background()

	c := yellowcar.Challenge{
		ID:           "c1",
		GameID:       "ABCDEFGH",
		EventID:      "e1",
		PlayerID:     "player_1",
		ChallengerID: "player_0",
		Status:       yellowcar.ChallengeVoting,
		CreatedAt:    now,
		ExpiresAt:    now.Add(10 * time.Second),
	}

	var first, second bool
	err := store.Update(ctx, "ABCDEFGH", func(tx yellowcar.Tx) error {
		if err := tx.AddChallenge(c); err != nil {
			return err
		}
		if err := tx.SetVote("c1", "player_0", yellowcar.VoteNo); err != nil {
			return err
		}
		if err := tx.SetVote("c1", "player_0", yellowcar.VoteYes); err != nil {
			return err
		}
		if err := tx.SetVote("c9", "player_0", yellowcar.VoteYes); !errors.Is(err, yellowcar.ErrNotFound) {
			t.Errorf("vote on missing challenge error = %v", err)
		}

		var err error
		if first, err = tx.SettleChallenge("c1", yellowcar.ChallengeApproved, now); err != nil {
			return err
		}
		second, err = tx.SettleChallenge("c1", yellowcar.ChallengeRejected, now)
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !first || second {
		t.Fatalf("settle results = %v, %v; want true, false", first, second)
	}

	got, err := store.Challenge(ctx, "ABCDEFGH", "c1")
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if got.Status != yellowcar.ChallengeApproved || !got.ResolvedAt.Equal(now) {
		t.Fatalf("challenge = %+v", got)
	}
	if len(got.Votes) != 1 || got.Votes["player_0"] != yellowcar.VoteYes {
		t.Fatalf("votes = %v", got.Votes)
	}

	latest, err := store.LatestChallenge(ctx, "ABCDEFGH")
	if err != nil || latest.ID != "c1" {
		t.Fatalf("latest = %+v, %v", latest, err)
	}
}

func TestStatsRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	if _, err := store.Stats(ctx, "phone"); !errors.Is(err, yellowcar.ErrNotFound) {
		t.Fatalf("missing stats error = %v, want %v", err, yellowcar.ErrNotFound)
	}

	want := yellowcar.PlayerStats{
		ProfileID:   "phone",
		PlayerName:  "Alice",
		TotalGames:  1,
		TotalPoints: 2,
		LastUpdated: now,
		Games: []yellowcar.GameHistoryEntry{{
			GameID:          "ABCDEFGH",
			Date:            now,
			PlayerName:      "Alice",
			FinalScore:      2,
			Placement:       1,
			TotalPlayers:    2,
			PointTimestamps: []time.Time{now, now.Add(time.Minute)},
		}},
	}
	for range 2 {
		if err := store.PutStats(ctx, want); err != nil {
			t.Fatalf("put stats: %v", err)
		}
	}

	got, err := store.Stats(ctx, "phone")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got.TotalPoints != 2 || len(got.Games) != 1 || len(got.Games[0].PointTimestamps) != 2 {
		t.Fatalf("stats = %+v", got)
	}
	if !got.LastUpdated.Equal(now) {
		t.Fatalf("last_updated = %v, want %v", got.LastUpdated, now)
	}
}
